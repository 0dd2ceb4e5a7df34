package pgboard

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/system/noteboard"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/jackc/pgx/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type postRow struct {
	ID         string    `db:"id"`
	Title      string    `db:"title"`
	Body       string    `db:"body"`
	AuthorID   string    `db:"author_id"`
	Visibility string    `db:"visibility"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r postRow) model() (models.Post, error) {
	id, err := parseID("post id", r.ID)
	if err != nil {
		return models.Post{}, err
	}
	author, err := parseID("author id", r.AuthorID)
	if err != nil {
		return models.Post{}, err
	}
	return models.Post{
		ID:         id,
		Title:      r.Title,
		Body:       r.Body,
		AuthorID:   author,
		Visibility: models.VisibilityMode(r.Visibility),
		Status:     r.Status,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}, nil
}

const postColumns = `id, title, body, author_id, visibility, status, created_at, updated_at`

type postRepo struct{ q querier }

func (r postRepo) Find(ctx context.Context, id primitive.ObjectID) (models.Post, models.Grants, error) {
	rows, err := r.q.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id.Hex())
	if err != nil {
		return models.Post{}, models.Grants{}, err
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[postRow])
	if err != nil {
		return models.Post{}, models.Grants{}, noRecord(err)
	}
	p, err := row.model()
	if err != nil {
		return models.Post{}, models.Grants{}, err
	}
	grants, err := r.Grants(ctx, []primitive.ObjectID{id})
	if err != nil {
		return models.Post{}, models.Grants{}, err
	}
	return p, grants[id], nil
}

func (r postRepo) List(ctx context.Context) ([]models.Post, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE status = $1 ORDER BY created_at DESC, id DESC`,
		models.PostStatusActive)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[postRow])
	if err != nil {
		return nil, err
	}
	out := make([]models.Post, 0, len(found))
	for _, row := range found {
		p, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type grantRow struct {
	PostID string `db:"post_id"`
	Value  string `db:"value"`
}

func (r postRepo) Grants(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Grants, error) {
	out := make(map[primitive.ObjectID]models.Grants, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := hexes(ids)

	roles, err := r.collectGrants(ctx,
		`SELECT post_id, role AS value FROM post_role_grants WHERE post_id = ANY($1) ORDER BY post_id, role`, keys)
	if err != nil {
		return nil, fmt.Errorf("role grants: %w", err)
	}
	for _, g := range roles {
		id, err := parseID("post id", g.PostID)
		if err != nil {
			return nil, err
		}
		v := out[id]
		v.Roles = append(v.Roles, models.Role(g.Value))
		out[id] = v
	}

	users, err := r.collectGrants(ctx,
		`SELECT post_id, user_id AS value FROM post_user_grants WHERE post_id = ANY($1) ORDER BY post_id, user_id`, keys)
	if err != nil {
		return nil, fmt.Errorf("user grants: %w", err)
	}
	for _, g := range users {
		id, err := parseID("post id", g.PostID)
		if err != nil {
			return nil, err
		}
		uid, err := parseID("user id", g.Value)
		if err != nil {
			return nil, err
		}
		v := out[id]
		v.Users = append(v.Users, uid)
		out[id] = v
	}
	return out, nil
}

func (r postRepo) collectGrants(ctx context.Context, sql string, keys []string) ([]grantRow, error) {
	rows, err := r.q.Query(ctx, sql, keys)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[grantRow])
}

func (r postRepo) Insert(ctx context.Context, p models.Post, g models.Grants) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID.Hex(), p.Title, p.Body, p.AuthorID.Hex(), string(p.Visibility), p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return r.insertGrants(ctx, p.ID, g)
}

func (r postRepo) Update(ctx context.Context, p models.Post, g models.Grants) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE posts SET title = $2, body = $3, visibility = $4, updated_at = $5 WHERE id = $1`,
		p.ID.Hex(), p.Title, p.Body, string(p.Visibility), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return noteboard.ErrNoRecord
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM post_role_grants WHERE post_id = $1`, p.ID.Hex()); err != nil {
		return fmt.Errorf("clear role grants: %w", err)
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM post_user_grants WHERE post_id = $1`, p.ID.Hex()); err != nil {
		return fmt.Errorf("clear user grants: %w", err)
	}
	return r.insertGrants(ctx, p.ID, g)
}

// Delete counts the post's replies in the same statement that removes the
// post, so the count matches what the cascade took with it.
func (r postRepo) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	var deleted, replies int64
	err := r.q.QueryRow(ctx, `
		WITH gone AS (DELETE FROM posts WHERE id = $1 RETURNING id)
		SELECT (SELECT count(*) FROM gone), (SELECT count(*) FROM replies WHERE post_id = $1)`,
		id.Hex()).Scan(&deleted, &replies)
	if err != nil {
		return 0, fmt.Errorf("delete post: %w", err)
	}
	if deleted == 0 {
		return 0, noteboard.ErrNoRecord
	}
	return replies, nil
}

// Lock holds a row lock on the post until the transaction ends.
func (r postRepo) Lock(ctx context.Context, id primitive.ObjectID) error {
	var got string
	if err := r.q.QueryRow(ctx, `SELECT id FROM posts WHERE id = $1 FOR UPDATE`, id.Hex()).Scan(&got); err != nil {
		return noRecord(err)
	}
	return nil
}

func (r postRepo) insertGrants(ctx context.Context, postID primitive.ObjectID, g models.Grants) error {
	if len(g.Roles) > 0 {
		roles := make([]string, len(g.Roles))
		for i, role := range g.Roles {
			roles[i] = string(role)
		}
		if _, err := r.q.Exec(ctx,
			`INSERT INTO post_role_grants (post_id, role) SELECT $1, unnest($2::text[])`,
			postID.Hex(), roles); err != nil {
			return fmt.Errorf("insert role grants: %w", err)
		}
	}
	if len(g.Users) > 0 {
		if _, err := r.q.Exec(ctx,
			`INSERT INTO post_user_grants (post_id, user_id) SELECT $1, unnest($2::text[])`,
			postID.Hex(), hexes(g.Users)); err != nil {
			return fmt.Errorf("insert user grants: %w", err)
		}
	}
	return nil
}
