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

type replyRow struct {
	ID        string    `db:"id"`
	PostID    string    `db:"post_id"`
	AuthorID  string    `db:"author_id"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r replyRow) model() (models.Reply, error) {
	id, err := parseID("reply id", r.ID)
	if err != nil {
		return models.Reply{}, err
	}
	post, err := parseID("post id", r.PostID)
	if err != nil {
		return models.Reply{}, err
	}
	author, err := parseID("author id", r.AuthorID)
	if err != nil {
		return models.Reply{}, err
	}
	return models.Reply{
		ID:        id,
		PostID:    post,
		AuthorID:  author,
		Body:      r.Body,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

const replyColumns = `id, post_id, author_id, body, created_at, updated_at`

type replyRepo struct{ q querier }

func (r replyRepo) Find(ctx context.Context, id primitive.ObjectID) (models.Reply, error) {
	rows, err := r.q.Query(ctx, `SELECT `+replyColumns+` FROM replies WHERE id = $1`, id.Hex())
	if err != nil {
		return models.Reply{}, err
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[replyRow])
	if err != nil {
		return models.Reply{}, noRecord(err)
	}
	return row.model()
}

func (r replyRepo) list(ctx context.Context, postIDs []string) ([]models.Reply, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+replyColumns+` FROM replies WHERE post_id = ANY($1) ORDER BY created_at, id`, postIDs)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[replyRow])
	if err != nil {
		return nil, err
	}
	out := make([]models.Reply, 0, len(found))
	for _, row := range found {
		rep, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func (r replyRepo) ListByPost(ctx context.Context, postID primitive.ObjectID) ([]models.Reply, error) {
	return r.list(ctx, []string{postID.Hex()})
}

func (r replyRepo) ListByPosts(ctx context.Context, postIDs []primitive.ObjectID) (map[primitive.ObjectID][]models.Reply, error) {
	out := make(map[primitive.ObjectID][]models.Reply, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	all, err := r.list(ctx, hexes(postIDs))
	if err != nil {
		return nil, err
	}
	for _, rep := range all {
		out[rep.PostID] = append(out[rep.PostID], rep)
	}
	return out, nil
}

func (r replyRepo) Insert(ctx context.Context, rep models.Reply) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO replies (`+replyColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		rep.ID.Hex(), rep.PostID.Hex(), rep.AuthorID.Hex(), rep.Body, rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

func (r replyRepo) Update(ctx context.Context, rep models.Reply) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE replies SET body = $2, updated_at = $3 WHERE id = $1`,
		rep.ID.Hex(), rep.Body, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return noteboard.ErrNoRecord
	}
	return nil
}

func (r replyRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM replies WHERE id = $1`, id.Hex())
	if err != nil {
		return fmt.Errorf("delete reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return noteboard.ErrNoRecord
	}
	return nil
}

func (r replyRepo) CountByPost(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM replies WHERE post_id = $1`, postID.Hex()).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
