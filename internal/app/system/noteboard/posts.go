package noteboard

import (
	"context"
	"errors"
	"html"
	"sort"
	"strconv"

	"github.com/dalemusser/recoveryhub/internal/app/policy/postpolicy"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// findPost loads a post and its visibility, mapping ErrNoRecord to NotFound.
func findPost(ctx context.Context, tx Store, id primitive.ObjectID) (models.Post, models.Visibility, error) {
	p, g, err := tx.Posts().Find(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return models.Post{}, nil, notFound("post", id.Hex())
	}
	if err != nil {
		return models.Post{}, nil, storage("load post", err)
	}
	return p, models.Restore(p.Visibility, g), nil
}

// CreatePost validates in and stores the post with its grants in one atomic write.
func (s *Service) CreatePost(ctx context.Context, actor models.Identity, in PostInput) (PostView, error) {
	if err := requireIdentity(actor); err != nil {
		return PostView{}, err
	}
	title, body, vis, err := s.parsePost(ctx, in)
	if err != nil {
		return PostView{}, err
	}

	now := s.Now()
	p := models.Post{
		ID:         primitive.NewObjectID(),
		Title:      title,
		Body:       body,
		AuthorID:   actor.ID,
		Visibility: vis.Mode(),
		Status:     models.PostStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, tx Store) error {
		return tx.Posts().Insert(ctx, p, vis.Grants())
	})
	if err != nil {
		return PostView{}, storage("create post", err)
	}

	s.record(ctx, EventPostCreated, actor, map[string]string{
		"post_id":    p.ID.Hex(),
		"visibility": string(vis.Mode()),
		"grants":     vis.Grants().String(),
	})
	return s.postView(ctx, actor, p, vis, nil)
}

// UpdatePost replaces the post's content and visibility. The previous grants
// are discarded, never merged.
func (s *Service) UpdatePost(ctx context.Context, actor models.Identity, postID primitive.ObjectID, in PostInput) (PostView, error) {
	if err := requireIdentity(actor); err != nil {
		return PostView{}, err
	}

	var (
		updated models.Post
		before  models.Visibility
		after   models.Visibility
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Store) error {
		p, vis, err := findPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if !postpolicy.CanEdit(p, actor) {
			return forbidden("edit this post")
		}
		title, body, next, err := s.parsePost(ctx, in)
		if err != nil {
			return err
		}

		p.Title = title
		p.Body = body
		p.Visibility = next.Mode()
		p.UpdatedAt = s.Now()
		if err := tx.Posts().Update(ctx, p, next.Grants()); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("post", postID.Hex())
			}
			return err
		}
		updated, before, after = p, vis, next
		return nil
	})
	if err != nil {
		return PostView{}, storage("update post", err)
	}

	s.record(ctx, EventPostUpdated, actor, map[string]string{
		"post_id":           postID.Hex(),
		"visibility_before": string(before.Mode()),
		"visibility_after":  string(after.Mode()),
		"grants_before":     before.Grants().String(),
		"grants_after":      after.Grants().String(),
	})

	replies, err := s.store.Replies().ListByPost(ctx, postID)
	if err != nil {
		return PostView{}, storage("load replies", err)
	}
	return s.postView(ctx, actor, updated, after, replies)
}

// DeletePost removes the post together with its replies and grants.
func (s *Service) DeletePost(ctx context.Context, actor models.Identity, postID primitive.ObjectID) error {
	if err := requireIdentity(actor); err != nil {
		return err
	}

	var removed int64
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Store) error {
		p, _, err := findPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if !postpolicy.CanDelete(p, actor) {
			return forbidden("delete this post")
		}
		n, err := tx.Posts().Delete(ctx, postID)
		if errors.Is(err, ErrNoRecord) {
			return notFound("post", postID.Hex())
		}
		removed = n
		return err
	})
	if err != nil {
		return storage("delete post", err)
	}

	s.record(ctx, EventPostDeleted, actor, map[string]string{
		"post_id":         postID.Hex(),
		"replies_removed": strconv.FormatInt(removed, 10),
	})
	return nil
}

// ListPosts returns every post the viewer may read, newest first, with their
// replies oldest first. Grants, replies and names are fetched in batches.
func (s *Service) ListPosts(ctx context.Context, viewer models.Identity) ([]PostView, error) {
	posts, err := s.store.Posts().List(ctx)
	if err != nil {
		return nil, storage("list posts", err)
	}
	if len(posts) == 0 {
		return []PostView{}, nil
	}

	ids := make([]primitive.ObjectID, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	grants, err := s.store.Posts().Grants(ctx, ids)
	if err != nil {
		return nil, storage("load grants", err)
	}

	type visible struct {
		post models.Post
		vis  models.Visibility
	}
	var shown []visible
	for _, p := range posts {
		vis := models.Restore(p.Visibility, grants[p.ID])
		if postpolicy.CanRead(p, vis, viewer) {
			shown = append(shown, visible{p, vis})
		}
	}
	sort.Slice(shown, func(i, j int) bool {
		a, b := shown[i].post, shown[j].post
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.Hex() > b.ID.Hex()
	})
	if len(shown) == 0 {
		return []PostView{}, nil
	}

	shownIDs := make([]primitive.ObjectID, len(shown))
	for i, v := range shown {
		shownIDs[i] = v.post.ID
	}
	replies, err := s.store.Replies().ListByPosts(ctx, shownIDs)
	if err != nil {
		return nil, storage("load replies", err)
	}

	var people []primitive.ObjectID
	for _, v := range shown {
		people = append(people, v.post.AuthorID)
		people = append(people, v.vis.Grants().Users...)
		for _, r := range replies[v.post.ID] {
			people = append(people, r.AuthorID)
		}
	}
	names, err := s.names(ctx, people)
	if err != nil {
		return nil, err
	}

	out := make([]PostView, len(shown))
	for i, v := range shown {
		out[i] = s.buildPostView(viewer, v.post, v.vis, replies[v.post.ID], names)
	}
	return out, nil
}

// GetPost returns one post. A post the viewer cannot read is reported as not
// found so its existence is not revealed.
func (s *Service) GetPost(ctx context.Context, viewer models.Identity, postID primitive.ObjectID) (PostView, error) {
	p, vis, err := findPost(ctx, s.store, postID)
	if err != nil {
		return PostView{}, err
	}
	if !postpolicy.CanRead(p, vis, viewer) {
		return PostView{}, notFound("post", postID.Hex())
	}
	replies, err := s.store.Replies().ListByPost(ctx, postID)
	if err != nil {
		return PostView{}, storage("load replies", err)
	}
	return s.postView(ctx, viewer, p, vis, replies)
}

// postView resolves names for a single post and builds its view.
func (s *Service) postView(ctx context.Context, viewer models.Identity, p models.Post, vis models.Visibility, replies []models.Reply) (PostView, error) {
	people := append([]primitive.ObjectID{p.AuthorID}, vis.Grants().Users...)
	for _, r := range replies {
		people = append(people, r.AuthorID)
	}
	names, err := s.names(ctx, people)
	if err != nil {
		return PostView{}, err
	}
	return s.buildPostView(viewer, p, vis, replies, names), nil
}

// names looks up display names for ids in one directory call.
func (s *Service) names(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	uniq := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id.IsZero() {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	out := make(map[primitive.ObjectID]string, len(uniq))
	if len(uniq) == 0 {
		return out, nil
	}
	users, err := s.dir.Lookup(ctx, uniq)
	if err != nil {
		return nil, storage("look up users", err)
	}
	for id, u := range users {
		out[id] = u.FullName
	}
	return out, nil
}

func (s *Service) renderBody(body string) string {
	out, err := s.Render(body)
	if err != nil {
		s.log.Warn("render body failed; showing escaped source", zap.Error(err))
		return "<pre>" + html.EscapeString(body) + "</pre>"
	}
	return out
}
