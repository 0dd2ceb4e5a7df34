package noteboard

import (
	"context"
	"errors"

	"github.com/dalemusser/recoveryhub/internal/app/policy/postpolicy"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func findReply(ctx context.Context, tx Store, id primitive.ObjectID) (models.Reply, error) {
	r, err := tx.Replies().Find(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return models.Reply{}, notFound("reply", id.Hex())
	}
	if err != nil {
		return models.Reply{}, storage("load reply", err)
	}
	return r, nil
}

// CreateReply adds a reply to a post the actor can read. The post is locked
// before replies are counted, so concurrent replies cannot pass the cap
// together.
func (s *Service) CreateReply(ctx context.Context, actor models.Identity, postID primitive.ObjectID, body string) (ReplyView, error) {
	if err := requireIdentity(actor); err != nil {
		return ReplyView{}, err
	}

	var reply models.Reply
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Store) error {
		p, vis, err := findPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if !postpolicy.CanRead(p, vis, actor) {
			return forbidden("reply to this post")
		}
		clean, err := cleanBody(body)
		if err != nil {
			return err
		}
		if err := tx.Posts().Lock(ctx, postID); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("post", postID.Hex())
			}
			return err
		}
		n, err := tx.Replies().CountByPost(ctx, postID)
		if err != nil {
			return err
		}
		if n >= MaxReplies {
			return overCapacity(n)
		}

		now := s.Now()
		reply = models.Reply{
			ID:        primitive.NewObjectID(),
			PostID:    postID,
			AuthorID:  actor.ID,
			Body:      clean,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Replies().Insert(ctx, reply)
	})
	if err != nil {
		return ReplyView{}, storage("create reply", err)
	}

	s.record(ctx, EventReplyCreated, actor, map[string]string{
		"post_id":  postID.Hex(),
		"reply_id": reply.ID.Hex(),
	})
	return s.replyView(ctx, actor, reply)
}

// UpdateReply changes a reply's body. Only its author or an admin may do so.
func (s *Service) UpdateReply(ctx context.Context, actor models.Identity, replyID primitive.ObjectID, body string) (ReplyView, error) {
	if err := requireIdentity(actor); err != nil {
		return ReplyView{}, err
	}

	var reply models.Reply
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Store) error {
		r, err := findReply(ctx, tx, replyID)
		if err != nil {
			return err
		}
		if !postpolicy.CanEditReply(r, actor) {
			return forbidden("edit this reply")
		}
		clean, err := cleanBody(body)
		if err != nil {
			return err
		}
		r.Body = clean
		r.UpdatedAt = s.Now()
		if err := tx.Replies().Update(ctx, r); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("reply", replyID.Hex())
			}
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return ReplyView{}, storage("update reply", err)
	}

	s.record(ctx, EventReplyUpdated, actor, map[string]string{
		"post_id":  reply.PostID.Hex(),
		"reply_id": replyID.Hex(),
	})
	return s.replyView(ctx, actor, reply)
}

// DeleteReply removes a reply. The parent post and its grants are untouched.
func (s *Service) DeleteReply(ctx context.Context, actor models.Identity, replyID primitive.ObjectID) error {
	if err := requireIdentity(actor); err != nil {
		return err
	}

	var postID primitive.ObjectID
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Store) error {
		r, err := findReply(ctx, tx, replyID)
		if err != nil {
			return err
		}
		if !postpolicy.CanDeleteReply(r, actor) {
			return forbidden("delete this reply")
		}
		postID = r.PostID
		if err := tx.Replies().Delete(ctx, replyID); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("reply", replyID.Hex())
			}
			return err
		}
		return nil
	})
	if err != nil {
		return storage("delete reply", err)
	}

	s.record(ctx, EventReplyDeleted, actor, map[string]string{
		"post_id":  postID.Hex(),
		"reply_id": replyID.Hex(),
	})
	return nil
}

func (s *Service) replyView(ctx context.Context, viewer models.Identity, r models.Reply) (ReplyView, error) {
	names, err := s.names(ctx, []primitive.ObjectID{r.AuthorID})
	if err != nil {
		return ReplyView{}, err
	}
	return s.buildReplyView(viewer, r, names), nil
}
