package noteboard

import (
	"context"

	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostStore persists posts together with their grant rows.
// Find, Update and Delete return ErrNoRecord for unknown ids.
type PostStore interface {
	Find(ctx context.Context, id primitive.ObjectID) (models.Post, models.Grants, error)
	List(ctx context.Context) ([]models.Post, error)
	// Grants returns the grant snapshot of every listed post in one round trip.
	// Posts without grant rows may be absent from the map.
	Grants(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Grants, error)
	Insert(ctx context.Context, p models.Post, g models.Grants) error
	// Update rewrites the post's mutable fields and replaces its grants wholesale.
	Update(ctx context.Context, p models.Post, g models.Grants) error
	// Delete removes the post, its grants and its replies, returning the
	// number of replies removed.
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
	// Lock serializes the enclosing Atomic call with every other one that
	// locks the same post, until it commits or rolls back.
	Lock(ctx context.Context, id primitive.ObjectID) error
}

// ReplyStore persists replies. Find, Update and Delete return ErrNoRecord for
// unknown ids.
type ReplyStore interface {
	Find(ctx context.Context, id primitive.ObjectID) (models.Reply, error)
	ListByPost(ctx context.Context, postID primitive.ObjectID) ([]models.Reply, error)
	ListByPosts(ctx context.Context, postIDs []primitive.ObjectID) (map[primitive.ObjectID][]models.Reply, error)
	Insert(ctx context.Context, r models.Reply) error
	Update(ctx context.Context, r models.Reply) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	CountByPost(ctx context.Context, postID primitive.ObjectID) (int64, error)
}

// Store groups the board's stores behind one transaction boundary.
type Store interface {
	Posts() PostStore
	Replies() ReplyStore
	// Atomic runs fn so that every write made through tx commits together or
	// not at all. Returning an error from fn rolls back.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// AuditSink records board mutations. It must not fail the caller; sinks log
// their own errors.
type AuditSink interface {
	Record(ctx context.Context, event string, actorID primitive.ObjectID, payload map[string]string)
}

// Directory resolves staff ids to user records. Unknown ids are absent from
// the returned map.
type Directory interface {
	Lookup(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
}

// Audit event names emitted by the board.
const (
	EventPostCreated  = "post.created"
	EventPostUpdated  = "post.updated"
	EventPostDeleted  = "post.deleted"
	EventReplyCreated = "reply.created"
	EventReplyUpdated = "reply.updated"
	EventReplyDeleted = "reply.deleted"
)
