// internal/domain/models/post.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post status values.
const (
	PostStatusActive = "active"
)

// Post is a note-board entry. Its grants live in separate collections
// (post_role_grants / post_user_grants) keyed by post_id.
type Post struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Title      string             `bson:"title" json:"title"`
	Body       string             `bson:"body" json:"body"`
	AuthorID   primitive.ObjectID `bson:"author_id" json:"author_id"`
	Visibility VisibilityMode     `bson:"visibility" json:"visibility"`
	Status     string             `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// PostRoleGrant is one (post, role) row.
type PostRoleGrant struct {
	PostID primitive.ObjectID `bson:"post_id"`
	Role   Role               `bson:"role"`
}

// PostUserGrant is one (post, user) row.
type PostUserGrant struct {
	PostID primitive.ObjectID `bson:"post_id"`
	UserID primitive.ObjectID `bson:"user_id"`
}

// Reply belongs to exactly one post and is removed with it.
type Reply struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	PostID   primitive.ObjectID `bson:"post_id" json:"post_id"`
	AuthorID primitive.ObjectID `bson:"author_id" json:"author_id"`
	Body     string             `bson:"body" json:"body"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
