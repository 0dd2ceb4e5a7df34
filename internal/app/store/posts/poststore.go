// Package poststore is the MongoDB adapter for the note board. Posts, their
// role and user grants, and replies live in four collections keyed by post id.
package poststore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/recoveryhub/internal/app/system/noteboard"
	"github.com/dalemusser/recoveryhub/internal/app/system/txn"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names.
const (
	PostsCollection      = "posts"
	RoleGrantsCollection = "post_role_grants"
	UserGrantsCollection = "post_user_grants"
	RepliesCollection    = "replies"
)

// Store implements noteboard.Store.
type Store struct {
	db  *mongo.Database
	log *zap.Logger

	posts      *mongo.Collection
	roleGrants *mongo.Collection
	userGrants *mongo.Collection
	replies    *mongo.Collection
}

// New creates a Store over db.
func New(db *mongo.Database, log *zap.Logger) *Store {
	return &Store{
		db:         db,
		log:        log,
		posts:      db.Collection(PostsCollection),
		roleGrants: db.Collection(RoleGrantsCollection),
		userGrants: db.Collection(UserGrantsCollection),
		replies:    db.Collection(RepliesCollection),
	}
}

func (s *Store) Posts() noteboard.PostStore    { return postRepo{s} }
func (s *Store) Replies() noteboard.ReplyStore { return replyRepo{s} }

// Atomic runs fn in a multi-document transaction. The session-bound context
// passed to fn must be used for every call made through tx.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx noteboard.Store) error) error {
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

// EnsureIndexes creates the lookup and uniqueness indexes for the board.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "author_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("posts indexes: %w", err)
	}
	if _, err := s.roleGrants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "post_id", Value: 1}, {Key: "role", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_post_role"),
	}); err != nil {
		return fmt.Errorf("post_role_grants indexes: %w", err)
	}
	if _, err := s.userGrants.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "post_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_post_user"),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("post_user_grants indexes: %w", err)
	}
	if _, err := s.replies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("replies indexes: %w", err)
	}
	return nil
}

type postRepo struct{ s *Store }

func (r postRepo) Find(ctx context.Context, id primitive.ObjectID) (models.Post, models.Grants, error) {
	var p models.Post
	if err := r.s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, models.Grants{}, noteboard.ErrNoRecord
		}
		return models.Post{}, models.Grants{}, err
	}
	grants, err := r.Grants(ctx, []primitive.ObjectID{id})
	if err != nil {
		return models.Post{}, models.Grants{}, err
	}
	return p, grants[id], nil
}

func (r postRepo) List(ctx context.Context) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.s.posts.Find(ctx, bson.M{"status": models.PostStatusActive}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Post
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r postRepo) Grants(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Grants, error) {
	out := make(map[primitive.ObjectID]models.Grants, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	filter := bson.M{"post_id": bson.M{"$in": ids}}

	var roles []models.PostRoleGrant
	cur, err := r.s.roleGrants.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &roles); err != nil {
		return nil, err
	}
	for _, g := range roles {
		v := out[g.PostID]
		v.Roles = append(v.Roles, g.Role)
		out[g.PostID] = v
	}

	var users []models.PostUserGrant
	cur, err = r.s.userGrants.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, g := range users {
		v := out[g.PostID]
		v.Users = append(v.Users, g.UserID)
		out[g.PostID] = v
	}
	return out, nil
}

func (r postRepo) Insert(ctx context.Context, p models.Post, g models.Grants) error {
	if _, err := r.s.posts.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return r.insertGrants(ctx, p.ID, g)
}

func (r postRepo) Update(ctx context.Context, p models.Post, g models.Grants) error {
	res, err := r.s.posts.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"title":      p.Title,
		"body":       p.Body,
		"visibility": p.Visibility,
		"updated_at": p.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if res.MatchedCount == 0 {
		return noteboard.ErrNoRecord
	}
	if err := r.clearGrants(ctx, p.ID); err != nil {
		return err
	}
	return r.insertGrants(ctx, p.ID, g)
}

// Delete removes replies and grants before the post row.
func (r postRepo) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := r.s.replies.DeleteMany(ctx, bson.M{"post_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete replies: %w", err)
	}
	if err := r.clearGrants(ctx, id); err != nil {
		return 0, err
	}
	del, err := r.s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete post: %w", err)
	}
	if del.DeletedCount == 0 {
		return 0, noteboard.ErrNoRecord
	}
	return res.DeletedCount, nil
}

// Lock bumps the post's reply_seq. Two transactions doing this to the same
// post write-conflict, and WithTransaction retries the loser from the start.
func (r postRepo) Lock(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.s.posts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"reply_seq": 1}})
	if err != nil {
		return fmt.Errorf("lock post: %w", err)
	}
	if res.MatchedCount == 0 {
		return noteboard.ErrNoRecord
	}
	return nil
}

func (r postRepo) clearGrants(ctx context.Context, postID primitive.ObjectID) error {
	if _, err := r.s.roleGrants.DeleteMany(ctx, bson.M{"post_id": postID}); err != nil {
		return fmt.Errorf("clear role grants: %w", err)
	}
	if _, err := r.s.userGrants.DeleteMany(ctx, bson.M{"post_id": postID}); err != nil {
		return fmt.Errorf("clear user grants: %w", err)
	}
	return nil
}

func (r postRepo) insertGrants(ctx context.Context, postID primitive.ObjectID, g models.Grants) error {
	if len(g.Roles) > 0 {
		docs := make([]interface{}, len(g.Roles))
		for i, role := range g.Roles {
			docs[i] = models.PostRoleGrant{PostID: postID, Role: role}
		}
		if _, err := r.s.roleGrants.InsertMany(ctx, docs); err != nil {
			if wafflemongo.IsDup(err) {
				return fmt.Errorf("duplicate role grant for post %s: %w", postID.Hex(), err)
			}
			return fmt.Errorf("insert role grants: %w", err)
		}
	}
	if len(g.Users) > 0 {
		docs := make([]interface{}, len(g.Users))
		for i, uid := range g.Users {
			docs[i] = models.PostUserGrant{PostID: postID, UserID: uid}
		}
		if _, err := r.s.userGrants.InsertMany(ctx, docs); err != nil {
			if wafflemongo.IsDup(err) {
				return fmt.Errorf("duplicate user grant for post %s: %w", postID.Hex(), err)
			}
			return fmt.Errorf("insert user grants: %w", err)
		}
	}
	return nil
}

type replyRepo struct{ s *Store }

func (r replyRepo) Find(ctx context.Context, id primitive.ObjectID) (models.Reply, error) {
	var rep models.Reply
	if err := r.s.replies.FindOne(ctx, bson.M{"_id": id}).Decode(&rep); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Reply{}, noteboard.ErrNoRecord
		}
		return models.Reply{}, err
	}
	return rep, nil
}

func (r replyRepo) find(ctx context.Context, filter bson.M) ([]models.Reply, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.s.replies.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Reply
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r replyRepo) ListByPost(ctx context.Context, postID primitive.ObjectID) ([]models.Reply, error) {
	return r.find(ctx, bson.M{"post_id": postID})
}

func (r replyRepo) ListByPosts(ctx context.Context, postIDs []primitive.ObjectID) (map[primitive.ObjectID][]models.Reply, error) {
	out := make(map[primitive.ObjectID][]models.Reply, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	all, err := r.find(ctx, bson.M{"post_id": bson.M{"$in": postIDs}})
	if err != nil {
		return nil, err
	}
	for _, rep := range all {
		out[rep.PostID] = append(out[rep.PostID], rep)
	}
	return out, nil
}

func (r replyRepo) Insert(ctx context.Context, rep models.Reply) error {
	if _, err := r.s.replies.InsertOne(ctx, rep); err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

func (r replyRepo) Update(ctx context.Context, rep models.Reply) error {
	res, err := r.s.replies.UpdateOne(ctx, bson.M{"_id": rep.ID}, bson.M{"$set": bson.M{
		"body":       rep.Body,
		"updated_at": rep.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update reply: %w", err)
	}
	if res.MatchedCount == 0 {
		return noteboard.ErrNoRecord
	}
	return nil
}

func (r replyRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.s.replies.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete reply: %w", err)
	}
	if res.DeletedCount == 0 {
		return noteboard.ErrNoRecord
	}
	return nil
}

func (r replyRepo) CountByPost(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	return r.s.replies.CountDocuments(ctx, bson.M{"post_id": postID})
}
