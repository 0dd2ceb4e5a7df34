// Package clientstore persists clients and the enrollments and sessions that
// hang off them. Deleting a client removes its dependents in one transaction.
package clientstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/system/normalize"
	"github.com/dalemusser/recoveryhub/internal/app/system/paging"
	"github.com/dalemusser/recoveryhub/internal/app/system/txn"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the client does not exist.
var ErrNotFound = errors.New("client not found")

// ValidationError reports a rejected field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

func invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

type Store struct {
	db          *mongo.Database
	log         *zap.Logger
	clients     *mongo.Collection
	enrollments *mongo.Collection
	sessions    *mongo.Collection
}

func New(db *mongo.Database, log *zap.Logger) *Store {
	return &Store{
		db:          db,
		log:         log,
		clients:     db.Collection("clients"),
		enrollments: db.Collection("enrollments"),
		sessions:    db.Collection("sessions"),
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.clients.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("clients indexes: %w", err)
	}
	if _, err := s.enrollments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "start_date", Value: 1}},
	}); err != nil {
		return fmt.Errorf("enrollments indexes: %w", err)
	}
	if _, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		{Keys: bson.D{{Key: "staff_id", Value: 1}, {Key: "scheduled_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("sessions indexes: %w", err)
	}
	return nil
}

// Create validates and inserts a client.
func (s *Store) Create(ctx context.Context, c models.Client) (models.Client, error) {
	c.FullName = normalize.Name(c.FullName)
	if c.FullName == "" {
		return models.Client{}, invalid("full_name", "is required")
	}
	if c.CreatedBy.IsZero() {
		return models.Client{}, invalid("created_by", "is required")
	}
	if c.DateOfBirth != nil && c.DateOfBirth.After(time.Now()) {
		return models.Client{}, invalid("date_of_birth", "cannot be in the future")
	}
	c.ID = primitive.NewObjectID()
	c.FullNameCI = normalize.NameCI(c.FullName)
	if c.Status == "" {
		c.Status = models.ClientStatusActive
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	if _, err := s.clients.InsertOne(ctx, c); err != nil {
		return models.Client{}, err
	}
	return c, nil
}

// Get loads a client by id.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.Client, error) {
	var c models.Client
	if err := s.clients.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Client{}, ErrNotFound
		}
		return models.Client{}, err
	}
	return c, nil
}

// ListQuery selects a page of clients ordered by folded name.
type ListQuery struct {
	Q      string // name prefix
	Before string
	After  string
}

// ListPage is one page of clients with its cursors.
type ListPage struct {
	Clients    []models.Client `json:"clients"`
	Total      int64           `json:"total"`
	HasPrev    bool            `json:"has_prev"`
	HasNext    bool            `json:"has_next"`
	PrevCursor string          `json:"prev_cursor,omitempty"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// List returns a page of clients.
func (s *Store) List(ctx context.Context, q ListQuery) (ListPage, error) {
	const sortField = "full_name_ci"

	base := bson.M{}
	if q.Q != "" {
		base[sortField] = bson.M{"$regex": "^" + regexp.QuoteMeta(normalize.NameCI(q.Q)), "$options": "i"}
	}
	total, err := s.clients.CountDocuments(ctx, base)
	if err != nil {
		return ListPage{}, err
	}

	f := bson.M{}
	maps.Copy(f, base)
	find := options.Find()
	cfg := paging.ConfigureKeyset(q.Before, q.After)
	cfg.ApplyToFind(find, sortField)
	if ks := cfg.KeysetWindow(sortField); ks != nil {
		if _, ok := f[sortField]; ok {
			f = bson.M{"$and": []bson.M{base, ks}}
		} else {
			maps.Copy(f, ks)
		}
	}

	cur, err := s.clients.Find(ctx, f, find)
	if err != nil {
		return ListPage{}, err
	}
	defer cur.Close(ctx)

	rows := []models.Client{}
	if err := cur.All(ctx, &rows); err != nil {
		return ListPage{}, err
	}
	if cfg.Direction == paging.Backward {
		paging.Reverse(rows)
	}
	pr := paging.TrimPage(&rows, q.Before, q.After)
	prev, next := paging.BuildCursors(rows,
		func(c models.Client) string { return c.FullNameCI },
		func(c models.Client) primitive.ObjectID { return c.ID },
	)

	page := ListPage{Clients: rows, Total: total, HasPrev: pr.HasPrev, HasNext: pr.HasNext}
	if pr.HasPrev {
		page.PrevCursor = prev
	}
	if pr.HasNext {
		page.NextCursor = next
	}
	return page, nil
}

func (s *Store) exists(ctx context.Context, id primitive.ObjectID) error {
	n, err := s.clients.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddEnrollment attaches a program enrollment to a client.
func (s *Store) AddEnrollment(ctx context.Context, e models.Enrollment) (models.Enrollment, error) {
	e.Program = normalize.Name(e.Program)
	if e.Program == "" {
		return models.Enrollment{}, invalid("program", "is required")
	}
	if e.StartDate.IsZero() {
		return models.Enrollment{}, invalid("start_date", "is required")
	}
	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		return models.Enrollment{}, invalid("end_date", "is before start_date")
	}
	if err := s.exists(ctx, e.ClientID); err != nil {
		return models.Enrollment{}, err
	}
	e.ID = primitive.NewObjectID()
	e.CreatedAt = time.Now().UTC()
	if _, err := s.enrollments.InsertOne(ctx, e); err != nil {
		return models.Enrollment{}, err
	}
	return e, nil
}

// DefaultSessionMinutes is used when a session is scheduled without a duration.
const DefaultSessionMinutes = 50

// AddSession schedules a session for a client.
func (s *Store) AddSession(ctx context.Context, sess models.Session) (models.Session, error) {
	if sess.StaffID.IsZero() {
		return models.Session{}, invalid("staff_id", "is required")
	}
	if sess.ScheduledAt.IsZero() {
		return models.Session{}, invalid("scheduled_at", "is required")
	}
	if sess.DurationMinutes < 0 {
		return models.Session{}, invalid("duration_minutes", "must be positive")
	}
	if sess.DurationMinutes == 0 {
		sess.DurationMinutes = DefaultSessionMinutes
	}
	if err := s.exists(ctx, sess.ClientID); err != nil {
		return models.Session{}, err
	}
	sess.ID = primitive.NewObjectID()
	sess.CreatedAt = time.Now().UTC()
	if _, err := s.sessions.InsertOne(ctx, sess); err != nil {
		return models.Session{}, err
	}
	return sess, nil
}

// Enrollments lists a client's enrollments by start date.
func (s *Store) Enrollments(ctx context.Context, clientID primitive.ObjectID) ([]models.Enrollment, error) {
	cur, err := s.enrollments.Find(ctx, bson.M{"client_id": clientID},
		options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Enrollment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sessions lists a client's sessions by scheduled time.
func (s *Store) Sessions(ctx context.Context, clientID primitive.ObjectID) ([]models.Session, error) {
	cur, err := s.sessions.Find(ctx, bson.M{"client_id": clientID},
		options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Session{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DependentCounts reports what deleting the client would remove.
func (s *Store) DependentCounts(ctx context.Context, clientID primitive.ObjectID) (models.ClientDependents, error) {
	var d models.ClientDependents
	if err := s.exists(ctx, clientID); err != nil {
		return d, err
	}
	var err error
	if d.Enrollments, err = s.enrollments.CountDocuments(ctx, bson.M{"client_id": clientID}); err != nil {
		return d, err
	}
	if d.Sessions, err = s.sessions.CountDocuments(ctx, bson.M{"client_id": clientID}); err != nil {
		return d, err
	}
	return d, nil
}

// DeleteCascade removes the client's sessions, enrollments and then the
// client, all in one transaction, and returns how many dependents went with it.
func (s *Store) DeleteCascade(ctx context.Context, clientID primitive.ObjectID) (models.ClientDependents, error) {
	var d models.ClientDependents
	err := txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		d = models.ClientDependents{}

		res, err := s.sessions.DeleteMany(ctx, bson.M{"client_id": clientID})
		if err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		d.Sessions = res.DeletedCount

		res, err = s.enrollments.DeleteMany(ctx, bson.M{"client_id": clientID})
		if err != nil {
			return fmt.Errorf("delete enrollments: %w", err)
		}
		d.Enrollments = res.DeletedCount

		del, err := s.clients.DeleteOne(ctx, bson.M{"_id": clientID})
		if err != nil {
			return fmt.Errorf("delete client: %w", err)
		}
		if del.DeletedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return models.ClientDependents{}, err
	}
	return d, nil
}
