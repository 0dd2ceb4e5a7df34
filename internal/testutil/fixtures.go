package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that read chi.URLParam without going through a router.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, _ := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts an active staff user with no password.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email string, role models.Role) models.User {
	f.t.Helper()
	return f.insertUser(ctx, fullName, email, role, models.UserStatusActive)
}

// CreateAdmin creates a test admin user.
func (f *Fixtures) CreateAdmin(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, fullName, email, models.RoleAdmin)
}

// CreateDisabledUser creates a staff user with disabled status.
func (f *Fixtures) CreateDisabledUser(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	return f.insertUser(ctx, fullName, email, models.RoleStaff, models.UserStatusDisabled)
}

func (f *Fixtures) insertUser(ctx context.Context, fullName, email string, role models.Role, status string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:         primitive.NewObjectID(),
		FullName:   fullName,
		FullNameCI: text.Fold(fullName),
		Email:      email,
		Role:       role,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateClient inserts an active client record.
func (f *Fixtures) CreateClient(ctx context.Context, fullName string, createdBy primitive.ObjectID) models.Client {
	f.t.Helper()

	now := time.Now().UTC()
	c := models.Client{
		ID:         primitive.NewObjectID(),
		FullName:   fullName,
		FullNameCI: text.Fold(fullName),
		Status:     models.ClientStatusActive,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := f.db.Collection("clients").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create test client: %v", err)
	}
	return c
}

// CreateEnrollment enrolls a client in a program starting today.
func (f *Fixtures) CreateEnrollment(ctx context.Context, clientID primitive.ObjectID, program string) models.Enrollment {
	f.t.Helper()

	now := time.Now().UTC()
	e := models.Enrollment{
		ID:        primitive.NewObjectID(),
		ClientID:  clientID,
		Program:   program,
		StartDate: now.Truncate(24 * time.Hour),
		CreatedAt: now,
	}

	if _, err := f.db.Collection("enrollments").InsertOne(ctx, e); err != nil {
		f.t.Fatalf("failed to create test enrollment: %v", err)
	}
	return e
}

// CreateSession schedules a session for a client one day out.
func (f *Fixtures) CreateSession(ctx context.Context, clientID, staffID primitive.ObjectID) models.Session {
	f.t.Helper()

	now := time.Now().UTC()
	s := models.Session{
		ID:              primitive.NewObjectID(),
		ClientID:        clientID,
		StaffID:         staffID,
		ScheduledAt:     now.Add(24 * time.Hour),
		DurationMinutes: 50,
		CreatedAt:       now,
	}

	if _, err := f.db.Collection("sessions").InsertOne(ctx, s); err != nil {
		f.t.Fatalf("failed to create test session: %v", err)
	}
	return s
}
