// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	"github.com/dalemusser/recoveryhub/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destinations for a category.
const (
	All = "all" // MongoDB + zap
	DB  = "db"  // MongoDB only
	Log = "log" // zap only
	Off = "off"
)

// ValidSetting reports whether s is a known destination.
func ValidSetting(s string) bool {
	switch s {
	case All, DB, Log, Off:
		return true
	}
	return false
}

// Config holds the destination for each category.
type Config struct {
	Auth    string
	Board   string
	Clients string
}

// Logger writes audit events to MongoDB (via audit.Store) and zap.
// A nil *Logger is a no-op so tests and tools can skip auditing.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

type requestMeta struct {
	ip        string
	userAgent string
	requestID string
}

type ctxKey struct{}

// WithRequest stores the request's client address, user agent and id on ctx
// so events recorded deeper in the stack carry them.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	id := middleware.GetReqID(r.Context())
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKey{}, requestMeta{
		ip:        ratelimit.ClientIP(r),
		userAgent: r.UserAgent(),
		requestID: id,
	})
}

// Middleware attaches request metadata to every request's context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequest(r.Context(), r)))
	})
}

func (l *Logger) setting(category string) string {
	var s string
	switch category {
	case audit.CategoryAuth:
		s = l.config.Auth
	case audit.CategoryBoard:
		s = l.config.Board
	case audit.CategoryClients:
		s = l.config.Clients
	}
	if s == "" {
		return All
	}
	return s
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an event according to its category's destination. Storage
// failures are logged, never returned.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	if meta, ok := ctx.Value(ctxKey{}).(requestMeta); ok {
		if event.IP == "" {
			event.IP = meta.ip
		}
		if event.UserAgent == "" {
			event.UserAgent = meta.userAgent
		}
		if event.RequestID == "" {
			event.RequestID = meta.requestID
		}
	}

	setting := l.setting(event.Category)
	if setting == Off {
		return
	}
	if setting == All || setting == Log {
		l.logToZap(event)
	}
	if (setting == All || setting == DB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// Record logs a note-board mutation. It satisfies noteboard.AuditSink.
func (l *Logger) Record(ctx context.Context, event string, actorID primitive.ObjectID, payload map[string]string) {
	details := make(map[string]string, len(payload))
	for k, v := range payload {
		details[k] = v
	}
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryBoard,
		EventType: event,
		ActorID:   &actorID,
		Success:   true,
		Details:   details,
	})
}

// --- Authentication Events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, userID primitive.ObjectID, email, method string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email, "method": method},
	})
}

// LoginFailedUserNotFound logs a login attempt for an unknown email.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, email string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserNotFound,
		Success:       false,
		FailureReason: "user not found",
		Details:       map[string]string{"email": email},
	})
}

// LoginFailedWrongPassword logs a login attempt with a bad password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		UserID:        &userID,
		Success:       false,
		FailureReason: "wrong password",
		Details:       map[string]string{"email": email},
	})
}

// LoginFailedUserDisabled logs a login attempt by a disabled account.
func (l *Logger) LoginFailedUserDisabled(ctx context.Context, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserDisabled,
		UserID:        &userID,
		Success:       false,
		FailureReason: "user disabled",
		Details:       map[string]string{"email": email},
	})
}

// Logout logs a user logout.
func (l *Logger) Logout(ctx context.Context, userIDStr string) {
	event := audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		Success:   true,
	}
	if oid, err := primitive.ObjectIDFromHex(userIDStr); err == nil {
		event.UserID = &oid
	}
	l.Log(ctx, event)
}

// UserCreated logs a new staff account. actorID is nil when created from the CLI.
func (l *Logger) UserCreated(ctx context.Context, actorID *primitive.ObjectID, userID primitive.ObjectID, role string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventUserCreated,
		ActorID:   actorID,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"role": role},
	})
}

// TokenIssued logs a minted bearer token by its id, never its value.
func (l *Logger) TokenIssued(ctx context.Context, userID primitive.ObjectID, jti string, ttlSeconds int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventTokenIssued,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"jti": jti, "ttl_seconds": strconv.FormatInt(ttlSeconds, 10)},
	})
}

// --- Client Registry Events ---

// ClientCreated logs a new client record.
func (l *Logger) ClientCreated(ctx context.Context, actorID, clientID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryClients,
		EventType: audit.EventClientCreated,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"client_id": clientID.Hex()},
	})
}

// EnrollmentAdded logs a program enrollment.
func (l *Logger) EnrollmentAdded(ctx context.Context, actorID, clientID primitive.ObjectID, program string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryClients,
		EventType: audit.EventEnrollmentAdded,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"client_id": clientID.Hex(), "program": program},
	})
}

// SessionScheduled logs a scheduled session.
func (l *Logger) SessionScheduled(ctx context.Context, actorID, clientID, sessionID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryClients,
		EventType: audit.EventSessionScheduled,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"client_id": clientID.Hex(), "session_id": sessionID.Hex()},
	})
}

// ClientDeleted logs a completed cascade delete with the dependent counts.
// Client names are never recorded.
func (l *Logger) ClientDeleted(ctx context.Context, actorID, clientID primitive.ObjectID, enrollments, sessions int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryClients,
		EventType: audit.EventClientDeleted,
		ActorID:   &actorID,
		Success:   true,
		Details: map[string]string{
			"client_id":   clientID.Hex(),
			"enrollments": strconv.FormatInt(enrollments, 10),
			"sessions":    strconv.FormatInt(sessions, 10),
		},
	})
}

// ClientDeleteRejected logs a delete refused before anything was removed.
func (l *Logger) ClientDeleteRejected(ctx context.Context, actorID, clientID primitive.ObjectID, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryClients,
		EventType:     audit.EventClientDeleteAbort,
		ActorID:       &actorID,
		Success:       false,
		FailureReason: reason,
		Details:       map[string]string{"client_id": clientID.Hex()},
	})
}
