// Package pgboard is the PostgreSQL adapter for the note board. Grants and
// replies reference their post with ON DELETE CASCADE, so removing a post row
// removes everything that hangs off it.
package pgboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/system/noteboard"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/jpillora/backoff"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tune Connect. Zero values fall back to sensible defaults.
type Options struct {
	MaxConns    int32
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// Connect opens a pool and pings it until the server answers, backing off
// between attempts. Statements are traced to log at debug level.
func Connect(ctx context.Context, url string, opts Options, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   zapTracer(log),
		LogLevel: tracelog.LogLevelDebug,
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 6
	}
	boff := backoff.Backoff{
		Min:    opts.MinBackoff,
		Max:    opts.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}
	if boff.Min <= 0 {
		boff.Min = 500 * time.Millisecond
	}
	if boff.Max <= 0 {
		boff.Max = 10 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt >= attempts {
			pool.Close()
			return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", attempt, err)
		}

		dur := boff.Duration()
		log.Warn("postgres ping failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retrying_after", dur),
		)
		timer := time.NewTimer(dur)
		select {
		case <-ctx.Done():
			timer.Stop()
			pool.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// zapTracer forwards pgx trace output to zap. Query arguments are dropped
// because post bodies may carry client details.
func zapTracer(log *zap.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		fields := make([]zap.Field, 0, len(data))
		for k, v := range data {
			if k == "args" {
				continue
			}
			fields = append(fields, zap.Any(k, v))
		}
		switch level {
		case tracelog.LogLevelError:
			log.Error(msg, fields...)
		case tracelog.LogLevelWarn:
			log.Warn(msg, fields...)
		case tracelog.LogLevelInfo:
			log.Info(msg, fields...)
		default:
			log.Debug(msg, fields...)
		}
	})
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		author_id  TEXT NOT NULL,
		visibility TEXT NOT NULL CHECK (visibility IN ('public', 'private', 'role_based', 'user_specific')),
		status     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS posts_created_idx ON posts (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS posts_author_idx ON posts (author_id)`,
	`CREATE TABLE IF NOT EXISTS post_role_grants (
		post_id TEXT NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
		role    TEXT NOT NULL,
		PRIMARY KEY (post_id, role)
	)`,
	`CREATE TABLE IF NOT EXISTS post_user_grants (
		post_id TEXT NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		PRIMARY KEY (post_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS post_user_grants_user_idx ON post_user_grants (user_id)`,
	`CREATE TABLE IF NOT EXISTS replies (
		id         TEXT PRIMARY KEY,
		post_id    TEXT NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
		author_id  TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS replies_post_idx ON replies (post_id, created_at, id)`,
}

// Store implements noteboard.Store over a pool, or over a transaction when
// handed to an Atomic callback.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
	log  *zap.Logger
}

// New creates a Store over pool.
func New(pool *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{pool: pool, q: pool, log: log}
}

// EnsureSchema creates the board tables and indexes if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("board schema: %w", err)
		}
	}
	return nil
}

// Ping reports whether the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Posts() noteboard.PostStore    { return postRepo{s.q} }
func (s *Store) Replies() noteboard.ReplyStore { return replyRepo{s.q} }

// Atomic runs fn inside one transaction. Nested calls join the outer one.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx noteboard.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Store{pool: s.pool, q: tx, inTx: true, log: s.log})
	})
}

func noRecord(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return noteboard.ErrNoRecord
	}
	return err
}

func hexes(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

func parseID(column, s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("bad %s %q: %w", column, s, err)
	}
	return id, nil
}
