// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	clientstore "github.com/dalemusser/recoveryhub/internal/app/store/clients"
	"github.com/dalemusser/recoveryhub/internal/app/store/pgboard"
	poststore "github.com/dalemusser/recoveryhub/internal/app/store/posts"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"github.com/dalemusser/recoveryhub/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when the board lives there, PostgreSQL.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	client, err := connectMongo(ctx, appCfg)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, err
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}

	if appCfg.BoardStore == BoardStorePostgres {
		pool, err := pgboard.Connect(ctx, appCfg.PostgresURL, pgboard.Options{
			MaxConns: int32(appCfg.PostgresMaxConns),
		}, logger.Named("pgx"))
		if err != nil {
			_ = client.Disconnect(ctx)
			logger.Error("PostgreSQL connect failed", zap.Error(err))
			return DBDeps{}, err
		}
		logger.Info("connected to PostgreSQL for the note board")
		deps.Postgres = pool
	}
	return deps, nil
}

func connectMongo(ctx context.Context, appCfg AppConfig) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(appCfg.MongoURI)
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	if appCfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(appCfg.MongoMinPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureSchema sets up indexes and, for the Postgres board, tables.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	return Migrate(ctx, deps.MongoDatabase, deps.Postgres, logger)
}

// Migrate creates every index and table the app needs. It is safe to run
// repeatedly; recoveryctl migrate calls it too. pool may be nil.
func Migrate(ctx context.Context, db *mongo.Database, pool *pgxpool.Pool, logger *zap.Logger) error {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"collections", func(ctx context.Context) error { return validators.EnsureAll(ctx, db, logger) }},
		{"users", userstore.New(db).EnsureIndexes},
		{"audit_events", audit.New(db).EnsureIndexes},
		{"clients", clientstore.New(db, logger).EnsureIndexes},
		{"posts", poststore.New(db, logger).EnsureIndexes},
	}
	if pool != nil {
		steps = append(steps, struct {
			name string
			run  func(context.Context) error
		}{"postgres board", pgboard.New(pool, logger).EnsureSchema})
	}

	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			logger.Error("schema setup failed", zap.String("step", s.name), zap.Error(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	logger.Info("schema ready", zap.Int("steps", len(steps)))
	return nil
}
