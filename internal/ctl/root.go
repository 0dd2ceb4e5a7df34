// Package ctl implements recoveryctl, the operator CLI: schema migration,
// staff account management, API token minting and secret generation.
package ctl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/dalemusser/recoveryhub/internal/app/store/pgboard"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Settings are read from the environment after the optional .env file is
// loaded. Names match the server's RECOVERYHUB_* keys.
type Settings struct {
	MongoURI      string `env:"RECOVERYHUB_MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"RECOVERYHUB_MONGO_DATABASE" envDefault:"recovery_hub"`
	BoardStore    string `env:"RECOVERYHUB_BOARD_STORE" envDefault:"mongo"`
	PostgresURL   string `env:"RECOVERYHUB_POSTGRES_URL"`
	JWTSecret     string `env:"RECOVERYHUB_JWT_SECRET"`
	JWTIssuer     string `env:"RECOVERYHUB_JWT_ISSUER" envDefault:"recoveryhub"`
	AuditAuth     string `env:"RECOVERYHUB_AUDIT_AUTH" envDefault:"all"`
	LogLevel      string `env:"RECOVERYHUB_LOG_LEVEL" envDefault:"info"`
}

// LoadSettings loads envFile (or ./.env when blank and present) and parses
// the environment into Settings.
func LoadSettings(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Settings{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("load .env: %w", err)
	}

	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// app carries what every command needs. Tests fill it in directly.
type app struct {
	settings Settings
	log      *zap.Logger

	// db, when set, is used instead of connecting.
	db *mongo.Database
}

func (a *app) mongo(ctx context.Context) (*mongo.Database, func(), error) {
	if a.db != nil {
		return a.db, func() {}, nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.settings.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	closeFn := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			a.log.Warn("mongo disconnect", zap.Error(err))
		}
	}
	return client.Database(a.settings.MongoDatabase), closeFn, nil
}

// postgres returns nil when the board is not stored in PostgreSQL.
func (a *app) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.settings.BoardStore != "postgres" {
		return nil, nil
	}
	if a.settings.PostgresURL == "" {
		return nil, errors.New("RECOVERYHUB_POSTGRES_URL is required when RECOVERYHUB_BOARD_STORE=postgres")
	}
	return pgboard.Connect(ctx, a.settings.PostgresURL, pgboard.Options{MaxConns: 2}, a.log.Named("pgx"))
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	return cfg.Build()
}

func newRootCmd(a *app) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "recoveryctl",
		Short:         "RecoveryHub operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.log != nil {
				return nil
			}
			s, err := LoadSettings(envFile)
			if err != nil {
				return err
			}
			log, err := newLogger(s.LogLevel)
			if err != nil {
				return err
			}
			a.settings = s
			a.log = log
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default ./.env if present)")

	root.AddCommand(
		newMigrateCmd(a),
		newUserCmd(a),
		newTokenCmd(a),
		newKeysCmd(),
	)
	return root
}

// Execute runs recoveryctl with os.Args.
func Execute() {
	a := &app{}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "recoveryctl:", err)
		os.Exit(1)
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
