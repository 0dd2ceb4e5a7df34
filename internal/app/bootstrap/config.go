// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for RecoveryHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: RECOVERYHUB_MONGO_URI, RECOVERYHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "recovery_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "recoveryhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "12h", Desc: "Session cookie lifetime (e.g., 12h, 30m)"},

	// Note board backend
	{Name: "board_store", Default: BoardStoreMongo, Desc: "Note board backend: 'mongo' or 'postgres'"},
	{Name: "postgres_url", Default: "", Desc: "PostgreSQL URL (required when board_store=postgres)"},
	{Name: "postgres_max_conns", Default: 10, Desc: "PostgreSQL max pool connections"},

	// API bearer tokens
	{Name: "jwt_secret", Default: "", Desc: "HS256 secret for API bearer tokens (blank disables tokens)"},
	{Name: "jwt_issuer", Default: "recoveryhub", Desc: "Issuer claim for API bearer tokens"},

	// Audit logging settings
	{Name: "audit_auth", Default: auditlog.All, Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_board", Default: auditlog.All, Desc: "Note board event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_clients", Default: auditlog.All, Desc: "Client registry event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Store deadlines
	{Name: "timeout_short", Default: "5s", Desc: "Deadline for single-record reads and writes"},
	{Name: "timeout_medium", Default: "10s", Desc: "Deadline for list queries"},
	{Name: "timeout_long", Default: "30s", Desc: "Deadline for multi-collection transactions"},

	// Login throttling
	{Name: "login_ip_limit", Default: 10, Desc: "Login attempts allowed per client address per window"},
	{Name: "login_ip_window", Default: "1m", Desc: "Window for login_ip_limit"},
	{Name: "login_email_limit", Default: 5, Desc: "Login attempts allowed per email per window"},
	{Name: "login_email_window", Default: "5m", Desc: "Window for login_email_limit"},

	// Admin bootstrap
	{Name: "admin_email", Default: "", Desc: "Email of the admin user (promotes/creates on startup)"},
	{Name: "admin_name", Default: "Administrator", Desc: "Full name used when the admin user is created"},
	{Name: "admin_password", Default: "", Desc: "Initial password used when the admin user is created"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig reads .env files, config files,
// environment variables (WAFFLE_* for core, RECOVERYHUB_* for the app) and
// flags, merging with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "RECOVERYHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 12*time.Hour),

		BoardStore:       strings.ToLower(strings.TrimSpace(appValues.String("board_store"))),
		PostgresURL:      appValues.String("postgres_url"),
		PostgresMaxConns: appValues.Int("postgres_max_conns"),

		JWTSecret: appValues.String("jwt_secret"),
		JWTIssuer: appValues.String("jwt_issuer"),

		AuditAuth:    strings.ToLower(appValues.String("audit_auth")),
		AuditBoard:   strings.ToLower(appValues.String("audit_board")),
		AuditClients: strings.ToLower(appValues.String("audit_clients")),

		TimeoutShort:  appValues.Duration("timeout_short", 5*time.Second),
		TimeoutMedium: appValues.Duration("timeout_medium", 10*time.Second),
		TimeoutLong:   appValues.Duration("timeout_long", 30*time.Second),

		LoginIPLimit:     appValues.Int("login_ip_limit"),
		LoginIPWindow:    appValues.Duration("login_ip_window", time.Minute),
		LoginEmailLimit:  appValues.Int("login_email_limit"),
		LoginEmailWindow: appValues.Duration("login_email_window", 5*time.Minute),

		AdminEmail:    appValues.String("admin_email"),
		AdminName:     appValues.String("admin_name"),
		AdminPassword: appValues.String("admin_password"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Everything that would otherwise fail on first use (a bad Mongo URI, a
// missing Postgres URL, a weak secret) is rejected here instead.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateAppConfig(coreCfg.Env, appCfg)
}

// minSecretLen applies to session keys in production and to JWT secrets.
const minSecretLen = 32

func validateAppConfig(env string, appCfg AppConfig) error {
	if env == "prod" && len(appCfg.SessionKey) < minSecretLen {
		return fmt.Errorf("session_key must be at least %d characters in production", minSecretLen)
	}

	switch appCfg.BoardStore {
	case BoardStoreMongo:
	case BoardStorePostgres:
		if appCfg.PostgresURL == "" {
			return fmt.Errorf("board_store=postgres requires postgres_url")
		}
	default:
		return fmt.Errorf("board_store must be %q or %q, got %q", BoardStoreMongo, BoardStorePostgres, appCfg.BoardStore)
	}

	if appCfg.JWTSecret != "" && len(appCfg.JWTSecret) < minSecretLen {
		return fmt.Errorf("jwt_secret must be at least %d characters", minSecretLen)
	}

	for name, v := range map[string]string{
		"audit_auth":    appCfg.AuditAuth,
		"audit_board":   appCfg.AuditBoard,
		"audit_clients": appCfg.AuditClients,
	} {
		if v != "" && !auditlog.ValidSetting(v) {
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", name, v)
		}
	}
	return nil
}
