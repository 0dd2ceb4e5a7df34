// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like ports, TLS,
// logging level and request limits. AppConfig is where RecoveryHub keeps
// its backends, session and token secrets, audit routing and store
// deadlines. The struct is passed to every lifecycle hook.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: recoveryhub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Note board backend: "mongo" keeps posts beside everything else,
	// "postgres" moves posts, grants and replies to PostgreSQL.
	BoardStore       string
	PostgresURL      string
	PostgresMaxConns int

	// Bearer tokens for API clients. Tokens are disabled when JWTSecret is blank.
	JWTSecret string
	JWTIssuer string

	// Audit destinations per category: all, db, log or off.
	AuditAuth    string
	AuditBoard   string
	AuditClients string

	// Store deadlines applied by handlers.
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration

	// Login throttling
	LoginIPLimit     int
	LoginIPWindow    time.Duration
	LoginEmailLimit  int
	LoginEmailWindow time.Duration

	// Admin bootstrap: when set, an admin with this email exists after startup.
	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// Board backends.
const (
	BoardStoreMongo    = "mongo"
	BoardStorePostgres = "postgres"
)
