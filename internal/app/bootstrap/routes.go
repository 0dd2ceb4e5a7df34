// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	activityfeature "github.com/dalemusser/recoveryhub/internal/app/features/activity"
	boardfeature "github.com/dalemusser/recoveryhub/internal/app/features/board"
	clientsfeature "github.com/dalemusser/recoveryhub/internal/app/features/clients"
	errorsfeature "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/recoveryhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/recoveryhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/recoveryhub/internal/app/features/logout"
	userinfofeature "github.com/dalemusser/recoveryhub/internal/app/features/userinfo"
	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	clientstore "github.com/dalemusser/recoveryhub/internal/app/store/clients"
	"github.com/dalemusser/recoveryhub/internal/app/store/pgboard"
	poststore "github.com/dalemusser/recoveryhub/internal/app/store/posts"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/auditlog"
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/app/system/noteboard"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// RecoveryHub is a JSON API: it applies request ids, audit request metadata
// and session loading globally, then mounts the note board, client registry,
// activity log, authentication and health routers.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// LoadSessionUser re-reads the user on each request so role changes and
	// disabled accounts take effect immediately.
	db := deps.MongoDatabase
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db))

	if appCfg.JWTSecret != "" {
		tokens, err := auth.NewTokens(appCfg.JWTSecret, appCfg.JWTIssuer)
		if err != nil {
			logger.Error("token verifier init failed", zap.Error(err))
			return nil, err
		}
		sessionMgr.SetTokens(tokens)
	}

	errLog := errorsfeature.NewErrorLogger(logger)
	auditLog := auditlog.New(audit.New(db), logger, auditConfig(appCfg))
	users := userstore.New(db)

	var boardStore noteboard.Store
	healthChecks := []healthfeature.Check{healthfeature.MongoCheck(deps.MongoClient)}
	if deps.Postgres != nil {
		pg := pgboard.New(deps.Postgres, logger.Named("pgboard"))
		boardStore = pg
		healthChecks = append(healthChecks, healthfeature.PostgresCheck(pg))
	} else {
		boardStore = poststore.New(db, logger)
	}
	board := noteboard.New(boardStore, users, auditLog, logger.Named("board"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(auditlog.Middleware)

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	errorsHandler := errorsfeature.NewHandler()
	r.NotFound(errorsHandler.NotFound)
	r.Get("/forbidden", errorsHandler.Forbidden)
	r.Get("/unauthorized", errorsHandler.Unauthorized)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(logger, healthChecks...)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Authentication
	loginHandler := loginfeature.NewHandler(users, sessionMgr, auditLog, loginLimiter, errLog, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLog, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	userinfofeature.MountRoutes(r, userinfofeature.NewHandler())

	// Note board
	boardHandler := boardfeature.NewHandler(board, errLog, logger)
	r.Mount("/board", boardfeature.Routes(boardHandler, sessionMgr))

	// Client registry
	clientsHandler := clientsfeature.NewHandler(clientstore.New(db, logger), auditLog, errLog, logger)
	r.Mount("/clients", clientsfeature.Routes(clientsHandler, sessionMgr))

	// Activity log
	activityHandler := activityfeature.NewHandler(audit.New(db), users, errLog, logger)
	r.Mount("/activity", activityfeature.Routes(activityHandler, sessionMgr))

	return r, nil
}
