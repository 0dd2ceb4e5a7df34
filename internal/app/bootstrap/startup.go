// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/auditlog"
	"github.com/dalemusser/recoveryhub/internal/app/system/ratelimit"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Background work started in Startup and stopped in Shutdown.
var (
	bgMu         sync.Mutex
	bgCancel     context.CancelFunc
	loginLimiter *ratelimit.LoginLimiter
)

func stopBackground() {
	bgMu.Lock()
	defer bgMu.Unlock()
	if bgCancel != nil {
		bgCancel()
		bgCancel = nil
	}
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})

	if appCfg.AdminEmail != "" {
		auditLog := auditlog.New(audit.New(deps.MongoDatabase), logger, auditConfig(appCfg))
		if err := ensureAdmin(ctx, deps, appCfg, auditLog, logger); err != nil {
			return err
		}
	}

	bgMu.Lock()
	defer bgMu.Unlock()
	if appCfg.LoginIPLimit > 0 && appCfg.LoginEmailLimit > 0 {
		loginLimiter = ratelimit.NewLoginLimiterWithConfig(
			appCfg.LoginIPLimit, appCfg.LoginIPWindow,
			appCfg.LoginEmailLimit, appCfg.LoginEmailWindow,
		)
	} else {
		loginLimiter = ratelimit.NewLoginLimiter()
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	bgCancel = cancel
	go loginLimiter.Run(bgCtx)

	return nil
}

func auditConfig(appCfg AppConfig) auditlog.Config {
	return auditlog.Config{
		Auth:    appCfg.AuditAuth,
		Board:   appCfg.AuditBoard,
		Clients: appCfg.AuditClients,
	}
}

// ensureAdmin makes sure the configured admin email belongs to an active
// admin, creating the account or promoting an existing one.
func ensureAdmin(ctx context.Context, deps DBDeps, appCfg AppConfig, auditLog *auditlog.Logger, logger *zap.Logger) error {
	users := userstore.New(deps.MongoDatabase)

	existing, err := users.GetByEmail(ctx, appCfg.AdminEmail)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			logger.Debug("admin account present", zap.String("email", existing.Email))
			return nil
		}
		if err := users.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		logger.Info("promoted existing user to admin",
			zap.String("user_id", existing.ID.Hex()),
			zap.String("previous_role", string(existing.Role)))
		return nil

	case errors.Is(err, mongo.ErrNoDocuments):
		if appCfg.AdminPassword == "" {
			return fmt.Errorf("admin_email %q has no account and admin_password is blank", appCfg.AdminEmail)
		}
		u, err := users.Create(ctx, models.User{
			FullName: appCfg.AdminName,
			Email:    appCfg.AdminEmail,
			Role:     models.RoleAdmin,
		}, appCfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		auditLog.UserCreated(ctx, nil, u.ID, string(u.Role))
		logger.Info("created admin account", zap.String("user_id", u.ID.Hex()))
		return nil

	default:
		return fmt.Errorf("look up admin: %w", err)
	}
}
