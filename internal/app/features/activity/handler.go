// internal/app/features/activity/handler.go
package activity

import (
	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"go.uber.org/zap"
)

// Handler serves the activity log to admins and clinical directors.
type Handler struct {
	Events *audit.Store
	Users  *userstore.Store
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

// NewHandler creates a new activity Handler.
func NewHandler(events *audit.Store, users *userstore.Store, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Events: events,
		Users:  users,
		ErrLog: errLog,
		Log:    logger,
	}
}
