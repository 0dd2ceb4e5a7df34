// internal/app/features/login/handler.go
package login

import (
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/auditlog"
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/app/system/normalize"
	"github.com/dalemusser/recoveryhub/internal/app/system/ratelimit"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Users      *userstore.Store
	SessionMgr *auth.SessionManager
	AuditLog   *auditlog.Logger
	Limiter    *ratelimit.LoginLimiter // nil disables throttling
	Log        *zap.Logger
	ErrLog     *uierrors.ErrorLogger
}

func NewHandler(
	users *userstore.Store,
	sessionMgr *auth.SessionManager,
	audit *auditlog.Logger,
	limiter *ratelimit.LoginLimiter,
	errLog *uierrors.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Users:      users,
		SessionMgr: sessionMgr,
		AuditLog:   audit,
		Limiter:    limiter,
		Log:        logger,
		ErrLog:     errLog,
	}
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserJSON is the signed-in user as returned to API clients.
type UserJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	RoleLabel string `json:"role_label"`
}

type loginResponse struct {
	User UserJSON `json:"user"`
}

const badCredentials = "Email or password is incorrect."

// HandleLoginPost handles POST /login.
func (h *Handler) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}
	email := normalize.Email(in.Email)
	if email == "" || strings.TrimSpace(in.Password) == "" {
		uierrors.WriteJSON(w, http.StatusBadRequest, uierrors.Response{
			Error:   uierrors.CodeValidation,
			Message: "Email and password are required.",
		})
		return
	}

	if h.Limiter != nil {
		if ok, reason := h.Limiter.Check(r, email); !ok {
			h.Log.Warn("login rate limited",
				zap.String("ip", ratelimit.ClientIP(r)),
				zap.String("email", email))
			w.Header().Set("Retry-After", "60")
			uierrors.Write(w, http.StatusTooManyRequests, uierrors.CodeRateLimited, reason)
			return
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "login")
	defer cancel()
	ctx = auditlog.WithRequest(ctx, r)

	u, err := h.Users.Authenticate(ctx, email, in.Password)
	switch {
	case errors.Is(err, userstore.ErrUserNotFound):
		h.AuditLog.LoginFailedUserNotFound(ctx, email)
		uierrors.Write(w, http.StatusUnauthorized, uierrors.CodeInvalidCredentials, badCredentials)
		return
	case errors.Is(err, userstore.ErrWrongPassword):
		h.AuditLog.LoginFailedWrongPassword(ctx, u.ID, email)
		uierrors.Write(w, http.StatusUnauthorized, uierrors.CodeInvalidCredentials, badCredentials)
		return
	case errors.Is(err, userstore.ErrUserDisabled):
		h.AuditLog.LoginFailedUserDisabled(ctx, u.ID, email)
		uierrors.Write(w, http.StatusForbidden, uierrors.CodeForbidden, "This account has been disabled.")
		return
	case err != nil:
		h.ErrLog.LogServerError(w, r, "login: authenticate", err, "Sign-in is unavailable. Please try again.")
		return
	}

	su := &auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.FullName,
		Email: u.Email,
		Role:  string(u.Role),
	}
	if err := h.SessionMgr.SignIn(w, r, su); err != nil {
		h.ErrLog.LogServerError(w, r, "login: save session", err, "Sign-in is unavailable. Please try again.")
		return
	}
	if h.Limiter != nil {
		h.Limiter.ResetEmail(email)
	}
	h.AuditLog.LoginSuccess(ctx, u.ID, email, "password")
	h.Log.Info("user signed in", zap.String("user_id", su.ID), zap.String("role", su.Role))

	uierrors.WriteJSON(w, http.StatusOK, loginResponse{User: ToJSON(su)})
}

// ToJSON converts a session user for API responses.
func ToJSON(u *auth.SessionUser) UserJSON {
	out := UserJSON{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
	if id, ok := u.Identity(); ok {
		out.Role = string(id.Role)
		out.RoleLabel = id.Role.Label()
	}
	return out
}
