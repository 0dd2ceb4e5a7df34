// internal/app/features/userinfo/handler.go
package userinfo

import (
	"net/http"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	"github.com/dalemusser/recoveryhub/internal/app/features/login"
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
)

// Handler serves the caller's identity.
type Handler struct{}

// NewHandler creates a new userinfo handler.
func NewHandler() *Handler {
	return &Handler{}
}

type response struct {
	IsAuthenticated bool            `json:"isAuthenticated"`
	User            *login.UserJSON `json:"user,omitempty"`
}

// ServeUserInfo handles GET /users/me. Anonymous callers get
// isAuthenticated=false rather than an error, so clients can check sign-in state.
//
//	{ "isAuthenticated": true, "user": { "id": "...", "name": "...", "email": "...", "role": "nurse", "role_label": "Nurse" } }
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	user, ok := auth.CurrentUser(r)
	if !ok {
		uierrors.WriteJSON(w, http.StatusOK, response{})
		return
	}
	u := login.ToJSON(user)
	uierrors.WriteJSON(w, http.StatusOK, response{IsAuthenticated: true, User: &u})
}
