// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/dalemusser/recoveryhub/internal/app/system/authz"
)

// Handler is the errors feature handler. It serves the targets that
// RequireRole and RequireSignedIn redirect browsers to.
type Handler struct{}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Forbidden reports that the caller lacks permission.
// GET /forbidden
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	role, _, _, signedIn := authz.UserCtx(r)
	resp := Response{
		Error:   CodeForbidden,
		Message: "You don't have permission to view this page.",
	}
	if signedIn {
		resp.Details = map[string]string{"role": role}
	}
	WriteJSON(w, http.StatusForbidden, resp)
}

// Unauthorized reports that sign-in is required.
// GET /unauthorized
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusUnauthorized, CodeUnauthorized, "Please sign in to continue.")
}

// NotFound is the router's fallback for unknown paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusNotFound, CodeNotFound, "No such resource.")
}
