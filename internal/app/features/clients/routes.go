// internal/app/features/clients/routes.go
package clients

import (
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the client registry. Any signed-in staff member may read and
// add records; deletion is limited to authz.ClientDeleteRoles.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/enrollments", h.AddEnrollment)
	r.Post("/{id}/sessions", h.AddSession)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireRole(authz.ClientDeleteRoles...))
		pr.Get("/{id}/delete-summary", h.DeleteSummary)
		pr.Delete("/{id}", h.Delete)
	})
	return r
}
