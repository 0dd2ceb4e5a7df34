// internal/app/features/activity/routes.go
package activity

import (
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the activity log under /activity. Only authz.ActivityRoles
// may read it.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(sm.RequireRole(authz.ActivityRoles...))

		pr.Get("/", h.ServeList)
		pr.Get("/types", h.ServeTypes)
	})

	return r
}
