// internal/app/features/board/routes.go
package board

import (
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the board API. Every route requires a signed-in user; read
// and ownership rules are applied per post by the board service.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/posts", h.ListPosts)
	r.Post("/posts", h.CreatePost)
	r.Get("/posts/{id}", h.GetPost)
	r.Put("/posts/{id}", h.UpdatePost)
	r.Delete("/posts/{id}", h.DeletePost)
	r.Post("/posts/{id}/replies", h.CreateReply)

	r.Put("/replies/{id}", h.UpdateReply)
	r.Delete("/replies/{id}", h.DeleteReply)
	return r
}
