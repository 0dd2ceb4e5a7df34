// internal/app/features/board/handler.go
package board

import (
	"net/http"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/app/system/noteboard"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the note board JSON API.
type Handler struct {
	Board  *noteboard.Service
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

// NewHandler creates a board Handler.
func NewHandler(board *noteboard.Service, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Board: board, ErrLog: errLog, Log: logger}
}

type replyInput struct {
	Body string `json:"body"`
}

type postsResponse struct {
	Posts []noteboard.PostView `json:"posts"`
}

// identity resolves the caller or writes a 401.
func identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := auth.CurrentIdentity(r)
	if !ok {
		uierrors.Write(w, http.StatusUnauthorized, uierrors.CodeUnauthorized, "Please sign in to continue.")
		return models.Identity{}, false
	}
	return id, true
}

// pathID parses the {id} URL param. A malformed id cannot name a record, so
// it is reported as not found.
func pathID(w http.ResponseWriter, r *http.Request, kind string) (primitive.ObjectID, bool) {
	raw := chi.URLParam(r, "id")
	oid, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		uierrors.WriteJSON(w, http.StatusNotFound, uierrors.Response{
			Error:   uierrors.CodeNotFound,
			Message: kind + " not found",
			Details: map[string]string{kind + "_id": raw},
		})
		return primitive.NilObjectID, false
	}
	return oid, true
}

// ListPosts handles GET /board/posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	viewer, ok := identity(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "board.list")
	defer cancel()

	posts, err := h.Board.ListPosts(ctx, viewer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, postsResponse{Posts: posts})
}

// GetPost handles GET /board/posts/{id}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	viewer, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "post")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "board.get")
	defer cancel()

	view, err := h.Board.GetPost(ctx, viewer, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, view)
}

// CreatePost handles POST /board/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	var in noteboard.PostInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "board.create")
	defer cancel()

	view, err := h.Board.CreatePost(ctx, actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, view)
}

// UpdatePost handles PUT /board/posts/{id}.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "post")
	if !ok {
		return
	}
	var in noteboard.PostInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "board.update")
	defer cancel()

	view, err := h.Board.UpdatePost(ctx, actor, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, view)
}

// DeletePost handles DELETE /board/posts/{id}.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "post")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "board.delete")
	defer cancel()

	if err := h.Board.DeletePost(ctx, actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateReply handles POST /board/posts/{id}/replies.
func (h *Handler) CreateReply(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "post")
	if !ok {
		return
	}
	var in replyInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "board.reply")
	defer cancel()

	reply, err := h.Board.CreateReply(ctx, actor, postID, in.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, reply)
}

// UpdateReply handles PUT /board/replies/{id}.
func (h *Handler) UpdateReply(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reply")
	if !ok {
		return
	}
	var in replyInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "board.reply_update")
	defer cancel()

	reply, err := h.Board.UpdateReply(ctx, actor, id, in.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, reply)
}

// DeleteReply handles DELETE /board/replies/{id}.
func (h *Handler) DeleteReply(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reply")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "board.reply_delete")
	defer cancel()

	if err := h.Board.DeleteReply(ctx, actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
