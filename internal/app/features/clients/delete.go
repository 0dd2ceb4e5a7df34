// internal/app/features/clients/delete.go
package clients

import (
	"net/http"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	"github.com/dalemusser/recoveryhub/internal/app/system/normalize"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.uber.org/zap"
)

type deleteSummary struct {
	Client     models.Client           `json:"client"`
	Dependents models.ClientDependents `json:"dependents"`
	// ConfirmWith is the text the caller must send back to delete.
	ConfirmWith string `json:"confirm_with"`
}

type deleteInput struct {
	Confirm string `json:"confirm"`
}

type deleteResponse struct {
	Deleted    bool                    `json:"deleted"`
	ClientID   string                  `json:"client_id"`
	Dependents models.ClientDependents `json:"dependents"`
}

// DeleteSummary handles GET /clients/{id}/delete-summary.
func (h *Handler) DeleteSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "clients.delete_summary")
	defer cancel()

	c, err := h.Clients.Get(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	deps, err := h.Clients.DependentCounts(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, deleteSummary{Client: c, Dependents: deps, ConfirmWith: c.FullName})
}

// Delete handles DELETE /clients/{id}. The body must repeat the client's full
// name; case, spacing and diacritics are ignored.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var in deleteInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "clients.delete")
	defer cancel()

	c, err := h.Clients.Get(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}

	if normalize.NameCI(in.Confirm) == "" || normalize.NameCI(in.Confirm) != normalize.NameCI(c.FullName) {
		h.AuditLog.ClientDeleteRejected(ctx, actorID, id, "confirmation mismatch")
		uierrors.WriteJSON(w, http.StatusBadRequest, uierrors.Response{
			Error:   uierrors.CodeConfirmationMismatch,
			Message: "Type the client's full name to confirm deletion.",
			Details: map[string]string{"client_id": id.Hex()},
		})
		return
	}

	deps, err := h.Clients.DeleteCascade(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	h.AuditLog.ClientDeleted(ctx, actorID, id, deps.Enrollments, deps.Sessions)
	h.Log.Info("client deleted",
		zap.String("client_id", id.Hex()),
		zap.Int64("enrollments", deps.Enrollments),
		zap.Int64("sessions", deps.Sessions))

	uierrors.WriteJSON(w, http.StatusOK, deleteResponse{Deleted: true, ClientID: id.Hex(), Dependents: deps})
}
