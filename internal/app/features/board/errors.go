package board

import (
	"errors"
	"net/http"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	"github.com/dalemusser/recoveryhub/internal/app/system/noteboard"
)

// statusFor maps a board error code to its HTTP status.
func statusFor(code noteboard.Code) int {
	switch code {
	case noteboard.CodeValidation:
		return http.StatusBadRequest
	case noteboard.CodeNotFound:
		return http.StatusNotFound
	case noteboard.CodeForbidden:
		return http.StatusForbidden
	case noteboard.CodeCapacity:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders a board error. Storage failures are logged with their
// cause and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *noteboard.Error
	if !errors.As(err, &be) || be.Code == noteboard.CodeStorage {
		h.ErrLog.LogServerError(w, r, "board operation failed", err, "The note board is unavailable. Please try again.")
		return
	}

	resp := uierrors.Response{
		Error:   string(be.Code),
		Message: be.Message,
		Details: be.Metadata,
	}
	if be.Code == noteboard.CodeCapacity {
		n := be.Count
		resp.Count = &n
	}
	uierrors.WriteJSON(w, statusFor(be.Code), resp)
}
