package errors

import (
	"encoding/json"
	"net/http"
)

// Error codes sent to API clients.
const (
	CodeValidation           = "validation"
	CodeNotFound             = "not_found"
	CodeForbidden            = "forbidden"
	CodeCapacity             = "capacity"
	CodeStorage              = "storage"
	CodeUnauthorized         = "unauthorized"
	CodeBadRequest           = "bad_request"
	CodeConfirmationMismatch = "confirmation_mismatch"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeRateLimited          = "rate_limited"
)

// Response is the JSON error body.
type Response struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Count   *int64            `json:"count,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write sends an error body with no details.
func Write(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, Response{Error: code, Message: msg})
}

// BadRequest is Write with 400 and CodeBadRequest.
func BadRequest(w http.ResponseWriter, msg string) {
	Write(w, http.StatusBadRequest, CodeBadRequest, msg)
}

// DecodeJSON reads a JSON request body into dst, rejecting unknown fields.
// On failure it writes a 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		BadRequest(w, "Malformed JSON body: "+err.Error())
		return false
	}
	return true
}
