// internal/app/features/clients/handler.go
package clients

import (
	"errors"
	"net/http"
	"strings"
	"time"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	clientstore "github.com/dalemusser/recoveryhub/internal/app/store/clients"
	"github.com/dalemusser/recoveryhub/internal/app/system/auditlog"
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// dateLayout is the wire format for calendar dates.
const dateLayout = "2006-01-02"

// Handler serves the client registry API.
type Handler struct {
	Clients  *clientstore.Store
	AuditLog *auditlog.Logger
	Log      *zap.Logger
	ErrLog   *uierrors.ErrorLogger
}

func NewHandler(store *clientstore.Store, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Clients: store, AuditLog: audit, ErrLog: errLog, Log: logger}
}

type createInput struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

type enrollmentInput struct {
	Program   string `json:"program"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

type sessionInput struct {
	StaffID         string `json:"staff_id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type detailResponse struct {
	Client      models.Client       `json:"client"`
	Enrollments []models.Enrollment `json:"enrollments"`
	Sessions    []models.Session    `json:"sessions"`
}

// actor returns the caller's id. Routes are mounted behind RequireSignedIn,
// so a miss here means a malformed session.
func actor(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, ok := auth.CurrentIdentity(r)
	if !ok {
		uierrors.Write(w, http.StatusUnauthorized, uierrors.CodeUnauthorized, "Please sign in to continue.")
		return primitive.NilObjectID, false
	}
	return id.ID, true
}

func clientID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	raw := chi.URLParam(r, "id")
	oid, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		notFound(w, raw)
		return primitive.NilObjectID, false
	}
	return oid, true
}

func notFound(w http.ResponseWriter, id string) {
	uierrors.WriteJSON(w, http.StatusNotFound, uierrors.Response{
		Error:   uierrors.CodeNotFound,
		Message: "client not found",
		Details: map[string]string{"client_id": id},
	})
}

func invalid(w http.ResponseWriter, field, msg string) {
	uierrors.WriteJSON(w, http.StatusBadRequest, uierrors.Response{
		Error:   uierrors.CodeValidation,
		Message: field + " " + msg,
		Details: map[string]string{"field": field},
	})
}

// writeStoreError maps clientstore errors to responses.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, id string, err error) {
	var ve *clientstore.ValidationError
	switch {
	case errors.As(err, &ve):
		invalid(w, ve.Field, ve.Msg)
	case errors.Is(err, clientstore.ErrNotFound):
		notFound(w, id)
	default:
		h.ErrLog.LogServerError(w, r, "client registry operation failed", err, "The client registry is unavailable. Please try again.")
	}
}

func parseDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, &clientstore.ValidationError{Field: field, Msg: "must be YYYY-MM-DD"}
	}
	return &t, nil
}

// List handles GET /clients?q=&after=&before=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "clients.list")
	defer cancel()

	page, err := h.Clients.List(ctx, clientstore.ListQuery{
		Q:      query.Get(r, "q"),
		After:  query.Get(r, "after"),
		Before: query.Get(r, "before"),
	})
	if err != nil {
		h.writeStoreError(w, r, "", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, page)
}

// Create handles POST /clients.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var in createInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}
	dob, err := parseDate("date_of_birth", in.DateOfBirth)
	if err != nil {
		h.writeStoreError(w, r, "", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "clients.create")
	defer cancel()

	c, err := h.Clients.Create(ctx, models.Client{FullName: in.FullName, DateOfBirth: dob, CreatedBy: actorID})
	if err != nil {
		h.writeStoreError(w, r, "", err)
		return
	}
	h.AuditLog.ClientCreated(ctx, actorID, c.ID)
	uierrors.WriteJSON(w, http.StatusCreated, c)
}

// Get handles GET /clients/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "clients.get")
	defer cancel()

	c, err := h.Clients.Get(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	enrollments, err := h.Clients.Enrollments(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	sessions, err := h.Clients.Sessions(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, detailResponse{Client: c, Enrollments: enrollments, Sessions: sessions})
}

// AddEnrollment handles POST /clients/{id}/enrollments.
func (h *Handler) AddEnrollment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var in enrollmentInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}
	start, err := parseDate("start_date", in.StartDate)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	end, err := parseDate("end_date", in.EndDate)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	e := models.Enrollment{ClientID: id, Program: in.Program, EndDate: end}
	if start != nil {
		e.StartDate = *start
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "clients.enroll")
	defer cancel()

	e, err = h.Clients.AddEnrollment(ctx, e)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	h.AuditLog.EnrollmentAdded(ctx, actorID, id, e.Program)
	uierrors.WriteJSON(w, http.StatusCreated, e)
}

// AddSession handles POST /clients/{id}/sessions.
func (h *Handler) AddSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var in sessionInput
	if !uierrors.DecodeJSON(w, r, &in) {
		return
	}

	sess := models.Session{
		ClientID:        id,
		DurationMinutes: in.DurationMinutes,
		Notes:           strings.TrimSpace(in.Notes),
	}
	if raw := strings.TrimSpace(in.StaffID); raw != "" {
		staff, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			invalid(w, "staff_id", "is not a valid id")
			return
		}
		sess.StaffID = staff
	}
	if raw := strings.TrimSpace(in.ScheduledAt); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			invalid(w, "scheduled_at", "must be an RFC 3339 timestamp")
			return
		}
		sess.ScheduledAt = at.UTC()
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "clients.schedule")
	defer cancel()

	sess, err := h.Clients.AddSession(ctx, sess)
	if err != nil {
		h.writeStoreError(w, r, id.Hex(), err)
		return
	}
	h.AuditLog.SessionScheduled(ctx, actorID, id, sess.ID)
	uierrors.WriteJSON(w, http.StatusCreated, sess)
}
