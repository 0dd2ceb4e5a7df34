// internal/app/features/activity/list.go
package activity

import (
	"net/http"
	"slices"
	"sort"
	"time"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	"github.com/dalemusser/recoveryhub/internal/app/system/paging"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func invalid(w http.ResponseWriter, field, msg string) {
	uierrors.WriteJSON(w, http.StatusBadRequest, uierrors.Response{
		Error:   uierrors.CodeValidation,
		Message: msg,
		Details: map[string]string{"field": field},
	})
}

// parseFilter reads the query string. It writes a 400 and returns false on
// any value it cannot use.
func parseFilter(w http.ResponseWriter, r *http.Request) (audit.QueryFilter, bool) {
	f := audit.QueryFilter{
		Category:  query.Get(r, "category"),
		EventType: query.Get(r, "event"),
	}
	if f.Category != "" && !slices.Contains(audit.Categories(), f.Category) {
		invalid(w, "category", "unknown category "+f.Category)
		return f, false
	}
	if raw := query.Get(r, "actor"); raw != "" {
		oid, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			invalid(w, "actor", "actor must be a user id")
			return f, false
		}
		f.ActorID = &oid
	}
	if raw := query.Get(r, "start"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			invalid(w, "start", "start must be YYYY-MM-DD")
			return f, false
		}
		f.StartTime = &t
	}
	if raw := query.Get(r, "end"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			invalid(w, "end", "end must be YYYY-MM-DD")
			return f, false
		}
		// The end day is included.
		next := t.AddDate(0, 0, 1)
		f.EndTime = &next
	}
	if f.StartTime != nil && f.EndTime != nil && !f.StartTime.Before(*f.EndTime) {
		invalid(w, "end", "end is before start")
		return f, false
	}
	return f, true
}

// ServeList handles GET /activity.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	page := paging.ParsePage(r)
	filter.Limit = paging.PageSize
	filter.Offset = paging.Offset(page)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "activity list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "activity: query events", err, "The activity log is unavailable.")
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "activity: count events", err, "The activity log is unavailable.")
		return
	}

	seen := make(map[primitive.ObjectID]struct{})
	var ids []primitive.ObjectID
	for _, e := range events {
		for _, p := range []*primitive.ObjectID{e.ActorID, e.UserID} {
			if p == nil {
				continue
			}
			if _, dup := seen[*p]; !dup {
				seen[*p] = struct{}{}
				ids = append(ids, *p)
			}
		}
	}

	names := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) > 0 && h.Users != nil {
		users, err := h.Users.Lookup(ctx, ids)
		if err != nil {
			// Names are cosmetic; fall back to ids.
			h.Log.Warn("activity: resolve user names", zap.Error(err))
		}
		for id, u := range users {
			names[id] = u.FullName
		}
	}

	items := make([]item, 0, len(events))
	for _, e := range events {
		it := item{
			ID:            e.ID.Hex(),
			Timestamp:     e.Timestamp,
			Category:      e.Category,
			EventType:     e.EventType,
			IP:            e.IP,
			RequestID:     e.RequestID,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			Details:       e.Details,
		}
		if e.ActorID != nil {
			it.ActorID = e.ActorID.Hex()
			it.ActorName = names[*e.ActorID]
		}
		if e.UserID != nil {
			it.UserID = e.UserID.Hex()
			it.UserName = names[*e.UserID]
		}
		items = append(items, it)
	}

	uierrors.WriteJSON(w, http.StatusOK, listResponse{
		Events: items,
		Total:  total,
		Page:   page,
		Pages:  paging.PageCount(total),
	})
}

// ServeTypes handles GET /activity/types?category=, feeding filter menus.
func (h *Handler) ServeTypes(w http.ResponseWriter, r *http.Request) {
	category := query.Get(r, "category")
	if category != "" && !slices.Contains(audit.Categories(), category) {
		invalid(w, "category", "unknown category "+category)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "activity types")
	defer cancel()

	types, err := h.Events.EventTypes(ctx, category)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "activity: event types", err, "The activity log is unavailable.")
		return
	}
	sort.Strings(types)
	uierrors.WriteJSON(w, http.StatusOK, typesResponse{Categories: audit.Categories(), EventTypes: types})
}
