// internal/app/features/activity/types.go
package activity

import "time"

// item is one audit event as returned by GET /activity. Names are resolved
// from the users collection; ids are kept for events about deleted staff.
type item struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	ActorID       string            `json:"actor_id,omitempty"`
	ActorName     string            `json:"actor_name,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	UserName      string            `json:"user_name,omitempty"`
	IP            string            `json:"ip,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

type listResponse struct {
	Events []item `json:"events"`
	Total  int64  `json:"total"`
	Page   int    `json:"page"`
	Pages  int    `json:"pages"`
}

type typesResponse struct {
	Categories []string `json:"categories"`
	EventTypes []string `json:"event_types"`
}
