// Package noteboard manages the staff note board: posts with per-post
// visibility, and capped replies. Read decisions come from postpolicy; this
// package owns validation, atomic persistence and audit emission.
//
// The acting identity is an explicit argument to every operation.
package noteboard

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MaxReplies is the number of replies a post may hold.
const MaxReplies = 5

// Service runs the board operations against a Store.
type Service struct {
	store Store
	dir   Directory
	audit AuditSink
	log   *zap.Logger

	// Now stamps created_at/updated_at.
	Now func() time.Time
	// Render turns a stored Markdown body into sanitized display HTML.
	Render func(string) (string, error)
}

// New builds a Service. audit may be nil.
func New(store Store, dir Directory, audit AuditSink, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  store,
		dir:    dir,
		audit:  audit,
		log:    log,
		Now:    func() time.Time { return time.Now().UTC() },
		Render: htmlsanitize.Markdown,
	}
}

// PostInput is the caller-supplied content of a post. Roles and Users are only
// consulted for the mode that uses them.
type PostInput struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Visibility string   `json:"visibility"`
	Roles      []string `json:"roles,omitempty"`
	Users      []string `json:"users,omitempty"`
}

func (s *Service) record(ctx context.Context, event string, actor models.Identity, payload map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, event, actor.ID, payload)
}

func requireIdentity(actor models.Identity) error {
	if actor.ID.IsZero() || !actor.Role.Valid() {
		return &Error{Code: CodeForbidden, Message: "a signed-in staff identity is required"}
	}
	return nil
}

// cleanBody trims a body and rejects it when nothing is left. The Markdown
// source is stored as written; only rendered HTML is sanitized.
func cleanBody(body string) (string, error) {
	clean := strings.TrimSpace(body)
	if clean == "" {
		return "", invalid("body", "body is required")
	}
	return clean, nil
}

// parsePost validates input and builds the visibility variant. Grant lists
// that do not apply to the chosen mode are dropped here.
func (s *Service) parsePost(ctx context.Context, in PostInput) (title, body string, vis models.Visibility, err error) {
	title = strings.TrimSpace(in.Title)
	if title == "" {
		return "", "", nil, invalid("title", "title is required")
	}
	if body, err = cleanBody(in.Body); err != nil {
		return "", "", nil, err
	}

	mode := models.VisibilityPublic
	if strings.TrimSpace(in.Visibility) != "" {
		m, ok := models.ParseMode(in.Visibility)
		if !ok {
			return "", "", nil, invalid("visibility", "unknown visibility mode "+strings.TrimSpace(in.Visibility))
		}
		mode = m
	}

	switch mode {
	case models.VisibilityRoleBased:
		vis, err = parseRoles(in.Roles)
	case models.VisibilityUserSpecific:
		vis, err = s.parseUsers(ctx, in.Users)
	default:
		vis, err = models.ParseVisibility(mode, nil, nil)
	}
	if err != nil {
		return "", "", nil, err
	}
	return title, body, vis, nil
}

func parseRoles(raw []string) (models.Visibility, error) {
	roles := make([]models.Role, 0, len(raw))
	var bad []string
	for _, r := range raw {
		role, ok := models.ParseRole(r)
		if !ok {
			bad = append(bad, strings.TrimSpace(r))
			continue
		}
		roles = append(roles, role)
	}
	if len(bad) > 0 {
		e := invalid("roles", "unknown role")
		e.Metadata["roles"] = joinIDs(bad)
		return nil, e
	}
	vis, err := models.RoleBased(roles...)
	if err != nil {
		return nil, invalid("roles", err.Error())
	}
	return vis, nil
}

func (s *Service) parseUsers(ctx context.Context, raw []string) (models.Visibility, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	var bad []string
	for _, h := range raw {
		id, err := primitive.ObjectIDFromHex(strings.TrimSpace(h))
		if err != nil {
			bad = append(bad, strings.TrimSpace(h))
			continue
		}
		ids = append(ids, id)
	}
	if len(bad) > 0 {
		e := invalid("users", "malformed user id")
		e.Metadata["users"] = joinIDs(bad)
		return nil, e
	}
	vis, err := models.UserSpecific(ids...)
	if err != nil {
		return nil, invalid("users", err.Error())
	}

	granted := vis.Grants().Users
	found, err := s.dir.Lookup(ctx, granted)
	if err != nil {
		return nil, storage("look up granted users", err)
	}
	var missing []string
	for _, id := range granted {
		if _, ok := found[id]; !ok {
			missing = append(missing, id.Hex())
		}
	}
	if len(missing) > 0 {
		e := invalid("users", "unknown user")
		e.Metadata["users"] = joinIDs(missing)
		return nil, e
	}
	return vis, nil
}
