// internal/app/policy/postpolicy/postpolicy.go
//
// Package postpolicy decides who may read and change note-board posts and
// replies. It is pure: callers pass the post, its visibility and the viewer,
// and every answer is recomputed from those values.
package postpolicy

import (
	"sort"
	"strings"

	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reason explains why a read was allowed or denied.
type Reason string

const (
	ReasonPublic        Reason = "public"
	ReasonAuthor        Reason = "author"
	ReasonRoleGrant     Reason = "role_grant"
	ReasonUserGrant     Reason = "user_grant"
	ReasonAdminOverride Reason = "admin_override"
	ReasonDenied        Reason = "denied"
)

// Access is the outcome of a read check.
type Access struct {
	Allowed bool
	Reason  Reason
}

// AdminOverride reports whether the viewer can read only because they are an admin.
func (a Access) AdminOverride() bool {
	return a.Reason == ReasonAdminOverride
}

// Explain evaluates read access and says which rule granted it.
// Rules are tried from the most ordinary to the admin fallback so that an
// admin who is also the author (or granted) is not reported as an override.
func Explain(p models.Post, vis models.Visibility, viewer models.Identity) Access {
	if vis == nil {
		vis = models.Restore(p.Visibility, models.Grants{})
	}

	switch v := vis.(type) {
	case models.PublicVisibility:
		return Access{Allowed: true, Reason: ReasonPublic}
	case models.RoleBasedVisibility:
		if viewer.Is(p.AuthorID) {
			return Access{Allowed: true, Reason: ReasonAuthor}
		}
		if viewer.Role != "" && v.Allows(viewer.Role) {
			return Access{Allowed: true, Reason: ReasonRoleGrant}
		}
	case models.UserSpecificVisibility:
		if viewer.Is(p.AuthorID) {
			return Access{Allowed: true, Reason: ReasonAuthor}
		}
		if !viewer.ID.IsZero() && v.Includes(viewer.ID) {
			return Access{Allowed: true, Reason: ReasonUserGrant}
		}
	case models.PrivateVisibility:
		if viewer.Is(p.AuthorID) {
			return Access{Allowed: true, Reason: ReasonAuthor}
		}
	}

	if viewer.IsAdmin() {
		return Access{Allowed: true, Reason: ReasonAdminOverride}
	}
	return Access{Allowed: false, Reason: ReasonDenied}
}

// CanRead reports whether viewer may see the post.
func CanRead(p models.Post, vis models.Visibility, viewer models.Identity) bool {
	return Explain(p, vis, viewer).Allowed
}

// CanEdit reports whether viewer may change the post: its author or an admin.
func CanEdit(p models.Post, viewer models.Identity) bool {
	return viewer.Is(p.AuthorID) || viewer.IsAdmin()
}

// CanDelete follows the same ownership rule as CanEdit.
func CanDelete(p models.Post, viewer models.Identity) bool {
	return CanEdit(p, viewer)
}

// CanEditReply reports whether viewer may change the reply: its author or an admin.
func CanEditReply(r models.Reply, viewer models.Identity) bool {
	return viewer.Is(r.AuthorID) || viewer.IsAdmin()
}

// CanDeleteReply follows the same ownership rule as CanEditReply.
func CanDeleteReply(r models.Reply, viewer models.Identity) bool {
	return CanEditReply(r, viewer)
}

// Describe renders who can see a post, derived from the same variant the
// read check uses. names resolves user ids to display names; ids missing from
// it are shown as "Unknown user".
func Describe(vis models.Visibility, names map[primitive.ObjectID]string) string {
	switch v := vis.(type) {
	case models.PublicVisibility:
		return "Visible to everyone"
	case models.RoleBasedVisibility:
		roles := v.Roles()
		if len(roles) == 0 {
			return "Visible only to the author"
		}
		labels := make([]string, len(roles))
		for i, r := range roles {
			labels[i] = r.Label()
		}
		return "Visible to: " + strings.Join(labels, ", ")
	case models.UserSpecificVisibility:
		users := v.Users()
		if len(users) == 0 {
			return "Visible only to the author"
		}
		labels := make([]string, len(users))
		for i, id := range users {
			if n, ok := names[id]; ok && n != "" {
				labels[i] = n
			} else {
				labels[i] = "Unknown user"
			}
		}
		sort.Strings(labels)
		return "Visible to: " + strings.Join(labels, ", ") + " and the author"
	}
	return "Visible only to the author"
}
