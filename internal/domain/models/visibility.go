// internal/domain/models/visibility.go
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VisibilityMode is the stored discriminator for a post's visibility.
type VisibilityMode string

const (
	VisibilityPublic       VisibilityMode = "public"
	VisibilityRoleBased    VisibilityMode = "role_based"
	VisibilityUserSpecific VisibilityMode = "user_specific"
	VisibilityPrivate      VisibilityMode = "private"
)

// ParseMode normalizes s and reports whether it names a known mode.
func ParseMode(s string) (VisibilityMode, bool) {
	m := VisibilityMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case VisibilityPublic, VisibilityRoleBased, VisibilityUserSpecific, VisibilityPrivate:
		return m, true
	}
	return "", false
}

var (
	ErrNoRoles     = errors.New("role-based visibility needs at least one role")
	ErrNoUsers     = errors.New("user-specific visibility needs at least one user")
	ErrNilUserID   = errors.New("user-specific visibility cannot grant an empty user id")
	ErrUnknownMode = errors.New("unknown visibility mode")
)

// Grants is the persisted grant snapshot for a post. At most one of the
// lists is non-empty, and only for the mode that uses it.
type Grants struct {
	Roles []Role               `json:"roles,omitempty"`
	Users []primitive.ObjectID `json:"users,omitempty"`
}

// IsEmpty reports whether no grants are present.
func (g Grants) IsEmpty() bool {
	return len(g.Roles) == 0 && len(g.Users) == 0
}

// String renders the grants as "roles=a,b" or "users=x,y" (empty when none).
func (g Grants) String() string {
	switch {
	case len(g.Roles) > 0:
		parts := make([]string, len(g.Roles))
		for i, r := range g.Roles {
			parts[i] = string(r)
		}
		return "roles=" + strings.Join(parts, ",")
	case len(g.Users) > 0:
		parts := make([]string, len(g.Users))
		for i, u := range g.Users {
			parts[i] = u.Hex()
		}
		return "users=" + strings.Join(parts, ",")
	}
	return ""
}

// Visibility is a closed set of variants; the unexported method keeps other
// packages from adding their own.
type Visibility interface {
	Mode() VisibilityMode
	Grants() Grants
	visibility()
}

// PublicVisibility: everyone may read.
type PublicVisibility struct{}

// PrivateVisibility: only the author (and admins) may read.
type PrivateVisibility struct{}

// RoleBasedVisibility: holders of any listed role may read.
type RoleBasedVisibility struct {
	roles []Role
}

// UserSpecificVisibility: the listed users (and the author) may read.
type UserSpecificVisibility struct {
	users []primitive.ObjectID
}

func (PublicVisibility) Mode() VisibilityMode       { return VisibilityPublic }
func (PrivateVisibility) Mode() VisibilityMode      { return VisibilityPrivate }
func (RoleBasedVisibility) Mode() VisibilityMode    { return VisibilityRoleBased }
func (UserSpecificVisibility) Mode() VisibilityMode { return VisibilityUserSpecific }

func (PublicVisibility) Grants() Grants  { return Grants{} }
func (PrivateVisibility) Grants() Grants { return Grants{} }
func (v RoleBasedVisibility) Grants() Grants {
	return Grants{Roles: v.Roles()}
}
func (v UserSpecificVisibility) Grants() Grants {
	return Grants{Users: v.Users()}
}

func (PublicVisibility) visibility()       {}
func (PrivateVisibility) visibility()      {}
func (RoleBasedVisibility) visibility()    {}
func (UserSpecificVisibility) visibility() {}

// Roles returns a copy of the granted roles in display order.
func (v RoleBasedVisibility) Roles() []Role {
	out := make([]Role, len(v.roles))
	copy(out, v.roles)
	return out
}

// Allows reports whether role r is granted.
func (v RoleBasedVisibility) Allows(r Role) bool {
	for _, x := range v.roles {
		if x == r {
			return true
		}
	}
	return false
}

// Users returns a copy of the granted user ids, sorted by hex.
func (v UserSpecificVisibility) Users() []primitive.ObjectID {
	out := make([]primitive.ObjectID, len(v.users))
	copy(out, v.users)
	return out
}

// Includes reports whether id is granted.
func (v UserSpecificVisibility) Includes(id primitive.ObjectID) bool {
	for _, x := range v.users {
		if x == id {
			return true
		}
	}
	return false
}

// Public returns the public variant.
func Public() Visibility { return PublicVisibility{} }

// Private returns the private variant.
func Private() Visibility { return PrivateVisibility{} }

// RoleBased builds a role-based visibility. Duplicate roles collapse; an empty
// list or an unknown role is an error.
func RoleBased(roles ...Role) (Visibility, error) {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			return nil, fmt.Errorf("unknown role %q", string(r))
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoRoles
	}
	sortRoles(out)
	return RoleBasedVisibility{roles: out}, nil
}

// UserSpecific builds a user-specific visibility. Duplicate ids collapse; an
// empty list or a zero id is an error. Existence of the users is checked by
// the caller, which has access to the user directory.
func UserSpecific(ids ...primitive.ObjectID) (Visibility, error) {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			return nil, ErrNilUserID
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, ErrNoUsers
	}
	sortIDs(out)
	return UserSpecificVisibility{users: out}, nil
}

// ParseVisibility builds the variant for mode using only the grant list that
// applies to it; the other list is ignored.
func ParseVisibility(mode VisibilityMode, roles []Role, users []primitive.ObjectID) (Visibility, error) {
	switch mode {
	case VisibilityPublic:
		return Public(), nil
	case VisibilityPrivate:
		return Private(), nil
	case VisibilityRoleBased:
		return RoleBased(roles...)
	case VisibilityUserSpecific:
		return UserSpecific(users...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
}

// Restore rebuilds a stored visibility without re-validating it. Rows written
// before a grant was cleaned up still produce a usable (narrower) variant, and
// an unrecognized mode degrades to private.
func Restore(mode VisibilityMode, g Grants) Visibility {
	switch mode {
	case VisibilityPublic:
		return Public()
	case VisibilityRoleBased:
		roles := make([]Role, 0, len(g.Roles))
		seen := make(map[Role]struct{}, len(g.Roles))
		for _, r := range g.Roles {
			if _, dup := seen[r]; dup || !r.Valid() {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
		sortRoles(roles)
		return RoleBasedVisibility{roles: roles}
	case VisibilityUserSpecific:
		users := make([]primitive.ObjectID, 0, len(g.Users))
		seen := make(map[primitive.ObjectID]struct{}, len(g.Users))
		for _, u := range g.Users {
			if _, dup := seen[u]; dup || u.IsZero() {
				continue
			}
			seen[u] = struct{}{}
			users = append(users, u)
		}
		sortIDs(users)
		return UserSpecificVisibility{users: users}
	}
	return Private()
}

func sortRoles(rs []Role) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].rank() < rs[j].rank() })
}

func sortIDs(ids []primitive.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
}
