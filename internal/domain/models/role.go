// internal/domain/models/role.go
package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is a staff role. The set is fixed; anything else is rejected at the edges.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleClinicalDirector Role = "clinical_director"
	RoleCounselor        Role = "counselor"
	RoleNurse            Role = "nurse"
	RoleTherapist        Role = "therapist"
	RoleStaff            Role = "staff"
)

// allRoles is in display order.
var allRoles = []Role{
	RoleAdmin,
	RoleClinicalDirector,
	RoleCounselor,
	RoleNurse,
	RoleTherapist,
	RoleStaff,
}

var roleLabels = map[Role]string{
	RoleAdmin:            "Admin",
	RoleClinicalDirector: "Clinical Director",
	RoleCounselor:        "Counselor",
	RoleNurse:            "Nurse",
	RoleTherapist:        "Therapist",
	RoleStaff:            "Staff",
}

// AllRoles returns every role in display order.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRole normalizes s (trim + lowercase) and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleLabels[r]; !ok {
		return "", false
	}
	return r, true
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label is the human-readable role name.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

// rank orders roles for stable output.
func (r Role) rank() int {
	for i, x := range allRoles {
		if x == r {
			return i
		}
	}
	return len(allRoles)
}

// Identity is the acting user for a single operation.
// It is always passed explicitly; nothing in the core looks it up ambiently.
type Identity struct {
	ID   primitive.ObjectID
	Role Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Is reports whether the identity belongs to the user with the given id.
// A zero identity never matches.
func (i Identity) Is(id primitive.ObjectID) bool {
	return !i.ID.IsZero() && i.ID == id
}
