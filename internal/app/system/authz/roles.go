// internal/app/system/authz/roles.go
package authz

import (
	"net/http"

	"github.com/dalemusser/recoveryhub/internal/domain/models"
)

// CurrentRole returns the signed-in user's role. ok is false for visitors
// and for sessions whose role is not one of models.AllRoles.
func CurrentRole(r *http.Request) (models.Role, bool) {
	role, _, _, ok := UserCtx(r)
	if !ok {
		return "", false
	}
	return models.ParseRole(role)
}

// HasAnyRole reports whether the current user holds one of roles. Unknown
// role names never match.
func HasAnyRole(r *http.Request, roles ...string) bool {
	cur, ok := CurrentRole(r)
	if !ok {
		return false
	}
	for _, want := range roles {
		if w, ok := models.ParseRole(want); ok && w == cur {
			return true
		}
	}
	return false
}
