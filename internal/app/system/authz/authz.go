// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a found flag.
// If no user is present in context or the user ID is malformed, it returns
// "visitor", "", NilObjectID, false, so ok=true always means a valid user id.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session: fail closed.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// IsAdmin reports whether the current request's user is an admin.
func IsAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == string(models.RoleAdmin)
}

// IsClinicalDirector reports whether the current request's user is a clinical director.
func IsClinicalDirector(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == string(models.RoleClinicalDirector)
}

// ClientDeleteRoles may remove a client and everything attached to it.
var ClientDeleteRoles = []string{string(models.RoleAdmin), string(models.RoleClinicalDirector)}

// ActivityRoles may read the activity log.
var ActivityRoles = []string{string(models.RoleAdmin), string(models.RoleClinicalDirector)}

// CanDeleteClients reports whether the current user may delete clients.
func CanDeleteClients(r *http.Request) bool {
	return HasAnyRole(r, ClientDeleteRoles...)
}

// CanViewActivity reports whether the current user may read the activity log.
func CanViewActivity(r *http.Request) bool {
	return HasAnyRole(r, ActivityRoles...)
}
