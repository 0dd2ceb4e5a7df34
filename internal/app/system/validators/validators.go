// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/recoveryhub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// nonBlank matches strings with at least one non-space character.
var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

// EnsureAll creates the app's collections (if missing) and attaches
// JSON-Schema validators. Servers that reject collMod (some DocumentDB
// versions) are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema, logger); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("clients", clientsSchema())
	ensure("enrollments", enrollmentsSchema())
	ensure("sessions", sessionsSchema())

	ensure("posts", postsSchema())
	ensure("post_role_grants", roleGrantsSchema())
	ensure("post_user_grants", userGrantsSchema())
	ensure("replies", repliesSchema())

	// Append-only; indexes cover it.
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection reports created==true only when this call made it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		logger.Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		logger.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	logger.Info("created collection", zap.String("collection", name))
	return true, nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M, logger *zap.Logger) error {
	// moderate: documents that already fail the schema can still be updated.
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	logger.Debug("validator ensured", zap.String("collection", name))
	return nil
}

func commandErrorMatches(err error, code int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return commandErrorMatches(err, 48, "already exists", "namespace exists")
}

func isNoSuchCommand(err error) bool {
	return commandErrorMatches(err, 59, "no such command")
}

func isNotImplemented(err error) bool {
	return commandErrorMatches(err, 115, "not implemented", "not supported")
}

func roleEnum() bson.A {
	out := bson.A{}
	for _, r := range models.AllRoles() {
		out = append(out, string(r))
	}
	return out
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"full_name", "email", "role", "status"},
			"properties": bson.M{
				"full_name":     nonBlank,
				"full_name_ci":  bson.M{"bsonType": "string"},
				"email":         nonBlank,
				"role":          bson.M{"enum": roleEnum()},
				"status":        bson.M{"enum": bson.A{models.UserStatusActive, models.UserStatusDisabled}},
				"password_hash": bson.M{"bsonType": "string"},
			},
		},
	}
}

func clientsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"full_name", "status", "created_by"},
			"properties": bson.M{
				"full_name":     nonBlank,
				"status":        bson.M{"enum": bson.A{models.ClientStatusActive, models.ClientStatusDischarged}},
				"date_of_birth": bson.M{"bsonType": "date"},
				"created_by":    bson.M{"bsonType": "objectId"},
			},
		},
	}
}

func enrollmentsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"client_id", "program", "start_date"},
			"properties": bson.M{
				"client_id":  bson.M{"bsonType": "objectId"},
				"program":    nonBlank,
				"start_date": bson.M{"bsonType": "date"},
				"end_date":   bson.M{"bsonType": "date"},
			},
		},
	}
}

func sessionsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"client_id", "staff_id", "scheduled_at", "duration_minutes"},
			"properties": bson.M{
				"client_id":        bson.M{"bsonType": "objectId"},
				"staff_id":         bson.M{"bsonType": "objectId"},
				"scheduled_at":     bson.M{"bsonType": "date"},
				"duration_minutes": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
			},
		},
	}
}

func postsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"title", "body", "author_id", "visibility", "status"},
			"properties": bson.M{
				"title":     nonBlank,
				"body":      bson.M{"bsonType": "string"},
				"author_id": bson.M{"bsonType": "objectId"},
				"visibility": bson.M{"enum": bson.A{
					string(models.VisibilityPublic),
					string(models.VisibilityRoleBased),
					string(models.VisibilityUserSpecific),
					string(models.VisibilityPrivate),
				}},
				"status": bson.M{"bsonType": "string"},
			},
		},
	}
}

func roleGrantsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"post_id", "role"},
			"properties": bson.M{
				"post_id": bson.M{"bsonType": "objectId"},
				"role":    bson.M{"enum": roleEnum()},
			},
		},
	}
}

func userGrantsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"post_id", "user_id"},
			"properties": bson.M{
				"post_id": bson.M{"bsonType": "objectId"},
				"user_id": bson.M{"bsonType": "objectId"},
			},
		},
	}
}

func repliesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"post_id", "author_id", "body"},
			"properties": bson.M{
				"post_id":   bson.M{"bsonType": "objectId"},
				"author_id": bson.M{"bsonType": "objectId"},
				"body":      nonBlank,
			},
		},
	}
}
