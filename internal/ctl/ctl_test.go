package ctl

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/dalemusser/recoveryhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const testSecret = "ctl-test-secret-0123456789abcdefghij"

func testApp(db *mongo.Database) *app {
	return &app{
		settings: Settings{
			MongoDatabase: "unused",
			BoardStore:    "mongo",
			JWTSecret:     testSecret,
			JWTIssuer:     "recoveryhub",
			AuditAuth:     "all",
		},
		log: zap.NewNop(),
		db:  db,
	}
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeys(t *testing.T) {
	out, err := run(t, &app{log: zap.NewNop()}, "keys")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	for i, prefix := range []string{"RECOVERYHUB_SESSION_KEY=", "RECOVERYHUB_JWT_SECRET="} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
			continue
		}
		raw, err := hex.DecodeString(strings.TrimPrefix(lines[i], prefix))
		if err != nil || len(raw) != 32 {
			t.Errorf("line %d: expected 32 hex-encoded bytes, got %q", i, lines[i])
		}
	}

	if _, err := run(t, &app{log: zap.NewNop()}, "keys", "--size", "8"); err == nil {
		t.Error("expected small key size to be rejected")
	}
}

func TestUserCreate_Validation(t *testing.T) {
	a := testApp(nil)
	tests := []struct {
		name string
		args []string
	}{
		{"bad role", []string{"user", "create", "--name", "A", "--email", "a@x.org", "--role", "janitor", "--password", "long-enough-pass"}},
		{"short password", []string{"user", "create", "--name", "A", "--email", "a@x.org", "--role", "nurse", "--password", "short"}},
		{"missing flag", []string{"user", "create", "--name", "A", "--role", "nurse", "--password", "long-enough-pass"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, a, tt.args...); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestUserCreateTokenDisable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := userstore.New(db).EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	a := testApp(db)

	out, err := run(t, a, "user", "create",
		"--name", "Nico Nurse", "--email", "Nico@Example.org", "--role", "Nurse", "--password", "a-long-password")
	if err != nil {
		t.Fatalf("user create failed: %v", err)
	}
	fields := strings.Split(strings.TrimSpace(out), "\t")
	if len(fields) != 3 || fields[1] != "nico@example.org" || fields[2] != "nurse" {
		t.Fatalf("unexpected output %q", out)
	}
	userID := fields[0]

	if _, err := run(t, a, "user", "create",
		"--name", "Dup", "--email", "nico@example.org", "--role", "staff", "--password", "a-long-password"); err == nil {
		t.Error("expected duplicate email to fail")
	}

	out, err = run(t, a, "token", "--user", userID, "--ttl", "2h")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	tokens, err := auth.NewTokens(testSecret, "recoveryhub")
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	claims, err := tokens.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.Subject != userID || claims.Role != "nurse" {
		t.Errorf("claims = sub %q role %q", claims.Subject, claims.Role)
	}
	if d := time.Until(claims.ExpiresAt.Time); d < time.Hour || d > 2*time.Hour {
		t.Errorf("unexpected expiry in %s", d)
	}

	for _, ev := range []string{audit.EventUserCreated, audit.EventTokenIssued} {
		n, err := db.Collection("audit_events").CountDocuments(ctx, bson.M{"event_type": ev})
		if err != nil {
			t.Fatalf("count %s: %v", ev, err)
		}
		if n != 1 {
			t.Errorf("expected one %s event, got %d", ev, n)
		}
	}

	if _, err := run(t, a, "user", "disable", "--email", "NICO@example.org"); err != nil {
		t.Fatalf("user disable failed: %v", err)
	}
	var u models.User
	if err := db.Collection("users").FindOne(ctx, bson.M{"email": "nico@example.org"}).Decode(&u); err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if u.Status != models.UserStatusDisabled {
		t.Errorf("status = %q", u.Status)
	}

	if _, err := run(t, a, "token", "--user", userID); err == nil {
		t.Error("expected token for a disabled user to be refused")
	}
}

func TestToken_Validation(t *testing.T) {
	a := testApp(nil)
	if _, err := run(t, a, "token", "--user", "nope"); err == nil {
		t.Error("expected bad id to fail")
	}
	if _, err := run(t, a, "token", "--user", "507f1f77bcf86cd799439011", "--ttl", "0s"); err == nil {
		t.Error("expected zero ttl to fail")
	}

	weak := testApp(nil)
	weak.settings.JWTSecret = "short"
	if _, err := run(t, weak, "token", "--user", "507f1f77bcf86cd799439011"); err == nil {
		t.Error("expected weak secret to fail")
	}
}

func TestMigrate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	out, err := run(t, testApp(db), "migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "schema up to date") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("RECOVERYHUB_MONGO_DATABASE", "from_env")
	t.Setenv("RECOVERYHUB_BOARD_STORE", "postgres")

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.MongoDatabase != "from_env" || s.BoardStore != "postgres" {
		t.Errorf("settings = %+v", s)
	}
	if s.JWTIssuer != "recoveryhub" {
		t.Errorf("defaults not applied: %+v", s)
	}

	if _, err := LoadSettings("does-not-exist.env"); err == nil {
		t.Error("expected a missing explicit env file to fail")
	}
}
