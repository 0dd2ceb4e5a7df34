package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
)

type stubFetcher struct {
	users map[string]*auth.SessionUser
	calls int
}

func (f *stubFetcher) FetchUser(_ context.Context, id string) *auth.SessionUser {
	f.calls++
	return f.users[id]
}

// capture runs LoadSessionUser over req and returns the user the handler saw.
func capture(sm *auth.SessionManager, req *http.Request) (*auth.SessionUser, bool) {
	var got *auth.SessionUser
	var ok bool
	h := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = auth.CurrentUser(r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func signedInRequest(t *testing.T, sm *auth.SessionManager, u *auth.SessionUser) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := sm.SignIn(rec, httptest.NewRequest("POST", "/login", nil), u); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	req := httptest.NewRequest("GET", "/board/posts", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestNewSessionManager_EmptyKey(t *testing.T) {
	if _, err := auth.NewSessionManager("", "s", "", time.Hour, false, nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestSignIn_RoundTrip(t *testing.T) {
	sm := newTestSessionManager(t)
	want := &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Name: "Blair Nurse", Email: "blair@example.com", Role: "nurse"}

	got, ok := capture(sm, signedInRequest(t, sm, want))
	if !ok {
		t.Fatal("expected a user after sign-in")
	}
	if *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadSessionUser_FetcherRefreshesAndRejects(t *testing.T) {
	sm := newTestSessionManager(t)
	fetcher := &stubFetcher{users: map[string]*auth.SessionUser{
		"507f1f77bcf86cd799439011": {ID: "507f1f77bcf86cd799439011", Name: "Blair Nurse", Role: "clinical_director"},
	}}
	sm.SetUserFetcher(fetcher)

	req := signedInRequest(t, sm, &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Role: "nurse"})
	got, ok := capture(sm, req)
	if !ok || got.Role != "clinical_director" {
		t.Errorf("expected refreshed role, got %+v", got)
	}

	// Disabled or deleted users come back nil from the fetcher.
	delete(fetcher.users, "507f1f77bcf86cd799439011")
	if _, ok := capture(sm, req); ok {
		t.Error("expected no user once the fetcher rejects them")
	}
}

func TestLoadSessionUser_Bearer(t *testing.T) {
	sm := newTestSessionManager(t)
	tk, err := auth.NewTokens("test-jwt-secret-that-is-long-enough-0123", "recoveryhub-test")
	if err != nil {
		t.Fatal(err)
	}
	sm.SetTokens(tk)

	raw, _, err := tk.Issue("507f1f77bcf86cd799439011", "therapist", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/board/posts", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	got, ok := capture(sm, req)
	if !ok || got.ID != "507f1f77bcf86cd799439011" || got.Role != "therapist" {
		t.Errorf("bearer user = %+v, ok=%v", got, ok)
	}

	req = httptest.NewRequest("GET", "/board/posts", nil)
	req.Header.Set("Authorization", "Bearer nope")
	if _, ok := capture(sm, req); ok {
		t.Error("invalid bearer token must not authenticate")
	}
}

func TestLoadSessionUser_BearerWinsOverCookie(t *testing.T) {
	sm := newTestSessionManager(t)
	tk, _ := auth.NewTokens("test-jwt-secret-that-is-long-enough-0123", "")
	sm.SetTokens(tk)

	req := signedInRequest(t, sm, &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Role: "admin"})
	req.Header.Set("Authorization", "Bearer garbage")
	if _, ok := capture(sm, req); ok {
		t.Error("a bad bearer token must not fall back to the cookie")
	}
}

func TestSignOut_ClearsSession(t *testing.T) {
	sm := newTestSessionManager(t)
	req := signedInRequest(t, sm, &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Role: "staff"})

	rec := httptest.NewRecorder()
	if err := sm.SignOut(rec, req); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	after := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		after.AddCookie(c)
	}
	if _, ok := capture(sm, after); ok {
		t.Error("expected no user after sign-out")
	}
}

func TestSessionUser_Identity(t *testing.T) {
	tests := []struct {
		name string
		u    *auth.SessionUser
		ok   bool
		role models.Role
	}{
		{"valid", &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Role: "Nurse"}, true, models.RoleNurse},
		{"bad id", &auth.SessionUser{ID: "42", Role: "nurse"}, false, ""},
		{"bad role", &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Role: "member"}, false, ""},
		{"nil", nil, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := tt.u.Identity()
			if ok != tt.ok || id.Role != tt.role {
				t.Errorf("Identity() = (%+v, %v)", id, ok)
			}
		})
	}
}

func TestCurrentIdentity(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if _, ok := auth.CurrentIdentity(req); ok {
		t.Error("expected no identity")
	}
	req = withTestUser(req, "admin")
	id, ok := auth.CurrentIdentity(req)
	if !ok || !id.IsAdmin() {
		t.Errorf("CurrentIdentity = (%+v, %v)", id, ok)
	}
}
