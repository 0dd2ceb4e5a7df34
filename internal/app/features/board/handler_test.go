package board_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/dalemusser/recoveryhub/internal/app/features/board"
	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	poststore "github.com/dalemusser/recoveryhub/internal/app/store/posts"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/noteboard"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/dalemusser/recoveryhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type env struct {
	h        *board.Handler
	fixtures *testutil.Fixtures
	ctx      context.Context
}

func newEnv(t *testing.T) env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)

	posts := poststore.New(db, zap.NewNop())
	if err := posts.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	svc := noteboard.New(posts, userstore.New(db), nil, zap.NewNop())
	h := board.NewHandler(svc, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())
	return env{h: h, fixtures: testutil.NewFixtures(t, db), ctx: ctx}
}

func (e env) createPost(t *testing.T, author testutil.TestUser, in noteboard.PostInput) noteboard.PostView {
	t.Helper()
	req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/board/posts", in), author)
	rec := testutil.NewRecorder()
	e.h.CreatePost(rec, req)
	rec.AssertStatus(t, http.StatusCreated)

	var view noteboard.PostView
	rec.DecodeJSON(t, &view)
	return view
}

func TestListPosts_Unauthenticated(t *testing.T) {
	h := board.NewHandler(nil, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())
	rec := testutil.NewRecorder()
	h.ListPosts(rec, testutil.NewRequest(http.MethodGet, "/board/posts"))
	rec.AssertStatus(t, http.StatusUnauthorized)
	rec.AssertContains(t, `"unauthorized"`)
}

func TestGetPost_MalformedIDIsNotFound(t *testing.T) {
	h := board.NewHandler(nil, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())
	req := testutil.NewAuthenticatedRequest(http.MethodGet, "/board/posts/nope", testutil.StaffUser())
	req = testutil.WithChiURLParam(req, "id", "nope")
	rec := testutil.NewRecorder()
	h.GetPost(rec, req)
	rec.AssertStatus(t, http.StatusNotFound)
	rec.AssertContains(t, `"post_id":"nope"`)
}

func TestCreatePost_BadJSON(t *testing.T) {
	h := board.NewHandler(nil, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())
	req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/board/posts", `{"title":`), testutil.StaffUser())
	rec := testutil.NewRecorder()
	h.CreatePost(rec, req)
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestCreatePost_Validation(t *testing.T) {
	e := newEnv(t)
	author := testutil.AsTestUser(e.fixtures.CreateUser(e.ctx, "Casey Counselor", "casey@test.com", models.RoleCounselor))

	tests := []struct {
		name  string
		in    noteboard.PostInput
		field string
	}{
		{"empty title", noteboard.PostInput{Body: "hello"}, "title"},
		{"unknown mode", noteboard.PostInput{Title: "t", Body: "b", Visibility: "friends"}, "visibility"},
		{"no roles", noteboard.PostInput{Title: "t", Body: "b", Visibility: "role_based"}, "roles"},
		{"bad role", noteboard.PostInput{Title: "t", Body: "b", Visibility: "role_based", Roles: []string{"janitor"}}, "roles"},
		{"unknown user", noteboard.PostInput{Title: "t", Body: "b", Visibility: "user_specific", Users: []string{primitive.NewObjectID().Hex()}}, "users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/board/posts", tt.in), author)
			rec := testutil.NewRecorder()
			e.h.CreatePost(rec, req)
			rec.AssertStatus(t, http.StatusBadRequest)

			var resp uierrors.Response
			rec.DecodeJSON(t, &resp)
			if resp.Error != uierrors.CodeValidation || resp.Details["field"] != tt.field {
				t.Errorf("unexpected body: %+v", resp)
			}
		})
	}
}

func TestBoard_RoleBasedFlow(t *testing.T) {
	e := newEnv(t)
	author := testutil.AsTestUser(e.fixtures.CreateUser(e.ctx, "Casey Counselor", "casey@test.com", models.RoleCounselor))
	nurse := testutil.AsTestUser(e.fixtures.CreateUser(e.ctx, "Nia Nurse", "nia@test.com", models.RoleNurse))
	staff := testutil.AsTestUser(e.fixtures.CreateUser(e.ctx, "Sam Staff", "sam@test.com", models.RoleStaff))

	post := e.createPost(t, author, noteboard.PostInput{
		Title:      "Medication change",
		Body:       "Dose moves to **evening**.",
		Visibility: "role_based",
		Roles:      []string{"nurse"},
	})
	if post.AuthorName != "Casey Counselor" || !post.CanEdit {
		t.Errorf("author view = %+v", post)
	}

	get := func(u testutil.TestUser) *testutil.ResponseRecorder {
		req := testutil.NewAuthenticatedRequest(http.MethodGet, "/board/posts/"+post.ID.Hex(), u)
		req = testutil.WithChiURLParam(req, "id", post.ID.Hex())
		rec := testutil.NewRecorder()
		e.h.GetPost(rec, req)
		return rec
	}

	get(nurse).AssertStatus(t, http.StatusOK)
	// Unreadable posts are hidden rather than refused.
	get(staff).AssertStatus(t, http.StatusNotFound)

	list := func(u testutil.TestUser) int {
		rec := testutil.NewRecorder()
		e.h.ListPosts(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/board/posts", u))
		rec.AssertStatus(t, http.StatusOK)
		var body struct {
			Posts []noteboard.PostView `json:"posts"`
		}
		rec.DecodeJSON(t, &body)
		return len(body.Posts)
	}
	if n := list(nurse); n != 1 {
		t.Errorf("nurse sees %d posts, want 1", n)
	}
	if n := list(staff); n != 0 {
		t.Errorf("staff sees %d posts, want 0", n)
	}

	// Only the author or an admin may edit.
	req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPut, "/board/posts/"+post.ID.Hex(), noteboard.PostInput{Title: "x", Body: "y"}), nurse)
	req = testutil.WithChiURLParam(req, "id", post.ID.Hex())
	rec := testutil.NewRecorder()
	e.h.UpdatePost(rec, req)
	rec.AssertStatus(t, http.StatusForbidden)

	req = testutil.WithChiURLParam(testutil.NewAuthenticatedRequest(http.MethodDelete, "/board/posts/"+post.ID.Hex(), author), "id", post.ID.Hex())
	rec = testutil.NewRecorder()
	e.h.DeletePost(rec, req)
	rec.AssertStatus(t, http.StatusNoContent)

	get(author).AssertStatus(t, http.StatusNotFound)
}

func TestCreateReply_Capacity(t *testing.T) {
	e := newEnv(t)
	author := testutil.AsTestUser(e.fixtures.CreateUser(e.ctx, "Tess Therapist", "tess@test.com", models.RoleTherapist))
	post := e.createPost(t, author, noteboard.PostInput{Title: "Open thread", Body: "Thoughts?"})

	reply := func() *testutil.ResponseRecorder {
		req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/board/posts/"+post.ID.Hex()+"/replies", map[string]string{"body": "ok"}), author)
		req = testutil.WithChiURLParam(req, "id", post.ID.Hex())
		rec := testutil.NewRecorder()
		e.h.CreateReply(rec, req)
		return rec
	}

	for i := 0; i < noteboard.MaxReplies; i++ {
		reply().AssertStatus(t, http.StatusCreated)
	}

	rec := reply()
	rec.AssertStatus(t, http.StatusConflict)
	var resp uierrors.Response
	rec.DecodeJSON(t, &resp)
	if resp.Error != uierrors.CodeCapacity || resp.Count == nil || *resp.Count != noteboard.MaxReplies {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestReplies_OwnershipAndMissing(t *testing.T) {
	e := newEnv(t)
	author := testutil.AsTestUser(e.fixtures.CreateUser(e.ctx, "Tess Therapist", "tess@test.com", models.RoleTherapist))
	other := testutil.AsTestUser(e.fixtures.CreateUser(e.ctx, "Sam Staff", "sam@test.com", models.RoleStaff))
	admin := testutil.AsTestUser(e.fixtures.CreateAdmin(e.ctx, "Ada Admin", "ada@test.com"))
	post := e.createPost(t, author, noteboard.PostInput{Title: "Open thread", Body: "Thoughts?"})

	req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/", map[string]string{"body": "first"}), author)
	rec := testutil.NewRecorder()
	e.h.CreateReply(rec, testutil.WithChiURLParam(req, "id", post.ID.Hex()))
	rec.AssertStatus(t, http.StatusCreated)
	var created noteboard.ReplyView
	rec.DecodeJSON(t, &created)

	update := func(u testutil.TestUser, id string) *testutil.ResponseRecorder {
		req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPut, "/", map[string]string{"body": "edited"}), u)
		rec := testutil.NewRecorder()
		e.h.UpdateReply(rec, testutil.WithChiURLParam(req, "id", id))
		return rec
	}
	update(other, created.ID.Hex()).AssertStatus(t, http.StatusForbidden)
	update(admin, created.ID.Hex()).AssertStatus(t, http.StatusOK)
	update(author, primitive.NewObjectID().Hex()).AssertStatus(t, http.StatusNotFound)

	del := testutil.WithChiURLParam(testutil.NewAuthenticatedRequest(http.MethodDelete, "/", author), "id", created.ID.Hex())
	rec = testutil.NewRecorder()
	e.h.DeleteReply(rec, del)
	rec.AssertStatus(t, http.StatusNoContent)
}
