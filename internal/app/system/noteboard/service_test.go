package noteboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/policy/postpolicy"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type board struct {
	svc   *Service
	store *memStore
	dir   *memDirectory
	audit *recordingSink

	counselor models.Identity // A
	nurse     models.Identity // B
	staff     models.Identity // C
	admin     models.Identity // D
}

func newBoard(t *testing.T) *board {
	t.Helper()

	b := &board{
		store:     newMemStore(),
		dir:       &memDirectory{users: map[primitive.ObjectID]models.User{}},
		audit:     &recordingSink{},
		counselor: models.Identity{ID: primitive.NewObjectID(), Role: models.RoleCounselor},
		nurse:     models.Identity{ID: primitive.NewObjectID(), Role: models.RoleNurse},
		staff:     models.Identity{ID: primitive.NewObjectID(), Role: models.RoleStaff},
		admin:     models.Identity{ID: primitive.NewObjectID(), Role: models.RoleAdmin},
	}
	for name, id := range map[string]models.Identity{
		"Alex Counselor": b.counselor,
		"Blair Nurse":    b.nurse,
		"Casey Staff":    b.staff,
		"Dana Admin":     b.admin,
	} {
		b.dir.users[id.ID] = models.User{ID: id.ID, FullName: name, Role: id.Role}
	}

	b.svc = New(b.store, b.dir, b.audit, zap.NewNop())
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b.svc.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return b
}

func (b *board) post(t *testing.T, actor models.Identity, in PostInput) PostView {
	t.Helper()
	if in.Title == "" {
		in.Title = "Shift note"
	}
	if in.Body == "" {
		in.Body = "Group moved to room 4."
	}
	v, err := b.svc.CreatePost(context.Background(), actor, in)
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return v
}

func listedIDs(views []PostView) []primitive.ObjectID {
	out := make([]primitive.ObjectID, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func findView(views []PostView, id primitive.ObjectID) (PostView, bool) {
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return PostView{}, false
}

func TestScenario_RoleBasedNursePost(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()

	p := b.post(t, b.counselor, PostInput{Visibility: "role_based", Roles: []string{"nurse"}})

	nurseView, err := b.svc.ListPosts(ctx, b.nurse)
	if err != nil {
		t.Fatalf("ListPosts(nurse): %v", err)
	}
	got, ok := findView(nurseView, p.ID)
	if !ok {
		t.Fatal("nurse should see the post")
	}
	if got.VisibilityDetails.AdminOverride {
		t.Error("nurse is not an admin override")
	}
	if got.VisibilityDetails.Reason != postpolicy.ReasonRoleGrant {
		t.Errorf("reason = %q, want role_grant", got.VisibilityDetails.Reason)
	}
	if got.VisibilityDetails.Description != "Visible to: Nurse" {
		t.Errorf("description = %q", got.VisibilityDetails.Description)
	}

	staffView, err := b.svc.ListPosts(ctx, b.staff)
	if err != nil {
		t.Fatalf("ListPosts(staff): %v", err)
	}
	if _, ok := findView(staffView, p.ID); ok {
		t.Error("staff must not see a nurse-only post")
	}

	adminView, err := b.svc.ListPosts(ctx, b.admin)
	if err != nil {
		t.Fatalf("ListPosts(admin): %v", err)
	}
	got, ok = findView(adminView, p.ID)
	if !ok {
		t.Fatal("admin should see the post")
	}
	if !got.VisibilityDetails.AdminOverride {
		t.Error("admin view should be marked as an override")
	}
	if !got.CanEdit || !got.CanDelete {
		t.Error("admin should be able to edit and delete")
	}

	_, err = b.svc.CreateReply(ctx, b.staff, p.ID, "Can I join?")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("staff reply: got %v, want ErrForbidden", err)
	}

	r, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "On it.")
	if err != nil {
		t.Fatalf("nurse reply: %v", err)
	}
	if r.AuthorName != "Blair Nurse" {
		t.Errorf("reply author name = %q", r.AuthorName)
	}
}

func TestCreatePost_Validation(t *testing.T) {
	b := newBoard(t)
	unknown := primitive.NewObjectID()

	tests := []struct {
		name  string
		in    PostInput
		field string
	}{
		{"blank title", PostInput{Title: "   ", Body: "x"}, "title"},
		{"blank body", PostInput{Title: "t", Body: " \n "}, "body"},
		{"unknown mode", PostInput{Title: "t", Body: "x", Visibility: "friends"}, "visibility"},
		{"role_based without roles", PostInput{Title: "t", Body: "x", Visibility: "role_based"}, "roles"},
		{"role_based unknown role", PostInput{Title: "t", Body: "x", Visibility: "role_based", Roles: []string{"nurse", "janitor"}}, "roles"},
		{"user_specific without users", PostInput{Title: "t", Body: "x", Visibility: "user_specific"}, "users"},
		{"user_specific malformed id", PostInput{Title: "t", Body: "x", Visibility: "user_specific", Users: []string{"nope"}}, "users"},
		{"user_specific unknown user", PostInput{Title: "t", Body: "x", Visibility: "user_specific", Users: []string{unknown.Hex()}}, "users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.svc.CreatePost(context.Background(), b.counselor, tt.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Metadata["field"] != tt.field {
				t.Errorf("field = %q, want %q", e.Metadata["field"], tt.field)
			}
		})
	}

	if len(b.store.posts) != 0 {
		t.Errorf("invalid input stored %d posts", len(b.store.posts))
	}
	if len(b.audit.entries) != 0 {
		t.Errorf("invalid input audited %d events", len(b.audit.entries))
	}
}

func TestCreatePost_UnknownUserListed(t *testing.T) {
	b := newBoard(t)
	unknown := primitive.NewObjectID()

	_, err := b.svc.CreatePost(context.Background(), b.counselor, PostInput{
		Title: "t", Body: "x", Visibility: "user_specific",
		Users: []string{b.nurse.ID.Hex(), unknown.Hex()},
	})
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeValidation {
		t.Fatalf("got %v, want validation error", err)
	}
	if e.Metadata["users"] != unknown.Hex() {
		t.Errorf("missing users = %q, want %q", e.Metadata["users"], unknown.Hex())
	}
}

func TestCreatePost_DropsIrrelevantGrants(t *testing.T) {
	b := newBoard(t)

	p := b.post(t, b.counselor, PostInput{
		Visibility: "public",
		Roles:      []string{"nurse"},
		Users:      []string{b.nurse.ID.Hex()},
	})
	if g := b.store.grantsFor(p.ID); !g.IsEmpty() {
		t.Errorf("public post stored grants %v", g)
	}

	p = b.post(t, b.counselor, PostInput{
		Visibility: "role_based",
		Roles:      []string{"nurse", "Nurse", "therapist"},
		Users:      []string{b.nurse.ID.Hex()},
	})
	g := b.store.grantsFor(p.ID)
	if len(g.Users) != 0 {
		t.Errorf("role_based post stored user grants %v", g.Users)
	}
	if len(g.Roles) != 2 {
		t.Errorf("role grants = %v, want nurse and therapist once each", g.Roles)
	}
}

func TestCreatePost_EmptyModeIsPublic(t *testing.T) {
	b := newBoard(t)
	p := b.post(t, b.counselor, PostInput{})
	if p.Visibility != models.VisibilityPublic {
		t.Errorf("mode = %q, want public", p.Visibility)
	}
}

func TestCreatePost_AuditsAfterCommit(t *testing.T) {
	b := newBoard(t)
	p := b.post(t, b.counselor, PostInput{Visibility: "role_based", Roles: []string{"therapist", "nurse"}})

	e := b.audit.last()
	if e.event != EventPostCreated || e.actor != b.counselor.ID {
		t.Fatalf("audit = %+v", e)
	}
	if e.payload["post_id"] != p.ID.Hex() || e.payload["grants"] != "roles=nurse,therapist" {
		t.Errorf("payload = %v", e.payload)
	}
}

func TestCreatePost_StorageFailure(t *testing.T) {
	b := newBoard(t)
	b.store.failOn = "posts.insert"

	_, err := b.svc.CreatePost(context.Background(), b.counselor, PostInput{Title: "t", Body: "x"})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("got %v, want ErrStorage", err)
	}
	if !errors.Is(err, errInjected) {
		t.Error("cause should stay reachable through errors.Is")
	}
	if len(b.audit.entries) != 0 {
		t.Error("failed write must not be audited")
	}
}

func TestCreatePost_RequiresIdentity(t *testing.T) {
	b := newBoard(t)
	_, err := b.svc.CreatePost(context.Background(), models.Identity{}, PostInput{Title: "t", Body: "x"})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
}

func TestUpdatePost_ReplacesGrantsWholesale(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()

	p := b.post(t, b.counselor, PostInput{Visibility: "role_based", Roles: []string{"nurse", "therapist"}})

	v, err := b.svc.UpdatePost(ctx, b.counselor, p.ID, PostInput{
		Title:      "Updated",
		Body:       "New body",
		Visibility: "user_specific",
		Roles:      []string{"nurse"},
		Users:      []string{b.staff.ID.Hex()},
	})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}

	g := b.store.grantsFor(p.ID)
	if len(g.Roles) != 0 {
		t.Errorf("role grants survived mode change: %v", g.Roles)
	}
	if len(g.Users) != 1 || g.Users[0] != b.staff.ID {
		t.Errorf("user grants = %v, want only staff", g.Users)
	}
	if v.Title != "Updated" || v.Visibility != models.VisibilityUserSpecific {
		t.Errorf("view = %q/%q", v.Title, v.Visibility)
	}
	if !v.UpdatedAt.After(v.CreatedAt) {
		t.Error("updated_at should advance")
	}
	if len(v.VisibilityDetails.Users) != 1 || v.VisibilityDetails.Users[0].Name != "Casey Staff" {
		t.Errorf("visibility users = %+v", v.VisibilityDetails.Users)
	}

	e := b.audit.last()
	if e.event != EventPostUpdated {
		t.Fatalf("last event = %q", e.event)
	}
	want := map[string]string{
		"visibility_before": "role_based",
		"visibility_after":  "user_specific",
		"grants_before":     "roles=nurse,therapist",
		"grants_after":      "users=" + b.staff.ID.Hex(),
	}
	for k, w := range want {
		if e.payload[k] != w {
			t.Errorf("payload[%s] = %q, want %q", k, e.payload[k], w)
		}
	}

	// The nurse lost access; the granted staff member gained it.
	if _, err := b.svc.GetPost(ctx, b.nurse, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("nurse GetPost: got %v, want ErrNotFound", err)
	}
	if _, err := b.svc.GetPost(ctx, b.staff, p.ID); err != nil {
		t.Errorf("staff GetPost: %v", err)
	}
}

func TestUpdatePost_ToPublicClearsGrants(t *testing.T) {
	b := newBoard(t)
	p := b.post(t, b.counselor, PostInput{Visibility: "user_specific", Users: []string{b.nurse.ID.Hex()}})

	_, err := b.svc.UpdatePost(context.Background(), b.counselor, p.ID, PostInput{Title: "t", Body: "b", Visibility: "public"})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	if g := b.store.grantsFor(p.ID); !g.IsEmpty() {
		t.Errorf("grants after switch to public: %v", g)
	}
}

func TestUpdatePost_NotFound(t *testing.T) {
	b := newBoard(t)
	_, err := b.svc.UpdatePost(context.Background(), b.admin, primitive.NewObjectID(), PostInput{Title: "t", Body: "b"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUpdatePost_ForbiddenBeatsValidation(t *testing.T) {
	b := newBoard(t)
	p := b.post(t, b.counselor, PostInput{})

	_, err := b.svc.UpdatePost(context.Background(), b.nurse, p.ID, PostInput{})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
}

func TestUpdatePost_AdminMayEdit(t *testing.T) {
	b := newBoard(t)
	p := b.post(t, b.counselor, PostInput{Visibility: "private"})

	v, err := b.svc.UpdatePost(context.Background(), b.admin, p.ID, PostInput{Title: "Moderated", Body: "removed", Visibility: "private"})
	if err != nil {
		t.Fatalf("UpdatePost(admin): %v", err)
	}
	if v.AuthorID != b.counselor.ID {
		t.Error("editing must not change the author")
	}
}

func TestOwnershipGate_AllModes(t *testing.T) {
	modes := []PostInput{
		{Visibility: "public"},
		{Visibility: "role_based", Roles: []string{"staff"}},
		{Visibility: "user_specific"},
		{Visibility: "private"},
	}

	for _, in := range modes {
		t.Run(in.Visibility, func(t *testing.T) {
			b := newBoard(t)
			ctx := context.Background()
			if in.Visibility == "user_specific" {
				in.Users = []string{b.staff.ID.Hex()}
			}

			p := b.post(t, b.counselor, in)
			r, err := b.svc.CreateReply(ctx, b.counselor, p.ID, "author reply")
			if err != nil {
				t.Fatalf("CreateReply: %v", err)
			}

			checks := map[string]error{}
			_, checks["UpdatePost"] = b.svc.UpdatePost(ctx, b.staff, p.ID, PostInput{Title: "x", Body: "y"})
			checks["DeletePost"] = b.svc.DeletePost(ctx, b.staff, p.ID)
			_, checks["UpdateReply"] = b.svc.UpdateReply(ctx, b.staff, r.ID, "hijack")
			checks["DeleteReply"] = b.svc.DeleteReply(ctx, b.staff, r.ID)

			for op, err := range checks {
				if !errors.Is(err, ErrForbidden) {
					t.Errorf("%s: got %v, want ErrForbidden", op, err)
				}
			}
			if _, ok := b.store.posts[p.ID]; !ok {
				t.Error("post was removed by a non-owner")
			}
			if got := b.store.replies[r.ID].Body; got != "author reply" {
				t.Errorf("reply body = %q", got)
			}
		})
	}
}

func TestCreateReply_Cap(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	p := b.post(t, b.counselor, PostInput{})

	for i := 0; i < MaxReplies; i++ {
		if _, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "reply"); err != nil {
			t.Fatalf("reply %d: %v", i+1, err)
		}
	}

	_, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "one too many")
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("6th reply: got %v, want ErrCapacity", err)
	}
	var e *Error
	if errors.As(err, &e) && e.Count != MaxReplies {
		t.Errorf("Count = %d, want %d", e.Count, MaxReplies)
	}
	if n, _ := b.store.Replies().CountByPost(ctx, p.ID); n != MaxReplies {
		t.Errorf("stored replies = %d", n)
	}
}

func TestCreateReply_Errors(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	p := b.post(t, b.counselor, PostInput{})

	if _, err := b.svc.CreateReply(ctx, b.nurse, primitive.NewObjectID(), "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing post: got %v, want ErrNotFound", err)
	}
	if _, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("blank body: got %v, want ErrValidation", err)
	}
}

func TestUpdateAndDeleteReply(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	p := b.post(t, b.counselor, PostInput{Visibility: "role_based", Roles: []string{"nurse"}})
	r, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "first")
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}

	u, err := b.svc.UpdateReply(ctx, b.nurse, r.ID, "  edited  ")
	if err != nil {
		t.Fatalf("UpdateReply: %v", err)
	}
	if u.Body != "edited" {
		t.Errorf("body = %q", u.Body)
	}
	if b.audit.last().event != EventReplyUpdated {
		t.Errorf("last event = %q", b.audit.last().event)
	}

	if err := b.svc.DeleteReply(ctx, b.admin, r.ID); err != nil {
		t.Fatalf("DeleteReply(admin): %v", err)
	}
	if g := b.store.grantsFor(p.ID); len(g.Roles) != 1 {
		t.Errorf("deleting a reply touched grants: %v", g)
	}
	if err := b.svc.DeleteReply(ctx, b.admin, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	if _, err := b.svc.UpdateReply(ctx, b.nurse, r.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update deleted: got %v, want ErrNotFound", err)
	}
}

func TestDeletePost_Cascades(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()

	p := b.post(t, b.counselor, PostInput{Visibility: "role_based", Roles: []string{"nurse"}})
	keep := b.post(t, b.counselor, PostInput{})
	for i := 0; i < 3; i++ {
		if _, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "r"); err != nil {
			t.Fatalf("CreateReply: %v", err)
		}
	}
	if _, err := b.svc.CreateReply(ctx, b.nurse, keep.ID, "stays"); err != nil {
		t.Fatalf("CreateReply: %v", err)
	}

	if err := b.svc.DeletePost(ctx, b.counselor, p.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}

	for _, r := range b.store.replies {
		if r.PostID == p.ID {
			t.Errorf("orphan reply %s", r.ID.Hex())
		}
	}
	if g := b.store.grantsFor(p.ID); !g.IsEmpty() {
		t.Errorf("orphan grants %v", g)
	}
	if e := b.audit.last(); e.event != EventPostDeleted || e.payload["replies_removed"] != "3" {
		t.Errorf("audit = %+v", e)
	}

	views, err := b.svc.ListPosts(ctx, b.admin)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(views) != 1 || views[0].ID != keep.ID || len(views[0].Replies) != 1 {
		t.Errorf("list after delete = %+v", listedIDs(views))
	}

	if err := b.svc.DeletePost(ctx, b.counselor, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestDeletePost_FailureRollsBack(t *testing.T) {
	b := newBoard(t)
	p := b.post(t, b.counselor, PostInput{})
	b.store.failOn = "posts.delete"

	err := b.svc.DeletePost(context.Background(), b.counselor, p.ID)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("got %v, want ErrStorage", err)
	}
	if _, ok := b.store.posts[p.ID]; !ok {
		t.Error("post disappeared after failed delete")
	}
}

func TestListPosts_OrderAndIdempotence(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()

	first := b.post(t, b.counselor, PostInput{Title: "first"})
	second := b.post(t, b.nurse, PostInput{Title: "second"})
	third := b.post(t, b.staff, PostInput{Title: "third", Visibility: "private"})

	// Two posts with the same timestamp are ordered by id, newest id first.
	same := b.store.posts[second.ID].CreatedAt
	tie := b.store.posts[first.ID]
	tie.CreatedAt = same
	b.store.posts[first.ID] = tie

	one, err := b.svc.ListPosts(ctx, b.admin)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	two, err := b.svc.ListPosts(ctx, b.admin)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}

	ids1, ids2 := listedIDs(one), listedIDs(two)
	if len(ids1) != 3 || len(ids2) != 3 {
		t.Fatalf("lengths %d/%d", len(ids1), len(ids2))
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Fatalf("listing not stable at %d", i)
		}
	}
	if ids1[0] != third.ID {
		t.Errorf("newest post should come first")
	}
	if ids1[1] != second.ID || ids1[2] != first.ID {
		t.Errorf("tie not broken by id descending: %v", ids1)
	}
}

func TestListPosts_RepliesOldestFirst(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	p := b.post(t, b.counselor, PostInput{})
	for _, body := range []string{"one", "two", "three"} {
		if _, err := b.svc.CreateReply(ctx, b.nurse, p.ID, body); err != nil {
			t.Fatalf("CreateReply: %v", err)
		}
	}

	views, err := b.svc.ListPosts(ctx, b.nurse)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	var got []string
	for _, r := range views[0].Replies {
		got = append(got, r.Body)
	}
	if strings.Join(got, ",") != "one,two,three" {
		t.Errorf("reply order = %v", got)
	}
	if !views[0].Replies[0].CanEdit || views[0].CanEdit {
		t.Error("nurse owns the replies but not the post")
	}
}

func TestListPosts_BatchesLookups(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		p := b.post(t, b.counselor, PostInput{Visibility: "user_specific", Users: []string{b.nurse.ID.Hex()}})
		if _, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "ack"); err != nil {
			t.Fatalf("CreateReply: %v", err)
		}
	}
	b.store.calls = map[string]int{}
	b.dir.lookup = 0

	views, err := b.svc.ListPosts(ctx, b.nurse)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("got %d posts", len(views))
	}

	want := map[string]int{"posts.list": 1, "posts.grants": 1, "replies.listByPosts": 1}
	for op, n := range want {
		if b.store.calls[op] != n {
			t.Errorf("%s called %d times, want %d", op, b.store.calls[op], n)
		}
	}
	for _, op := range []string{"posts.find", "replies.listByPost", "replies.count"} {
		if b.store.calls[op] != 0 {
			t.Errorf("%s called per post (%d times)", op, b.store.calls[op])
		}
	}
	if b.dir.lookup != 1 {
		t.Errorf("directory lookups = %d, want 1", b.dir.lookup)
	}
}

func TestListPosts_Empty(t *testing.T) {
	b := newBoard(t)
	views, err := b.svc.ListPosts(context.Background(), b.nurse)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if views == nil || len(views) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", views)
	}
}

func TestGetPost_HidesUnreadable(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	p := b.post(t, b.counselor, PostInput{Visibility: "private"})

	if _, err := b.svc.GetPost(ctx, b.nurse, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	v, err := b.svc.GetPost(ctx, b.counselor, p.ID)
	if err != nil {
		t.Fatalf("author GetPost: %v", err)
	}
	if v.VisibilityDetails.Reason != postpolicy.ReasonAuthor || v.AuthorName != "Alex Counselor" {
		t.Errorf("view = %+v", v.VisibilityDetails)
	}
}

func TestPostView_RendersMarkdown(t *testing.T) {
	b := newBoard(t)
	p := b.post(t, b.counselor, PostInput{Body: "**bring** forms"})
	if !strings.Contains(p.BodyHTML, "<strong>bring</strong>") {
		t.Errorf("body_html = %q", p.BodyHTML)
	}
}

func TestCreatePost_KeepsMarkdownSource(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()

	for _, body := range []string{
		"if a<b then call",
		"5mg < 10mg & stable",
		"Call <b>now</b> & log it",
	} {
		t.Run(body, func(t *testing.T) {
			p := b.post(t, b.counselor, PostInput{Body: body})
			if p.Body != body {
				t.Errorf("view body = %q, want %q", p.Body, body)
			}
			got, err := b.svc.GetPost(ctx, b.counselor, p.ID)
			if err != nil {
				t.Fatalf("GetPost: %v", err)
			}
			if got.Body != body {
				t.Errorf("stored body = %q, want %q", got.Body, body)
			}
		})
	}
}

func TestPostView_SanitizesRenderedHTML(t *testing.T) {
	b := newBoard(t)
	body := "if a<b then call\n\n<b>Important</b><script>alert(1)</script>"
	p := b.post(t, b.counselor, PostInput{Body: body})

	if p.Body != body {
		t.Errorf("body = %q", p.Body)
	}
	for _, want := range []string{"a&lt;b then call", "<b>Important</b>"} {
		if !strings.Contains(p.BodyHTML, want) {
			t.Errorf("body_html %q missing %q", p.BodyHTML, want)
		}
	}
	if strings.Contains(p.BodyHTML, "<script") || strings.Contains(p.BodyHTML, "alert") {
		t.Errorf("body_html kept script: %q", p.BodyHTML)
	}
}

func TestCreateReply_ValidatesBeforeCap(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	p := b.post(t, b.counselor, PostInput{})
	for i := 0; i < MaxReplies; i++ {
		if _, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "reply"); err != nil {
			t.Fatalf("reply %d: %v", i+1, err)
		}
	}

	_, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "  ")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("blank reply on a full post: got %v, want ErrValidation", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Metadata["field"] != "body" {
		t.Errorf("error = %v, want field body", err)
	}
}

func TestCreateReply_ConcurrentLastSlot(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	p := b.post(t, b.counselor, PostInput{})
	for i := 0; i < MaxReplies-1; i++ {
		if _, err := b.svc.CreateReply(ctx, b.nurse, p.ID, "reply"); err != nil {
			t.Fatalf("reply %d: %v", i+1, err)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.svc.CreateReply(ctx, b.nurse, p.ID, "last slot")
		}(i)
	}
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCapacity):
			full++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Errorf("succeeded = %d, at capacity = %d; want 1 and 1", ok, full)
	}
	if n, _ := b.store.Replies().CountByPost(ctx, p.ID); n != MaxReplies {
		t.Errorf("stored replies = %d, want %d", n, MaxReplies)
	}
	if b.store.calls["posts.lock"] != MaxReplies+1 {
		t.Errorf("posts.lock calls = %d, want %d", b.store.calls["posts.lock"], MaxReplies+1)
	}
}
