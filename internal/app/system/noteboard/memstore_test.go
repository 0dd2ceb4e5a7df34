package noteboard

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory Store. Atomic calls run one at a time; each
// snapshots state and restores it when fn fails.
type memStore struct {
	txMu       sync.Mutex
	mu         sync.Mutex
	posts      map[primitive.ObjectID]models.Post
	roleGrants map[primitive.ObjectID][]models.Role
	userGrants map[primitive.ObjectID][]primitive.ObjectID
	replies    map[primitive.ObjectID]models.Reply

	calls  map[string]int
	failOn string
}

func newMemStore() *memStore {
	return &memStore{
		posts:      map[primitive.ObjectID]models.Post{},
		roleGrants: map[primitive.ObjectID][]models.Role{},
		userGrants: map[primitive.ObjectID][]primitive.ObjectID{},
		replies:    map[primitive.ObjectID]models.Reply{},
		calls:      map[string]int{},
	}
}

func (m *memStore) enter(op string) error {
	m.calls[op]++
	if m.failOn == op {
		return errInjected
	}
	return nil
}

func (m *memStore) Posts() PostStore    { return memPosts{m} }
func (m *memStore) Replies() ReplyStore { return memReplies{m} }

func (m *memStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	posts      map[primitive.ObjectID]models.Post
	roleGrants map[primitive.ObjectID][]models.Role
	userGrants map[primitive.ObjectID][]primitive.ObjectID
	replies    map[primitive.ObjectID]models.Reply
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		posts:      map[primitive.ObjectID]models.Post{},
		roleGrants: map[primitive.ObjectID][]models.Role{},
		userGrants: map[primitive.ObjectID][]primitive.ObjectID{},
		replies:    map[primitive.ObjectID]models.Reply{},
	}
	for k, v := range m.posts {
		s.posts[k] = v
	}
	for k, v := range m.roleGrants {
		s.roleGrants[k] = append([]models.Role(nil), v...)
	}
	for k, v := range m.userGrants {
		s.userGrants[k] = append([]primitive.ObjectID(nil), v...)
	}
	for k, v := range m.replies {
		s.replies[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.posts, m.roleGrants, m.userGrants, m.replies = s.posts, s.roleGrants, s.userGrants, s.replies
}

func (m *memStore) grantsFor(id primitive.ObjectID) models.Grants {
	return models.Grants{
		Roles: append([]models.Role(nil), m.roleGrants[id]...),
		Users: append([]primitive.ObjectID(nil), m.userGrants[id]...),
	}
}

func (m *memStore) setGrants(id primitive.ObjectID, g models.Grants) {
	delete(m.roleGrants, id)
	delete(m.userGrants, id)
	if len(g.Roles) > 0 {
		m.roleGrants[id] = append([]models.Role(nil), g.Roles...)
	}
	if len(g.Users) > 0 {
		m.userGrants[id] = append([]primitive.ObjectID(nil), g.Users...)
	}
}

type memPosts struct{ m *memStore }

func (s memPosts) Find(_ context.Context, id primitive.ObjectID) (models.Post, models.Grants, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("posts.find"); err != nil {
		return models.Post{}, models.Grants{}, err
	}
	p, ok := s.m.posts[id]
	if !ok {
		return models.Post{}, models.Grants{}, ErrNoRecord
	}
	return p, s.m.grantsFor(id), nil
}

// Lock only checks the post exists; Atomic already runs one call at a time.
func (s memPosts) Lock(_ context.Context, id primitive.ObjectID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("posts.lock"); err != nil {
		return err
	}
	if _, ok := s.m.posts[id]; !ok {
		return ErrNoRecord
	}
	return nil
}

func (s memPosts) List(context.Context) ([]models.Post, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("posts.list"); err != nil {
		return nil, err
	}
	out := make([]models.Post, 0, len(s.m.posts))
	for _, p := range s.m.posts {
		out = append(out, p)
	}
	return out, nil
}

func (s memPosts) Grants(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Grants, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("posts.grants"); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]models.Grants, len(ids))
	for _, id := range ids {
		if g := s.m.grantsFor(id); !g.IsEmpty() {
			out[id] = g
		}
	}
	return out, nil
}

func (s memPosts) Insert(_ context.Context, p models.Post, g models.Grants) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("posts.insert"); err != nil {
		return err
	}
	s.m.posts[p.ID] = p
	s.m.setGrants(p.ID, g)
	return nil
}

func (s memPosts) Update(_ context.Context, p models.Post, g models.Grants) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("posts.update"); err != nil {
		return err
	}
	if _, ok := s.m.posts[p.ID]; !ok {
		return ErrNoRecord
	}
	s.m.posts[p.ID] = p
	s.m.setGrants(p.ID, g)
	return nil
}

func (s memPosts) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("posts.delete"); err != nil {
		return 0, err
	}
	if _, ok := s.m.posts[id]; !ok {
		return 0, ErrNoRecord
	}
	var n int64
	for rid, r := range s.m.replies {
		if r.PostID == id {
			delete(s.m.replies, rid)
			n++
		}
	}
	s.m.setGrants(id, models.Grants{})
	delete(s.m.posts, id)
	return n, nil
}

type memReplies struct{ m *memStore }

func (s memReplies) Find(_ context.Context, id primitive.ObjectID) (models.Reply, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("replies.find"); err != nil {
		return models.Reply{}, err
	}
	r, ok := s.m.replies[id]
	if !ok {
		return models.Reply{}, ErrNoRecord
	}
	return r, nil
}

func (s memReplies) byPost(postID primitive.ObjectID) []models.Reply {
	var out []models.Reply
	for _, r := range s.m.replies {
		if r.PostID == postID {
			out = append(out, r)
		}
	}
	// Reverse of display order so the service has to sort.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s memReplies) ListByPost(_ context.Context, postID primitive.ObjectID) ([]models.Reply, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("replies.listByPost"); err != nil {
		return nil, err
	}
	return s.byPost(postID), nil
}

func (s memReplies) ListByPosts(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID][]models.Reply, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("replies.listByPosts"); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID][]models.Reply, len(ids))
	for _, id := range ids {
		if rs := s.byPost(id); len(rs) > 0 {
			out[id] = rs
		}
	}
	return out, nil
}

func (s memReplies) Insert(_ context.Context, r models.Reply) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("replies.insert"); err != nil {
		return err
	}
	s.m.replies[r.ID] = r
	return nil
}

func (s memReplies) Update(_ context.Context, r models.Reply) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("replies.update"); err != nil {
		return err
	}
	if _, ok := s.m.replies[r.ID]; !ok {
		return ErrNoRecord
	}
	s.m.replies[r.ID] = r
	return nil
}

func (s memReplies) Delete(_ context.Context, id primitive.ObjectID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("replies.delete"); err != nil {
		return err
	}
	if _, ok := s.m.replies[id]; !ok {
		return ErrNoRecord
	}
	delete(s.m.replies, id)
	return nil
}

func (s memReplies) CountByPost(_ context.Context, postID primitive.ObjectID) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("replies.count"); err != nil {
		return 0, err
	}
	return int64(len(s.byPost(postID))), nil
}

// memDirectory resolves users from a fixed map.
type memDirectory struct {
	mu     sync.Mutex
	users  map[primitive.ObjectID]models.User
	lookup int
}

func (d *memDirectory) Lookup(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookup++
	out := make(map[primitive.ObjectID]models.User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type auditEntry struct {
	event   string
	actor   primitive.ObjectID
	payload map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (r *recordingSink) Record(_ context.Context, event string, actor primitive.ObjectID, payload map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, auditEntry{event, actor, payload})
}

func (r *recordingSink) last() auditEntry {
	if len(r.entries) == 0 {
		return auditEntry{}
	}
	return r.entries[len(r.entries)-1]
}
