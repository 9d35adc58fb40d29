package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"presence-hub/internal/models"
	"presence-hub/internal/repository"
	"presence-hub/internal/types"
)

type fakeUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, name string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Username == name })
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ID == id })
}

type fakeTokens struct {
	mu     sync.Mutex
	byHash map[string]*models.RefreshToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byHash: make(map[string]*models.RefreshToken)}
}

func (f *fakeTokens) SaveRefreshToken(_ context.Context, t *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[t.TokenHashed] = t
	return nil
}

func (f *fakeTokens) GetTokenByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[hash]
	if !ok || t.IsRevoked {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTokens) RevokeToken(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byHash {
		if t.ID == id && !t.IsRevoked {
			t.IsRevoked = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeTokens) RevokeAllUserTokens(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byHash {
		if t.UserID == userID {
			t.IsRevoked = true
		}
	}
	return nil
}

func (f *fakeTokens) DeleteExpiredTokens(context.Context) (int64, error) {
	return 0, nil
}

type fakeMessages struct {
	mu    sync.Mutex
	saved []*models.Message
}

func (f *fakeMessages) Save(_ context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, m)
	return nil
}

func (f *fakeMessages) Conversation(_ context.Context, a, b uuid.UUID, limit int, before time.Time) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.saved {
		pair := (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
		if pair && m.CreatedAt.Before(before) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, id, reader uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.saved {
		if m.ID == id && m.ReceiverID == reader {
			m.Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeMessages) UnreadCount(_ context.Context, user uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.saved {
		if m.ReceiverID == user && !m.Read {
			n++
		}
	}
	return n, nil
}

type fakeNotifications struct {
	mu    sync.Mutex
	saved []*models.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, n)
	return nil
}

func (f *fakeNotifications) ListForUser(_ context.Context, user uuid.UUID, limit int, unreadOnly bool) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Notification
	for _, n := range f.saved {
		if n.RecipientID == user && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, id, user uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.saved {
		if n.ID == id && n.RecipientID == user {
			n.Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, user uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, x := range f.saved {
		if x.RecipientID == user && !x.Read {
			x.Read = true
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) DeleteReadBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeLive struct {
	mu        sync.Mutex
	online    map[string]bool
	delivered []*types.Envelope
	notified  map[string][]any
}

func newFakeLive(online ...string) *fakeLive {
	f := &fakeLive{online: make(map[string]bool), notified: make(map[string][]any)}
	for _, u := range online {
		f.online[u] = true
	}
	return f
}

func (f *fakeLive) Deliver(env *types.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[env.Receiver] {
		return false
	}
	f.delivered = append(f.delivered, env)
	return true
}

func (f *fakeLive) Notify(userID string, n any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified[userID] = append(f.notified[userID], n)
	if f.online[userID] {
		return 1
	}
	return 0
}

func (f *fakeLive) IsOnline(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func (f *fakeLive) Online() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.online))
	for u := range f.online {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
