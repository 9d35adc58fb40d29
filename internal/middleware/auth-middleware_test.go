package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presence-hub/internal/auth"
	"presence-hub/internal/models"
	"presence-hub/internal/repository"
)

type fakeUsers struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUsers) GetUserByUsername(context.Context, string) (*models.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func setupAuth(t *testing.T) (http.Handler, *auth.TokenIssuer, *models.User, *fakeUsers) {
	t.Helper()
	issuer := auth.NewTokenIssuer("test-secret", time.Minute)
	user := &models.User{ID: uuid.New(), Username: "alice"}
	users := &fakeUsers{users: map[uuid.UUID]*models.User{user.ID: user}}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := CurrentUser(r.Context())
		require.True(t, ok)
		w.Write([]byte(u.Username))
	})
	return Authenticate(zap.NewNop(), issuer, users)(next), issuer, user, users
}

func TestAuthenticate_AcceptsCookieAndBearer(t *testing.T) {
	h, issuer, user, _ := setupAuth(t)
	token, err := issuer.GenerateToken(user.ID, "", "192.0.2.1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_Rejections(t *testing.T) {
	h, issuer, user, users := setupAuth(t)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("fingerprint from another client", func(t *testing.T) {
		token, _ := issuer.GenerateToken(user.ID, "", "203.0.113.9")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		token, _ := issuer.GenerateToken(uuid.New(), "", "192.0.2.1")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("banned user", func(t *testing.T) {
		banned := &models.User{ID: uuid.New(), IsBanned: true}
		users.users[banned.ID] = banned
		token, _ := issuer.GenerateToken(banned.ID, "", "192.0.2.1")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", ClientIP(req))
}
