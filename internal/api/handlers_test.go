package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presence-hub/internal/middleware"
	"presence-hub/internal/models"
	"presence-hub/internal/presence"
)

func asUser(r *http.Request, u *models.User) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), u))
}

func TestPresence_ListAndLocal(t *testing.T) {
	live := newFakeLive("bob", "alice")
	p := NewPresenceHandlers(zap.NewNop(), live, nil, "node-a")

	rec := httptest.NewRecorder()
	p.List(rec, httptest.NewRequest(http.MethodGet, "/api/presence", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":["alice","bob"],"count":2}`, rec.Body.String())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/presence/{userId}", p.Get)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/presence/alice", nil))
	assert.JSONEq(t, `{"userId":"alice","online":true,"node":"node-a"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/presence/carol", nil))
	assert.JSONEq(t, `{"userId":"carol","online":false}`, rec.Body.String())
}

func TestPresence_FallsBackToMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mirror := presence.NewRedisMirrorWithClient(zap.NewNop(), client, "node-b", time.Minute)
	t.Cleanup(func() { _ = mirror.Close() })
	require.NoError(t, mirror.MarkOnline(context.Background(), "dave", "conn-9"))

	p := NewPresenceHandlers(zap.NewNop(), newFakeLive(), mirror, "node-a")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/presence/{userId}", p.Get)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/presence/dave", nil))

	var body struct {
		Online bool   `json:"online"`
		Node   string `json:"node"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Online)
	assert.Equal(t, "node-b", body.Node)
}

func TestMessages_SendPersistsDeliversAndNotifies(t *testing.T) {
	sender := &models.User{ID: uuid.New(), Username: "alice"}
	receiver := uuid.New()
	messages, notifications := &fakeMessages{}, &fakeNotifications{}
	live := newFakeLive(receiver.String())
	h := NewMessageHandlers(zap.NewNop(), messages, notifications, live)

	body := `{"receiver":"` + receiver.String() + `","content":"hello there"}`
	rec := httptest.NewRecorder()
	h.Send(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body)), sender))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		ID        uuid.UUID `json:"id"`
		Type      string    `json:"type"`
		Delivered bool      `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Delivered)
	assert.Equal(t, "text", resp.Type)

	require.Len(t, messages.saved, 1)
	assert.Equal(t, resp.ID, messages.saved[0].ID)
	require.Len(t, live.delivered, 1)
	assert.Equal(t, sender.ID.String(), live.delivered[0].Sender)

	require.Len(t, notifications.saved, 1)
	n := notifications.saved[0]
	assert.Equal(t, models.NotifyMessage, n.Type)
	assert.Equal(t, "New message from alice", n.Title)
	require.NotNil(t, n.MessageID)
	assert.Equal(t, resp.ID, *n.MessageID)
	assert.Len(t, live.notified[receiver.String()], 1)
}

func TestMessages_SendValidation(t *testing.T) {
	sender := &models.User{ID: uuid.New(), Username: "alice"}
	h := NewMessageHandlers(zap.NewNop(), &fakeMessages{}, &fakeNotifications{}, newFakeLive())

	for name, body := range map[string]string{
		"bad json":      `{`,
		"bad receiver":  `{"receiver":"bob","content":"x"}`,
		"empty content": `{"receiver":"` + uuid.NewString() + `","content":""}`,
		"bad type":      `{"receiver":"` + uuid.NewString() + `","content":"x","type":"gif"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Send(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body)), sender))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestMessages_ConversationReadAndUnread(t *testing.T) {
	alice := &models.User{ID: uuid.New(), Username: "alice"}
	bob := &models.User{ID: uuid.New(), Username: "bob"}
	messages := &fakeMessages{}
	h := NewMessageHandlers(zap.NewNop(), messages, &fakeNotifications{}, newFakeLive())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		messages.saved = append(messages.saved, &models.Message{
			ID: uuid.New(), SenderID: alice.ID, ReceiverID: bob.ID,
			Content: "m", Kind: models.KindText, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/messages/conversation/{userId}", h.Conversation)
	mux.HandleFunc("PUT /api/messages/{id}/read", h.MarkRead)
	mux.HandleFunc("GET /api/messages/unread-count", h.UnreadCount)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/messages/conversation/"+alice.ID.String()+"?limit=2", nil), bob))
	require.Equal(t, http.StatusOK, rec.Code)
	var page []models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/messages/unread-count", nil), bob))
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/messages/"+messages.saved[0].ID.String()+"/read", nil), bob))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/messages/"+messages.saved[1].ID.String()+"/read", nil), alice))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/messages/conversation/nope", nil), bob))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifications_CreateListAndRead(t *testing.T) {
	alice := &models.User{ID: uuid.New(), Username: "alice"}
	bob := &models.User{ID: uuid.New(), Username: "bob"}
	store := &fakeNotifications{}
	live := newFakeLive(bob.ID.String())
	h := NewNotificationHandlers(zap.NewNop(), store, live)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/notifications", h.List)
	mux.HandleFunc("POST /api/notifications", h.Create)
	mux.HandleFunc("PUT /api/notifications/read-all", h.MarkAllRead)
	mux.HandleFunc("PUT /api/notifications/{id}/read", h.MarkRead)

	body := `{"recipient":"` + bob.ID.String() + `","type":"like","title":"New like","message":"alice liked your post"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/notifications", strings.NewReader(body)), alice))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, live.notified[bob.ID.String()], 1)

	second := `{"recipient":"` + bob.ID.String() + `","type":"comment","title":"Comment","message":"nice"}`
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/notifications", strings.NewReader(second)), alice))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/notifications/"+store.saved[0].ID.String()+"/read", nil), bob))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/notifications?unread=true", nil), bob))
	var unread []models.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unread))
	require.Len(t, unread, 1)
	assert.Equal(t, models.NotifyComment, unread[0].Type)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/notifications/read-all", nil), bob))
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/notifications", nil), alice))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestNotifications_CreateValidation(t *testing.T) {
	alice := &models.User{ID: uuid.New()}
	h := NewNotificationHandlers(zap.NewNop(), &fakeNotifications{}, newFakeLive())
	recipient := uuid.NewString()

	for name, body := range map[string]string{
		"bad recipient": `{"recipient":"x","type":"like","title":"t","message":"m"}`,
		"bad type":      `{"recipient":"` + recipient + `","type":"poke","title":"t","message":"m"}`,
		"long title":    `{"recipient":"` + recipient + `","type":"like","title":"` + strings.Repeat("t", 101) + `","message":"m"}`,
		"empty message": `{"recipient":"` + recipient + `","type":"like","title":"t","message":"  "}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/notifications", strings.NewReader(body)), alice))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
