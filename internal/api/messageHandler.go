package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"presence-hub/internal/chat"
	"presence-hub/internal/middleware"
	"presence-hub/internal/models"
	"presence-hub/internal/repository"
	"presence-hub/internal/types"
)

// Realtime is the hub's server-side push surface.
type Realtime interface {
	Deliver(env *types.Envelope) bool
	Notify(userID string, notification any) int
}

type MessageHandlers struct {
	log           *zap.Logger
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
	live          Realtime
	now           func() time.Time
}

func NewMessageHandlers(logger *zap.Logger, messages repository.MessageRepository, notifications repository.NotificationRepository, live Realtime) *MessageHandlers {
	return &MessageHandlers{
		log:           logger.Named("messages"),
		messages:      messages,
		notifications: notifications,
		live:          live,
		now:           time.Now,
	}
}

type sentMessage struct {
	*models.Message
	Delivered bool `json:"delivered"`
}

// Send persists a message, pushes it to the receiver if they are online and
// raises a message notification.
func (m *MessageHandlers) Send(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	var req types.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	env, err := chat.NewEnvelope(user.ID.String(), req.Receiver, req.Content, req.Type, m.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := repository.MessageFromEnvelope(env)
	if err != nil {
		http.Error(w, "Invalid receiver", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := m.messages.Save(ctx, msg); err != nil {
		m.log.Error("save message failed", zap.Error(err))
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	delivered := m.live.Deliver(env)
	m.notifyReceiver(ctx, user, msg)

	writeJSON(w, m.log, http.StatusCreated, sentMessage{Message: msg, Delivered: delivered})
}

func (m *MessageHandlers) notifyReceiver(ctx context.Context, sender *models.User, msg *models.Message) {
	preview := msg.Content
	if msg.Kind != models.KindText {
		preview = "Sent you a " + string(msg.Kind)
	}
	if utf8.RuneCountInString(preview) > models.MaxNotificationMessage {
		preview = string([]rune(preview)[:models.MaxNotificationMessage])
	}

	title := "New message from " + sender.Username
	if utf8.RuneCountInString(title) > models.MaxNotificationTitle {
		title = string([]rune(title)[:models.MaxNotificationTitle])
	}

	id := msg.ID
	n := &models.Notification{
		ID:          uuid.New(),
		RecipientID: msg.ReceiverID,
		SenderID:    sender.ID,
		Type:        models.NotifyMessage,
		Title:       title,
		Message:     preview,
		MessageID:   &id,
		CreatedAt:   msg.CreatedAt,
	}
	if err := m.notifications.Create(ctx, n); err != nil {
		m.log.Warn("create message notification failed", zap.String("message", msg.ID.String()), zap.Error(err))
		return
	}
	m.live.Notify(msg.ReceiverID.String(), n)
}

// Conversation pages backwards through the history with another user.
// ?before= takes an RFC 3339 timestamp.
func (m *MessageHandlers) Conversation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	other, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	before := m.now()
	if raw := r.URL.Query().Get("before"); raw != "" {
		if before, err = time.Parse(time.RFC3339, raw); err != nil {
			http.Error(w, "Invalid before timestamp", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	messages, err := m.messages.Conversation(ctx, user.ID, other, queryLimit(r, 50, 100), before)
	if err != nil {
		m.log.Error("load conversation failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	writeJSON(w, m.log, http.StatusOK, messages)
}

func (m *MessageHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	if err := m.messages.MarkRead(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		m.log.Error("mark message read failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *MessageHandlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	n, err := m.messages.UnreadCount(r.Context(), user.ID)
	if err != nil {
		m.log.Error("count unread failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, m.log, http.StatusOK, map[string]int{"count": n})
}
