package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"presence-hub/internal/middleware"
	"presence-hub/internal/models"
	"presence-hub/internal/repository"
	"presence-hub/internal/types"
)

type NotificationHandlers struct {
	log           *zap.Logger
	notifications repository.NotificationRepository
	live          Realtime
}

func NewNotificationHandlers(logger *zap.Logger, notifications repository.NotificationRepository, live Realtime) *NotificationHandlers {
	return &NotificationHandlers{log: logger.Named("notifications"), notifications: notifications, live: live}
}

// List returns the caller's notifications, newest first. ?unread=true
// restricts to unread ones.
func (n *NotificationHandlers) List(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	list, err := n.notifications.ListForUser(r.Context(), user.ID, queryLimit(r, 20, 100), r.URL.Query().Get("unread") == "true")
	if err != nil {
		n.log.Error("list notifications failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, n.log, http.StatusOK, list)
}

func (n *NotificationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid notification id", http.StatusBadRequest)
		return
	}

	if err := n.notifications.MarkRead(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		n.log.Error("mark notification read failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *NotificationHandlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	updated, err := n.notifications.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		n.log.Error("mark all notifications read failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, n.log, http.StatusOK, map[string]int64{"updated": updated})
}

func validateNotification(req *types.CreateNotificationRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	switch {
	case !req.Type.Valid():
		return errors.New("unsupported notification type")
	case req.Title == "" || utf8.RuneCountInString(req.Title) > models.MaxNotificationTitle:
		return errors.New("title is required and must be at most 100 characters")
	case req.Message == "" || utf8.RuneCountInString(req.Message) > models.MaxNotificationMessage:
		return errors.New("message is required and must be at most 500 characters")
	}
	return nil
}

// Create stores a notification from the caller and pushes it to the
// recipient's notification room.
func (n *NotificationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())

	var req types.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		http.Error(w, "Invalid recipient", http.StatusBadRequest)
		return
	}
	if err := validateNotification(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	notification := &models.Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		SenderID:    user.ID,
		Type:        req.Type,
		Title:       req.Title,
		Message:     req.Message,
		ActionURL:   req.ActionURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := n.notifications.Create(r.Context(), notification); err != nil {
		n.log.Error("create notification failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pushed := n.live.Notify(recipient.String(), notification)
	n.log.Debug("notification created",
		zap.String("recipient", recipient.String()),
		zap.Int("pushed", pushed))
	writeJSON(w, n.log, http.StatusCreated, notification)
}
