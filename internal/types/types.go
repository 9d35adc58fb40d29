package types

import (
	"time"

	"github.com/google/uuid"

	"presence-hub/internal/models"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserDTO struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type SendMessageRequest struct {
	Receiver string             `json:"receiver"`
	Content  string             `json:"content"`
	Type     models.MessageKind `json:"type,omitempty"`
}

type CreateNotificationRequest struct {
	Recipient string                  `json:"recipient"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	ActionURL string                  `json:"actionUrl,omitempty"`
}

type PresenceDTO struct {
	UserID string     `json:"userId"`
	Online bool       `json:"online"`
	Node   string     `json:"node,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
}

type PresenceListDTO struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

type HealthDTO struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Env       string    `json:"environment"`
}
