package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind is the closed set of direct-message payload kinds.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
	KindVoice MessageKind = "voice"
)

const MaxMessageContent = 1000

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile, KindVoice:
		return true
	}
	return false
}

type Message struct {
	ID         uuid.UUID   `json:"id"`
	SenderID   uuid.UUID   `json:"sender"`
	ReceiverID uuid.UUID   `json:"receiver"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"type"`
	Read       bool        `json:"read"`
	ReadAt     *time.Time  `json:"readAt,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}
