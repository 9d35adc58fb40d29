package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyLike               NotificationType = "like"
	NotifyComment            NotificationType = "comment"
	NotifyShare              NotificationType = "share"
	NotifyMention            NotificationType = "mention"
	NotifyConnectionRequest  NotificationType = "connection_request"
	NotifyConnectionAccepted NotificationType = "connection_accepted"
	NotifyMessage            NotificationType = "message"
	NotifyJobApplication     NotificationType = "job_application"
	NotifyJobUpdate          NotificationType = "job_update"
	NotifyCompanyFollow      NotificationType = "company_follow"
	NotifyPostMention        NotificationType = "post_mention"
)

const (
	MaxNotificationTitle   = 100
	MaxNotificationMessage = 500
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotifyLike, NotifyComment, NotifyShare, NotifyMention,
		NotifyConnectionRequest, NotifyConnectionAccepted, NotifyMessage,
		NotifyJobApplication, NotifyJobUpdate, NotifyCompanyFollow, NotifyPostMention:
		return true
	}
	return false
}

type Notification struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID uuid.UUID        `json:"recipient"`
	SenderID    uuid.UUID        `json:"sender"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	MessageID   *uuid.UUID       `json:"messageId,omitempty"`
	ActionURL   string           `json:"actionUrl,omitempty"`
	Read        bool             `json:"read"`
	ReadAt      *time.Time       `json:"readAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}
