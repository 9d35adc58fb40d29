package types

import (
	"encoding/json"
	"time"

	"presence-hub/internal/models"
)

// Inbound event names.
const (
	EventJoin              = "join"
	EventSendMessage       = "send-message"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventJoinNotifications = "join-notifications"
	EventCallUser          = "call-user"
	EventAnswerCall        = "answer-call"
	EventEndCall           = "end-call"
)

// Outbound event names.
const (
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventReceiveMessage    = "receive-message"
	EventMessageSent       = "message-sent"
	EventMessageError      = "message-error"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventCallIncoming      = "call-incoming"
	EventCallAccepted      = "call-accepted"
	EventCallEnded         = "call-ended"
	EventNotification      = "notification"
	EventError             = "error"
)

// Frame is one WebSocket text frame in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is a chat message as it travels through the hub.
type Envelope struct {
	Sender    string             `json:"sender"`
	Receiver  string             `json:"receiver"`
	Content   string             `json:"content"`
	Type      models.MessageKind `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
}

type UserRef struct {
	UserID string `json:"userId"`
}

type SendMessagePayload struct {
	SenderID   string             `json:"senderId"`
	ReceiverID string             `json:"receiverId"`
	Content    string             `json:"content"`
	Type       models.MessageKind `json:"type,omitempty"`
}

type MessageSentAck struct {
	MessageID *string   `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type CallUserPayload struct {
	UserToCall string          `json:"userToCall"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
	Name       string          `json:"name"`
}

type CallIncoming struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
	Name   string          `json:"name"`
}

type AnswerCallPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

type EndCallPayload struct {
	To string `json:"to"`
}

type ErrorPayload struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}
