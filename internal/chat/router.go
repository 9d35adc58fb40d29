package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"presence-hub/internal/models"
	"presence-hub/internal/types"
)

var (
	ErrIdentityMismatch = errors.New("identity does not match the authenticated user")
	ErrMissingIdentity  = errors.New("user identity is required")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidMessage   = errors.New("invalid message")

	errNotAttached = errors.New("connection is not attached")
)

const sendMessageFailed = "Failed to send message"

type eventHandler func(c *Client, data json.RawMessage) error

func (h *Hub) routes() map[string]eventHandler {
	return map[string]eventHandler{
		types.EventJoin:              h.handleJoin,
		types.EventSendMessage:       h.handleSendMessage,
		types.EventTypingStart:       h.handleTyping(types.EventUserTyping),
		types.EventTypingStop:        h.handleTyping(types.EventUserStoppedTyping),
		types.EventJoinNotifications: h.handleJoinNotifications,
		types.EventCallUser:          h.handleCallUser,
		types.EventAnswerCall:        h.handleAnswerCall,
		types.EventEndCall:           h.handleEndCall,
	}
}

// Dispatch decodes one inbound frame and runs its handler. Failures are
// reported to the sending connection only.
func (h *Hub) Dispatch(c *Client, raw []byte) {
	var frame types.Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		h.metrics.Event("malformed")
		h.emit(c, types.EventError, types.ErrorPayload{Error: "malformed frame"})
		return
	}

	handler, ok := h.handlers[frame.Event]
	if !ok {
		h.metrics.Event("unknown")
		h.emit(c, types.EventError, types.ErrorPayload{Event: frame.Event, Error: "unknown event"})
		return
	}
	h.metrics.Event(frame.Event)

	if err := handler(c, frame.Data); err != nil {
		h.log.Debug("event rejected",
			zap.String("conn", c.ID),
			zap.String("event", frame.Event),
			zap.Error(err))

		if frame.Event == types.EventSendMessage {
			h.emit(c, types.EventMessageError, types.ErrorPayload{Error: sendMessageFailed})
			return
		}
		h.emit(c, types.EventError, types.ErrorPayload{Event: frame.Event, Error: err.Error()})
	}
}

func (h *Hub) handleJoin(c *Client, data json.RawMessage) error {
	claimed, err := decodeUserRef(data)
	if err != nil {
		return err
	}
	userID, err := c.resolveIdentity(claimed)
	if err != nil {
		return err
	}
	return h.join(c, userID)
}

func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) error {
	var p types.SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	sender, err := c.resolveIdentity(p.SenderID)
	if err != nil {
		return err
	}

	env, err := NewEnvelope(sender, p.ReceiverID, p.Content, p.Type, h.now())
	if err != nil {
		return err
	}

	var messageID *string
	if h.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		id, err := h.store.Save(ctx, env)
		cancel()
		if err != nil {
			h.log.Error("persist message failed", zap.String("sender", sender), zap.Error(err))
			return fmt.Errorf("persist message: %w", err)
		}
		messageID = &id
	}

	delivered := h.Deliver(env)
	h.log.Debug("message routed",
		zap.String("sender", env.Sender),
		zap.String("receiver", env.Receiver),
		zap.Bool("delivered", delivered))

	h.emit(c, types.EventMessageSent, types.MessageSentAck{MessageID: messageID, Timestamp: env.Timestamp})
	return nil
}

func (h *Hub) handleTyping(event string) eventHandler {
	return func(c *Client, data json.RawMessage) error {
		var p types.TypingPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		sender, err := c.resolveIdentity(p.SenderID)
		if err != nil {
			return err
		}
		if p.ReceiverID != "" {
			h.Unicast(p.ReceiverID, event, types.UserRef{UserID: sender})
		}
		return nil
	}
}

func (h *Hub) handleJoinNotifications(c *Client, data json.RawMessage) error {
	claimed, err := decodeUserRef(data)
	if err != nil {
		return err
	}
	userID, err := c.resolveIdentity(claimed)
	if err != nil {
		return err
	}
	return h.JoinRoom(c, NotificationRoom(userID))
}

func (h *Hub) handleCallUser(c *Client, data json.RawMessage) error {
	var p types.CallUserPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	from, err := c.resolveIdentity(p.From)
	if err != nil {
		return err
	}
	if p.UserToCall != "" {
		h.Unicast(p.UserToCall, types.EventCallIncoming, types.CallIncoming{
			Signal: p.SignalData,
			From:   from,
			Name:   p.Name,
		})
	}
	return nil
}

func (h *Hub) handleAnswerCall(c *Client, data json.RawMessage) error {
	var p types.AnswerCallPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.To != "" {
		h.Unicast(p.To, types.EventCallAccepted, p.Signal)
	}
	return nil
}

func (h *Hub) handleEndCall(c *Client, data json.RawMessage) error {
	var p types.EndCallPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.To != "" {
		h.Unicast(p.To, types.EventCallEnded, nil)
	}
	return nil
}

// NewEnvelope validates a chat message and stamps it with the server time.
// An empty kind means text.
func NewEnvelope(sender, receiver, content string, kind models.MessageKind, at time.Time) (*types.Envelope, error) {
	switch {
	case sender == "":
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	case receiver == "":
		return nil, fmt.Errorf("%w: receiver is required", ErrInvalidMessage)
	case content == "":
		return nil, fmt.Errorf("%w: content is required", ErrInvalidMessage)
	case utf8.RuneCountInString(content) > models.MaxMessageContent:
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, models.MaxMessageContent)
	}

	if kind == "" {
		kind = models.KindText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidMessage, kind)
	}

	return &types.Envelope{
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Type:      kind,
		Timestamp: at.UTC(),
	}, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// decodeUserRef accepts either a bare "<userId>" string or {"userId": ...}.
func decodeUserRef(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var ref types.UserRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ref.UserID, nil
}
