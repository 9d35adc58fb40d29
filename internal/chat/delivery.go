package chat

import (
	"errors"

	"go.uber.org/zap"

	"presence-hub/internal/types"
)

// Unicast delivers to the connection the registry holds for userID. It
// reports false when the user is offline or the send queue rejected the
// frame.
func (h *Hub) Unicast(userID, event string, data any) bool {
	connID, ok := h.registry.Lookup(userID)
	if !ok {
		h.metrics.Delivery("unicast", false)
		return false
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		h.metrics.Delivery("unicast", false)
		return false
	}

	payload, err := encodeFrame(event, data)
	if err != nil {
		h.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return false
	}
	delivered := h.sendTo(c, payload)
	h.metrics.Delivery("unicast", delivered)
	return delivered
}

// Multicast delivers to every connection in room and returns how many
// accepted the frame.
func (h *Hub) Multicast(room, event string, data any) int {
	members := h.roomMembers(room)
	if len(members) == 0 {
		return 0
	}
	payload, err := encodeFrame(event, data)
	if err != nil {
		h.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return 0
	}

	sent := 0
	for _, c := range members {
		ok := h.sendTo(c, payload)
		h.metrics.Delivery("multicast", ok)
		if ok {
			sent++
		}
	}
	return sent
}

// BroadcastExcept delivers to every attached connection other than origin.
// origin may be nil.
func (h *Hub) BroadcastExcept(origin *Client, event string, data any) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c != origin {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	payload, err := encodeFrame(event, data)
	if err != nil {
		h.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return 0
	}

	sent := 0
	for _, c := range targets {
		ok := h.sendTo(c, payload)
		h.metrics.Delivery("broadcast", ok)
		if ok {
			sent++
		}
	}
	return sent
}

// Deliver pushes a chat message to its receiver if they are online.
func (h *Hub) Deliver(env *types.Envelope) bool {
	return h.Unicast(env.Receiver, types.EventReceiveMessage, env)
}

// Notify pushes a notification to every connection that joined the user's
// notification room.
func (h *Hub) Notify(userID string, notification any) int {
	return h.Multicast(NotificationRoom(userID), types.EventNotification, notification)
}

func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

func (h *Hub) Online() []string {
	return h.registry.Online()
}

func (h *Hub) emit(c *Client, event string, data any) {
	payload, err := encodeFrame(event, data)
	if err != nil {
		h.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.sendTo(c, payload)
}

// sendTo enqueues without blocking. A full queue evicts the connection.
func (h *Hub) sendTo(c *Client, payload []byte) bool {
	err := c.enqueue(payload)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errSendBufferFull):
		h.log.Warn("slow consumer evicted", zap.String("conn", c.ID), zap.String("user", c.UserID))
		h.metrics.Eviction()
		go h.requestDetach(c)
	}
	return false
}
