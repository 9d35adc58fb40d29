package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"presence-hub/internal/middleware"
	"presence-hub/internal/types"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Client is one live WebSocket session. ID is the connection handle the
// registry stores; UserID is the identity bound at upgrade time and is empty
// for anonymous connections.
type Client struct {
	ID          string
	UserID      string
	Hub         *Hub
	Conn        *websocket.Conn
	Send        chan []byte
	Limiter     *middleware.RateLimiter
	LastWarning time.Time

	mu     sync.RWMutex
	closed bool
}

func NewClient(h *Hub, conn *websocket.Conn, userID string, limiter *middleware.RateLimiter) *Client {
	return &Client{
		ID:      uuid.NewString(),
		UserID:  userID,
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Limiter: limiter,
	}
}

func (c *Client) enqueue(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.Send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	return true
}

// resolveIdentity checks a client-supplied identity against the bound one.
// Anonymous connections are trusted with whatever they claim.
func (c *Client) resolveIdentity(claimed string) (string, error) {
	if c.UserID == "" {
		if claimed == "" {
			return "", ErrMissingIdentity
		}
		return claimed, nil
	}
	if claimed == "" || claimed == c.UserID {
		return c.UserID, nil
	}
	return "", ErrIdentityMismatch
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.log.Debug("write failed", zap.String("conn", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump dispatches frames in arrival order. Returning from it is the
// connection's disconnect event.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.requestDetach(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.log.Info("unexpected close", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}

		if !c.Limiter.Allow() {
			if time.Since(c.LastWarning) > 3*time.Second {
				c.Hub.emit(c, types.EventError, types.ErrorPayload{Error: "rate limit exceeded"})
				c.LastWarning = time.Now()
			}
			continue
		}

		c.Hub.Dispatch(c, message)
	}
}
