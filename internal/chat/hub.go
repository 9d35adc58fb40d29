// Package chat is the real-time hub: it owns live connections, routes their
// events and delivers frames by user, room or broadcast.
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"presence-hub/internal/metrics"
	"presence-hub/internal/presence"
	"presence-hub/internal/types"
)

// MessageStore persists an envelope before it is delivered and returns the
// stored id.
type MessageStore interface {
	Save(ctx context.Context, env *types.Envelope) (string, error)
}

type Options struct {
	Logger         *zap.Logger
	Registry       *presence.Registry
	Mirror         presence.Mirror
	Store          MessageStore
	Metrics        *metrics.Metrics
	MaxMessageSize int64
	TouchInterval  time.Duration
	Clock          func() time.Time
}

type Hub struct {
	log            *zap.Logger
	registry       *presence.Registry
	mirror         presence.Mirror
	store          MessageStore
	metrics        *metrics.Metrics
	maxMessageSize int64
	touchInterval  time.Duration
	now            func() time.Time
	handlers       map[string]eventHandler

	mu          sync.RWMutex
	clients     map[string]*Client
	rooms       map[string]map[string]*Client
	memberships map[string]map[string]struct{}

	unregister chan *Client
	quit       chan struct{}
	done       chan struct{}
	quitOnce   sync.Once
	wg         sync.WaitGroup
}

func NewHub(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = presence.NewRegistry()
	}
	if opts.Mirror == nil {
		opts.Mirror = presence.NopMirror{}
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	if opts.TouchInterval <= 0 {
		opts.TouchInterval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	h := &Hub{
		log:            opts.Logger.Named("hub"),
		registry:       opts.Registry,
		mirror:         opts.Mirror,
		store:          opts.Store,
		metrics:        opts.Metrics,
		maxMessageSize: opts.MaxMessageSize,
		touchInterval:  opts.TouchInterval,
		now:            opts.Clock,
		clients:        make(map[string]*Client),
		rooms:          make(map[string]map[string]*Client),
		memberships:    make(map[string]map[string]struct{}),
		unregister:     make(chan *Client),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	h.handlers = h.routes()
	return h
}

func (h *Hub) Registry() *presence.Registry {
	return h.registry
}

func (h *Hub) Mirror() presence.Mirror {
	return h.mirror
}

// Run owns disconnect processing and the presence TTL refresh. It returns
// after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)
	h.log.Info("hub started")

	ticker := time.NewTicker(h.touchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			h.shutdownClients()
			return

		case c := <-h.unregister:
			h.detach(c)

		case <-ticker.C:
			h.touchPresence()
		}
	}
}

// Serve attaches c and starts its pumps.
func (h *Hub) Serve(c *Client) {
	h.Attach(c)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.WritePump()
	}()
	go func() {
		defer h.wg.Done()
		c.ReadPump()
	}()
}

func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.log.Debug("connection attached",
		zap.String("conn", c.ID),
		zap.String("user", c.UserID),
		zap.Int("connections", total))
}

func (h *Hub) requestDetach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// detach is the disconnect event: rooms are dropped, the registry entry is
// removed only if it still points at this handle, and remaining connections
// learn the user went offline.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.leaveAllLocked(c)
	userID, wasOnline := h.registry.UnregisterByHandle(c.ID)
	h.mu.Unlock()

	c.close()
	h.metrics.ConnectionClosed()
	h.metrics.SetOnline(h.registry.Len())
	h.log.Debug("connection detached", zap.String("conn", c.ID), zap.String("user", userID))

	if wasOnline {
		h.BroadcastExcept(c, types.EventUserOffline, userID)
		h.mirrorOffline(userID, c.ID)
	}
}

func (h *Hub) shutdownClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.memberships = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		if userID, ok := h.registry.UnregisterByHandle(c.ID); ok {
			h.mirrorOffline(userID, c.ID)
		}
		c.close()
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
	h.metrics.SetOnline(h.registry.Len())
	h.log.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops Run, closes every connection and waits for the pumps.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.quitOnce.Do(func() { close(h.quit) })
	deadline := time.After(timeout)

	select {
	case <-h.done:
	case <-deadline:
		return context.DeadlineExceeded
	}

	pumps := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(pumps)
	}()

	select {
	case <-pumps:
		h.log.Info("hub shutdown completed")
		return nil
	case <-deadline:
		h.log.Warn("hub shutdown timed out waiting for pumps")
		return context.DeadlineExceeded
	}
}

func (h *Hub) join(c *Client, userID string) error {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return errNotAttached
	}
	formerUser, hadUser := h.registry.UserOf(c.ID)
	switched := hadUser && formerUser != userID
	previous, replaced := h.registry.Register(userID, c.ID)
	if switched {
		h.leaveRoomLocked(c, PersonalRoom(formerUser))
		h.leaveRoomLocked(c, NotificationRoom(formerUser))
	}
	h.joinRoomLocked(c, PersonalRoom(userID))
	h.mu.Unlock()

	// The connection no longer speaks for its former user.
	if switched {
		h.log.Info("connection switched user",
			zap.String("conn", c.ID),
			zap.String("from", formerUser),
			zap.String("to", userID))
		h.BroadcastExcept(c, types.EventUserOffline, formerUser)
		h.mirrorOffline(formerUser, c.ID)
	}

	h.metrics.SetOnline(h.registry.Len())
	if replaced {
		h.log.Info("user reconnected",
			zap.String("user", userID),
			zap.String("conn", c.ID),
			zap.String("previous", previous))
	} else {
		h.log.Info("user joined", zap.String("user", userID), zap.String("conn", c.ID))
	}

	h.BroadcastExcept(c, types.EventUserOnline, userID)
	h.mirrorOnline(userID, c.ID)
	return nil
}

func (h *Hub) mirrorOnline(userID, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.mirror.MarkOnline(ctx, userID, connID); err != nil {
		h.log.Warn("presence mirror online failed", zap.String("user", userID), zap.Error(err))
	}
}

func (h *Hub) mirrorOffline(userID, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.mirror.MarkOffline(ctx, userID, connID); err != nil {
		h.log.Warn("presence mirror offline failed", zap.String("user", userID), zap.Error(err))
	}
}

func (h *Hub) touchPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.mirror.Touch(ctx, h.registry.Online()); err != nil {
		h.log.Warn("presence mirror refresh failed", zap.Error(err))
	}
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: data})
}
