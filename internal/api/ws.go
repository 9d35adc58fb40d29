package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"presence-hub/internal/auth"
	"presence-hub/internal/chat"
	"presence-hub/internal/middleware"
)

type WSOptions struct {
	AllowAnonymous bool
	RateBurst      int
	RateRefill     time.Duration
}

type WSHandler struct {
	log      *zap.Logger
	hub      *chat.Hub
	issuer   *auth.TokenIssuer
	upgrader websocket.Upgrader
	opts     WSOptions
}

func NewWSHandler(logger *zap.Logger, hub *chat.Hub, issuer *auth.TokenIssuer, origins *OriginChecker, opts WSOptions) *WSHandler {
	return &WSHandler{
		log:    logger.Named("ws"),
		hub:    hub,
		issuer: issuer,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
	}
}

// userFor resolves the identity bound to the upgrade. The token may also
// come from ?token= since browsers cannot set headers on WebSocket requests.
func (h *WSHandler) userFor(r *http.Request) (string, bool) {
	token := middleware.AccessToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", h.opts.AllowAnonymous
	}

	claims, err := h.issuer.ValidateToken(token)
	if err != nil {
		h.log.Info("rejecting websocket token", zap.String("ip", middleware.ClientIP(r)), zap.Error(err))
		return "", false
	}
	return claims.UserID.String(), true
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFor(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("upgrade failed", zap.Error(err))
		return
	}

	client := chat.NewClient(h.hub, conn, userID, middleware.NewRatelimiter(h.opts.RateBurst, h.opts.RateRefill))
	h.hub.Serve(client)
}
