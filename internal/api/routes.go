package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"presence-hub/internal/auth"
	"presence-hub/internal/chat"
	"presence-hub/internal/config"
	"presence-hub/internal/metrics"
	"presence-hub/internal/middleware"
	"presence-hub/internal/repository"
	"presence-hub/internal/types"
)

type Deps struct {
	Logger        *zap.Logger
	Config        *config.Config
	Hub           *chat.Hub
	Issuer        *auth.TokenIssuer
	Users         repository.UserRepository
	Tokens        repository.RefreshTokenRepository
	Messages      repository.MessageRepository
	Notifications repository.NotificationRepository
	Metrics       *metrics.Metrics
	Started       time.Time
}

func HealthHandler(logger *zap.Logger, env string, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, types.HealthDTO{
			Success:   true,
			Message:   "Server is running",
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(started).Seconds(),
			Env:       env,
		})
	}
}

func NewRouter(d Deps) http.Handler {
	log := d.Logger
	cfg := d.Config

	mux := http.NewServeMux()
	protected := middleware.Authenticate(log, d.Issuer, d.Users)

	mux.HandleFunc("GET /health", HealthHandler(log, cfg.Env, d.Started))

	mux.Handle("GET /ws", NewWSHandler(log, d.Hub, d.Issuer, NewOriginChecker(log, cfg.AllowedOrigins), WSOptions{
		AllowAnonymous: cfg.AllowAnonymous,
		RateBurst:      cfg.RateLimit.Burst,
		RateRefill:     cfg.RateLimit.Refill,
	}))

	authH := NewAuthHandlers(log, d.Issuer, d.Users, d.Tokens)
	mux.HandleFunc("POST /api/auth/signup", authH.Signup)
	mux.HandleFunc("POST /api/auth/login", authH.Login)
	mux.HandleFunc("POST /api/auth/refresh", authH.Refresh)
	mux.HandleFunc("POST /api/auth/logout", authH.Logout)

	presenceH := NewPresenceHandlers(log, d.Hub, d.Hub.Mirror(), cfg.NodeID)
	mux.Handle("GET /api/presence", protected(http.HandlerFunc(presenceH.List)))
	mux.Handle("GET /api/presence/{userId}", protected(http.HandlerFunc(presenceH.Get)))

	messageH := NewMessageHandlers(log, d.Messages, d.Notifications, d.Hub)
	mux.Handle("POST /api/messages", protected(http.HandlerFunc(messageH.Send)))
	mux.Handle("GET /api/messages/conversation/{userId}", protected(http.HandlerFunc(messageH.Conversation)))
	mux.Handle("GET /api/messages/unread-count", protected(http.HandlerFunc(messageH.UnreadCount)))
	mux.Handle("PUT /api/messages/{id}/read", protected(http.HandlerFunc(messageH.MarkRead)))

	notificationH := NewNotificationHandlers(log, d.Notifications, d.Hub)
	mux.Handle("GET /api/notifications", protected(http.HandlerFunc(notificationH.List)))
	mux.Handle("POST /api/notifications", protected(http.HandlerFunc(notificationH.Create)))
	mux.Handle("PUT /api/notifications/read-all", protected(http.HandlerFunc(notificationH.MarkAllRead)))
	mux.Handle("PUT /api/notifications/{id}/read", protected(http.HandlerFunc(notificationH.MarkRead)))

	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	return mux
}
