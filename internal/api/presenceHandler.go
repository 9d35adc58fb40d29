package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"presence-hub/internal/presence"
	"presence-hub/internal/types"
)

// PresenceSource is what the presence routes read from the hub.
type PresenceSource interface {
	IsOnline(userID string) bool
	Online() []string
}

type PresenceHandlers struct {
	log    *zap.Logger
	local  PresenceSource
	mirror presence.Mirror
	node   string
}

func NewPresenceHandlers(logger *zap.Logger, local PresenceSource, mirror presence.Mirror, node string) *PresenceHandlers {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &PresenceHandlers{log: logger.Named("presence"), local: local, mirror: mirror, node: node}
}

// List returns users connected to this node.
func (p *PresenceHandlers) List(w http.ResponseWriter, r *http.Request) {
	users := p.local.Online()
	writeJSON(w, p.log, http.StatusOK, types.PresenceListDTO{Users: users, Count: len(users)})
}

// Get checks the local registry first and then the shared mirror.
func (p *PresenceHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	dto := types.PresenceDTO{UserID: userID}
	if p.local.IsOnline(userID) {
		dto.Online = true
		dto.Node = p.node
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	loc, found, err := p.mirror.Locate(ctx, userID)
	switch {
	case err != nil:
		p.log.Warn("presence mirror lookup failed", zap.String("user", userID), zap.Error(err))
	case found:
		dto.Online = true
		dto.Node = loc.Node
		since := loc.Since
		dto.Since = &since
	}

	writeJSON(w, p.log, http.StatusOK, dto)
}
