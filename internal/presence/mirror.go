package presence

import (
	"context"
	"time"
)

// Location says which node and connection hold a user's live session.
type Location struct {
	Node   string    `json:"node"`
	ConnID string    `json:"connId"`
	Since  time.Time `json:"since"`
}

// Mirror publishes local presence to a store other nodes can read. It does
// not deliver anything across nodes.
type Mirror interface {
	MarkOnline(ctx context.Context, userID, connID string) error
	MarkOffline(ctx context.Context, userID, connID string) error
	Touch(ctx context.Context, userIDs []string) error
	Locate(ctx context.Context, userID string) (Location, bool, error)
	Close() error
}

// NopMirror is used when no shared store is configured.
type NopMirror struct{}

func (NopMirror) MarkOnline(context.Context, string, string) error  { return nil }
func (NopMirror) MarkOffline(context.Context, string, string) error { return nil }
func (NopMirror) Touch(context.Context, []string) error             { return nil }
func (NopMirror) Close() error                                      { return nil }

func (NopMirror) Locate(context.Context, string) (Location, bool, error) {
	return Location{}, false, nil
}
