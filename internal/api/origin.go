package api

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// OriginChecker is the WebSocket upgrade allowlist. "*" allows any origin.
// Requests without an Origin header come from non-browser clients and are
// allowed.
type OriginChecker struct {
	log      *zap.Logger
	allowed  map[string]struct{}
	allowAll bool
}

func NewOriginChecker(logger *zap.Logger, origins []string) *OriginChecker {
	oc := &OriginChecker{
		log:     logger.Named("origin"),
		allowed: make(map[string]struct{}, len(origins)),
	}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			oc.log.Warn("ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}
	return oc
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (oc *OriginChecker) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || oc.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := oc.allowed[normalized]; exists {
			return true
		}
	}

	oc.log.Info("blocked websocket connection from disallowed origin", zap.String("origin", header))
	return false
}
