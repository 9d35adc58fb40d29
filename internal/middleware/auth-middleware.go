package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"presence-hub/internal/auth"
	"presence-hub/internal/models"
	"presence-hub/internal/repository"
)

type contextKey string

const userKey contextKey = "user"

func ClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AccessToken reads the access token from the access_token cookie or an
// Authorization: Bearer header.
func AccessToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func CurrentUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

func Authenticate(logger *zap.Logger, issuer *auth.TokenIssuer, users repository.UserRepository) func(http.Handler) http.Handler {
	log := logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			currentIP := ClientIP(r)

			token := AccessToken(r)
			if token == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.ValidateToken(token)
			if err != nil {
				log.Info("invalid token", zap.String("ip", currentIP), zap.Error(err))
				http.Error(w, "Session expired or invalid", http.StatusUnauthorized)
				return
			}

			if claims.Fingerprint != auth.GenerateFingerprint(currentIP, r.UserAgent()) {
				log.Warn("fingerprint mismatch",
					zap.String("user", claims.UserID.String()),
					zap.String("ip", currentIP),
					zap.String("remote", r.RemoteAddr))
				http.Error(w, "Security context violation", http.StatusForbidden)
				return
			}

			user, err := users.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					log.Info("token valid but user no longer exists", zap.String("user", claims.UserID.String()))
					http.Error(w, "User account not found", http.StatusUnauthorized)
					return
				}
				log.Error("user lookup failed", zap.Error(err))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if user.IsBanned {
				http.Error(w, "Account suspended", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
