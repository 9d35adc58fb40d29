package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"presence-hub/internal/models"
)

const RefreshTokenTTL = 7 * 24 * time.Hour

// CreateRefreshToken returns the raw token for the cookie and the model to
// persist. Only the hash is stored.
func CreateRefreshToken(userID uuid.UUID, userAgent, ip string) (string, *models.RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("read random bytes: %w", err)
	}
	raw := hex.EncodeToString(buf)
	now := time.Now()

	return raw, &models.RefreshToken{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHashed: HashRefreshToken(raw),
		UserAgent:   userAgent,
		ClientIP:    net.ParseIP(ip),
		ExpiresAt:   now.Add(RefreshTokenTTL),
		CreatedAt:   now,
	}, nil
}

func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
