package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"presence-hub/internal/auth"
	"presence-hub/internal/middleware"
	"presence-hub/internal/models"
	"presence-hub/internal/repository"
	"presence-hub/internal/types"
)

// AuthHandlers implements the cookie session flow: a short-lived access JWT
// and a rotating refresh token stored hashed.
type AuthHandlers struct {
	log    *zap.Logger
	issuer *auth.TokenIssuer
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
}

func NewAuthHandlers(logger *zap.Logger, issuer *auth.TokenIssuer, users repository.UserRepository, tokens repository.RefreshTokenRepository) *AuthHandlers {
	return &AuthHandlers{
		log:    logger.Named("auth"),
		issuer: issuer,
		users:  users,
		tokens: tokens,
	}
}

// startSession issues both tokens and sets their cookies.
func (a *AuthHandlers) startSession(ctx context.Context, w http.ResponseWriter, userID uuid.UUID, userAgent, ip string) error {
	token, err := a.issuer.GenerateToken(userID, userAgent, ip)
	if err != nil {
		return err
	}

	refreshToken, refreshTokenModel, err := auth.CreateRefreshToken(userID, userAgent, ip)
	if err != nil {
		return err
	}

	if err := a.tokens.SaveRefreshToken(ctx, refreshTokenModel); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			a.log.Error("save refresh token failed",
				zap.String("code", pgErr.Code),
				zap.String("pg_message", pgErr.Message))
		}
		return err
	}

	setSessionCookies(w, token, a.issuer.TTL(), refreshToken)
	return nil
}

func (a *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var payload types.LoginRequest

	dbctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.log.Debug("login decode error", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || payload.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := a.users.GetUserByUsername(dbctx, payload.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.log.Info("login for unknown user", zap.String("username", payload.Username))
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		a.log.Error("login lookup failed", zap.String("username", payload.Username), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if !auth.VerifyPassword(payload.Password, user.Password_Hash) {
		a.log.Info("invalid password", zap.String("username", payload.Username))
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	if user.IsBanned {
		http.Error(w, "Account suspended", http.StatusForbidden)
		return
	}

	if err := a.startSession(dbctx, w, user.ID, r.UserAgent(), middleware.ClientIP(r)); err != nil {
		a.log.Error("start session failed", zap.String("user", user.ID.String()), zap.Error(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	a.log.Info("user logged in", zap.String("username", user.Username))
	writeJSON(w, a.log, http.StatusOK, types.UserDTO{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

func (a *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var payload types.RegisterRequest

	dbctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payload.Username = strings.TrimSpace(payload.Username)
	payload.Email = strings.TrimSpace(strings.ToLower(payload.Email))

	if payload.Username == "" || payload.Email == "" || payload.Password == "" {
		http.Error(w, "All fields (username, email, password) are required", http.StatusBadRequest)
		return
	}
	if !isValidEmail(payload.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}
	if len(payload.Password) < 8 {
		http.Error(w, "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	if _, err := a.users.GetUserByUsername(dbctx, payload.Username); err == nil {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		a.log.Error("signup username lookup failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if _, err := a.users.GetUserByEmail(dbctx, payload.Email); err == nil {
		http.Error(w, "Email already exists", http.StatusConflict)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		a.log.Error("signup email lookup failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	hashed, err := auth.HashPassword(payload.Password)
	if err != nil {
		a.log.Error("hash password failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:            uuid.New(),
		Username:      payload.Username,
		Email:         payload.Email,
		Password_Hash: hashed,
		CreatedAt:     time.Now(),
	}
	if err := a.users.CreateUser(dbctx, user); err != nil {
		a.log.Error("create user failed", zap.String("username", payload.Username), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	if err := a.startSession(dbctx, w, user.ID, r.UserAgent(), middleware.ClientIP(r)); err != nil {
		a.log.Error("start session after signup failed", zap.Error(err))
		http.Error(w, "User created, but failed to start session. Please login.", http.StatusCreated)
		return
	}

	a.log.Info("user signed up", zap.String("username", user.Username))
	writeJSON(w, a.log, http.StatusCreated, types.UserDTO{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

func (a *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	dbctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if cookie, err := r.Cookie("refresh_token"); err == nil {
		token, err := a.tokens.GetTokenByHash(dbctx, auth.HashRefreshToken(cookie.Value))
		if err == nil {
			_ = a.tokens.RevokeToken(dbctx, token.ID)
		}
	}

	clearSessionCookies(w)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Logged Out Successfully"))
}

// Refresh rotates the refresh token. A token presented from a different
// client context is rejected.
func (a *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	userAgent := r.UserAgent()
	ipStr := middleware.ClientIP(r)
	currentIP := net.ParseIP(ipStr)

	dbctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cookie, err := r.Cookie("refresh_token")
	if err != nil {
		a.log.Info("refresh without cookie", zap.String("ip", ipStr))
		http.Error(w, "Refresh token required", http.StatusUnauthorized)
		return
	}

	tokenHashed := auth.HashRefreshToken(cookie.Value)
	tokenModel, err := a.tokens.GetTokenByHash(dbctx, tokenHashed)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.log.Warn("refresh token reuse or unknown token",
				zap.String("hash_prefix", tokenHashed[:8]),
				zap.String("ip", ipStr))
			http.Error(w, "Invalid session", http.StatusUnauthorized)
			return
		}
		a.log.Error("refresh lookup failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if time.Now().After(tokenModel.ExpiresAt) {
		http.Error(w, "Session expired", http.StatusUnauthorized)
		return
	}

	if tokenModel.UserAgent != userAgent || !tokenModel.ClientIP.Equal(currentIP) {
		a.log.Warn("refresh context mismatch",
			zap.String("user", tokenModel.UserID.String()),
			zap.String("expected_ip", tokenModel.ClientIP.String()),
			zap.String("ip", ipStr))
		http.Error(w, "Security context mismatch", http.StatusUnauthorized)
		return
	}

	if err := a.tokens.RevokeToken(dbctx, tokenModel.ID); err != nil {
		a.log.Error("revoke refresh token failed", zap.String("token", tokenModel.ID.String()), zap.Error(err))
		http.Error(w, "Could not refresh session", http.StatusInternalServerError)
		return
	}

	if err := a.startSession(dbctx, w, tokenModel.UserID, userAgent, ipStr); err != nil {
		a.log.Error("rotate session failed", zap.String("user", tokenModel.UserID.String()), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	a.log.Info("session rotated", zap.String("user", tokenModel.UserID.String()))
	w.WriteHeader(http.StatusOK)
}
