package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"presence-hub/internal/api"
	"presence-hub/internal/auth"
	"presence-hub/internal/chat"
	"presence-hub/internal/config"
	"presence-hub/internal/db"
	"presence-hub/internal/logger"
	"presence-hub/internal/metrics"
	"presence-hub/internal/presence"
	"presence-hub/internal/repository"
	tasks "presence-hub/internal/Tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		os.Exit(1)
	}
}

func run() error {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	for _, note := range cfg.Notes {
		log.Info(note)
	}

	if cfg.NodeID == "" {
		host, _ := os.Hostname()
		cfg.NodeID = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database", zap.String("dsn", config.MaskDBSource(cfg.DatabaseURL)))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.RedisURL != "" {
		rm, err := presence.NewRedisMirror(ctx, log, cfg.RedisURL, cfg.NodeID, cfg.PresenceTTL)
		if err != nil {
			return fmt.Errorf("connect presence mirror: %w", err)
		}
		mirror = rm
		log.Info("presence mirror enabled", zap.String("node", cfg.NodeID), zap.Duration("ttl", cfg.PresenceTTL))
	}
	defer mirror.Close()

	users := repository.NewUserRepo(pool)
	tokens := repository.NewRefreshTokenRepo(pool)
	messages := repository.NewMessagesRepo(pool)
	notifications := repository.NewNotificationRepo(pool)

	m := metrics.New("presence_hub")
	hub := chat.NewHub(chat.Options{
		Logger:         log,
		Registry:       presence.NewRegistry(),
		Mirror:         mirror,
		Store:          repository.EnvelopeStore{Messages: messages},
		Metrics:        m,
		MaxMessageSize: cfg.MaxMessageSize,
		TouchInterval:  cfg.PresenceTTL / 2,
	})
	go hub.Run()

	cleaner := tasks.NewCleaner(log, tokens, notifications)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(api.Deps{
			Logger:        log,
			Config:        cfg,
			Hub:           hub,
			Issuer:        auth.NewTokenIssuer(cfg.AuthKey, 15*time.Minute),
			Users:         users,
			Tokens:        tokens,
			Messages:      messages,
			Notifications: notifications,
			Metrics:       m,
			Started:       started,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		log.Warn("hub shutdown", zap.Error(err))
	}
	cleaner.Stop(shutdownCtx)

	log.Info("graceful shutdown complete")
	return nil
}
