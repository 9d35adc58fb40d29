package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	tokenCleanupSpec        = "0 3 * * *"
	notificationCleanupSpec = "30 3 * * *"

	// Read notifications older than this are purged.
	notificationRetention = 30 * 24 * time.Hour
)

type ExpiredTokenDeleter interface {
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

type ReadNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner runs the nightly maintenance jobs.
type Cleaner struct {
	log           *zap.Logger
	tokens        ExpiredTokenDeleter
	notifications ReadNotificationPurger
	cron          *cron.Cron
	now           func() time.Time
}

func NewCleaner(logger *zap.Logger, tokens ExpiredTokenDeleter, notifications ReadNotificationPurger) *Cleaner {
	return &Cleaner{
		log:           logger.Named("worker"),
		tokens:        tokens,
		notifications: notifications,
		cron:          cron.New(),
		now:           time.Now,
	}
}

func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(tokenCleanupSpec, c.CleanTokens); err != nil {
		return err
	}
	if c.notifications != nil {
		if _, err := c.cron.AddFunc(notificationCleanupSpec, c.PurgeNotifications); err != nil {
			return err
		}
	}
	c.cron.Start()
	c.log.Info("maintenance jobs scheduled", zap.Int("jobs", len(c.cron.Entries())))
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (c *Cleaner) Stop(ctx context.Context) {
	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
		c.log.Warn("maintenance job still running at shutdown")
	}
}

func (c *Cleaner) CleanTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	n, err := c.tokens.DeleteExpiredTokens(ctx)
	if err != nil {
		c.log.Error("token cleanup failed", zap.Error(err))
		return
	}
	c.log.Info("token cleanup finished", zap.Int64("deleted", n))
}

func (c *Cleaner) PurgeNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	n, err := c.notifications.DeleteReadBefore(ctx, c.now().Add(-notificationRetention))
	if err != nil {
		c.log.Error("notification purge failed", zap.Error(err))
		return
	}
	c.log.Info("notification purge finished", zap.Int64("deleted", n))
}
