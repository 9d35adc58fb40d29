package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubTokens struct {
	calls int
	err   error
}

func (s *stubTokens) DeleteExpiredTokens(context.Context) (int64, error) {
	s.calls++
	return 4, s.err
}

type stubNotifications struct {
	cutoff time.Time
}

func (s *stubNotifications) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return 2, nil
}

func TestCleaner_CleanTokens(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tokens := &stubTokens{}
	c := NewCleaner(zap.New(core), tokens, nil)

	c.CleanTokens()
	assert.Equal(t, 1, tokens.calls)
	require.Equal(t, 1, logs.FilterMessage("token cleanup finished").Len())

	tokens.err = errors.New("db down")
	c.CleanTokens()
	assert.Equal(t, 1, logs.FilterMessage("token cleanup failed").Len())
}

func TestCleaner_PurgeUsesRetention(t *testing.T) {
	now := time.Date(2024, 6, 30, 3, 30, 0, 0, time.UTC)
	notifications := &stubNotifications{}
	c := NewCleaner(zap.NewNop(), &stubTokens{}, notifications)
	c.now = func() time.Time { return now }

	c.PurgeNotifications()
	assert.Equal(t, now.Add(-30*24*time.Hour), notifications.cutoff)
}

func TestCleaner_StartSchedulesJobs(t *testing.T) {
	c := NewCleaner(zap.NewNop(), &stubTokens{}, &stubNotifications{})
	require.NoError(t, c.Start())
	assert.Len(t, c.cron.Entries(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Stop(ctx)
}
