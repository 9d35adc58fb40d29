package presence

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMirror(t *testing.T, node string) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMirrorWithClient(zap.NewNop(), client, node, time.Minute), mr
}

func TestRedisMirror_OnlineThenLocate(t *testing.T) {
	m, mr := newTestMirror(t, "node-a")
	ctx := context.Background()

	require.NoError(t, m.MarkOnline(ctx, "alice", "h1"))

	loc, ok, err := m.Locate(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node-a", loc.Node)
	assert.Equal(t, "h1", loc.ConnID)
	assert.False(t, loc.Since.IsZero())
	assert.Equal(t, time.Minute, mr.TTL("presence:alice"))
}

func TestRedisMirror_LocateUnknown(t *testing.T) {
	m, _ := newTestMirror(t, "node-a")

	_, ok, err := m.Locate(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisMirror_OfflineOnlyForMatchingHandle(t *testing.T) {
	m, mr := newTestMirror(t, "node-a")
	ctx := context.Background()

	require.NoError(t, m.MarkOnline(ctx, "alice", "h2"))
	require.NoError(t, m.MarkOffline(ctx, "alice", "h1"))
	assert.True(t, mr.Exists("presence:alice"))

	require.NoError(t, m.MarkOffline(ctx, "alice", "h2"))
	assert.False(t, mr.Exists("presence:alice"))
}

func TestRedisMirror_OfflineIgnoresOtherNode(t *testing.T) {
	a, mr := newTestMirror(t, "node-a")
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	b := NewRedisMirrorWithClient(zap.NewNop(), client, "node-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, b.MarkOnline(ctx, "alice", "h9"))
	require.NoError(t, a.MarkOffline(ctx, "alice", "h9"))

	loc, ok, err := a.Locate(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node-b", loc.Node)
}

func TestRedisMirror_TouchRefreshesTTL(t *testing.T) {
	m, mr := newTestMirror(t, "node-a")
	ctx := context.Background()

	require.NoError(t, m.MarkOnline(ctx, "alice", "h1"))
	mr.FastForward(50 * time.Second)
	require.NoError(t, m.Touch(ctx, []string{"alice", "nobody"}))
	mr.FastForward(50 * time.Second)

	assert.True(t, mr.Exists("presence:alice"))
	assert.NoError(t, m.Touch(ctx, nil))
}

func TestNopMirror(t *testing.T) {
	var m Mirror = NopMirror{}
	ctx := context.Background()

	assert.NoError(t, m.MarkOnline(ctx, "a", "b"))
	assert.NoError(t, m.MarkOffline(ctx, "a", "b"))
	_, ok, err := m.Locate(ctx, "a")
	assert.NoError(t, err)
	assert.False(t, ok)
}
