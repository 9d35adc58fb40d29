package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "presence:"

// Deletes the key only if it still points at this node and connection.
var markOfflineScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'node') == ARGV[1] and redis.call('HGET', KEYS[1], 'conn') == ARGV[2] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisMirror stores presence:<user> hashes {node, conn, since} with a TTL
// that the hub refreshes while the user stays connected.
type RedisMirror struct {
	logger *zap.Logger
	client redis.UniversalClient
	node   string
	ttl    time.Duration
}

func NewRedisMirror(ctx context.Context, logger *zap.Logger, redisURL, node string, ttl time.Duration) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisMirrorWithClient(logger, client, node, ttl), nil
}

func NewRedisMirrorWithClient(logger *zap.Logger, client redis.UniversalClient, node string, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisMirror{
		logger: logger.Named("presence.redis"),
		client: client,
		node:   node,
		ttl:    ttl,
	}
}

func (m *RedisMirror) TTL() time.Duration {
	return m.ttl
}

func (m *RedisMirror) MarkOnline(ctx context.Context, userID, connID string) error {
	key := keyPrefix + userID
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key,
		"node", m.node,
		"conn", connID,
		"since", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark %s online: %w", userID, err)
	}
	return nil
}

func (m *RedisMirror) MarkOffline(ctx context.Context, userID, connID string) error {
	err := markOfflineScript.Run(ctx, m.client, []string{keyPrefix + userID}, m.node, connID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("mark %s offline: %w", userID, err)
	}
	return nil
}

func (m *RedisMirror) Touch(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := m.client.Pipeline()
	for _, u := range userIDs {
		pipe.Expire(ctx, keyPrefix+u, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh presence ttl: %w", err)
	}
	m.logger.Debug("presence ttl refreshed", zap.Int("users", len(userIDs)))
	return nil
}

func (m *RedisMirror) Locate(ctx context.Context, userID string) (Location, bool, error) {
	vals, err := m.client.HGetAll(ctx, keyPrefix+userID).Result()
	if err != nil {
		return Location{}, false, fmt.Errorf("locate %s: %w", userID, err)
	}
	if len(vals) == 0 {
		return Location{}, false, nil
	}

	loc := Location{Node: vals["node"], ConnID: vals["conn"]}
	if since, err := time.Parse(time.RFC3339Nano, vals["since"]); err == nil {
		loc.Since = since
	}
	return loc, true, nil
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
