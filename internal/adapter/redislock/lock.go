// Package redislock implements a cycle lock shared by every replica through
// Redis, so that under the skip overlap policy only one ingestion cycle runs
// at a time across the deployment.
package redislock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis key holding the lock token.
const DefaultKey = "hydro-ingest:cycle-lock"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a Redis SET NX lock with a TTL.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a lock on key. The TTL bounds how long a crashed holder can
// block other replicas.
func New(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *Lock {
	if key == "" {
		key = DefaultKey
	}
	return &Lock{client: client, key: key, ttl: ttl, logger: logger}
}

// NewClient connects to addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// TryAcquire sets the lock key if it is absent.
func (l *Lock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The cycle context may already be cancelled on shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn("release cycle lock failed", "key", l.key, "error", err)
		}
	}
	return release, true, nil
}

// CheckReadiness pings Redis.
func (l *Lock) CheckReadiness(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
