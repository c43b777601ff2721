package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PresenceMirror reflects presence transitions into an external store so
// other processes can read them. Purely advisory.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (bool, error)
}

// PresenceTracker maintains an in-memory count of live sessions per user.
// State is reconstructible and resets on restart; nothing here is
// authoritative for anything that survives the process.
type PresenceTracker struct {
	mu     sync.Mutex
	conns  map[string]int
	mirror PresenceMirror
	logger *zap.Logger
}

// NewPresenceTracker creates a tracker; mirror may be nil.
func NewPresenceTracker(mirror PresenceMirror, logger *zap.Logger) *PresenceTracker {
	return &PresenceTracker{
		conns:  make(map[string]int),
		mirror: mirror,
		logger: logger,
	}
}

// Connected records a new session and reports whether the user just came
// online (first session).
func (t *PresenceTracker) Connected(ctx context.Context, userID string) bool {
	t.mu.Lock()
	t.conns[userID]++
	first := t.conns[userID] == 1
	t.mu.Unlock()

	if first && t.mirror != nil {
		if err := t.mirror.SetOnline(ctx, userID); err != nil {
			t.logger.Warn("presence mirror set online", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return first
}

// Disconnected records a closed session and reports whether the user just
// went offline (last session).
func (t *PresenceTracker) Disconnected(ctx context.Context, userID string) bool {
	t.mu.Lock()
	if t.conns[userID] > 0 {
		t.conns[userID]--
	}
	last := t.conns[userID] == 0
	if last {
		delete(t.conns, userID)
	}
	t.mu.Unlock()

	if last && t.mirror != nil {
		if err := t.mirror.SetOffline(ctx, userID); err != nil {
			t.logger.Warn("presence mirror set offline", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return last
}

// IsOnline reports whether the user has at least one live session on this
// process.
func (t *PresenceTracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[userID] > 0
}

// Status resolves presence, consulting the mirror for users not connected
// locally.
func (t *PresenceTracker) Status(ctx context.Context, userID string) bool {
	if t.IsOnline(userID) {
		return true
	}
	if t.mirror == nil {
		return false
	}
	online, err := t.mirror.Status(ctx, userID)
	if err != nil {
		return false
	}
	return online
}

// RedisPresence mirrors presence into Redis TTL keys.
type RedisPresence struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPresence builds a mirror over the given client.
func NewRedisPresence(client *redis.Client, prefix string, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisPresence) key(userID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, userID)
}

// SetOnline marks the user online; the key expires on its own if the
// process dies without a clean offline transition.
func (r *RedisPresence) SetOnline(ctx context.Context, userID string) error {
	return r.client.Set(ctx, r.key(userID), "online", r.ttl).Err()
}

// SetOffline marks the user offline.
func (r *RedisPresence) SetOffline(ctx context.Context, userID string) error {
	return r.client.Set(ctx, r.key(userID), "offline", r.ttl).Err()
}

// Status reads the mirrored state; a missing key means offline.
func (r *RedisPresence) Status(ctx context.Context, userID string) (bool, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "online", nil
}
