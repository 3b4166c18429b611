// internal/cache/presence.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key while it still holds the given connection id.
// An expired key counts as current: no newer connection has claimed the user.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == false or v == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// Presence stores each user's live connection id under presence:<user>.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPresence builds a presence registry. Entries expire after ttl so a
// crashed server cannot pin users online forever.
func NewPresence(rdb *redis.Client, ttl time.Duration) *Presence {
	return &Presence{rdb: rdb, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}

func (p *Presence) Register(ctx context.Context, userID uuid.UUID, connID string) error {
	if err := p.rdb.Set(ctx, presenceKey(userID), connID, p.ttl).Err(); err != nil {
		return fmt.Errorf("presence set: %w", err)
	}
	return nil
}

func (p *Presence) Release(ctx context.Context, userID uuid.UUID, connID string) (bool, error) {
	n, err := releaseScript.Run(ctx, p.rdb, []string{presenceKey(userID)}, connID).Int()
	if err != nil {
		return false, fmt.Errorf("presence release: %w", err)
	}
	return n == 1, nil
}

// Current returns the user's live connection id, if any.
func (p *Presence) Current(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	v, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence get: %w", err)
	}
	return v, true, nil
}
