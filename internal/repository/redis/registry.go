package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const roomKeyPrefix = "codebattle:room:"

// releaseScript deletes a reservation only while this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RoomRegistry makes room codes unique across every instance sharing the
// same Redis. A reservation expires after ttl unless refreshed.
type RoomRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration, instance string) *RoomRegistry {
	return &RoomRegistry{client: client, ttl: ttl, instance: instance}
}

func (r *RoomRegistry) key(code string) string {
	return roomKeyPrefix + code
}

// Reserve claims code. It reports false when another holder has it.
func (r *RoomRegistry) Reserve(ctx context.Context, code string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(code), r.instance, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve room code %s: %w", code, err)
	}
	return ok, nil
}

// Release drops the reservation of code if this instance holds it. A code
// reserved by another instance is left alone.
func (r *RoomRegistry) Release(ctx context.Context, code string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(code)}, r.instance).Err(); err != nil {
		return fmt.Errorf("release room code %s: %w", code, err)
	}
	return nil
}

// Refresh extends the reservation of a room that is still alive.
func (r *RoomRegistry) Refresh(ctx context.Context, code string) error {
	return r.client.Expire(ctx, r.key(code), r.ttl).Err()
}

// owner returns the instance holding code, or "" when it is free.
func (r *RoomRegistry) owner(ctx context.Context, code string) (string, error) {
	owner, err := r.client.Get(ctx, r.key(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return owner, err
}
