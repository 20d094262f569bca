// Package marker wraps short-lived Redis keys used as idempotency markers and
// advisory locks. Every method is a no-op success on a nil client so the
// service keeps working without Redis; the database stays authoritative.
package marker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) enabled() bool {
	return s != nil && s.rdb != nil
}

// SetOnce sets key if absent. It reports true when this caller set it.
func (s *Store) SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !s.enabled() {
		return true, nil
	}

	wasSet, err := s.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set marker %s in redis: %w", key, err)
	}

	return wasSet, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	if !s.enabled() {
		return 0, nil
	}
	return s.rdb.TTL(ctx, key).Result()
}

func (s *Store) Clear(ctx context.Context, key string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.rdb.Del(ctx, key).Result()
	return err
}

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes an advisory lock. ok is false when another holder has it.
// The returned unlock is always safe to call.
func (s *Store) Lock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error) {
	if !s.enabled() {
		return func() {}, true, nil
	}

	key := LockKey(name)
	token := uuid.NewString()
	wasSet, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("failed to take lock %s: %w", name, err)
	}
	if !wasSet {
		return func() {}, false, nil
	}

	return func() {
		// detached: the caller's ctx may already be done
		_ = unlockScript.Run(context.Background(), s.rdb, []string{key}, token).Err()
	}, true, nil
}

func LockKey(name string) string {
	return "lock:scheduler:" + name
}

func DailyLoginKey(userID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("marker:daily_login:%s:%s", userID.String(), day.Format("2006-01-02"))
}

func ActionKey(userID uuid.UUID, action, itemID string) string {
	return fmt.Sprintf("marker:action:user:%s:%s:%s", userID.String(), action, itemID)
}
