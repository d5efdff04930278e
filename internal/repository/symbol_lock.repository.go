package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultProcessingLockTTL = 15 * time.Second

var releaseProcessingLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var refreshProcessingLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// SymbolLockRepository keeps per-symbol processing locks in redis so that several workers
// trading the same account never reconcile one symbol at the same time.
type SymbolLockRepository struct {
	client *redis.Client
}

func NewSymbolLockRepository(client *redis.Client) *SymbolLockRepository {
	return &SymbolLockRepository{client: client}
}

func (r *SymbolLockRepository) AcquireProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error) {
	if ttl <= 0 {
		ttl = defaultProcessingLockTTL
	}

	acquired, err := r.client.SetNX(ctx, processingLockKey(key), owner, ttl).Result()
	if err != nil {
		return false, err
	}

	return acquired, nil
}

func (r *SymbolLockRepository) RefreshProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error) {
	if ttl <= 0 {
		ttl = defaultProcessingLockTTL
	}

	refreshed, err := refreshProcessingLockScript.Run(ctx, r.client, []string{processingLockKey(key)}, owner, ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}

	return refreshed == 1, nil
}

// ReleaseProcessingLock only deletes the lock when it is still held by owner; an expired lock
// taken over by another worker is left alone.
func (r *SymbolLockRepository) ReleaseProcessingLock(ctx context.Context, key string, owner string) error {
	_, err := releaseProcessingLockScript.Run(ctx, r.client, []string{processingLockKey(key)}, owner).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	return nil
}

func processingLockKey(key string) string {
	return fmt.Sprintf("%s:processing-lock", key)
}
