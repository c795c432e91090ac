package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

const deliveryKeyPrefix = "loan-servicing:"

type redisDeliveryGuard struct {
	client *redis.Client
}

// NewRedisDeliveryGuard stores sent markers in Redis with SET NX and a TTL.
func NewRedisDeliveryGuard(client *redis.Client) DeliveryGuard {
	return &redisDeliveryGuard{client: client}
}

func (g *redisDeliveryGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, deliveryKeyPrefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, customError.WrapCacheError(err)
	}
	return ok, nil
}

func (g *redisDeliveryGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, deliveryKeyPrefix+key).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

// MemoryDeliveryGuard is a process-local DeliveryGuard.
type MemoryDeliveryGuard struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

func NewMemoryDeliveryGuard() *MemoryDeliveryGuard {
	return &MemoryDeliveryGuard{now: time.Now, expires: make(map[string]time.Time)}
}

func (g *MemoryDeliveryGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.expires[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryDeliveryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.expires, key)
	g.mu.Unlock()
	return nil
}
