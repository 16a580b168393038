package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultTTL    = 15 * time.Minute
	DefaultJitter = 5 * time.Minute
)

// KEYS[1] cart, KEYS[2] floor. ARGV: payload, version, ttl ms.
var setScript = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if floor and tonumber(floor) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// KEYS[1] cart, KEYS[2] floor. ARGV: version, ttl ms.
var deleteScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
local floor = redis.call('GET', KEYS[2])
if not floor or tonumber(floor) < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
end
return 1
`)

func NewRedisCache(client redis.UniversalClient, baseTTL, jitter time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = DefaultTTL
	}
	if jitter < 0 {
		jitter = 0
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
		jitter:  jitter,
	}
}

type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
	jitter  time.Duration
}

func (r *RedisCache) Get(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	key := cacheKey(userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}

	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID primitive.ObjectID, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	keys := []string{cacheKey(userID), floorKey(userID)}
	if err := setScript.Run(ctx, r.client, keys, data, cart.Version, r.ttl().Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes the cached cart and raises the version floor, which outlives
// any entry a fill started before the commit could write.
func (r *RedisCache) Delete(ctx context.Context, userID primitive.ObjectID, version int64) error {
	keys := []string{cacheKey(userID), floorKey(userID)}
	if err := deleteScript.Run(ctx, r.client, keys, version, (r.baseTTL + r.jitter).Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// ttl spreads expirations so carts cached together do not expire together.
func (r *RedisCache) ttl() time.Duration {
	if r.jitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + time.Duration(rand.Int63n(int64(r.jitter)))
}

func cacheKey(userID primitive.ObjectID) string {
	return fmt.Sprintf("cart:%s", userID.Hex())
}

func floorKey(userID primitive.ObjectID) string {
	return fmt.Sprintf("cart:%s:floor", userID.Hex())
}
