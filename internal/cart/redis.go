package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig sets how long carts stay cached. Guest carts belong to a
// browser session and are cached for less time than a signed-in user's.
type RedisCacheConfig struct {
	UserTTL    time.Duration
	GuestTTL   time.Duration
	VersionTTL time.Duration
}

func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		UserTTL:    15 * time.Minute,
		GuestTTL:   5 * time.Minute,
		VersionTTL: 24 * time.Hour,
	}
}

// setIfCurrent writes the cart only while the owner's version still matches.
var setIfCurrent = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if (current or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// ownerKeys are the two keys kept per owner. The hash tag keeps both in one
// cluster slot so the script can touch them together.
type ownerKeys struct {
	cart    string
	version string
}

func keysFor(owner domain.CartOwner) ownerKeys {
	tag := "{" + owner.Key() + "}"
	return ownerKeys{
		cart:    "cart:" + tag,
		version: "cart:version:" + tag,
	}
}

type RedisCache struct {
	client redis.UniversalClient
	cfg    RedisCacheConfig
}

func NewRedisCache(client redis.UniversalClient, cfg RedisCacheConfig) *RedisCache {
	def := DefaultRedisCacheConfig()
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = def.UserTTL
	}
	if cfg.GuestTTL <= 0 {
		cfg.GuestTTL = def.GuestTTL
	}
	if cfg.VersionTTL <= 0 {
		cfg.VersionTTL = def.VersionTTL
	}
	return &RedisCache{client: client, cfg: cfg}
}

func (r *RedisCache) Get(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, keysFor(owner).cart).Bytes()
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
	cart.OwnerKey = owner.Key()
	return &cart, nil
}

func (r *RedisCache) Version(ctx context.Context, owner domain.CartOwner) (int64, error) {
	v, err := r.client.Get(ctx, keysFor(owner).version).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

func (r *RedisCache) Set(ctx context.Context, owner domain.CartOwner, version int64, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	k := keysFor(owner)
	stored, err := setIfCurrent.Run(ctx, r.client,
		[]string{k.version, k.cart},
		strconv.FormatInt(version, 10), payload, r.ttl(owner).Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, owner domain.CartOwner) error {
	k := keysFor(owner)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k.version)
		pipe.Expire(ctx, k.version, r.cfg.VersionTTL)
		pipe.Del(ctx, k.cart)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

// ttl adds up to a third of the base so entries written together do not
// expire together.
func (r *RedisCache) ttl(owner domain.CartOwner) time.Duration {
	base := r.cfg.UserTTL
	if owner.IsGuest() {
		base = r.cfg.GuestTTL
	}
	return base + time.Duration(rand.Int63n(int64(base/3)+1))
}
