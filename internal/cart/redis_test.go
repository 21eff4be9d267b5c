package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, RedisCacheConfig{
		UserTTL:    3 * time.Minute,
		GuestTTL:   time.Minute,
		VersionTTL: time.Hour,
	}), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	owner := domain.CartOwner{UserID: "user123"}
	cart := domain.NewCart(owner, time.Now())
	require.NoError(t, cart.AddLine(domain.CartLine{ProductID: 1, Name: "Keyboard", Quantity: 2, UnitPrice: 12999}))

	require.NoError(t, cache.Set(ctx, owner, 0, cart))
	assert.True(t, mr.Exists("cart:{user:user123}"))

	got, err := cache.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, "user:user123", got.OwnerKey)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(12999), got.Lines[0].UnitPrice)
}

func TestRedisCache_TTLByOwnerKind(t *testing.T) {
	tests := []struct {
		name  string
		owner domain.CartOwner
		key   string
		min   time.Duration
		max   time.Duration
	}{
		{name: "user", owner: domain.CartOwner{UserID: "u-1"}, key: "cart:{user:u-1}", min: 3 * time.Minute, max: 4 * time.Minute},
		{name: "guest", owner: domain.CartOwner{SessionID: "s-1"}, key: "cart:{guest:s-1}", min: time.Minute, max: 80 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, mr := setupTestRedis(t)
			require.NoError(t, cache.Set(context.Background(), tt.owner, 0, domain.NewCart(tt.owner, time.Now())))

			ttl := mr.TTL(tt.key)
			assert.GreaterOrEqual(t, ttl, tt.min)
			assert.LessOrEqual(t, ttl, tt.max)
		})
	}
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), domain.CartOwner{UserID: "nonexistent"})
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestRedisCache_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:{user:bad}", "{not json"))

	_, err := cache.Get(context.Background(), domain.CartOwner{UserID: "bad"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Invalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	owner := domain.CartOwner{SessionID: "s-1"}
	require.NoError(t, cache.Set(ctx, owner, 0, domain.NewCart(owner, time.Now())))
	require.NoError(t, cache.Invalidate(ctx, owner))
	assert.False(t, mr.Exists("cart:{guest:s-1}"))

	v, err := cache.Version(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, time.Hour, mr.TTL("cart:version:{guest:s-1}"))

	// invalidating an owner with nothing cached is not an error
	require.NoError(t, cache.Invalidate(ctx, owner))
	v, err = cache.Version(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestRedisCache_SetRejectsStaleVersion(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	owner := domain.CartOwner{UserID: "racer"}

	readVersion, err := cache.Version(ctx, owner)
	require.NoError(t, err)

	// a writer commits between the read and the cache fill
	require.NoError(t, cache.Invalidate(ctx, owner))

	err = cache.Set(ctx, owner, readVersion, domain.NewCart(owner, time.Now()))
	require.ErrorIs(t, err, ErrStaleVersion)
	assert.False(t, mr.Exists("cart:{user:racer}"))

	current, err := cache.Version(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, owner, current, domain.NewCart(owner, time.Now())))
	assert.True(t, mr.Exists("cart:{user:racer}"))
}

func TestRedisCache_Expiry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	owner := domain.CartOwner{UserID: "ttl"}
	require.NoError(t, cache.Set(ctx, owner, 0, domain.NewCart(owner, time.Now())))

	mr.FastForward(10 * time.Minute)
	_, err := cache.Get(ctx, owner)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
