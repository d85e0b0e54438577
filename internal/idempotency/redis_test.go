package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRedisCache(client, zap.NewNop())
	cache.pollInterval = 5 * time.Millisecond
	return cache, mr
}

func TestRedisCache_ReserveCompleteGet(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	res, existing, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Nil(t, existing)

	outcome := testOutcome("order_101")
	require.NoError(t, res.Complete(ctx, outcome))

	got, ok, err := cache.Get(ctx, "k1", domain.OperationSale)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, outcome, got)

	res2, existing2, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, res2)
	assert.Equal(t, outcome, existing2)
}

func TestRedisCache_PlaceholderIsAMissForGet(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	res, _, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, res)
	defer res.Release(ctx)

	_, ok, err := cache.Get(ctx, "k1", domain.OperationSale)
	require.NoError(t, err)
	assert.False(t, ok, "in-flight placeholder must read as a miss")
}

func TestRedisCache_DuplicateWaitsForWinner(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	res, _, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, res)

	type result struct {
		outcome *domain.TransactionOutcome
		err     error
	}
	waiter := make(chan result, 1)
	go func() {
		_, out, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
		waiter <- result{out, err}
	}()

	time.Sleep(20 * time.Millisecond)
	outcome := testOutcome("order_101")
	require.NoError(t, res.Complete(ctx, outcome))

	select {
	case r := <-waiter:
		require.NoError(t, r.err)
		assert.Equal(t, outcome, r.outcome)
	case <-time.After(time.Second):
		t.Fatal("duplicate did not observe the winner's outcome")
	}
}

func TestRedisCache_ReleaseFreesKey(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	res, _, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	require.NoError(t, res.Release(ctx))

	res2, existing, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, res2)
	assert.Nil(t, existing)
	require.NoError(t, res2.Release(ctx))
}

func TestRedisCache_ReleaseOnlyDeletesOwnPlaceholder(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	res, _, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)

	outcome := testOutcome("order_101")
	require.NoError(t, res.Complete(ctx, outcome))

	// A late Release after Complete must not delete the stored outcome
	require.NoError(t, res.Release(ctx))

	got, ok, err := cache.Get(ctx, "k1", domain.OperationSale)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, outcome, got)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	res, _, err := cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	require.NoError(t, res.Complete(ctx, testOutcome("order_101")))

	mr.FastForward(2 * time.Hour)

	_, ok, err := cache.Get(ctx, "k1", domain.OperationSale)
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not be returned")
}

func TestRedisCache_WaiterRespectsContext(t *testing.T) {
	cache, _ := newTestRedisCache(t)

	res, _, err := cache.Reserve(context.Background(), "k1", domain.OperationSale, time.Hour)
	require.NoError(t, err)
	defer res.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err = cache.Reserve(ctx, "k1", domain.OperationSale, time.Hour)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
