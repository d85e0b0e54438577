package statestore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
)

func outcome(status domain.Status, txnID string) *domain.TransactionOutcome {
	return &domain.TransactionOutcome{
		MerchantReference: "order_101",
		Provider:          "braintree",
		Operation:         domain.OperationSale,
		Status:            status,
		TransactionID:     txnID,
		Amount:            "65.00",
		Currency:          "EUR",
		Timestamp:         "2026-08-30T10:00:00Z",
	}
}

// Both backends must satisfy the same contract
func stores(t *testing.T) map[string]ports.StateStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]ports.StateStore{
		"memory": NewMemoryStore(zap.NewNop()),
		"redis":  NewRedisStore(client, zap.NewNop()),
	}
}

func TestStore_GetUnknownReference(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "never-seen", domain.OperationSale)
			assert.True(t, domain.IsNotFoundError(err))
		})
	}
}

func TestStore_ApplyFirstObservation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			merged, changed, err := store.Apply(ctx, "order_101", domain.OperationSale, outcome(domain.StatusPending, ""))
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, domain.StatusPending, merged.Status)

			got, err := store.Get(ctx, "order_101", domain.OperationSale)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, got.Status)
		})
	}
}

func TestStore_ApplyUpgradeThenNoDowngrade(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _, err := store.Apply(ctx, "order_101", domain.OperationSale, outcome(domain.StatusPending, "t1"))
			require.NoError(t, err)

			merged, changed, err := store.Apply(ctx, "order_101", domain.OperationSale, outcome(domain.StatusSuccess, "t1"))
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, domain.StatusSuccess, merged.Status)

			// A stale FAILED retry must not downgrade the stored SUCCESS
			merged, changed, err = store.Apply(ctx, "order_101", domain.OperationSale, outcome(domain.StatusFailed, "t1"))
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, domain.StatusSuccess, merged.Status)

			got, err := store.Get(ctx, "order_101", domain.OperationSale)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusSuccess, got.Status)
		})
	}
}

func TestStore_DuplicateDeliveryIsNoOp(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, changed, err := store.Apply(ctx, "order_101", domain.OperationSale, outcome(domain.StatusSuccess, "t1"))
			require.NoError(t, err)
			assert.True(t, changed)

			_, changed, err = store.Apply(ctx, "order_101", domain.OperationSale, outcome(domain.StatusSuccess, "t1"))
			require.NoError(t, err)
			assert.False(t, changed, "identical redelivery must be a no-op")
		})
	}
}

func TestStore_OperationsAreIndependent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			saleOutcome := outcome(domain.StatusSuccess, "t1")
			refundOutcome := outcome(domain.StatusPending, "t2")
			refundOutcome.Operation = domain.OperationRefund

			_, _, err := store.Apply(ctx, "order_101", domain.OperationSale, saleOutcome)
			require.NoError(t, err)
			_, _, err = store.Apply(ctx, "order_101", domain.OperationRefund, refundOutcome)
			require.NoError(t, err)

			sale, err := store.Get(ctx, "order_101", domain.OperationSale)
			require.NoError(t, err)
			refund, err := store.Get(ctx, "order_101", domain.OperationRefund)
			require.NoError(t, err)

			assert.Equal(t, domain.StatusSuccess, sale.Status)
			assert.Equal(t, domain.StatusPending, refund.Status)
		})
	}
}

func TestMemoryStore_ConcurrentApplyKeepsSuccess(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	_, _, err := store.Apply(ctx, "order_101", domain.OperationSale, outcome(domain.StatusSuccess, "t1"))
	require.NoError(t, err)

	// A burst of out-of-order redeliveries must never clobber SUCCESS
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := domain.StatusPending
			if i%2 == 0 {
				status = domain.StatusFailed
			}
			o := outcome(status, fmt.Sprintf("t%d", i))
			_, _, err := store.Apply(ctx, "order_101", domain.OperationSale, o)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, "order_101", domain.OperationSale)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.Equal(t, "t1", got.TransactionID)
}
