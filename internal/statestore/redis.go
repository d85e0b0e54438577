package statestore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/reconcile"
)

// applyRetries bounds how often an optimistic transaction is retried
// after losing a WATCH race on the same key.
const applyRetries = 5

// RedisStore is the Redis-backed StateStore. Apply runs the merge inside
// a WATCH-guarded transaction so a concurrent write to the same key
// aborts and retries instead of interleaving.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed state store
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func redisStateKey(ref string, op domain.Operation) string {
	return "state:" + string(op) + ":" + ref
}

// Get returns the current state, or ErrStateNotFound when absent
func (s *RedisStore) Get(ctx context.Context, ref string, op domain.Operation) (*domain.PaymentState, error) {
	val, err := s.client.Get(ctx, redisStateKey(ref, op)).Result()
	if err == redis.Nil {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStoreError, "state read failed", err)
	}

	var state domain.PaymentState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStoreError, "state entry corrupt", err)
	}
	return &state, nil
}

// Apply merges the incoming outcome under an optimistic transaction
func (s *RedisStore) Apply(ctx context.Context, ref string, op domain.Operation, incoming *domain.TransactionOutcome) (*domain.PaymentState, bool, error) {
	k := redisStateKey(ref, op)

	var merged *domain.PaymentState
	var changed bool

	txn := func(tx *redis.Tx) error {
		var prev *domain.PaymentState

		val, err := tx.Get(ctx, k).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			prev = &domain.PaymentState{}
			if err := json.Unmarshal([]byte(val), prev); err != nil {
				return err
			}
		}

		merged = reconcile.Merge(prev, incoming)
		changed = merged != prev
		if !changed {
			return nil
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < applyRetries; i++ {
		err := s.client.Watch(ctx, txn, k)
		if err == nil {
			return merged, changed, nil
		}
		if err == redis.TxFailedErr {
			s.logger.Debug("State apply lost watch race, retrying",
				zap.String("merchant_reference", ref),
				zap.String("operation", string(op)),
			)
			continue
		}
		return nil, false, domain.WrapError(domain.ErrorCodeStoreError, "state apply failed", err)
	}

	return nil, false, domain.NewDomainError(domain.ErrorCodeStoreError, "state apply retries exhausted")
}
