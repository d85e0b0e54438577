package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
)

const (
	// reservedPrefix marks a placeholder value written by Reserve.
	// The suffix is a per-reservation token so Release can only delete
	// its own placeholder.
	reservedPrefix = "reserved:"

	// defaultReserveTTL bounds how long a crashed winner can block a key.
	// Must comfortably exceed the gateway timeout so a slow-but-alive
	// attempt is not evicted mid-call.
	defaultReserveTTL = 2 * time.Minute

	defaultPollInterval = 100 * time.Millisecond
)

// releaseScript deletes the placeholder only if this reservation still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache is the Redis-backed IdempotencyCache. SET NX on a placeholder
// value is the atomic reserve step; duplicates poll until the winner
// replaces the placeholder with the outcome.
type RedisCache struct {
	client       *redis.Client
	logger       *zap.Logger
	reserveTTL   time.Duration
	pollInterval time.Duration
}

// NewRedisCache creates a Redis-backed idempotency cache
func NewRedisCache(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client:       client,
		logger:       logger,
		reserveTTL:   defaultReserveTTL,
		pollInterval: defaultPollInterval,
	}
}

func redisCacheKey(key string, op domain.Operation) string {
	return "idempotency:" + string(op) + ":" + key
}

// Get returns the cached outcome if present. Placeholders left by an
// in-flight reservation count as a miss.
func (c *RedisCache) Get(ctx context.Context, key string, op domain.Operation) (*domain.TransactionOutcome, bool, error) {
	val, err := c.client.Get(ctx, redisCacheKey(key, op)).Result()
	if err == redis.Nil {
		cacheMisses.WithLabelValues("not_found").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrorCodeStoreError, "idempotency cache read failed", err)
	}
	if strings.HasPrefix(val, reservedPrefix) {
		cacheMisses.WithLabelValues("not_found").Inc()
		return nil, false, nil
	}

	var outcome domain.TransactionOutcome
	if err := json.Unmarshal([]byte(val), &outcome); err != nil {
		return nil, false, domain.WrapError(domain.ErrorCodeStoreError, "idempotency cache entry corrupt", err)
	}

	cacheHits.Inc()
	return &outcome, true, nil
}

// Reserve claims (key, op) via SET NX or returns the existing outcome.
// A duplicate arriving while the winner is still processing polls the key
// until the placeholder is replaced, removed, or the context expires.
func (c *RedisCache) Reserve(ctx context.Context, key string, op domain.Operation, ttl time.Duration) (ports.Reservation, *domain.TransactionOutcome, error) {
	k := redisCacheKey(key, op)
	token := reservedPrefix + uuid.NewString()
	waited := false

	for {
		ok, err := c.client.SetNX(ctx, k, token, c.reserveTTL).Result()
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrorCodeStoreError, "idempotency reserve failed", err)
		}
		if ok {
			cacheReservations.Inc()
			return &redisReservation{cache: c, key: k, token: token, ttl: ttl}, nil, nil
		}

		val, err := c.client.Get(ctx, k).Result()
		if err == redis.Nil {
			// Winner released or placeholder expired between SETNX and GET
			continue
		}
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrorCodeStoreError, "idempotency cache read failed", err)
		}

		if !strings.HasPrefix(val, reservedPrefix) {
			var outcome domain.TransactionOutcome
			if err := json.Unmarshal([]byte(val), &outcome); err != nil {
				return nil, nil, domain.WrapError(domain.ErrorCodeStoreError, "idempotency cache entry corrupt", err)
			}
			cacheHits.Inc()
			return nil, &outcome, nil
		}

		if !waited {
			waited = true
			cacheWaits.Inc()
			c.logger.Debug("Waiting on in-flight idempotency reservation",
				zap.String("idempotency_key", key),
				zap.String("operation", string(op)),
			)
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

type redisReservation struct {
	cache *RedisCache
	key   string
	token string
	ttl   time.Duration
	done  sync.Once
}

// Complete replaces the placeholder with the outcome for the full TTL
func (r *redisReservation) Complete(ctx context.Context, outcome *domain.TransactionOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	if err := r.cache.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrorCodeStoreError, "idempotency complete failed", err)
	}

	r.done.Do(cacheReservations.Dec)
	return nil
}

// Release removes the placeholder if this reservation still owns it
func (r *redisReservation) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.cache.client, []string{r.key}, r.token).Err(); err != nil && err != redis.Nil {
		return domain.WrapError(domain.ErrorCodeStoreError, "idempotency release failed", err)
	}

	r.done.Do(cacheReservations.Dec)
	return nil
}
