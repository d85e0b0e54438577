// Package idempotency guarantees at-most-one gateway side effect per
// (idempotencyKey, operation) within the replay window.
//
// The write path is a single atomic reserve-or-return step. A separate
// has/get/set sequence leaves a window where two requests carrying the
// same key both miss and both reach the payment gateway; Reserve closes
// that window by claiming the key under the store's own synchronization.
package idempotency

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
)

type memoryEntry struct {
	done      chan struct{} // closed on Complete or Release
	outcome   *domain.TransactionOutcome
	released  bool
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	// An in-flight reservation has no expiry yet
	return e.outcome != nil && now.After(e.expiresAt)
}

// MemoryCache is the in-process IdempotencyCache backend.
// One mutex guards the map; waiting for an in-flight winner happens on
// the entry's done channel, outside the lock.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	logger  *zap.Logger
}

// NewMemoryCache creates an empty in-memory idempotency cache
func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		logger:  logger,
	}
}

func cacheKey(key string, op domain.Operation) string {
	return string(op) + ":" + key
}

// Get returns the cached outcome if present and unexpired. In-flight
// reservations are reported as a miss; Get never blocks.
func (c *MemoryCache) Get(ctx context.Context, key string, op domain.Operation) (*domain.TransactionOutcome, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(key, op)]
	if !ok {
		cacheMisses.WithLabelValues("not_found").Inc()
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		delete(c.entries, cacheKey(key, op))
		cacheMisses.WithLabelValues("expired").Inc()
		return nil, false, nil
	}
	if e.outcome == nil {
		cacheMisses.WithLabelValues("not_found").Inc()
		return nil, false, nil
	}

	cacheHits.Inc()
	return e.outcome, true, nil
}

// Reserve atomically claims (key, op) or returns the existing outcome.
// When another attempt holds the reservation, Reserve blocks until that
// attempt completes and then returns its outcome, so every duplicate
// observes the identical result.
func (c *MemoryCache) Reserve(ctx context.Context, key string, op domain.Operation, ttl time.Duration) (ports.Reservation, *domain.TransactionOutcome, error) {
	k := cacheKey(key, op)

	c.mu.Lock()

	if e, ok := c.entries[k]; ok && !e.expired(time.Now()) {
		if e.outcome != nil {
			c.mu.Unlock()
			cacheHits.Inc()
			return nil, e.outcome, nil
		}

		// Another request won the race; wait for its outcome
		c.mu.Unlock()
		cacheWaits.Inc()
		c.logger.Debug("Waiting on in-flight idempotency reservation",
			zap.String("idempotency_key", key),
			zap.String("operation", string(op)),
		)

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-e.done:
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if e.released || e.outcome == nil {
			return nil, nil, domain.ErrReserveLost
		}
		cacheHits.Inc()
		return nil, e.outcome, nil
	}

	e := &memoryEntry{done: make(chan struct{})}
	c.entries[k] = e
	c.mu.Unlock()

	cacheReservations.Inc()
	return &memoryReservation{cache: c, key: k, entry: e, ttl: ttl}, nil, nil
}

type memoryReservation struct {
	cache *MemoryCache
	key   string
	entry *memoryEntry
	ttl   time.Duration
	once  sync.Once
}

// Complete stores the outcome for the TTL and wakes waiting duplicates
func (r *memoryReservation) Complete(ctx context.Context, outcome *domain.TransactionOutcome) error {
	r.once.Do(func() {
		r.cache.mu.Lock()
		r.entry.outcome = outcome
		r.entry.expiresAt = time.Now().Add(r.ttl)
		r.cache.mu.Unlock()

		close(r.entry.done)
		cacheReservations.Dec()
	})
	return nil
}

// Release abandons the slot; waiting duplicates fail and the key frees up
func (r *memoryReservation) Release(ctx context.Context) error {
	r.once.Do(func() {
		r.cache.mu.Lock()
		r.entry.released = true
		delete(r.cache.entries, r.key)
		r.cache.mu.Unlock()

		close(r.entry.done)
		cacheReservations.Dec()
	})
	return nil
}
