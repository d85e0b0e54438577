package ports

import (
	"context"
	"time"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
)

// Reservation is a claimed idempotency slot. The holder owns the only
// in-flight processing attempt for its (key, operation) pair and must end
// it with exactly one of Complete or Release.
type Reservation interface {
	// Complete stores the outcome and wakes any waiting duplicates
	Complete(ctx context.Context, outcome *domain.TransactionOutcome) error

	// Release abandons the slot without an outcome. Waiting duplicates
	// fail with a STORE_RESERVE_LOST error and the key becomes free again.
	Release(ctx context.Context) error
}

// IdempotencyCache stores one computed outcome per (idempotencyKey, operation)
// for the duration of the TTL. Reserve is the only write path: the
// check-then-act has to be a single atomic step so that two requests racing
// on the same key cannot both reach the payment gateway.
type IdempotencyCache interface {
	// Get returns the cached outcome for the pair, if any. It never blocks
	// on an in-flight reservation.
	Get(ctx context.Context, key string, op domain.Operation) (*domain.TransactionOutcome, bool, error)

	// Reserve atomically claims (key, op) or returns the existing outcome.
	// Exactly one of the return values is set on success:
	//   - reservation non-nil: the caller won and must process the request
	//   - outcome non-nil: a previous attempt already produced this outcome
	//     (if that attempt is still in flight, Reserve blocks until it
	//     completes, so every duplicate observes the identical outcome)
	Reserve(ctx context.Context, key string, op domain.Operation, ttl time.Duration) (Reservation, *domain.TransactionOutcome, error)
}

// StateStore holds the merged PaymentState per (merchantReference, operation).
// Apply must be atomic per key: concurrent read-modify-write for the same
// pair may not interleave.
type StateStore interface {
	// Get returns the current state, or ErrStateNotFound when the
	// reference was never observed.
	Get(ctx context.Context, ref string, op domain.Operation) (*domain.PaymentState, error)

	// Apply merges the incoming outcome into the stored state under the
	// key lock and reports whether the stored state changed.
	Apply(ctx context.Context, ref string, op domain.Operation, incoming *domain.TransactionOutcome) (*domain.PaymentState, bool, error)
}
