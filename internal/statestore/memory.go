// Package statestore holds the merged PaymentState per
// (merchantReference, operation) and serves status queries from it.
package statestore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/reconcile"
)

// MemoryStore is the in-process StateStore backend. The single mutex
// makes every Apply a serialized read-merge-write, which satisfies the
// per-key atomicity requirement.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*domain.PaymentState
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory state store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*domain.PaymentState),
		logger: logger,
	}
}

func stateKey(ref string, op domain.Operation) string {
	return string(op) + ":" + ref
}

// Get returns the current state, or ErrStateNotFound when the reference
// was never observed for this operation.
func (s *MemoryStore) Get(ctx context.Context, ref string, op domain.Operation) (*domain.PaymentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[stateKey(ref, op)]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return state, nil
}

// Apply merges the incoming outcome into the stored state and reports
// whether the stored state changed.
func (s *MemoryStore) Apply(ctx context.Context, ref string, op domain.Operation, incoming *domain.TransactionOutcome) (*domain.PaymentState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := stateKey(ref, op)
	prev := s.states[k]

	merged := reconcile.Merge(prev, incoming)
	changed := merged != prev
	if changed {
		s.states[k] = merged
	}

	return merged, changed, nil
}
