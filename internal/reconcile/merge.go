// Package reconcile folds incoming transaction outcomes into the durable
// payment state under a no-downgrade policy.
//
// SUCCESS is trust-anchored: funds moved. Webhooks are delivered
// at-least-once and out of order, so a stale PENDING or FAILED delivery
// can arrive after a SUCCESS and must never overwrite it.
package reconcile

import (
	"time"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
)

// Merge combines the previous state with an incoming outcome.
//
// Rules, in order:
//  1. prev absent: the incoming outcome becomes the first observation
//  2. prev SUCCESS, incoming not SUCCESS: keep prev (no downgrade)
//  3. incoming outranks prev: take incoming, refresh updatedAt (upgrade)
//  4. same status, incoming carries a transactionId that differs from the
//     stored one (including a stored empty id): a new underlying attempt,
//     take incoming
//  5. same status and transactionId: take incoming only if amount,
//     currency or timestamp changed
//
// When nothing changes, Merge returns prev itself, so callers can detect
// "no update" by comparing pointers instead of diffing fields.
func Merge(prev *domain.PaymentState, incoming *domain.TransactionOutcome) *domain.PaymentState {
	return mergeAt(prev, incoming, time.Now())
}

func mergeAt(prev *domain.PaymentState, incoming *domain.TransactionOutcome, now time.Time) *domain.PaymentState {
	if prev == nil {
		return domain.NewState(incoming, now)
	}

	if prev.Status == domain.StatusSuccess && incoming.Status != domain.StatusSuccess {
		return prev
	}

	if incoming.Status.Rank() > prev.Status.Rank() {
		return domain.NewState(incoming, now)
	}

	if prev.Status == incoming.Status {
		if incoming.TransactionID != "" && incoming.TransactionID != prev.TransactionID {
			return domain.NewState(incoming, now)
		}

		if prev.TransactionID == incoming.TransactionID && detailsChanged(prev, incoming) {
			return domain.NewState(incoming, now)
		}
	}

	return prev
}

// detailsChanged compares the remaining mutable fields structurally.
// Serialization-based diffing is order- and formatting-sensitive, so the
// known schema is compared field by field instead.
func detailsChanged(prev *domain.PaymentState, incoming *domain.TransactionOutcome) bool {
	return prev.Amount != incoming.Amount ||
		prev.Currency != incoming.Currency ||
		prev.Timestamp != incoming.Timestamp
}
