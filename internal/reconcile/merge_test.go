package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
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

func TestMerge_FirstObservation(t *testing.T) {
	incoming := outcome(domain.StatusPending, "")

	merged := Merge(nil, incoming)

	require.NotNil(t, merged)
	assert.Equal(t, domain.StatusPending, merged.Status)
	assert.Equal(t, "order_101", merged.MerchantReference)
	assert.NotEmpty(t, merged.UpdatedAt)
}

func TestMerge_NoDowngradeFromSuccess(t *testing.T) {
	prev := domain.NewState(outcome(domain.StatusSuccess, "t1"), time.Now())

	for _, status := range []domain.Status{domain.StatusFailed, domain.StatusPending} {
		merged := Merge(prev, outcome(status, "t2"))
		assert.Same(t, prev, merged, "SUCCESS must not be downgraded to %s", status)
	}
}

func TestMerge_UpgradeToSuccess(t *testing.T) {
	prev := domain.NewState(outcome(domain.StatusPending, "t1"), time.Now().Add(-time.Hour))

	incoming := outcome(domain.StatusSuccess, "t1")
	merged := mergeAt(prev, incoming, time.Now())

	require.NotSame(t, prev, merged)
	assert.Equal(t, domain.StatusSuccess, merged.Status)
	assert.Equal(t, "t1", merged.TransactionID)
	assert.NotEqual(t, prev.UpdatedAt, merged.UpdatedAt)
}

func TestMerge_SameStatusNewTransactionID(t *testing.T) {
	prev := domain.NewState(outcome(domain.StatusFailed, "t1"), time.Now())

	merged := Merge(prev, outcome(domain.StatusFailed, "t2"))

	require.NotSame(t, prev, merged)
	assert.Equal(t, "t2", merged.TransactionID)
}

func TestMerge_SameStatusTransactionIDArrivesLate(t *testing.T) {
	// A gateway rejection stores FAILED without a transactionId; a later
	// processor decline for the same reference carries one and must land.
	prev := domain.NewState(outcome(domain.StatusFailed, ""), time.Now())

	merged := Merge(prev, outcome(domain.StatusFailed, "t1"))

	require.NotSame(t, prev, merged)
	assert.Equal(t, "t1", merged.TransactionID)
}

func TestMerge_SameStatusEmptyIncomingIDKeepsPrev(t *testing.T) {
	prev := domain.NewState(outcome(domain.StatusFailed, "t1"), time.Now())

	merged := Merge(prev, outcome(domain.StatusFailed, ""))

	assert.Same(t, prev, merged, "an id-less redelivery must not clobber the stored transactionId")
}

func TestMerge_SameStatusSameTransactionDetailChange(t *testing.T) {
	prev := domain.NewState(outcome(domain.StatusPending, "t1"), time.Now())

	incoming := outcome(domain.StatusPending, "t1")
	incoming.Amount = "70.00"

	merged := Merge(prev, incoming)

	require.NotSame(t, prev, merged)
	assert.Equal(t, "70.00", merged.Amount)
}

func TestMerge_IdenticalDeliveryIsNoOp(t *testing.T) {
	incoming := outcome(domain.StatusSuccess, "t1")
	prev := domain.NewState(incoming, time.Now())

	// A retried webhook carries the identical payload
	merged := Merge(prev, outcome(domain.StatusSuccess, "t1"))

	assert.Same(t, prev, merged)
}

func TestMerge_EqualRankStatusChangeKeepsPrev(t *testing.T) {
	// PENDING and FAILED share a rank; neither overwrites the other
	prev := domain.NewState(outcome(domain.StatusPending, "t1"), time.Now())

	merged := Merge(prev, outcome(domain.StatusFailed, "t1"))
	assert.Same(t, prev, merged)

	prev = domain.NewState(outcome(domain.StatusFailed, "t1"), time.Now())
	merged = Merge(prev, outcome(domain.StatusPending, "t1"))
	assert.Same(t, prev, merged)
}

func TestMerge_TimestampChangeUpdates(t *testing.T) {
	prev := domain.NewState(outcome(domain.StatusPending, "t1"), time.Now())

	incoming := outcome(domain.StatusPending, "t1")
	incoming.Timestamp = "2026-08-30T11:00:00Z"

	merged := Merge(prev, incoming)

	require.NotSame(t, prev, merged)
	assert.Equal(t, "2026-08-30T11:00:00Z", merged.Timestamp)
}
