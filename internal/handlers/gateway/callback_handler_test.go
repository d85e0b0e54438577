package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/statestore"
)

func outcomeJSON(t *testing.T, outcome *domain.TransactionOutcome) string {
	t.Helper()
	data, err := json.Marshal(outcome)
	require.NoError(t, err)
	return string(data)
}

func TestHandleCallback_RecordsFirstOutcome(t *testing.T) {
	store := statestore.NewMemoryStore(zap.NewNop())
	h := NewCallbackHandler(store, zap.NewNop())

	rec := postJSON(h.HandleCallback, "/merchant/callback", outcomeJSON(t, &domain.TransactionOutcome{
		MerchantReference: "order-1",
		Provider:          "braintree",
		Operation:         domain.OperationSale,
		Status:            domain.StatusPending,
		TransactionID:     "tx-1",
		Amount:            "10.00",
		Currency:          "EUR",
		Timestamp:         "2026-08-30T10:00:00Z",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	state, err := store.Get(context.Background(), "order-1", domain.OperationSale)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, state.Status)
}

func TestHandleCallback_RedeliveryDoesNotDowngrade(t *testing.T) {
	store := statestore.NewMemoryStore(zap.NewNop())
	h := NewCallbackHandler(store, zap.NewNop())

	success := &domain.TransactionOutcome{
		MerchantReference: "order-2",
		Operation:         domain.OperationSale,
		Status:            domain.StatusSuccess,
		TransactionID:     "tx-2",
		Amount:            "10.00",
		Currency:          "EUR",
		Timestamp:         "2026-08-30T10:01:00Z",
	}
	pending := &domain.TransactionOutcome{
		MerchantReference: "order-2",
		Operation:         domain.OperationSale,
		Status:            domain.StatusPending,
		TransactionID:     "tx-2",
		Amount:            "10.00",
		Currency:          "EUR",
		Timestamp:         "2026-08-30T10:00:00Z",
	}

	require.Equal(t, http.StatusOK, postJSON(h.HandleCallback, "/merchant/callback", outcomeJSON(t, success)).Code)
	// A stale PENDING delivered late is acknowledged but changes nothing
	require.Equal(t, http.StatusOK, postJSON(h.HandleCallback, "/merchant/callback", outcomeJSON(t, pending)).Code)

	state, err := store.Get(context.Background(), "order-2", domain.OperationSale)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, state.Status)
}

func TestHandleCallback_MissingOperationDefaultsToSale(t *testing.T) {
	store := statestore.NewMemoryStore(zap.NewNop())
	h := NewCallbackHandler(store, zap.NewNop())

	rec := postJSON(h.HandleCallback, "/merchant/callback",
		`{"merchantReference":"order-3","status":"SUCCESS","transactionId":"tx-3"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.Get(context.Background(), "order-3", domain.OperationSale)
	assert.NoError(t, err)
}

func TestHandleCallback_Validation(t *testing.T) {
	store := statestore.NewMemoryStore(zap.NewNop())
	h := NewCallbackHandler(store, zap.NewNop())

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{broken`},
		{"missing reference", `{"status":"SUCCESS"}`},
		{"missing status", `{"merchantReference":"order-4"}`},
		{"unknown status", `{"merchantReference":"order-4","status":"SETTLED"}`},
		{"unknown operation", `{"merchantReference":"order-4","status":"SUCCESS","operation":"capture"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(h.HandleCallback, "/merchant/callback", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// A rejected status must not leave anything in the store
	_, err := store.Get(context.Background(), "order-4", domain.OperationSale)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}
