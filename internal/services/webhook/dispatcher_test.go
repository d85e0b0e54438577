package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/resilience"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/signature"
)

const testSecret = "webhook-test-secret"

func testOutcome() *domain.TransactionOutcome {
	return &domain.TransactionOutcome{
		MerchantReference: "order-77",
		Provider:          "braintree",
		Operation:         domain.OperationSale,
		Status:            domain.StatusSuccess,
		TransactionID:     "tx-77",
		Amount:            "10.00",
		Currency:          "EUR",
		Timestamp:         "2026-08-30T12:00:00Z",
	}
}

func testDispatcher(client *http.Client) *Dispatcher {
	return NewDispatcher(client, testSecret, zap.NewNop(),
		WithBackoff(&resilience.FixedBackoff{Delay: 0}),
	)
}

func TestDeliver_SignsExactPayloadBytes(t *testing.T) {
	var gotBody []byte
	var gotSig, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDispatcher(srv.Client())
	outcome := testOutcome()

	err := d.Deliver(context.Background(), srv.URL, outcome)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.True(t, signature.Verify(gotSig, gotBody, testSecret),
		"signature must verify against the delivered bytes")

	var decoded domain.TransactionOutcome
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, *outcome, decoded)
}

func TestDeliver_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDispatcher(srv.Client())

	err := d.Deliver(context.Background(), srv.URL, testOutcome())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := testDispatcher(srv.Client())

	err := d.Deliver(context.Background(), srv.URL, testOutcome())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_4xxIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := testDispatcher(srv.Client())

	err := d.Deliver(context.Background(), srv.URL, testOutcome())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestDeliver_RetriesOnNetworkError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	deadURL := srv.URL
	srv.Close() // connection refused for the first round

	d := testDispatcher(&http.Client{Timeout: time.Second})

	err := d.Deliver(context.Background(), deadURL, testOutcome())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts", "network errors must exhaust the retry budget")
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDeliver_ContextCancelledBetweenAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.Client(), testSecret, zap.NewNop(),
		WithBackoff(&resilience.FixedBackoff{Delay: time.Minute}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Deliver(ctx, srv.URL, testOutcome())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatch_RunsDetachedAndDrains(t *testing.T) {
	delivered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		close(delivered)
	}))
	defer srv.Close()

	d := testDispatcher(srv.Client())
	d.Dispatch(srv.URL, testOutcome())

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never reached the listener")
	}
	assert.True(t, d.Drain(2*time.Second))
}

func TestDispatch_EmptyURLIsNoop(t *testing.T) {
	d := testDispatcher(&http.Client{Timeout: time.Second})
	d.Dispatch("", testOutcome())
	assert.True(t, d.Drain(time.Second))
}
