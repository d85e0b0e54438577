package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/resilience"
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewClient("http://orchestrator.local", &http.Client{}, zap.NewNop(),
		WithBackoff(&resilience.FixedBackoff{Delay: 0}),
	)
}

func saleReq() *SaleRequest {
	return &SaleRequest{
		MerchantReference:  "order-1",
		Amount:             json.RawMessage(`12.5`),
		Currency:           "EUR",
		PaymentMethodNonce: "fake-valid-nonce",
		CallbackURL:        "https://gateway.local/merchant/callback",
		IdempotencyKey:     "key-1",
	}
}

func TestForwardSale_PreservesRawAmount(t *testing.T) {
	c := newMockedClient(t)

	var gotBody map[string]json.RawMessage
	httpmock.RegisterResponder(http.MethodPost, "http://orchestrator.local/orchestrator/sale",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
			return httpmock.NewJsonResponse(http.StatusOK, Ack{OK: true})
		})

	ack, err := c.ForwardSale(context.Background(), saleReq())
	require.NoError(t, err)
	assert.True(t, ack.OK)

	// The merchant sent a JSON number; the forward must not re-render it
	// as a string.
	assert.Equal(t, "12.5", string(gotBody["amount"]))
	assert.Equal(t, `"order-1"`, string(gotBody["merchantReference"]))
}

func TestForwardSale_RetriesOn5xx(t *testing.T) {
	c := newMockedClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, "http://orchestrator.local/orchestrator/sale",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusBadGateway, "upstream down"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, Ack{OK: true, Idempotent: true})
		})

	ack, err := c.ForwardSale(context.Background(), saleReq())
	require.NoError(t, err)
	assert.True(t, ack.Idempotent)
	assert.Equal(t, 3, calls)
}

func TestForwardSale_ExhaustedRetriesIsTransportError(t *testing.T) {
	c := newMockedClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, "http://orchestrator.local/orchestrator/sale",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, "down"), nil
		})

	_, err := c.ForwardSale(context.Background(), saleReq())
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeTransportError, domain.GetErrorCode(err))
	assert.Equal(t, 3, calls)
}

func TestForwardSale_4xxIsNotRetried(t *testing.T) {
	c := newMockedClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, "http://orchestrator.local/orchestrator/sale",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad payload"), nil
		})

	_, err := c.ForwardSale(context.Background(), saleReq())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestForwardRefund(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://orchestrator.local/orchestrator/refund",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, Ack{OK: true}))

	ack, err := c.ForwardRefund(context.Background(), &RefundRequest{
		MerchantReference: "order-1",
		TransactionID:     "tx-1",
		CallbackURL:       "https://gateway.local/merchant/callback",
		IdempotencyKey:    "key-2",
	})
	require.NoError(t, err)
	assert.True(t, ack.OK)
}

func TestForwardSale_NetworkErrorRetried(t *testing.T) {
	c := newMockedClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, "http://orchestrator.local/orchestrator/sale",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.ConnectionFailure(req)
		})

	_, err := c.ForwardSale(context.Background(), saleReq())
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeTransportError, domain.GetErrorCode(err))
	assert.Equal(t, 3, calls)
}
