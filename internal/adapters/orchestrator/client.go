// Package orchestrator is the gateway-side HTTP client for the processing
// service. Forwarding is transport-level only: the orchestrator acks
// acceptance, the actual outcome arrives later over the webhook.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/resilience"
)

// SaleRequest is the forwarded sale payload. Amount stays raw so the
// number-versus-string distinction from the merchant survives the hop.
type SaleRequest struct {
	MerchantReference  string          `json:"merchantReference"`
	Amount             json.RawMessage `json:"amount"`
	Currency           string          `json:"currency,omitempty"`
	PaymentMethodNonce string          `json:"paymentMethodNonce"`
	CallbackURL        string          `json:"callbackUrl"`
	IdempotencyKey     string          `json:"idempotencyKey"`
}

// RefundRequest is the forwarded refund payload
type RefundRequest struct {
	MerchantReference string          `json:"merchantReference"`
	TransactionID     string          `json:"transactionId"`
	Amount            json.RawMessage `json:"amount,omitempty"`
	CallbackURL       string          `json:"callbackUrl"`
	IdempotencyKey    string          `json:"idempotencyKey"`
}

// Ack is the orchestrator's synchronous acceptance answer
type Ack struct {
	OK         bool `json:"ok"`
	Idempotent bool `json:"idempotent,omitempty"`
}

// Client forwards merchant requests to the orchestrator with bounded
// transport retries. Retrying here is safe: the orchestrator deduplicates
// on the idempotency key, so a replayed forward can never double-charge.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	retries    int
	backoff    resilience.BackoffStrategy
}

// Option configures the client
type Option func(*Client)

// WithRetries overrides the transport retry budget
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithBackoff overrides the delay strategy between retries
func WithBackoff(b resilience.BackoffStrategy) Option {
	return func(c *Client) { c.backoff = b }
}

// NewClient creates an orchestrator client for the given base URL
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		retries:    3,
		backoff:    resilience.ForwardingBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForwardSale submits a sale for asynchronous processing
func (c *Client) ForwardSale(ctx context.Context, req *SaleRequest) (*Ack, error) {
	return c.post(ctx, "/orchestrator/sale", req)
}

// ForwardRefund submits a refund for asynchronous processing
func (c *Client) ForwardRefund(ctx context.Context, req *RefundRequest) (*Ack, error) {
	return c.post(ctx, "/orchestrator/refund", req)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*Ack, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "marshal forward request", err)
	}

	url := c.baseURL + path
	var lastErr error

	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff.NextDelay(attempt - 1)
			c.logger.Warn("Retrying orchestrator forward",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, domain.WrapError(domain.ErrorCodeTransportError, "forward cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		ack, retriable, err := c.attempt(ctx, url, body)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		if !retriable {
			break
		}
	}

	return nil, domain.WrapError(domain.ErrorCodeTransportError, "orchestrator unreachable", lastErr).
		WithDetail("url", url)
}

func (c *Client) attempt(ctx context.Context, url string, body []byte) (*Ack, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ack Ack
		if err := json.Unmarshal(respBody, &ack); err != nil {
			return nil, false, fmt.Errorf("decode ack: %w", err)
		}
		return &ack, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	default:
		return nil, false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
}
