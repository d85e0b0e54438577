// Package webhook signs and delivers transaction outcomes to merchant
// callback URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/resilience"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/signature"
)

var (
	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Total number of webhook delivery outcomes",
	}, []string{"result"}) // delivered, rejected, exhausted, skipped

	webhookAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_delivery_attempts",
		Help:    "Attempts needed per webhook delivery",
		Buckets: []float64{1, 2, 3},
	})
)

// Dispatcher delivers outcomes over signed HTTP POSTs with bounded retry.
// Delivery is decoupled from the request path: Dispatch returns
// immediately and the attempt loop runs on its own goroutine.
type Dispatcher struct {
	httpClient  *http.Client
	secret      string
	logger      *zap.Logger
	backoff     resilience.BackoffStrategy
	maxAttempts int

	wg sync.WaitGroup
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithBackoff overrides the delay strategy between attempts
func WithBackoff(b resilience.BackoffStrategy) Option {
	return func(d *Dispatcher) { d.backoff = b }
}

// WithMaxAttempts overrides the attempt budget per delivery
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// NewDispatcher creates a webhook dispatcher signing with the given secret
func NewDispatcher(httpClient *http.Client, secret string, logger *zap.Logger, opts ...Option) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	d := &Dispatcher{
		httpClient:  httpClient,
		secret:      secret,
		logger:      logger,
		backoff:     resilience.WebhookBackoff(),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers the outcome on a detached goroutine. The caller's
// HTTP response never waits for, or fails with, the delivery.
func (d *Dispatcher) Dispatch(url string, outcome *domain.TransactionOutcome) {
	if url == "" {
		d.logger.Warn("Webhook dispatch without callback URL",
			zap.String("merchant_reference", outcome.MerchantReference),
		)
		webhookDeliveries.WithLabelValues("skipped").Inc()
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.Deliver(context.Background(), url, outcome); err != nil {
			// Logged and swallowed: the merchant can still recover the
			// result through the status endpoint
			d.logger.Error("Webhook delivery abandoned",
				zap.Error(err),
				zap.String("webhook_url", url),
				zap.String("merchant_reference", outcome.MerchantReference),
				zap.String("status", string(outcome.Status)),
			)
		}
	}()
}

// Deliver serializes the outcome once, signs those exact bytes, and POSTs
// them with up to maxAttempts tries. Only network-level failures and 5xx
// responses are retried; a 4xx means a misconfigured or rejecting
// listener and is permanent.
func (d *Dispatcher) Deliver(ctx context.Context, url string, outcome *domain.TransactionOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	sig := signature.Sign(payload, d.secret)

	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := d.backoff.NextDelay(attempt - 1)
			d.logger.Warn("Webhook retry scheduled",
				zap.String("webhook_url", url),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", d.maxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				webhookDeliveries.WithLabelValues("exhausted").Inc()
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		retriable, err := d.attempt(ctx, url, payload, sig)
		if err == nil {
			webhookAttempts.Observe(float64(attempt + 1))
			webhookDeliveries.WithLabelValues("delivered").Inc()
			d.logger.Info("Webhook delivered",
				zap.String("webhook_url", url),
				zap.String("merchant_reference", outcome.MerchantReference),
				zap.Int("attempts", attempt+1),
			)
			return nil
		}
		lastErr = err

		if !retriable {
			webhookAttempts.Observe(float64(attempt + 1))
			webhookDeliveries.WithLabelValues("rejected").Inc()
			return err
		}
	}

	webhookAttempts.Observe(float64(d.maxAttempts))
	webhookDeliveries.WithLabelValues("exhausted").Inc()
	return fmt.Errorf("delivery failed after %d attempts: %w", d.maxAttempts, lastErr)
}

// attempt performs one POST. The bool reports whether a failure may be retried.
func (d *Dispatcher) attempt(ctx context.Context, url string, payload []byte, sig string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sig)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	default:
		return false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
}

// Drain waits for in-flight deliveries to finish, up to the timeout.
// Used during shutdown so accepted outcomes are not silently dropped.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
