// Package braintree provides the Braintree-shaped payment gateway adapter.
// The sandbox adapter reproduces the sandbox's magic-value behavior so the
// full pipeline can run without provider credentials.
package braintree

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
)

// Magic payment method nonces mirroring the provider sandbox
const (
	NonceValid             = "fake-valid-nonce"
	NonceProcessorDeclined = "fake-processor-declined-visa-nonce"
	NonceGatewayRejected   = "fake-gateway-rejected-fraud-nonce"
)

// Amount windows the sandbox maps to special results. A sale between 2000
// and 2999.99 is declined with the integer part as the processor code; a
// sale between 3000 and 3999.99 is approved but settles asynchronously.
var (
	declineWindowLow  = decimal.NewFromInt(2000)
	declineWindowHigh = decimal.NewFromInt(3000)
	pendingWindowLow  = decimal.NewFromInt(3000)
	pendingWindowHigh = decimal.NewFromInt(4000)
)

var declineTexts = map[string]string{
	"2000": "Do Not Honor",
	"2001": "Insufficient Funds",
	"2002": "Limit Exceeded",
	"2003": "Cardholder's Activity Limit Exceeded",
	"2046": "Declined",
}

// SandboxGateway is a deterministic in-process stand-in for the provider
type SandboxGateway struct {
	logger *zap.Logger
}

// NewSandboxGateway creates the sandbox adapter
func NewSandboxGateway(logger *zap.Logger) *SandboxGateway {
	return &SandboxGateway{logger: logger}
}

// Sale simulates a sale attempt using the sandbox magic values
func (g *SandboxGateway) Sale(ctx context.Context, req *ports.SaleRequest) (*ports.GatewayResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Amount == "" {
		return rejection("Amount is required."), nil
	}
	if req.PaymentMethodNonce == "" {
		return rejection("Payment method nonce is required."), nil
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		return rejection("Amount is an invalid format."), nil
	}

	switch req.PaymentMethodNonce {
	case NonceProcessorDeclined:
		return g.decline("2000", amount), nil
	case NonceGatewayRejected:
		return rejection("Gateway Rejected: fraud"), nil
	}

	if amount.GreaterThanOrEqual(declineWindowLow) && amount.LessThan(declineWindowHigh) {
		return g.decline(amount.Truncate(0).String(), amount), nil
	}

	status := "submitted_for_settlement"
	if amount.GreaterThanOrEqual(pendingWindowLow) && amount.LessThan(pendingWindowHigh) {
		status = "settlement_pending"
	}

	id := newTransactionID("bt")
	g.logger.Debug("Sandbox sale approved",
		zap.String("transaction_id", id),
		zap.String("amount", req.Amount),
		zap.String("gateway_status", status),
	)

	return &ports.GatewayResult{
		Success: true,
		Transaction: &ports.GatewayTransaction{
			ID:     id,
			Status: status,
		},
	}, nil
}

// Refund simulates a refund of a previously settled transaction
func (g *SandboxGateway) Refund(ctx context.Context, transactionID, amount string) (*ports.GatewayResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if transactionID == "" {
		return rejection("Transaction ID is required."), nil
	}
	if amount != "" {
		if d, err := decimal.NewFromString(amount); err != nil || d.Sign() <= 0 {
			return rejection("Amount is an invalid format."), nil
		}
	}

	id := newTransactionID("rf")
	g.logger.Debug("Sandbox refund approved",
		zap.String("transaction_id", id),
		zap.String("original_transaction_id", transactionID),
		zap.String("amount", amount),
	)

	return &ports.GatewayResult{
		Success: true,
		Transaction: &ports.GatewayTransaction{
			ID:     id,
			Status: "submitted_for_settlement",
		},
	}, nil
}

func (g *SandboxGateway) decline(code string, amount decimal.Decimal) *ports.GatewayResult {
	text, ok := declineTexts[code]
	if !ok {
		text = "Processor Declined"
	}
	g.logger.Debug("Sandbox sale declined",
		zap.String("processor_response_code", code),
		zap.String("amount", amount.String()),
	)
	return &ports.GatewayResult{
		Success: false,
		Message: text,
		Transaction: &ports.GatewayTransaction{
			ID:                    newTransactionID("bt"),
			Status:                "processor_declined",
			ProcessorResponseCode: code,
			ProcessorResponseText: text,
		},
	}
}

func rejection(message string) *ports.GatewayResult {
	return &ports.GatewayResult{Success: false, Message: message}
}

func newTransactionID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
