package ports

import (
	"context"
)

// GatewayTransaction is the provider-side transaction record embedded in a result
type GatewayTransaction struct {
	ID                    string
	Status                string
	ProcessorResponseCode string
	ProcessorResponseText string
}

// GatewayResult represents the provider's answer to a sale or refund attempt.
// Success=false with a populated Transaction means a processor decline;
// Success=false with only Message means the provider rejected the request itself.
type GatewayResult struct {
	Success     bool
	Message     string
	Transaction *GatewayTransaction
}

// SaleRequest carries the fields forwarded to the provider for a sale
type SaleRequest struct {
	Amount              string
	PaymentMethodNonce  string
	SubmitForSettlement bool
}

// PaymentGateway is the opaque payment provider collaborator.
// Implementations must not retry transport failures: sale and refund are
// not idempotent on the provider side and a blind retry can double-charge.
type PaymentGateway interface {
	Sale(ctx context.Context, req *SaleRequest) (*GatewayResult, error)
	Refund(ctx context.Context, transactionID, amount string) (*GatewayResult, error)
}
