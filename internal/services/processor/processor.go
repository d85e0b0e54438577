// Package processor executes sale and refund requests against the payment
// provider exactly once per idempotency key and pushes every outcome to the
// merchant's callback URL.
package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
	"github.com/Aduenko-Vladislav/payment-relay/internal/mapper"
)

// Provider statuses that mean the funds are still moving. They map to
// PENDING so the merchant is not told SUCCESS before settlement finishes.
var pendingGatewayStatuses = map[string]bool{
	"settlement_pending": true,
	"settling":           true,
}

// OutcomeDispatcher delivers a computed outcome to a callback URL.
// Delivery runs out of band; Dispatch must not block.
type OutcomeDispatcher interface {
	Dispatch(url string, outcome *domain.TransactionOutcome)
}

// SaleInput is one merchant sale request after handler-level validation
type SaleInput struct {
	MerchantReference  string
	Amount             mapper.Amount
	Currency           string
	PaymentMethodNonce string
	CallbackURL        string
	IdempotencyKey     string
}

// RefundInput is one merchant refund request after handler-level validation
type RefundInput struct {
	MerchantReference string
	TransactionID     string
	Amount            mapper.Amount
	CallbackURL       string
	IdempotencyKey    string
}

// Result is the processing answer returned to the caller. Idempotent marks
// a replay: the outcome was computed by an earlier request with the same key.
type Result struct {
	Outcome    *domain.TransactionOutcome
	Idempotent bool
}

// Processor owns the one-key-one-attempt pipeline: reserve the idempotency
// slot, call the provider, cache the outcome, dispatch the webhook.
type Processor struct {
	cache          ports.IdempotencyCache
	gateway        ports.PaymentGateway
	dispatcher     OutcomeDispatcher
	logger         *zap.Logger
	gatewayTimeout time.Duration
	idempotencyTTL time.Duration
}

// NewProcessor creates a transaction processor
func NewProcessor(
	cache ports.IdempotencyCache,
	gateway ports.PaymentGateway,
	dispatcher OutcomeDispatcher,
	logger *zap.Logger,
	gatewayTimeout time.Duration,
	idempotencyTTL time.Duration,
) *Processor {
	return &Processor{
		cache:          cache,
		gateway:        gateway,
		dispatcher:     dispatcher,
		logger:         logger,
		gatewayTimeout: gatewayTimeout,
		idempotencyTTL: idempotencyTTL,
	}
}

// ProcessSale runs one sale attempt. A duplicate idempotency key returns
// the cached outcome without touching the provider; the webhook fires
// either way so the merchant listener sees every accepted request answered.
func (p *Processor) ProcessSale(ctx context.Context, in SaleInput) (*Result, error) {
	return p.process(ctx, in.IdempotencyKey, domain.OperationSale, in.CallbackURL, func(ctx context.Context) *domain.TransactionOutcome {
		return p.executeSale(ctx, in)
	})
}

// ProcessRefund runs one refund attempt with the same idempotency pipeline
func (p *Processor) ProcessRefund(ctx context.Context, in RefundInput) (*Result, error) {
	return p.process(ctx, in.IdempotencyKey, domain.OperationRefund, in.CallbackURL, func(ctx context.Context) *domain.TransactionOutcome {
		return p.executeRefund(ctx, in)
	})
}

func (p *Processor) process(
	ctx context.Context,
	key string,
	op domain.Operation,
	callbackURL string,
	execute func(ctx context.Context) *domain.TransactionOutcome,
) (*Result, error) {
	reservation, cached, err := p.cache.Reserve(ctx, key, op, p.idempotencyTTL)
	if err != nil {
		if domain.GetErrorCode(err) == domain.ErrorCodeStoreReserveLost {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeStoreError, "idempotency reserve failed", err)
	}

	if cached != nil {
		p.logger.Info("Replaying cached outcome for duplicate request",
			zap.String("idempotency_key", key),
			zap.String("operation", string(op)),
			zap.String("merchant_reference", cached.MerchantReference),
			zap.String("status", string(cached.Status)),
		)
		p.dispatcher.Dispatch(callbackURL, cached)
		return &Result{Outcome: cached, Idempotent: true}, nil
	}

	// Winner path. The provider call gets its own deadline so a hung
	// gateway cannot hold the reservation open indefinitely.
	execCtx, cancel := context.WithTimeout(ctx, p.gatewayTimeout)
	outcome := execute(execCtx)
	cancel()

	if err := reservation.Complete(ctx, outcome); err != nil {
		// The outcome exists but could not be cached. Free the slot so a
		// retry is not deadlocked, and still answer this request.
		p.logger.Error("Failed to cache outcome, releasing reservation",
			zap.Error(err),
			zap.String("idempotency_key", key),
			zap.String("operation", string(op)),
		)
		if relErr := reservation.Release(ctx); relErr != nil {
			p.logger.Error("Failed to release reservation",
				zap.Error(relErr),
				zap.String("idempotency_key", key),
			)
		}
	}

	p.dispatcher.Dispatch(callbackURL, outcome)
	return &Result{Outcome: outcome}, nil
}

// executeSale calls the provider and maps whatever happened into an
// outcome. It never returns an error: a thrown provider failure becomes a
// FAILED outcome with code EXCEPTION, exactly like a decline becomes one
// with the processor's response code.
func (p *Processor) executeSale(ctx context.Context, in SaleInput) (outcome *domain.TransactionOutcome) {
	defer p.recoverToOutcome(&outcome, mapper.Input{
		MerchantReference: in.MerchantReference,
		Operation:         domain.OperationSale,
		Amount:            in.Amount,
		Currency:          in.Currency,
	})

	result, err := p.gateway.Sale(ctx, &ports.SaleRequest{
		Amount:              in.Amount.String(),
		PaymentMethodNonce:  in.PaymentMethodNonce,
		SubmitForSettlement: true,
	})
	if err != nil {
		p.logger.Error("Gateway sale failed",
			zap.Error(err),
			zap.String("merchant_reference", in.MerchantReference),
		)
		return mapper.Map(mapper.Input{
			MerchantReference: in.MerchantReference,
			Operation:         domain.OperationSale,
			Amount:            in.Amount,
			Currency:          in.Currency,
			Code:              "EXCEPTION",
			Message:           err.Error(),
		})
	}

	return mapper.Map(p.gatewayResultInput(mapper.Input{
		MerchantReference: in.MerchantReference,
		Operation:         domain.OperationSale,
		Amount:            in.Amount,
		Currency:          in.Currency,
	}, result))
}

func (p *Processor) executeRefund(ctx context.Context, in RefundInput) (outcome *domain.TransactionOutcome) {
	defer p.recoverToOutcome(&outcome, mapper.Input{
		MerchantReference: in.MerchantReference,
		Operation:         domain.OperationRefund,
		Amount:            in.Amount,
	})

	result, err := p.gateway.Refund(ctx, in.TransactionID, in.Amount.String())
	if err != nil {
		p.logger.Error("Gateway refund failed",
			zap.Error(err),
			zap.String("merchant_reference", in.MerchantReference),
			zap.String("transaction_id", in.TransactionID),
		)
		return mapper.Map(mapper.Input{
			MerchantReference: in.MerchantReference,
			Operation:         domain.OperationRefund,
			Amount:            in.Amount,
			Code:              "EXCEPTION",
			Message:           err.Error(),
		})
	}

	return mapper.Map(p.gatewayResultInput(mapper.Input{
		MerchantReference: in.MerchantReference,
		Operation:         domain.OperationRefund,
		Amount:            in.Amount,
	}, result))
}

// recoverToOutcome converts a panicking gateway adapter into a FAILED
// outcome so the reservation is still completed and the webhook still fires.
func (p *Processor) recoverToOutcome(outcome **domain.TransactionOutcome, in mapper.Input) {
	r := recover()
	if r == nil {
		return
	}
	p.logger.Error("Gateway call panicked",
		zap.Any("panic", r),
		zap.String("merchant_reference", in.MerchantReference),
		zap.String("operation", string(in.Operation)),
	)
	in.Code = "EXCEPTION"
	in.Message = fmt.Sprintf("%v", r)
	*outcome = mapper.Map(in)
}

// gatewayResultInput folds a provider result into the mapper input
func (p *Processor) gatewayResultInput(in mapper.Input, result *ports.GatewayResult) mapper.Input {
	txn := result.Transaction

	if result.Success {
		if txn != nil {
			in.TransactionID = txn.ID
			if pendingGatewayStatuses[txn.Status] {
				in.Status = string(domain.StatusPending)
			}
		}
		return in
	}

	in.Message = result.Message
	if txn != nil {
		if txn.ProcessorResponseCode != "" {
			in.Code = txn.ProcessorResponseCode
		}
		if in.Message == "" {
			in.Message = txn.ProcessorResponseText
		}
	}
	if in.Code == "" && in.Message == "" {
		in.Message = "transaction rejected"
	}
	return in
}
