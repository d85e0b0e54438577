// Package orchestrator holds the processing service's HTTP handlers.
package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/mapper"
	"github.com/Aduenko-Vladislav/payment-relay/internal/services/processor"
)

// TransactionProcessor runs one sale or refund through the idempotent pipeline
type TransactionProcessor interface {
	ProcessSale(ctx context.Context, in processor.SaleInput) (*processor.Result, error)
	ProcessRefund(ctx context.Context, in processor.RefundInput) (*processor.Result, error)
}

// ProcessHandler accepts forwarded requests from the gateway service.
// The response only acknowledges processing; the outcome itself travels
// over the signed webhook to the callback URL.
type ProcessHandler struct {
	processor TransactionProcessor
	logger    *zap.Logger
}

// NewProcessHandler creates the processing intake handler
func NewProcessHandler(p TransactionProcessor, logger *zap.Logger) *ProcessHandler {
	return &ProcessHandler{
		processor: p,
		logger:    logger,
	}
}

type saleRequest struct {
	MerchantReference  string        `json:"merchantReference"`
	Amount             mapper.Amount `json:"amount"`
	Currency           string        `json:"currency"`
	PaymentMethodNonce string        `json:"paymentMethodNonce"`
	CallbackURL        string        `json:"callbackUrl"`
	IdempotencyKey     string        `json:"idempotencyKey"`
}

type refundRequest struct {
	MerchantReference string        `json:"merchantReference"`
	TransactionID     string        `json:"transactionId"`
	Amount            mapper.Amount `json:"amount"`
	CallbackURL       string        `json:"callbackUrl"`
	IdempotencyKey    string        `json:"idempotencyKey"`
}

type ackResponse struct {
	OK         bool `json:"ok"`
	Idempotent bool `json:"idempotent,omitempty"`
}

// HandleSale processes one forwarded sale.
// Endpoint: POST /orchestrator/sale
func (h *ProcessHandler) HandleSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "invalid JSON body"))
		return
	}

	if req.MerchantReference == "" {
		missingField(w, "merchantReference")
		return
	}
	if req.Amount.IsZero() {
		missingField(w, "amount")
		return
	}
	if req.PaymentMethodNonce == "" {
		missingField(w, "paymentMethodNonce")
		return
	}
	if req.IdempotencyKey == "" {
		missingField(w, "idempotencyKey")
		return
	}

	result, err := h.processor.ProcessSale(r.Context(), processor.SaleInput{
		MerchantReference:  req.MerchantReference,
		Amount:             req.Amount,
		Currency:           req.Currency,
		PaymentMethodNonce: req.PaymentMethodNonce,
		CallbackURL:        req.CallbackURL,
		IdempotencyKey:     req.IdempotencyKey,
	})
	if err != nil {
		h.respondProcessingError(w, err, req.MerchantReference, req.IdempotencyKey)
		return
	}

	writeJSON(w, http.StatusOK, ackResponse{OK: true, Idempotent: result.Idempotent})
}

// HandleRefund processes one forwarded refund.
// Endpoint: POST /orchestrator/refund
func (h *ProcessHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "invalid JSON body"))
		return
	}

	if req.MerchantReference == "" {
		missingField(w, "merchantReference")
		return
	}
	if req.TransactionID == "" {
		missingField(w, "transactionId")
		return
	}
	if req.IdempotencyKey == "" {
		missingField(w, "idempotencyKey")
		return
	}

	result, err := h.processor.ProcessRefund(r.Context(), processor.RefundInput{
		MerchantReference: req.MerchantReference,
		TransactionID:     req.TransactionID,
		Amount:            req.Amount,
		CallbackURL:       req.CallbackURL,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		h.respondProcessingError(w, err, req.MerchantReference, req.IdempotencyKey)
		return
	}

	writeJSON(w, http.StatusOK, ackResponse{OK: true, Idempotent: result.Idempotent})
}

func (h *ProcessHandler) respondProcessingError(w http.ResponseWriter, err error, ref, key string) {
	h.logger.Error("Processing failed",
		zap.Error(err),
		zap.String("merchant_reference", ref),
		zap.String("idempotency_key", key),
	)

	code := domain.GetErrorCode(err)
	if code == "" {
		code = domain.ErrorCodeInternalError
	}
	writeError(w, http.StatusInternalServerError,
		domain.NewDomainError(code, "processing failed"))
}
