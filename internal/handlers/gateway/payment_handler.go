// Package gateway holds the merchant-facing HTTP handlers: payment and
// refund intake, the signed result callback, and the status query.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	orchestratorclient "github.com/Aduenko-Vladislav/payment-relay/internal/adapters/orchestrator"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
)

// Forwarder submits accepted requests to the processing service
type Forwarder interface {
	ForwardSale(ctx context.Context, req *orchestratorclient.SaleRequest) (*orchestratorclient.Ack, error)
	ForwardRefund(ctx context.Context, req *orchestratorclient.RefundRequest) (*orchestratorclient.Ack, error)
}

// PaymentHandler accepts merchant payment and refund requests, assigns each
// one an idempotency key, and hands it to the orchestrator. The answer is
// always asynchronous: a 202 here only means the request was accepted.
type PaymentHandler struct {
	forwarder     Forwarder
	logger        *zap.Logger
	publicBaseURL string
}

// NewPaymentHandler creates the merchant intake handler
func NewPaymentHandler(forwarder Forwarder, logger *zap.Logger, publicBaseURL string) *PaymentHandler {
	return &PaymentHandler{
		forwarder:     forwarder,
		logger:        logger,
		publicBaseURL: publicBaseURL,
	}
}

type paymentRequest struct {
	MerchantReference  string          `json:"merchantReference"`
	Amount             json.RawMessage `json:"amount"`
	Currency           string          `json:"currency"`
	PaymentMethodNonce string          `json:"paymentMethodNonce"`
}

type refundRequest struct {
	MerchantReference string          `json:"merchantReference"`
	TransactionID     string          `json:"transactionId"`
	Amount            json.RawMessage `json:"amount"`
}

type acceptedResponse struct {
	Message           string `json:"message"`
	MerchantReference string `json:"merchantReference"`
	IdempotencyKey    string `json:"idempotencyKey"`
}

// HandlePayment accepts a sale request.
// Endpoint: POST /merchant/payments
func (h *PaymentHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "invalid JSON body"))
		return
	}

	if req.MerchantReference == "" {
		missingField(w, "merchantReference")
		return
	}
	if len(req.Amount) == 0 {
		missingField(w, "amount")
		return
	}
	if req.PaymentMethodNonce == "" {
		missingField(w, "paymentMethodNonce")
		return
	}
	if !validAmount(req.Amount) {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be a positive decimal"))
		return
	}

	key := uuid.New().String()
	ack, err := h.forwarder.ForwardSale(r.Context(), &orchestratorclient.SaleRequest{
		MerchantReference:  req.MerchantReference,
		Amount:             req.Amount,
		Currency:           req.Currency,
		PaymentMethodNonce: req.PaymentMethodNonce,
		CallbackURL:        h.publicBaseURL + "/merchant/callback",
		IdempotencyKey:     key,
	})
	if err != nil {
		h.logger.Error("Failed to forward payment",
			zap.Error(err),
			zap.String("merchant_reference", req.MerchantReference),
			zap.String("idempotency_key", key),
		)
		forwardFailure(w, err)
		return
	}

	h.logger.Info("Payment accepted",
		zap.String("merchant_reference", req.MerchantReference),
		zap.String("idempotency_key", key),
		zap.Bool("idempotent", ack.Idempotent),
	)

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Message:           "Payment accepted for processing",
		MerchantReference: req.MerchantReference,
		IdempotencyKey:    key,
	})
}

// HandleRefund accepts a refund request.
// Endpoint: POST /merchant/refunds
func (h *PaymentHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
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
	if len(req.Amount) > 0 && !validAmount(req.Amount) {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be a positive decimal"))
		return
	}

	key := uuid.New().String()
	_, err := h.forwarder.ForwardRefund(r.Context(), &orchestratorclient.RefundRequest{
		MerchantReference: req.MerchantReference,
		TransactionID:     req.TransactionID,
		Amount:            req.Amount,
		CallbackURL:       h.publicBaseURL + "/merchant/callback",
		IdempotencyKey:    key,
	})
	if err != nil {
		h.logger.Error("Failed to forward refund",
			zap.Error(err),
			zap.String("merchant_reference", req.MerchantReference),
			zap.String("transaction_id", req.TransactionID),
		)
		forwardFailure(w, err)
		return
	}

	h.logger.Info("Refund accepted",
		zap.String("merchant_reference", req.MerchantReference),
		zap.String("transaction_id", req.TransactionID),
		zap.String("idempotency_key", key),
	)

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Message:           "Refund accepted for processing",
		MerchantReference: req.MerchantReference,
		IdempotencyKey:    key,
	})
}

// forwardFailure answers a failed forward: 502 when the orchestrator was
// unreachable, 500 for anything that broke before the wire.
func forwardFailure(w http.ResponseWriter, err error) {
	if domain.IsTransportError(err) {
		writeError(w, http.StatusBadGateway,
			domain.NewDomainError(domain.ErrorCodeTransportError, "processing service unavailable"))
		return
	}
	writeError(w, http.StatusInternalServerError,
		domain.NewDomainError(domain.ErrorCodeInternalError, "failed to submit request"))
}

// validAmount accepts a positive decimal, whether the merchant sent it as a
// JSON number or a string.
func validAmount(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	var s string
	switch val := v.(type) {
	case string:
		s = val
	case float64:
		d := decimal.NewFromFloat(val)
		return d.Sign() > 0
	default:
		return false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.Sign() > 0
}
