package gateway

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
)

// CallbackHandler receives signed outcome webhooks from the orchestrator
// and merges them into the state store. Signature verification happens in
// middleware before this handler runs; redeliveries and out-of-order
// arrivals are absorbed by the merge, so the answer is 200 either way.
type CallbackHandler struct {
	store  ports.StateStore
	logger *zap.Logger
}

// NewCallbackHandler creates the webhook receiver
func NewCallbackHandler(store ports.StateStore, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		store:  store,
		logger: logger,
	}
}

type callbackAck struct {
	OK bool `json:"ok"`
}

// HandleCallback applies one delivered outcome.
// Endpoint: POST /merchant/callback
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var outcome domain.TransactionOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "invalid JSON body"))
		return
	}

	if outcome.MerchantReference == "" {
		missingField(w, "merchantReference")
		return
	}
	if outcome.Status == "" {
		missingField(w, "status")
		return
	}
	if !outcome.Status.IsValid() {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "unknown status").
				WithDetail("status", string(outcome.Status)))
		return
	}
	if outcome.Operation == "" {
		outcome.Operation = domain.DefaultOperation
	}
	if !outcome.Operation.IsValid() {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "unknown operation").
				WithDetail("operation", string(outcome.Operation)))
		return
	}

	state, changed, err := h.store.Apply(r.Context(), outcome.MerchantReference, outcome.Operation, &outcome)
	if err != nil {
		h.logger.Error("Failed to apply outcome",
			zap.Error(err),
			zap.String("merchant_reference", outcome.MerchantReference),
			zap.String("operation", string(outcome.Operation)),
		)
		writeError(w, http.StatusInternalServerError,
			domain.NewDomainError(domain.ErrorCodeStoreError, "failed to record outcome"))
		return
	}

	if changed {
		h.logger.Info("Outcome recorded",
			zap.String("merchant_reference", outcome.MerchantReference),
			zap.String("operation", string(outcome.Operation)),
			zap.String("status", string(state.Status)),
			zap.String("transaction_id", state.TransactionID),
		)
	} else {
		h.logger.Info("Outcome already known, nothing to update",
			zap.String("merchant_reference", outcome.MerchantReference),
			zap.String("operation", string(outcome.Operation)),
			zap.String("delivered_status", string(outcome.Status)),
			zap.String("stored_status", string(state.Status)),
		)
	}

	writeJSON(w, http.StatusOK, callbackAck{OK: true})
}
