package gateway

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/internal/domain/ports"
)

// StatusHandler answers merchant polling for a transaction's current state.
// The HTTP status encodes finality: 404 means the reference was never
// observed, 202 means an outcome exists but may still change, 200 means
// the outcome is final.
type StatusHandler struct {
	store  ports.StateStore
	logger *zap.Logger
}

// NewStatusHandler creates the status query handler
func NewStatusHandler(store ports.StateStore, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		logger: logger,
	}
}

type statusResponse struct {
	domain.TransactionOutcome
	UpdatedAt string `json:"updatedAt"`
}

// HandleStatus reports the merged state for one reference and operation.
// Endpoint: GET /merchant/status/{merchantReference}?operation=sale
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("merchantReference")
	if ref == "" {
		missingField(w, "merchantReference")
		return
	}

	op := domain.Operation(r.URL.Query().Get("operation"))
	if op == "" {
		op = domain.DefaultOperation
	}
	if !op.IsValid() {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError(domain.ErrorCodeValidationFailed, "unknown operation").
				WithDetail("operation", string(op)))
		return
	}

	state, err := h.store.Get(r.Context(), ref, op)
	if err != nil {
		if domain.IsNotFoundError(err) {
			writeError(w, http.StatusNotFound,
				domain.NewDomainError(domain.ErrorCodeStateNotFound, "no outcome recorded for this reference").
					WithDetail("merchantReference", ref).
					WithDetail("operation", string(op)))
			return
		}
		h.logger.Error("Failed to read state",
			zap.Error(err),
			zap.String("merchant_reference", ref),
			zap.String("operation", string(op)),
		)
		writeError(w, http.StatusInternalServerError,
			domain.NewDomainError(domain.ErrorCodeStoreError, "failed to read state"))
		return
	}

	status := http.StatusAccepted
	if state.Status.IsFinal() {
		status = http.StatusOK
	}

	writeJSON(w, status, statusResponse{
		TransactionOutcome: state.TransactionOutcome,
		UpdatedAt:          state.UpdatedAt,
	})
}
