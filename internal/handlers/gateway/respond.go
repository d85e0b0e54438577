package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
)

type errorBody struct {
	Code    domain.ErrorCode       `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err *domain.DomainError) {
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	}})
}

func missingField(w http.ResponseWriter, field string) {
	writeError(w, http.StatusBadRequest,
		domain.NewDomainError(domain.ErrorCodeValidationMissingField, field+" is required").
			WithDetail("field", field))
}
