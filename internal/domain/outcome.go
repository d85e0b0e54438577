package domain

import (
	"time"
)

// Operation represents the logical payment operation a request refers to
type Operation string

const (
	OperationSale   Operation = "sale"
	OperationRefund Operation = "refund"
	OperationVoid   Operation = "void"
)

// DefaultOperation is assumed when a callback or status query omits the operation
const DefaultOperation = OperationSale

// IsValid reports whether the operation is one of the supported values
func (o Operation) IsValid() bool {
	switch o {
	case OperationSale, OperationRefund, OperationVoid:
		return true
	}
	return false
}

// Status represents the observed outcome status of a transaction
type Status string

const (
	StatusPending Status = "PENDING"
	StatusFailed  Status = "FAILED"
	StatusSuccess Status = "SUCCESS"
)

// Rank returns the status position in the merge lattice.
// PENDING and FAILED share rank 1, SUCCESS is rank 2, anything else 0.
func (s Status) Rank() int {
	switch s {
	case StatusPending, StatusFailed:
		return 1
	case StatusSuccess:
		return 2
	}
	return 0
}

// IsValid reports whether the status is one of the supported values
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusFailed, StatusSuccess:
		return true
	}
	return false
}

// IsFinal reports whether the status is terminal from the merchant's perspective
func (s Status) IsFinal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// OutcomeError carries the gateway failure detail attached to a FAILED outcome
type OutcomeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TransactionOutcome is the result of one processing attempt for an operation.
// It is produced once, cached by idempotency key, and delivered via webhook.
// Field names follow the webhook wire format.
type TransactionOutcome struct {
	MerchantReference string        `json:"merchantReference"`
	Provider          string        `json:"provider"`
	Operation         Operation     `json:"operation"`
	Status            Status        `json:"status"`
	TransactionID     string        `json:"transactionId"`
	Amount            string        `json:"amount"`
	Currency          string        `json:"currency"`
	Error             *OutcomeError `json:"error"`
	Timestamp         string        `json:"timestamp"`
}

// PaymentState is the durable per-(merchantReference, operation) record.
// It is the fold of every accepted outcome under the merge policy and is
// only ever mutated through the state store's Apply.
type PaymentState struct {
	TransactionOutcome
	UpdatedAt string `json:"updatedAt"`
}

// NewState seeds a payment state from the first observed outcome
func NewState(outcome *TransactionOutcome, now time.Time) *PaymentState {
	return &PaymentState{
		TransactionOutcome: *outcome,
		UpdatedAt:          now.UTC().Format(time.RFC3339),
	}
}
