// Package mapper normalizes gateway responses into canonical outcomes.
package mapper

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
)

// DefaultProvider is assumed when the input does not name a provider
const DefaultProvider = "braintree"

// DefaultCurrency is assumed when the input does not carry a currency
const DefaultCurrency = "EUR"

// Amount preserves whether the wire value was a JSON number or a string.
// Numeric amounts are rendered with exactly two decimal places; string
// amounts pass through verbatim, whatever their precision. The asymmetry
// is kept for wire compatibility with existing merchant integrations.
type Amount struct {
	Raw     string
	Numeric bool
}

// UnmarshalJSON accepts both `"12.3"` and `12.3`
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Raw = s
		a.Numeric = false
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	a.Raw = n.String()
	a.Numeric = true
	return nil
}

// MarshalJSON renders the formatted amount as a JSON string
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// AmountFromString wraps an already-formatted string amount
func AmountFromString(s string) Amount {
	return Amount{Raw: s}
}

// IsZero reports whether no amount was supplied
func (a Amount) IsZero() bool {
	return a.Raw == ""
}

// String renders the amount for the outcome: two fixed decimal places for
// numeric input, verbatim passthrough for string input.
func (a Amount) String() string {
	if !a.Numeric {
		return a.Raw
	}
	d, err := decimal.NewFromString(a.Raw)
	if err != nil {
		return a.Raw
	}
	return d.StringFixed(2)
}

// Input is one processing attempt's raw material: whatever the gateway
// call (or the surrounding handler) could establish about the result.
// Empty fields are treated as absent.
type Input struct {
	MerchantReference string
	Operation         domain.Operation
	Amount            Amount
	Currency          string
	Provider          string
	TransactionID     string

	// Status, when set, overrides the code/message/transactionId derivation.
	// Case-insensitive.
	Status string

	// Code and Message describe a failure; either one present forces FAILED
	// unless Status says otherwise.
	Code    string
	Message string
}

// Map builds the canonical TransactionOutcome for one processing attempt.
//
// Status resolution order:
//  1. explicit Status, uppercased
//  2. Code or Message present -> FAILED
//  3. TransactionID present -> SUCCESS
//  4. otherwise FAILED
func Map(in Input) *domain.TransactionOutcome {
	status := resolveStatus(in)

	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	provider := in.Provider
	if provider == "" {
		provider = DefaultProvider
	}

	var outcomeErr *domain.OutcomeError
	if status == domain.StatusFailed {
		code := in.Code
		if code == "" {
			code = "ERROR"
		}
		outcomeErr = &domain.OutcomeError{Code: code, Message: in.Message}
	}

	return &domain.TransactionOutcome{
		MerchantReference: in.MerchantReference,
		Provider:          provider,
		Operation:         in.Operation,
		Status:            status,
		TransactionID:     in.TransactionID,
		Amount:            in.Amount.String(),
		Currency:          strings.ToUpper(currency),
		Error:             outcomeErr,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}
}

func resolveStatus(in Input) domain.Status {
	if in.Status != "" {
		return domain.Status(strings.ToUpper(in.Status))
	}
	if in.Code != "" || in.Message != "" {
		return domain.StatusFailed
	}
	if in.TransactionID != "" {
		return domain.StatusSuccess
	}
	return domain.StatusFailed
}
