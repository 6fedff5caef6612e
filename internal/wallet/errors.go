package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientBalanceError reports a debit that would overdraw the account.
// It carries the exact amounts so callers can render a structured rejection.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s", e.Required, e.Available)
}

// Shortfall returns how many credits the account is missing.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}
