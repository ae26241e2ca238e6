package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies trade failures.
type ErrorKind int

const (
	PriceUnavailable ErrorKind = iota
	OrderRejected
	InsufficientFunds
)

func (k ErrorKind) String() string {
	switch k {
	case PriceUnavailable:
		return "price unavailable"
	case OrderRejected:
		return "order rejected"
	case InsufficientFunds:
		return "insufficient funds"
	default:
		return "unknown"
	}
}

// Error is a per-symbol trade failure.
type Error struct {
	Kind   ErrorKind
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var tradeErr *Error
	return errors.As(err, &tradeErr) && tradeErr.Kind == kind
}

// InsufficientFundsError refuses an increase whose expected cost exceeds
// the available cash.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need $%s, have $%s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// Shortfall is the amount by which the required cost exceeds cash.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}
