// Package trade sizes the market orders rob places for a percentage
// adjustment of a position.
package trade

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
)

// Action is the direction of a bulk adjustment.
type Action string

const (
	Increase Action = "increase"
	Decrease Action = "decrease"
)

// ParseAction parses a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case Increase:
		return Increase, nil
	case Decrease:
		return Decrease, nil
	default:
		return "", fmt.Errorf("invalid action %q: must be increase or decrease", s)
	}
}

// Side maps the action to the order side it produces.
func (a Action) Side() broker.Side {
	if a == Decrease {
		return broker.SideSell
	}
	return broker.SideBuy
}

// Verb is the imperative form shown to the user ("BUY" or "SELL").
func (a Action) Verb() string {
	return strings.ToUpper(string(a.Side()))
}

// Intent is a sized order for a single position.
type Intent struct {
	Symbol string
	Action Action
	Shares int64
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// Empty reports whether the intent sized down to zero shares.
// Empty intents are never submitted.
func (i Intent) Empty() bool {
	return i.Shares == 0
}

var hundred = decimal.NewFromInt(100)

// ValidatePercentage rejects percentages outside (0, 100].
func ValidatePercentage(pct decimal.Decimal) error {
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return fmt.Errorf("percentage must be between 0 and 100, got %s", pct.String())
	}
	return nil
}

// Size computes the whole number of shares to trade and the expected
// dollar amount. Fractions of a share are always discarded.
//
// For Increase the added value is qty*price*pct/100 and the share count is
// that value divided by price. For Decrease the share count is qty*pct/100.
// A non-positive price or quantity sizes to zero.
func Size(position broker.Position, price, pct decimal.Decimal, action Action) (int64, decimal.Decimal) {
	if !price.IsPositive() || !position.Quantity.IsPositive() {
		return 0, decimal.Zero
	}
	fraction := pct.Div(hundred)

	var shares decimal.Decimal
	switch action {
	case Increase:
		add := position.Quantity.Mul(price).Mul(fraction)
		shares = add.Div(price).Floor()
	case Decrease:
		shares = position.Quantity.Mul(fraction).Floor()
	default:
		return 0, decimal.Zero
	}
	if !shares.IsPositive() {
		return 0, decimal.Zero
	}
	return shares.IntPart(), shares.Mul(price)
}

// Plan sizes position into an Intent.
func Plan(position broker.Position, price, pct decimal.Decimal, action Action) Intent {
	shares, amount := Size(position, price, pct, action)
	return Intent{
		Symbol: position.Symbol,
		Action: action,
		Shares: shares,
		Amount: amount,
		Price:  price,
	}
}
