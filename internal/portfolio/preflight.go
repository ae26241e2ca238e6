package portfolio

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/trade"
)

// Plan is the outcome of a funds pre-flight.
type Plan struct {
	Action     trade.Action
	Percentage decimal.Decimal
	Summary    Summary
	// Expected is the total cost for an increase or proceeds for a decrease.
	Expected decimal.Decimal
	// FundsUnverified is set when the summary could not be fetched, so an
	// increase could not be checked against cash.
	FundsUnverified bool
}

// CashAfter is the cash expected to remain once every order fills.
func (p *Plan) CashAfter() decimal.Decimal {
	if p.Action == trade.Increase {
		return p.Summary.AvailableCash.Sub(p.Expected)
	}
	return p.Summary.AvailableCash.Add(p.Expected)
}

// Preflight summarizes the account and prices the whole adjustment. An
// increase costing more than the available cash is refused with
// *trade.InsufficientFundsError before any order exists.
func (s *Snapshotter) Preflight(ctx context.Context, action trade.Action, pct decimal.Decimal) (*Plan, error) {
	if err := trade.ValidatePercentage(pct); err != nil {
		return nil, err
	}

	plan := &Plan{
		Action:     action,
		Percentage: pct,
		Summary:    s.Summarize(ctx),
	}
	plan.Expected = s.TotalExpectedCost(ctx, action, pct)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if action != trade.Increase {
		return plan, nil
	}
	if plan.Summary.IsZero() {
		plan.FundsUnverified = true
		s.log.Warn().Msg("portfolio summary unavailable, available cash not verified")
		return plan, nil
	}
	if plan.Expected.GreaterThan(plan.Summary.AvailableCash) {
		return plan, &trade.InsufficientFundsError{
			Required:  plan.Expected,
			Available: plan.Summary.AvailableCash,
		}
	}
	return plan, nil
}
