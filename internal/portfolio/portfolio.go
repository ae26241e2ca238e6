// Package portfolio snapshots account value and holdings and checks that a
// bulk adjustment is affordable before any order is placed.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
	"github.com/jonandersen/rob/internal/trade"
)

// ErrSnapshotUnavailable wraps failures to read account state.
var ErrSnapshotUnavailable = errors.New("portfolio snapshot unavailable")

// Broker is the read side of a brokerage session.
type Broker interface {
	Holdings(ctx context.Context) ([]broker.Position, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	AccountProfile(ctx context.Context) (*broker.AccountProfile, error)
	PortfolioProfile(ctx context.Context) (*broker.PortfolioProfile, error)
}

// Summary is the account's headline figures.
type Summary struct {
	TotalValue     decimal.Decimal `json:"totalValue"`
	AvailableCash  decimal.Decimal `json:"availableCash"`
	PositionsValue decimal.Decimal `json:"positionsValue"`
}

// IsZero reports whether the summary is unknown.
func (s Summary) IsZero() bool {
	return s.TotalValue.IsZero() && s.AvailableCash.IsZero()
}

// Snapshotter reads portfolio state through a Broker.
type Snapshotter struct {
	broker Broker
	log    zerolog.Logger
}

func New(b Broker, log zerolog.Logger) *Snapshotter {
	return &Snapshotter{broker: b, log: log}
}

// Summarize returns buying power and equity. Any failure yields a zero
// Summary and a logged warning.
func (s *Snapshotter) Summarize(ctx context.Context) Summary {
	account, err := s.broker.AccountProfile(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to fetch account profile")
		return Summary{}
	}
	profile, err := s.broker.PortfolioProfile(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to fetch portfolio profile")
		return Summary{}
	}

	total := profile.MarketValue()
	return Summary{
		TotalValue:     total,
		AvailableCash:  account.BuyingPower,
		PositionsValue: total.Sub(account.BuyingPower),
	}
}

// Holdings returns held positions sorted by symbol.
func (s *Snapshotter) Holdings(ctx context.Context) ([]broker.Position, error) {
	positions, err := s.broker.Holdings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	sorted := make([]broker.Position, 0, len(positions))
	for _, p := range positions {
		if p.Quantity.IsPositive() {
			sorted = append(sorted, p)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	return sorted, nil
}

// TotalExpectedCost sums the sized amount over all holdings at current
// prices. Positions whose price cannot be fetched contribute nothing.
func (s *Snapshotter) TotalExpectedCost(ctx context.Context, action trade.Action, pct decimal.Decimal) decimal.Decimal {
	positions, err := s.Holdings(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to fetch positions for cost estimate")
		return decimal.Zero
	}

	total := decimal.Zero
	for _, p := range positions {
		if ctx.Err() != nil {
			break
		}
		price, err := s.broker.LastPrice(ctx, p.Symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("skipping position in cost estimate")
			continue
		}
		_, amount := trade.Size(p, price, pct, action)
		total = total.Add(amount)
	}
	return total
}

// Valuation is a holding priced at the current market.
type Valuation struct {
	broker.Position
	Value    decimal.Decimal `json:"value"`
	PriceErr error           `json:"-"`
}

// Valuations prices every holding. A failed lookup leaves Price and Value
// zero and records PriceErr.
func (s *Snapshotter) Valuations(ctx context.Context) ([]Valuation, error) {
	positions, err := s.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Valuation, 0, len(positions))
	for _, p := range positions {
		v := Valuation{Position: p}
		price, err := s.broker.LastPrice(ctx, p.Symbol)
		if err != nil {
			v.PriceErr = err
			v.Price = decimal.Zero
		} else {
			v.Price = price
			v.Value = p.Quantity.Mul(price)
		}
		out = append(out, v)
	}
	return out, nil
}
