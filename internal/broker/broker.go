// Package broker defines the brokerage capability consumed by rob and the
// domain types exchanged with it. Concrete implementations live in the
// robinhood and alpaca subpackages.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is a held quantity of a symbol with its cost basis.
// Price is the last known price when the broker reports one; callers that
// need an execution-time price fetch it with LastPrice.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"averageCost"`
	Price       decimal.Decimal `json:"price,omitempty"`
}

// Token is an opaque authenticated session handed out by a broker.
type Token struct {
	AccessToken  string    `msgpack:"access_token"`
	RefreshToken string    `msgpack:"refresh_token,omitempty"`
	TokenType    string    `msgpack:"token_type,omitempty"`
	DeviceToken  string    `msgpack:"device_token,omitempty"`
	ExpiresAt    time.Time `msgpack:"expires_at"`
}

// IsExpired reports whether the token carries an expiry that has passed.
// Tokens without an expiry never expire locally; the broker decides.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(t.ExpiresAt)
}

// OrderResult describes an accepted order.
type OrderResult struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Side     Side   `json:"side"`
	Quantity int64  `json:"quantity"`
	State    string `json:"state"`
}

// AccountProfile holds the account figures rob needs.
type AccountProfile struct {
	AccountNumber string          `json:"accountNumber"`
	BuyingPower   decimal.Decimal `json:"buyingPower"`
}

// PortfolioProfile holds portfolio-level valuation.
type PortfolioProfile struct {
	Equity              decimal.Decimal `json:"equity"`
	ExtendedHoursEquity decimal.Decimal `json:"extendedHoursEquity"`
}

// MarketValue returns extended-hours equity when the broker reports it,
// otherwise regular equity.
func (p PortfolioProfile) MarketValue() decimal.Decimal {
	if !p.ExtendedHoursEquity.IsZero() {
		return p.ExtendedHoursEquity
	}
	return p.Equity
}

// Client is the full brokerage capability surface.
type Client interface {
	// Login performs a credential login. code may be empty.
	Login(ctx context.Context, username, password, code string) (*Token, error)
	// Resume attaches a previously issued token and verifies it is accepted.
	Resume(ctx context.Context, token *Token) error
	// Logout ends the session. It must be safe to call when not logged in.
	Logout(ctx context.Context) error

	Holdings(ctx context.Context) ([]Position, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceMarketOrder(ctx context.Context, symbol string, shares int64, side Side) (*OrderResult, error)
	AccountProfile(ctx context.Context) (*AccountProfile, error)
	PortfolioProfile(ctx context.Context) (*PortfolioProfile, error)
}
