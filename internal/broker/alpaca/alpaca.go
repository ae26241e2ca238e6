// Package alpaca adapts the Alpaca trading API to broker.Client. The key id
// and secret take the place of username and password; Alpaca has no
// interactive second factor.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
)

// PaperBaseURL is the paper-trading endpoint.
const PaperBaseURL = "https://paper-api.alpaca.markets"

// TradingAPI is the subset of *alpaca.Client the adapter uses.
type TradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

// MarketDataAPI is the subset of *marketdata.Client the adapter uses.
type MarketDataAPI interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// Factory builds API clients for a key pair.
type Factory func(keyID, secret string) (TradingAPI, MarketDataAPI)

// Client implements broker.Client over Alpaca.
type Client struct {
	factory Factory
	trading TradingAPI
	data    MarketDataAPI
	log     zerolog.Logger
}

var _ broker.Client = (*Client)(nil)

// NewClient returns a client talking to baseURL (empty for the SDK default).
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return NewClientWithFactory(func(keyID, secret string) (TradingAPI, MarketDataAPI) {
		trading := alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    keyID,
			APISecret: secret,
			BaseURL:   baseURL,
		})
		data := marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    keyID,
			APISecret: secret,
		})
		return trading, data
	}, log)
}

// NewClientWithFactory is NewClient with injectable API clients.
func NewClientWithFactory(factory Factory, log zerolog.Logger) *Client {
	return &Client{factory: factory, log: log}
}

// Login validates the key pair by fetching the account. code is ignored.
func (c *Client) Login(_ context.Context, keyID, secret, _ string) (*broker.Token, error) {
	if keyID == "" || secret == "" {
		return nil, &broker.LoginError{Kind: broker.LoginInvalidCredentials, Message: "API key id and secret are required"}
	}

	trading, data := c.factory(keyID, secret)
	acct, err := trading.GetAccount()
	if err != nil {
		return nil, classify(err)
	}
	if acct.TradingBlocked || acct.AccountBlocked {
		return nil, &broker.LoginError{Kind: broker.LoginInvalidCredentials, Message: "account is blocked from trading"}
	}

	c.trading, c.data = trading, data
	c.log.Debug().Str("account", acct.AccountNumber).Msg("alpaca account verified")
	// Keys never leave process memory; the token only marks the session.
	return &broker.Token{AccessToken: acct.ID, TokenType: "alpaca"}, nil
}

func classify(err error) *broker.LoginError {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &broker.LoginError{Kind: broker.LoginInvalidCredentials, Message: apiErr.Message, Err: err}
		}
	}
	return &broker.LoginError{Kind: broker.LoginTransient, Err: err}
}

// Resume always fails: sessions are not cached for Alpaca.
func (c *Client) Resume(context.Context, *broker.Token) error {
	return errors.New("alpaca sessions cannot be resumed")
}

// Logout forgets the API clients.
func (c *Client) Logout(context.Context) error {
	c.trading, c.data = nil, nil
	return nil
}

// Holdings returns long equity positions.
func (c *Client) Holdings(context.Context) ([]broker.Position, error) {
	if c.trading == nil {
		return nil, broker.ErrNotAuthenticated
	}
	positions, err := c.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	out := make([]broker.Position, 0, len(positions))
	for _, p := range positions {
		if !p.Qty.IsPositive() {
			continue
		}
		pos := broker.Position{
			Symbol:      p.Symbol,
			Quantity:    p.Qty,
			AverageCost: p.AvgEntryPrice,
		}
		if p.CurrentPrice != nil {
			pos.Price = *p.CurrentPrice
		}
		out = append(out, pos)
	}
	return out, nil
}

// LastPrice returns the latest trade price.
func (c *Client) LastPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	if c.data == nil {
		return decimal.Zero, broker.ErrNotAuthenticated
	}
	trade, err := c.data.GetLatestTrade(strings.ToUpper(symbol), marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get latest trade for %s: %w", symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return decimal.Zero, fmt.Errorf("no trade price for %s", symbol)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

// PlaceMarketOrder submits a day market order.
func (c *Client) PlaceMarketOrder(_ context.Context, symbol string, shares int64, side broker.Side) (*broker.OrderResult, error) {
	if c.trading == nil {
		return nil, broker.ErrNotAuthenticated
	}
	if shares <= 0 {
		return nil, fmt.Errorf("invalid share count %d", shares)
	}

	qty := decimal.NewFromInt(shares)
	order, err := c.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      strings.ToUpper(symbol),
		Qty:         &qty,
		Side:        alpaca.Side(side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	return &broker.OrderResult{
		ID:       order.ID,
		Symbol:   order.Symbol,
		Side:     side,
		Quantity: shares,
		State:    order.Status,
	}, nil
}

// AccountProfile returns buying power.
func (c *Client) AccountProfile(context.Context) (*broker.AccountProfile, error) {
	if c.trading == nil {
		return nil, broker.ErrNotAuthenticated
	}
	acct, err := c.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &broker.AccountProfile{
		AccountNumber: acct.AccountNumber,
		BuyingPower:   acct.BuyingPower,
	}, nil
}

// PortfolioProfile returns account equity.
func (c *Client) PortfolioProfile(context.Context) (*broker.PortfolioProfile, error) {
	if c.trading == nil {
		return nil, broker.ErrNotAuthenticated
	}
	acct, err := c.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &broker.PortfolioProfile{Equity: acct.Equity}, nil
}
