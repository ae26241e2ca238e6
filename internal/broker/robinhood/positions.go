package robinhood

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
)

type positionRecord struct {
	Instrument      string          `json:"instrument"`
	Symbol          string          `json:"symbol"`
	Quantity        decimal.Decimal `json:"quantity"`
	AverageBuyPrice decimal.Decimal `json:"average_buy_price"`
}

type instrumentRecord struct {
	URL       string `json:"url"`
	Symbol    string `json:"symbol"`
	Tradeable bool   `json:"tradeable"`
}

type quoteRecord struct {
	Symbol                      string          `json:"symbol"`
	LastTradePrice              decimal.Decimal `json:"last_trade_price"`
	LastExtendedHoursTradePrice decimal.Decimal `json:"last_extended_hours_trade_price"`
	TradingHalted               bool            `json:"trading_halted"`
}

// Holdings returns every nonzero position. Positions that only carry an
// instrument URL are resolved to a symbol.
func (c *Client) Holdings(ctx context.Context) ([]broker.Position, error) {
	if c.token == nil {
		return nil, broker.ErrNotAuthenticated
	}

	records, err := getAll[positionRecord](ctx, c, "/positions/", url.Values{"nonzero": {"true"}})
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	positions := make([]broker.Position, 0, len(records))
	for _, r := range records {
		symbol := r.Symbol
		if symbol == "" {
			symbol, err = c.symbolFor(ctx, r.Instrument)
			if err != nil {
				return nil, err
			}
		}
		positions = append(positions, broker.Position{
			Symbol:      symbol,
			Quantity:    r.Quantity,
			AverageCost: r.AverageBuyPrice,
		})
	}
	return positions, nil
}

// symbolFor resolves an instrument URL, caching the answer both ways.
func (c *Client) symbolFor(ctx context.Context, instrumentURL string) (string, error) {
	if s, ok := c.symbols[instrumentURL]; ok {
		return s, nil
	}
	var inst instrumentRecord
	if err := c.getJSON(ctx, instrumentURL, nil, &inst); err != nil {
		return "", fmt.Errorf("failed to resolve instrument %s: %w", instrumentURL, err)
	}
	c.symbols[instrumentURL] = inst.Symbol
	c.instruments[inst.Symbol] = instrumentURL
	return inst.Symbol, nil
}

// instrumentFor looks up the instrument URL for symbol.
func (c *Client) instrumentFor(ctx context.Context, symbol string) (string, error) {
	if u, ok := c.instruments[symbol]; ok {
		return u, nil
	}
	var p page[instrumentRecord]
	if err := c.getJSON(ctx, "/instruments/", url.Values{"symbol": {symbol}}, &p); err != nil {
		return "", fmt.Errorf("failed to look up instrument %s: %w", symbol, err)
	}
	if len(p.Results) == 0 {
		return "", fmt.Errorf("unknown symbol %s", symbol)
	}
	inst := p.Results[0]
	c.instruments[symbol] = inst.URL
	c.symbols[inst.URL] = symbol
	return inst.URL, nil
}

// LastPrice returns the latest trade price, preferring the extended-hours
// print when one exists.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if c.token == nil {
		return decimal.Zero, broker.ErrNotAuthenticated
	}

	var p page[quoteRecord]
	if err := c.getJSON(ctx, "/quotes/", url.Values{"symbols": {strings.ToUpper(symbol)}}, &p); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if len(p.Results) == 0 {
		return decimal.Zero, fmt.Errorf("no quote for %s", symbol)
	}

	q := p.Results[0]
	if q.TradingHalted {
		return decimal.Zero, fmt.Errorf("trading halted for %s", symbol)
	}
	price :=q.LastExtendedHoursTradePrice
	if !price.IsPositive() {
		price = q.LastTradePrice
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("no trade price for %s", symbol)
	}
	return price, nil
}
