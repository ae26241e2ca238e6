package robinhood

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
)

// orderRequest is the body of POST /orders/.
type orderRequest struct {
	Account     string `json:"account"`
	Instrument  string `json:"instrument"`
	Symbol      string `json:"symbol"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	Trigger     string `json:"trigger"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	Side        string `json:"side"`
	RefID       string `json:"ref_id"`
}

type orderRecord struct {
	ID           string          `json:"id"`
	State        string          `json:"state"`
	Side         string          `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	RejectReason string          `json:"reject_reason"`
	Detail       string          `json:"detail"`
}

// PlaceMarketOrder submits a good-for-day market order for whole shares.
// Robinhood collars market orders, so the latest price is sent alongside.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, shares int64, side broker.Side) (*broker.OrderResult, error) {
	if c.token == nil {
		return nil, broker.ErrNotAuthenticated
	}
	if shares <= 0 {
		return nil, fmt.Errorf("invalid share count %d", shares)
	}
	symbol = strings.ToUpper(symbol)

	if c.accountURL == "" {
		if _, err := c.account(ctx); err != nil {
			return nil, fmt.Errorf("failed to get account: %w", err)
		}
	}
	instrument, err := c.instrumentFor(ctx, symbol)
	if err != nil {
		return nil, err
	}
	price, err := c.LastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	req := orderRequest{
		Account:     c.accountURL,
		Instrument:  instrument,
		Symbol:      symbol,
		Type:        "market",
		TimeInForce: "gfd",
		Trigger:     "immediate",
		Price:       price.StringFixed(2),
		Quantity:    strconv.FormatInt(shares, 10),
		Side:        string(side),
		RefID:       uuid.NewString(),
	}

	resp, err := c.postJSON(ctx, "/orders/", req)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	var rec orderRecord
	if err := DecodeJSON(resp, &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("order not accepted: %s", rec.Detail)
	}
	switch rec.State {
	case "rejected", "failed", "cancelled":
		reason := rec.RejectReason
		if reason == "" {
			reason = rec.State
		}
		return nil, fmt.Errorf("order %s %s: %s", rec.ID, rec.State, reason)
	}

	c.log.Info().Str("order_id", rec.ID).Str("symbol", symbol).Str("state", rec.State).Msg("order submitted")

	return &broker.OrderResult{
		ID:       rec.ID,
		Symbol:   symbol,
		Side:     side,
		Quantity: shares,
		State:    rec.State,
	}, nil
}
