package robinhood

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
)

type accountRecord struct {
	URL           string          `json:"url"`
	AccountNumber string          `json:"account_number"`
	BuyingPower   decimal.Decimal `json:"buying_power"`
	Cash          decimal.Decimal `json:"cash"`
}

type portfolioRecord struct {
	Equity              decimal.Decimal `json:"equity"`
	ExtendedHoursEquity decimal.Decimal `json:"extended_hours_equity"`
	MarketValue         decimal.Decimal `json:"market_value"`
}

var errNoAccount = errors.New("no brokerage account found")

// account fetches the first brokerage account and remembers its URL.
func (c *Client) account(ctx context.Context) (*accountRecord, error) {
	var p page[accountRecord]
	if err := c.getJSON(ctx, "/accounts/", nil, &p); err != nil {
		return nil, err
	}
	if len(p.Results) == 0 {
		return nil, errNoAccount
	}
	c.accountURL = p.Results[0].URL
	return &p.Results[0], nil
}

// AccountProfile returns the account number and buying power.
func (c *Client) AccountProfile(ctx context.Context) (*broker.AccountProfile, error) {
	if c.token == nil {
		return nil, broker.ErrNotAuthenticated
	}
	acct, err := c.account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &broker.AccountProfile{
		AccountNumber: acct.AccountNumber,
		BuyingPower:   acct.BuyingPower,
	}, nil
}

// PortfolioProfile returns equity figures.
func (c *Client) PortfolioProfile(ctx context.Context) (*broker.PortfolioProfile, error) {
	if c.token == nil {
		return nil, broker.ErrNotAuthenticated
	}
	var p page[portfolioRecord]
	if err := c.getJSON(ctx, "/portfolios/", nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	if len(p.Results) == 0 {
		return nil, errNoAccount
	}
	return &broker.PortfolioProfile{
		Equity:              p.Results[0].Equity,
		ExtendedHoursEquity: p.Results[0].ExtendedHoursEquity,
	}, nil
}
