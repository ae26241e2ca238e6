// Package brokertest provides a testify mock of broker.Client.
package brokertest

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/jonandersen/rob/internal/broker"
)

// MockClient is a broker.Client whose calls are scripted with On/Return.
type MockClient struct {
	mock.Mock
}

var _ broker.Client = (*MockClient)(nil)

func (m *MockClient) Login(ctx context.Context, username, password, code string) (*broker.Token, error) {
	args := m.Called(ctx, username, password, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.Token), args.Error(1)
}

func (m *MockClient) Resume(ctx context.Context, token *broker.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockClient) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Holdings(ctx context.Context) ([]broker.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.Position), args.Error(1)
}

func (m *MockClient) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockClient) PlaceMarketOrder(ctx context.Context, symbol string, shares int64, side broker.Side) (*broker.OrderResult, error) {
	args := m.Called(ctx, symbol, shares, side)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.OrderResult), args.Error(1)
}

func (m *MockClient) AccountProfile(ctx context.Context) (*broker.AccountProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.AccountProfile), args.Error(1)
}

func (m *MockClient) PortfolioProfile(ctx context.Context) (*broker.PortfolioProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.PortfolioProfile), args.Error(1)
}

// Filled returns an accepted order result for symbol.
func Filled(symbol string, shares int64, side broker.Side) *broker.OrderResult {
	return &broker.OrderResult{ID: "order-" + symbol, Symbol: symbol, Side: side, Quantity: shares, State: "confirmed"}
}

// Price is shorthand for decimal.RequireFromString.
func Price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
