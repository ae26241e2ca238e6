package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
)

// Status is the authentication state of a Session.
type Status int

const (
	Unauthenticated Status = iota
	PendingCode
	PendingDeviceApproval
	Authenticated
	Failed
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case PendingCode:
		return "pending code"
	case PendingDeviceApproval:
		return "pending device approval"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is an authenticated brokerage session for one command invocation.
// It owns the broker client and exposes the trading operations the
// portfolio and processor packages need.
type Session struct {
	Status    Status
	Attempts  int
	LastError ErrorKind

	client    broker.Client
	log       zerolog.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an already authenticated client.
func NewSession(client broker.Client, log zerolog.Logger) *Session {
	return &Session{Status: Authenticated, client: client, log: log}
}

// Authenticated reports whether the session may place orders.
func (s *Session) Authenticated() bool {
	return s != nil && s.Status == Authenticated
}

func (s *Session) Holdings(ctx context.Context) ([]broker.Position, error) {
	if !s.Authenticated() {
		return nil, broker.ErrNotAuthenticated
	}
	return s.client.Holdings(ctx)
}

func (s *Session) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if !s.Authenticated() {
		return decimal.Zero, broker.ErrNotAuthenticated
	}
	return s.client.LastPrice(ctx, symbol)
}

func (s *Session) PlaceMarketOrder(ctx context.Context, symbol string, shares int64, side broker.Side) (*broker.OrderResult, error) {
	if !s.Authenticated() {
		return nil, broker.ErrNotAuthenticated
	}
	return s.client.PlaceMarketOrder(ctx, symbol, shares, side)
}

func (s *Session) AccountProfile(ctx context.Context) (*broker.AccountProfile, error) {
	if !s.Authenticated() {
		return nil, broker.ErrNotAuthenticated
	}
	return s.client.AccountProfile(ctx)
}

func (s *Session) PortfolioProfile(ctx context.Context) (*broker.PortfolioProfile, error) {
	if !s.Authenticated() {
		return nil, broker.ErrNotAuthenticated
	}
	return s.client.PortfolioProfile(ctx)
}

// Close logs out. It runs at most once per session and is a no-op for nil
// or unauthenticated sessions.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.Status != Authenticated {
			return
		}
		s.closeErr = s.client.Logout(ctx)
		if s.closeErr != nil {
			s.log.Warn().Err(s.closeErr).Msg("logout failed")
		} else {
			s.log.Debug().Msg("logged out")
		}
		s.Status = Unauthenticated
	})
	return s.closeErr
}
