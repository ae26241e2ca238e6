// Package processor walks every holding in symbol order and sizes, shows
// and (depending on the mode) places one market order per position.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jonandersen/rob/internal/broker"
	"github.com/jonandersen/rob/internal/output"
	"github.com/jonandersen/rob/internal/trade"
)

// Mode selects how orders are confirmed.
type Mode int

const (
	// DryRun sizes and prints every order without placing any.
	DryRun Mode = iota
	// AutoConfirm places every non-empty order without asking.
	AutoConfirm
	// Interactive asks the Confirmer before every order.
	Interactive
)

func (m Mode) String() string {
	switch m {
	case DryRun:
		return "dry-run"
	case AutoConfirm:
		return "auto-confirm"
	case Interactive:
		return "interactive"
	default:
		return "unknown"
	}
}

// DefaultTradeDelay paces consecutive orders.
const DefaultTradeDelay = time.Second

// Broker is the subset of a session the processor uses.
type Broker interface {
	Holdings(ctx context.Context) ([]broker.Position, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceMarketOrder(ctx context.Context, symbol string, shares int64, side broker.Side) (*broker.OrderResult, error)
}

// Result records what happened to each symbol.
type Result struct {
	Executed    []string
	Skipped     []string
	Failed      []string
	Errors      []error
	Aborted     bool
	Interrupted bool
}

// Processor runs the per-position workflow.
type Processor struct {
	broker  Broker
	confirm Confirmer
	out     io.Writer
	delay   time.Duration
	sleep   func(context.Context, time.Duration) error
	log     zerolog.Logger
}

// New returns a Processor. confirm is only consulted in Interactive mode.
func New(b Broker, confirm Confirmer, out io.Writer, log zerolog.Logger) *Processor {
	return &Processor{
		broker:  b,
		confirm: confirm,
		out:     out,
		delay:   DefaultTradeDelay,
		sleep:   sleep,
		log:     log,
	}
}

// WithDelay sets the pause after each successful order.
func (p *Processor) WithDelay(d time.Duration) *Processor {
	p.delay = d
	return p
}

// WithSleeper replaces the delay function.
func (p *Processor) WithSleeper(fn func(context.Context, time.Duration) error) *Processor {
	p.sleep = fn
	return p
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Processor) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *Processor) println(s string) {
	_, _ = fmt.Fprintln(p.out, s)
}

// Process adjusts every holding by pct. Per-symbol failures are recorded
// and the walk continues; Abort and context cancellation stop it. Orders
// already placed are never rolled back.
func (p *Processor) Process(ctx context.Context, action trade.Action, pct decimal.Decimal, mode Mode) (Result, error) {
	var res Result
	if err := trade.ValidatePercentage(pct); err != nil {
		return res, err
	}
	if mode == Interactive && p.confirm == nil {
		return res, errors.New("interactive mode requires a confirmer")
	}

	positions, err := p.broker.Holdings(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to fetch positions")
	}
	if len(positions) == 0 {
		p.println(output.WarningStyle.Render("No positions found in your account"))
		return res, nil
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	title := fmt.Sprintf("Processing positions to %s by %s", action, output.Percent(pct))
	if mode == DryRun {
		title = "DRY RUN - " + title
	}
	p.printf("\n%s\n%s\n%s\n\n", output.HeaderStyle.Render(output.Rule("=")), output.HeaderStyle.Render(title), output.HeaderStyle.Render(output.Rule("=")))

	total := len(positions)
	for i, pos := range positions {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		stop, err := p.processOne(ctx, i+1, total, pos, action, pct, mode, &res)
		if err != nil {
			if ctx.Err() != nil {
				res.Interrupted = true
				break
			}
			return res, err
		}
		if stop {
			break
		}
	}

	p.finish(mode, res)
	return res, nil
}

// processOne handles a single position. It reports stop=true on Abort.
// Broker calls run on a context detached from ctx so that an interrupt
// lets the current position finish; ctx still ends prompts and pacing.
func (p *Processor) processOne(ctx context.Context, index, total int, pos broker.Position, action trade.Action, pct decimal.Decimal, mode Mode, res *Result) (stop bool, err error) {
	divider := output.InfoStyle.Render(output.Rule("-"))
	work := context.WithoutCancel(ctx)

	price, err := p.broker.LastPrice(work, pos.Symbol)
	if err != nil {
		p.record(res, &trade.Error{Kind: trade.PriceUnavailable, Symbol: pos.Symbol, Err: err})
		p.printf("%s\n%s\n\n", output.ErrorStyle.Render(fmt.Sprintf("Error processing %s: could not fetch price: %v", pos.Symbol, err)), divider)
		return false, nil
	}

	intent := trade.Plan(pos, price, pct, action)
	if intent.Empty() {
		res.Skipped = append(res.Skipped, pos.Symbol)
		p.println(output.WarningStyle.Render(fmt.Sprintf("Skipping %s - calculated 0 shares to trade", pos.Symbol)))
		return false, nil
	}

	p.printf("[%d/%d] %s\n", index, total, output.HeaderStyle.Render(pos.Symbol))
	p.printf("  Current position: %s shares @ %s avg\n", output.Quantity(pos.Quantity), output.Money(pos.AverageCost))
	p.printf("  Current price: %s\n", output.Money(price))
	line := fmt.Sprintf("  → %s %d shares for ~%s", action.Verb(), intent.Shares, output.Money(intent.Amount))
	if action == trade.Increase {
		p.println(output.GreenStyle.Render(line))
	} else {
		p.println(output.RedStyle.Render(line))
	}

	switch mode {
	case DryRun:
		p.println(output.InfoStyle.Render("DRY RUN: Would execute trade"))
		res.Skipped = append(res.Skipped, pos.Symbol)

	case AutoConfirm:
		p.println(output.GreenStyle.Render("Auto-confirming trade..."))
		if err := p.execute(ctx, work, intent, res); err != nil {
			return true, err
		}

	case Interactive:
		decision, err := p.confirm.Confirm(ctx, intent)
		if err != nil {
			return true, fmt.Errorf("failed to read confirmation: %w", err)
		}
		switch decision {
		case Abort:
			res.Aborted = true
			p.printf("\n%s\n", output.ErrorStyle.Render("Aborting... No further trades will be executed."))
			return true, nil
		case Skip:
			res.Skipped = append(res.Skipped, pos.Symbol)
			p.println(output.WarningStyle.Render("Skipping " + pos.Symbol))
		case Execute:
			if err := p.execute(ctx, work, intent, res); err != nil {
				return true, err
			}
		}
	}

	p.printf("%s\n\n", divider)
	return false, nil
}

// execute places the order on work and records the outcome. Only
// cancellation of ctx during the pacing delay is returned.
func (p *Processor) execute(ctx, work context.Context, intent trade.Intent, res *Result) error {
	order, err := p.broker.PlaceMarketOrder(work, intent.Symbol, intent.Shares, intent.Action.Side())
	if err != nil {
		p.record(res, &trade.Error{Kind: trade.OrderRejected, Symbol: intent.Symbol, Err: err})
		p.println(output.ErrorStyle.Render(fmt.Sprintf("✗ Trade execution error for %s: %v", intent.Symbol, err)))
		return nil
	}

	res.Executed = append(res.Executed, intent.Symbol)
	verb := "Bought"
	if intent.Action == trade.Decrease {
		verb = "Sold"
	}
	p.println(output.GreenStyle.Render(fmt.Sprintf("✓ %s %d shares of %s", verb, intent.Shares, intent.Symbol)))
	p.log.Info().
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Action.Side())).
		Int64("shares", intent.Shares).
		Str("order_id", order.ID).
		Msg("order placed")

	return p.sleep(ctx, p.delay)
}

func (p *Processor) record(res *Result, err *trade.Error) {
	res.Failed = append(res.Failed, err.Symbol)
	res.Errors = append(res.Errors, err)
	p.log.Warn().Err(err.Err).Str("symbol", err.Symbol).Str("kind", err.Kind.String()).Msg("position failed")
}

func (p *Processor) finish(mode Mode, res Result) {
	switch {
	case res.Interrupted:
		p.printf("\n%s\n", output.WarningStyle.Render("Interrupted by user"))
	case mode == DryRun:
		p.printf("\n%s\n", output.GreenStyle.Render("Dry run complete! No trades were executed."))
	default:
		p.printf("\n%s\n", output.GreenStyle.Render("Position processing complete!"))
	}
	p.printf("Executed: %d  Skipped: %d  Failed: %d\n", len(res.Executed), len(res.Skipped), len(res.Failed))
}
