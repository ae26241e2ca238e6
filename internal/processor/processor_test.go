package processor

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/rob/internal/broker"
	"github.com/jonandersen/rob/internal/broker/brokertest"
	"github.com/jonandersen/rob/internal/trade"
)

type scriptedConfirmer struct {
	decisions []Decision
	asked     []string
	err       error
}

func (s *scriptedConfirmer) Confirm(_ context.Context, intent trade.Intent) (Decision, error) {
	s.asked = append(s.asked, intent.Symbol)
	if s.err != nil {
		return Abort, s.err
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

func threeHoldings() []broker.Position {
	// Deliberately unsorted.
	return []broker.Position{
		{Symbol: "MSFT", Quantity: brokertest.Price("10"), AverageCost: brokertest.Price("300")},
		{Symbol: "AAPL", Quantity: brokertest.Price("10"), AverageCost: brokertest.Price("150")},
		{Symbol: "GOOG", Quantity: brokertest.Price("20"), AverageCost: brokertest.Price("120")},
	}
}

func newTestProcessor(m *brokertest.MockClient, c Confirmer) (*Processor, *bytes.Buffer, *sleepRecorder) {
	var out bytes.Buffer
	rec := &sleepRecorder{}
	p := New(m, c, &out, zerolog.Nop()).WithSleeper(rec.sleep)
	return p, &out, rec
}

func TestProcess_DryRunPlacesNothing(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)
	m.On("LastPrice", mock.Anything, "GOOG").Return(brokertest.Price("140"), nil)
	m.On("LastPrice", mock.Anything, "MSFT").Return(brokertest.Price("400"), nil)

	p, out, rec := newTestProcessor(m, nil)
	res, err := p.Process(context.Background(), trade.Increase, brokertest.Price("10"), DryRun)
	require.NoError(t, err)

	m.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, res.Executed)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, res.Skipped)
	assert.Empty(t, rec.calls)

	s := out.String()
	assert.Contains(t, s, "DRY RUN - Processing positions to increase by 10%")
	assert.Contains(t, s, "[1/3] AAPL")
	assert.Contains(t, s, "→ BUY 1 shares for ~$200.00")
	assert.Contains(t, s, "[2/3] GOOG")
	assert.Contains(t, s, "→ BUY 2 shares for ~$280.00")
	assert.Contains(t, s, "DRY RUN: Would execute trade")
	assert.Contains(t, s, "Dry run complete! No trades were executed.")
}

func TestProcess_AutoConfirmExecutesInOrderWithPacing(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)
	m.On("LastPrice", mock.Anything, "GOOG").Return(brokertest.Price("140"), nil)
	m.On("LastPrice", mock.Anything, "MSFT").Return(brokertest.Price("400"), nil)

	var placed []string
	record := func(args mock.Arguments) { placed = append(placed, args.String(1)) }
	m.On("PlaceMarketOrder", mock.Anything, "AAPL", int64(5), broker.SideSell).Run(record).
		Return(brokertest.Filled("AAPL", 5, broker.SideSell), nil)
	m.On("PlaceMarketOrder", mock.Anything, "GOOG", int64(10), broker.SideSell).Run(record).
		Return(brokertest.Filled("GOOG", 10, broker.SideSell), nil)
	m.On("PlaceMarketOrder", mock.Anything, "MSFT", int64(5), broker.SideSell).Run(record).
		Return(brokertest.Filled("MSFT", 5, broker.SideSell), nil)

	p, out, rec := newTestProcessor(m, nil)
	res, err := p.Process(context.Background(), trade.Decrease, brokertest.Price("50"), AutoConfirm)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, placed)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, res.Executed)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, rec.calls)
	m.AssertExpectations(t)

	s := out.String()
	assert.Contains(t, s, "Auto-confirming trade...")
	assert.Contains(t, s, "✓ Sold 5 shares of AAPL")
	assert.Contains(t, s, "Position processing complete!")
}

func TestProcess_InteractiveAbortStopsTheWalk(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil).Once()
	m.On("LastPrice", mock.Anything, "GOOG").Return(brokertest.Price("140"), nil).Once()
	m.On("PlaceMarketOrder", mock.Anything, "AAPL", int64(1), broker.SideBuy).
		Return(brokertest.Filled("AAPL", 1, broker.SideBuy), nil).Once()

	c := &scriptedConfirmer{decisions: []Decision{Execute, Abort}}
	p, out, _ := newTestProcessor(m, c)
	res, err := p.Process(context.Background(), trade.Increase, brokertest.Price("10"), Interactive)
	require.NoError(t, err)

	assert.True(t, res.Aborted)
	assert.Equal(t, []string{"AAPL"}, res.Executed)
	assert.Equal(t, []string{"AAPL", "GOOG"}, c.asked)
	m.AssertNumberOfCalls(t, "PlaceMarketOrder", 1)
	m.AssertNotCalled(t, "LastPrice", mock.Anything, "MSFT")
	m.AssertExpectations(t)
	assert.Contains(t, out.String(), "Aborting... No further trades will be executed.")
}

func TestProcess_InteractiveSkip(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return([]broker.Position{
		{Symbol: "AAPL", Quantity: brokertest.Price("10"), AverageCost: brokertest.Price("150")},
	}, nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)

	p, out, _ := newTestProcessor(m, &scriptedConfirmer{decisions: []Decision{Skip}})
	res, err := p.Process(context.Background(), trade.Increase, brokertest.Price("10"), Interactive)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, res.Skipped)
	m.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, out.String(), "Skipping AAPL")
}

func TestProcess_ZeroShareIsSkippedWithoutConfirmation(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return([]broker.Position{
		{Symbol: "BRK", Quantity: brokertest.Price("3"), AverageCost: brokertest.Price("400")},
	}, nil)
	m.On("LastPrice", mock.Anything, "BRK").Return(brokertest.Price("410"), nil)

	c := &scriptedConfirmer{}
	p, out, _ := newTestProcessor(m, c)
	res, err := p.Process(context.Background(), trade.Decrease, brokertest.Price("10"), Interactive)
	require.NoError(t, err)

	assert.Empty(t, c.asked)
	assert.Equal(t, []string{"BRK"}, res.Skipped)
	assert.Contains(t, out.String(), "Skipping BRK - calculated 0 shares to trade")
}

func TestProcess_PerSymbolFailuresContinue(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("0"), errors.New("quote timeout"))
	m.On("LastPrice", mock.Anything, "GOOG").Return(brokertest.Price("140"), nil)
	m.On("LastPrice", mock.Anything, "MSFT").Return(brokertest.Price("400"), nil)
	m.On("PlaceMarketOrder", mock.Anything, "GOOG", int64(2), broker.SideBuy).
		Return(nil, errors.New("market closed"))
	m.On("PlaceMarketOrder", mock.Anything, "MSFT", int64(1), broker.SideBuy).
		Return(brokertest.Filled("MSFT", 1, broker.SideBuy), nil)

	p, out, rec := newTestProcessor(m, nil)
	res, err := p.Process(context.Background(), trade.Increase, brokertest.Price("10"), AutoConfirm)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "GOOG"}, res.Failed)
	assert.Equal(t, []string{"MSFT"}, res.Executed)
	require.Len(t, res.Errors, 2)
	assert.True(t, trade.IsKind(res.Errors[0], trade.PriceUnavailable))
	assert.True(t, trade.IsKind(res.Errors[1], trade.OrderRejected))
	// Only successful orders are paced.
	assert.Len(t, rec.calls, 1)

	s := out.String()
	assert.Contains(t, s, "Error processing AAPL")
	assert.Contains(t, s, "✗ Trade execution error for GOOG: market closed")
}

func TestProcess_NoPositions(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return([]broker.Position{}, nil)

	p, out, _ := newTestProcessor(m, nil)
	res, err := p.Process(context.Background(), trade.Increase, brokertest.Price("5"), AutoConfirm)
	require.NoError(t, err)
	assert.Empty(t, res.Executed)
	assert.Contains(t, out.String(), "No positions found in your account")
}

func TestProcess_InvalidPercentage(t *testing.T) {
	m := new(brokertest.MockClient)
	p, _, _ := newTestProcessor(m, nil)

	_, err := p.Process(context.Background(), trade.Increase, brokertest.Price("0"), DryRun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 0 and 100")
	m.AssertNotCalled(t, "Holdings", mock.Anything)
}

func TestProcess_InteractiveWithoutConfirmer(t *testing.T) {
	p, _, _ := newTestProcessor(new(brokertest.MockClient), nil)
	_, err := p.Process(context.Background(), trade.Increase, brokertest.Price("5"), Interactive)
	require.Error(t, err)
}

func TestProcess_CancellationStopsBeforeNextSymbol(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)
	m.On("PlaceMarketOrder", mock.Anything, "AAPL", int64(1), broker.SideBuy).
		Run(func(mock.Arguments) { cancel() }).
		Return(brokertest.Filled("AAPL", 1, broker.SideBuy), nil)

	var out bytes.Buffer
	p := New(m, nil, &out, zerolog.Nop()).WithDelay(time.Hour)
	res, err := p.Process(ctx, trade.Increase, brokertest.Price("10"), AutoConfirm)
	require.NoError(t, err)

	assert.True(t, res.Interrupted)
	assert.Equal(t, []string{"AAPL"}, res.Executed)
	m.AssertNotCalled(t, "LastPrice", mock.Anything, "GOOG")
	assert.Contains(t, out.String(), "Interrupted by user")
}

func TestProcess_InterruptLetsInFlightOrderFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)
	m.On("PlaceMarketOrder", mock.Anything, "AAPL", int64(1), broker.SideBuy).
		Run(func(args mock.Arguments) {
			cancel()
			orderCtx := args.Get(0).(context.Context)
			select {
			case <-orderCtx.Done():
				t.Error("order context canceled by interrupt")
			case <-time.After(50 * time.Millisecond):
			}
		}).
		Return(brokertest.Filled("AAPL", 1, broker.SideBuy), nil)

	p, out, _ := newTestProcessor(m, nil)
	res, err := p.Process(ctx, trade.Increase, brokertest.Price("10"), AutoConfirm)
	require.NoError(t, err)

	assert.True(t, res.Interrupted)
	assert.Equal(t, []string{"AAPL"}, res.Executed)
	assert.Empty(t, res.Failed)
	assert.Contains(t, out.String(), "Bought 1 shares of AAPL")
	assert.Contains(t, out.String(), "Executed: 1  Skipped: 0  Failed: 0")
	m.AssertNotCalled(t, "LastPrice", mock.Anything, "GOOG")
}

func TestProcess_InterruptRecordsRejectedInFlightOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)
	m.On("PlaceMarketOrder", mock.Anything, "AAPL", int64(1), broker.SideBuy).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, errors.New("market closed"))

	p, _, _ := newTestProcessor(m, nil)
	res, err := p.Process(ctx, trade.Increase, brokertest.Price("10"), AutoConfirm)
	require.NoError(t, err)

	assert.True(t, res.Interrupted)
	assert.Equal(t, []string{"AAPL"}, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "market closed")
}

func TestProcess_ConfirmerErrorIsReturned(t *testing.T) {
	m := new(brokertest.MockClient)
	m.On("Holdings", mock.Anything).Return(threeHoldings(), nil)
	m.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)

	p, _, _ := newTestProcessor(m, &scriptedConfirmer{err: errors.New("stdin closed")})
	_, err := p.Process(context.Background(), trade.Increase, brokertest.Price("10"), Interactive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read confirmation")
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
		ok   bool
	}{
		{"", Execute, true},
		{"  ", Execute, true},
		{"skip", Skip, true},
		{"S", Skip, true},
		{"abort", Abort, true},
		{"ABORT", Abort, true},
		{"yes", Skip, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDecision(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

type lines []string

func (l *lines) ReadLine(context.Context, string) (string, error) {
	s := (*l)[0]
	*l = (*l)[1:]
	return s, nil
}

func TestPromptConfirmer(t *testing.T) {
	var out bytes.Buffer
	in := &lines{"huh", ""}
	c := &PromptConfirmer{In: in, Out: &out}

	d, err := c.Confirm(context.Background(), trade.Intent{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, Skip, d)
	assert.Contains(t, out.String(), "Invalid input. Skipping AAPL")

	d, err = c.Confirm(context.Background(), trade.Intent{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, Execute, d)
}
