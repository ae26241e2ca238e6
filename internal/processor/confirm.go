package processor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jonandersen/rob/internal/output"
	"github.com/jonandersen/rob/internal/trade"
)

// Decision is the operator's answer for one sized order.
type Decision int

const (
	Execute Decision = iota
	Skip
	Abort
)

func (d Decision) String() string {
	switch d {
	case Execute:
		return "execute"
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// ParseDecision maps operator input to a Decision. Empty input executes.
// Unrecognized input is reported with ok=false and treated as Skip.
func ParseDecision(input string) (d Decision, ok bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return Execute, true
	case "skip", "s":
		return Skip, true
	case "abort":
		return Abort, true
	default:
		return Skip, false
	}
}

// Confirmer decides whether a sized order is placed.
type Confirmer interface {
	Confirm(ctx context.Context, intent trade.Intent) (Decision, error)
}

// LineReader reads one line of operator input.
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// PromptConfirmer asks on the terminal for every order.
type PromptConfirmer struct {
	In  LineReader
	Out io.Writer
}

func (p *PromptConfirmer) Confirm(ctx context.Context, intent trade.Intent) (Decision, error) {
	answer, err := p.In.ReadLine(ctx, "\n  "+output.WarningStyle.Render("Press ENTER to execute, 'skip' to skip, or 'abort' to exit:")+" ")
	if err != nil {
		return Abort, err
	}
	d, ok := ParseDecision(answer)
	if !ok {
		_, _ = fmt.Fprintln(p.Out, output.WarningStyle.Render(fmt.Sprintf("Invalid input. Skipping %s", intent.Symbol)))
	}
	return d, nil
}
