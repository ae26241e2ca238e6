package auth

import (
	"context"
	"fmt"
	"io"
)

// LineReader reads one line of operator input.
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// PromptApprover prints instructions and waits for ENTER.
type PromptApprover struct {
	In  LineReader
	Out io.Writer
}

func (p *PromptApprover) AwaitDeviceApproval(ctx context.Context) error {
	_, _ = fmt.Fprintln(p.Out, "\n  1. Open your brokerage app")
	_, _ = fmt.Fprintln(p.Out, "  2. Look for the 'Is this you trying to log in?' notification")
	_, _ = fmt.Fprintln(p.Out, "  3. Approve the login")
	_, _ = fmt.Fprintln(p.Out, "  4. Come back here and press ENTER")
	if _, err := p.In.ReadLine(ctx, "\nPress ENTER after approving on your device..."); err != nil {
		return fmt.Errorf("failed to wait for device approval: %w", err)
	}
	return nil
}

func (p *PromptApprover) AwaitChallenge(ctx context.Context, detail string) error {
	_, _ = fmt.Fprintf(p.Out, "\nAuthentication challenge detected: %s\n", detail)
	if _, err := p.In.ReadLine(ctx, "Complete any required steps and press ENTER to retry..."); err != nil {
		return fmt.Errorf("failed to wait for challenge: %w", err)
	}
	return nil
}
