package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jonandersen/rob/internal/auth"
	"github.com/jonandersen/rob/internal/output"
	"github.com/jonandersen/rob/internal/portfolio"
	"github.com/jonandersen/rob/internal/processor"
	"github.com/jonandersen/rob/internal/trade"
)

// adjustOptions holds dependencies for the adjust command.
type adjustOptions struct {
	runtimeOptions
}

func newAdjustCmd(opts adjustOptions) *cobra.Command {
	var (
		action     string
		percentage string
		confirm    bool
		noConfirm  bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Increase or decrease every position by a percentage",
		Long: `Increase or decrease every position in the account by the same percentage.

Each position is sized independently: an increase buys qty*pct/100 shares at
the current price, a decrease sells qty*pct/100 shares. Fractional shares are
always rounded down. An increase that costs more than the available cash is
refused before any order is placed.

By default every trade is confirmed individually.`,
		Example: `  rob adjust --action increase --percentage 10
  rob adjust -a decrease -p 25 --dry-run
  rob adjust -a increase -p 5 --no-confirm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			act, err := trade.ParseAction(action)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pct, err := parsePercentage(percentage)
			if err != nil {
				_, _ = fmt.Fprintf(out, "%s %v\n", output.ErrorStyle.Render("Error:"), err)
				return nil
			}
			if noConfirm {
				confirm = false
			}
			return runAdjust(cmd, opts, act, pct, confirm, dryRun)
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", "", "Action to perform: increase or decrease (required)")
	cmd.Flags().StringVarP(&percentage, "percentage", "p", "", "Percentage to adjust positions by, in (0, 100] (required)")
	cmd.Flags().BoolVar(&confirm, "confirm", true, "Confirm each trade before executing")
	cmd.Flags().BoolVar(&noConfirm, "no-confirm", false, "Execute every trade without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be traded without placing orders")

	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("percentage")
	cmd.MarkFlagsMutuallyExclusive("confirm", "no-confirm")

	return cmd
}

// parsePercentage accepts "10", "10.5" or "10%".
func parsePercentage(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	pct, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage %q", s)
	}
	if err := trade.ValidatePercentage(pct); err != nil {
		return decimal.Zero, err
	}
	return pct, nil
}

func runAdjust(cmd *cobra.Command, opts adjustOptions, action trade.Action, pct decimal.Decimal, confirm, dryRun bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rt, err := newRuntime(cmd, opts.runtimeOptions)
	if err != nil {
		return err
	}

	printBanner(out, rt.cfg)
	sess, err := rt.login(ctx, out)
	if err != nil {
		return interrupted(out, err)
	}
	defer rt.closeSession(sess)

	snap := portfolio.New(sess, rt.log)
	_, _ = fmt.Fprintln(out, "\nFetching portfolio information...")
	printSummary(output.New(out, false), snap.Summarize(ctx))

	plan, ok, err := reviewPlan(ctx, out, snap, action, pct)
	if err != nil || !ok {
		return interrupted(out, err)
	}

	mode := processor.AutoConfirm
	switch {
	case dryRun:
		mode = processor.DryRun
		_, _ = fmt.Fprintln(out, output.WarningStyle.Render("\nDRY RUN - No trades will be executed"))
	case confirm:
		mode = processor.Interactive
		proceed, err := rt.term.Confirm(ctx, fmt.Sprintf("\nProceed with %sing positions?", verbStem(plan.Action)), false)
		if err != nil {
			return interrupted(out, err)
		}
		if !proceed {
			_, _ = fmt.Fprintln(out, "Operation cancelled.")
			return nil
		}
	}

	proc := processor.New(sess, &processor.PromptConfirmer{In: rt.term, Out: out}, out, rt.log).
		WithDelay(rt.cfg.TradeDelay.Duration)
	_, err = proc.Process(ctx, action, pct, mode)
	return interrupted(out, err)
}

// reviewPlan prices the adjustment and prints the operation summary. It
// returns ok=false when the plan must not proceed.
func reviewPlan(ctx context.Context, out io.Writer, snap *portfolio.Snapshotter, action trade.Action, pct decimal.Decimal) (*portfolio.Plan, bool, error) {
	_, _ = fmt.Fprintln(out, "\nCalculating expected cost...")
	plan, err := snap.Preflight(ctx, action, pct)

	var short *trade.InsufficientFundsError
	if err != nil && !errors.As(err, &short) {
		return nil, false, err
	}

	f := output.New(out, false)
	title := fmt.Sprintf("Action: %s positions by %s", strings.ToUpper(string(action)), output.Percent(pct))
	if action == trade.Decrease {
		f.Section(title,
			[2]string{"Expected Proceeds", output.GreenStyle.Render(output.Money(plan.Expected))},
			[2]string{"Cash After Selling", output.Money(plan.CashAfter())},
		)
		return plan, true, nil
	}

	pairs := [][2]string{
		{"Expected Total Cost", output.WarningStyle.Render(output.Money(plan.Expected))},
		{"Available Cash", output.Money(plan.Summary.AvailableCash)},
	}
	if short == nil && !plan.FundsUnverified {
		pairs = append(pairs, [2]string{"Remaining Cash After", output.Money(plan.CashAfter())})
	}
	f.Section(title, pairs...)

	if short != nil {
		_, _ = fmt.Fprintf(out, "\n%s\n", output.ErrorStyle.Render("❌ ERROR: Insufficient funds!"))
		_, _ = fmt.Fprintf(out, "   You need %s but only have %s available.\n", output.Money(short.Required), output.Money(short.Available))
		_, _ = fmt.Fprintln(out, "   Try a smaller percentage or sell some positions first.")
		return plan, false, nil
	}
	if plan.FundsUnverified {
		_, _ = fmt.Fprintln(out, output.WarningStyle.Render("\nWarning: available cash could not be verified."))
	}
	return plan, true, nil
}

// verbStem turns "increase" into "increas" so that "ing" can be appended.
func verbStem(a trade.Action) string {
	return strings.TrimSuffix(string(a), "e")
}

// interrupted reports cancellation as an ordinary stop rather than a
// failure.
func interrupted(out io.Writer, err error) error {
	if err == nil {
		return nil
	}
	if isInterrupt(err) {
		_, _ = fmt.Fprintln(out, "\nInterrupted by user")
		return nil
	}
	return err
}

func isInterrupt(err error) bool {
	if auth.KindOf(err) == auth.Canceled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, errMenuInterrupted)
}

func init() {
	rootCmd.AddCommand(newAdjustCmd(adjustOptions{runtimeOptions: defaultRuntimeOptions()}))
}
