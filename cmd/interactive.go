package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jonandersen/rob/internal/output"
	"github.com/jonandersen/rob/internal/portfolio"
	"github.com/jonandersen/rob/internal/processor"
	"github.com/jonandersen/rob/internal/prompt"
	"github.com/jonandersen/rob/internal/trade"
)

var errMenuInterrupted = errors.New("menu interrupted")

type menuChoice int

const (
	choiceIncrease menuChoice = iota + 1
	choiceDecrease
	choiceExit
)

// menu drives the interactive session's questions.
type menu interface {
	Choose(ctx context.Context) (menuChoice, error)
	Percentage(ctx context.Context, action trade.Action) (decimal.Decimal, error)
	Confirm(ctx context.Context, question string) (bool, error)
}

// interactiveOptions holds dependencies for the interactive command.
type interactiveOptions struct {
	runtimeOptions
	// newMenu overrides menu selection; nil picks survey on a terminal and
	// plain line prompts otherwise.
	newMenu func(term *prompt.Terminal, out io.Writer) menu
}

func newInteractiveCmd(opts interactiveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Choose an adjustment from a menu",
		Long: `Show the portfolio summary, then ask whether to increase or decrease
positions, by how much, and confirm each trade individually.

This is also what runs when rob is started without a command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runInteractive(cmd, opts)
		},
	}
}

func runInteractive(cmd *cobra.Command, opts interactiveOptions) error {
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

	m := pickMenu(opts, rt.term, out)
	choice, err := m.Choose(ctx)
	if err != nil {
		return interrupted(out, err)
	}
	var action trade.Action
	switch choice {
	case choiceIncrease:
		action = trade.Increase
	case choiceDecrease:
		action = trade.Decrease
	default:
		_, _ = fmt.Fprintln(out, "Exiting...")
		return nil
	}

	pct, err := m.Percentage(ctx, action)
	if err != nil {
		return interrupted(out, err)
	}

	plan, ok, err := reviewPlan(ctx, out, snap, action, pct)
	if err != nil || !ok {
		return interrupted(out, err)
	}

	proceed, err := m.Confirm(ctx, fmt.Sprintf("Proceed with %sing positions?", verbStem(plan.Action)))
	if err != nil {
		return interrupted(out, err)
	}
	if !proceed {
		_, _ = fmt.Fprintln(out, "Operation cancelled.")
		return nil
	}

	proc := processor.New(sess, &processor.PromptConfirmer{In: rt.term, Out: out}, out, rt.log).
		WithDelay(rt.cfg.TradeDelay.Duration)
	_, err = proc.Process(ctx, action, pct, processor.Interactive)
	return interrupted(out, err)
}

func pickMenu(opts interactiveOptions, t *prompt.Terminal, out io.Writer) menu {
	if opts.newMenu != nil {
		return opts.newMenu(t, out)
	}
	if f, ok := opts.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return surveyMenu{}
	}
	return &lineMenu{term: t, out: out}
}

// parsePercentageInput validates a typed percentage with operator-facing
// messages.
func parsePercentageInput(s string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return decimal.Zero, errors.New("Please enter a valid number")
	}
	if trade.ValidatePercentage(pct) != nil {
		return decimal.Zero, errors.New("Please enter a percentage between 0 and 100")
	}
	return pct, nil
}

// surveyMenu asks with arrow-key selection. survey reads the process
// terminal directly and does not observe ctx.
type surveyMenu struct{}

var menuOptions = []string{"Increase positions", "Decrease positions", "Exit"}

func (surveyMenu) Choose(context.Context) (menuChoice, error) {
	var picked string
	q := &survey.Select{
		Message: "What would you like to do?",
		Options: menuOptions,
		Default: menuOptions[0],
	}
	if err := survey.AskOne(q, &picked); err != nil {
		return 0, surveyErr(err)
	}
	for i, o := range menuOptions {
		if o == picked {
			return menuChoice(i + 1), nil
		}
	}
	return choiceExit, nil
}

func (surveyMenu) Percentage(_ context.Context, action trade.Action) (decimal.Decimal, error) {
	var raw string
	q := &survey.Input{
		Message: fmt.Sprintf("Enter the percentage to %s positions by:", action),
		Help:    "A number greater than 0 and at most 100, e.g. 10 or 2.5",
	}
	err := survey.AskOne(q, &raw, survey.WithValidator(func(val interface{}) error {
		s, _ := val.(string)
		_, err := parsePercentageInput(s)
		return err
	}))
	if err != nil {
		return decimal.Zero, surveyErr(err)
	}
	return parsePercentageInput(raw)
}

func (surveyMenu) Confirm(_ context.Context, question string) (bool, error) {
	var ok bool
	if err := survey.AskOne(&survey.Confirm{Message: question, Default: false}, &ok); err != nil {
		return false, surveyErr(err)
	}
	return ok, nil
}

func surveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errMenuInterrupted
	}
	return fmt.Errorf("failed to read answer: %w", err)
}

// lineMenu asks with numbered line prompts, for piped input.
type lineMenu struct {
	term *prompt.Terminal
	out  io.Writer
}

func (m *lineMenu) Choose(ctx context.Context) (menuChoice, error) {
	_, _ = fmt.Fprintln(m.out, "\nWhat would you like to do?")
	for i, o := range menuOptions {
		_, _ = fmt.Fprintf(m.out, "  %d) %s\n", i+1, o)
	}
	for {
		answer, err := m.term.ReadLine(ctx, "\nEnter your choice (1-3): ")
		if err != nil {
			return 0, err
		}
		switch answer {
		case "1":
			return choiceIncrease, nil
		case "2":
			return choiceDecrease, nil
		case "3":
			return choiceExit, nil
		}
		_, _ = fmt.Fprintln(m.out, "Invalid choice. Please enter 1, 2, or 3.")
	}
}

func (m *lineMenu) Percentage(ctx context.Context, action trade.Action) (decimal.Decimal, error) {
	for {
		answer, err := m.term.ReadLine(ctx, fmt.Sprintf("\nEnter the percentage to %s positions by: ", action))
		if err != nil {
			return decimal.Zero, err
		}
		pct, err := parsePercentageInput(answer)
		if err == nil {
			return pct, nil
		}
		_, _ = fmt.Fprintln(m.out, err)
	}
}

func (m *lineMenu) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := m.term.ReadLine(ctx, fmt.Sprintf("\n%s (yes/no): ", question))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func init() {
	opts := interactiveOptions{runtimeOptions: defaultRuntimeOptions()}
	rootCmd.AddCommand(newInteractiveCmd(opts))
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runInteractive(cmd, opts)
	}
}
