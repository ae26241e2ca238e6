package cmd

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jonandersen/rob/internal/output"
	"github.com/jonandersen/rob/internal/portfolio"
)

// portfolioOptions holds dependencies for the portfolio command.
type portfolioOptions struct {
	runtimeOptions
	jsonMode bool
}

type portfolioView struct {
	Summary   portfolio.Summary `json:"summary"`
	Positions []positionView    `json:"positions"`
}

type positionView struct {
	Symbol      string          `json:"symbol"`
	Shares      decimal.Decimal `json:"shares"`
	AverageCost decimal.Decimal `json:"averageCost"`
	Price       decimal.Decimal `json:"price"`
	Value       decimal.Decimal `json:"value"`
	Error       string          `json:"error,omitempty"`
}

func newPortfolioCmd(opts portfolioOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show the portfolio summary and positions",
		Long: `Log in and show total value, available cash and every position priced
at the current market. Nothing is traded.`,
		Example: `  rob portfolio
  rob portfolio --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.jsonMode = opts.jsonMode || GetJSONMode()
			return runPortfolio(cmd, opts)
		},
	}
}

func runPortfolio(cmd *cobra.Command, opts portfolioOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Keep stdout clean for the JSON document.
	var status io.Writer = out
	if opts.jsonMode {
		status = cmd.ErrOrStderr()
	}

	rt, err := newRuntime(cmd, opts.runtimeOptions)
	if err != nil {
		return err
	}

	printBanner(status, rt.cfg)
	sess, err := rt.login(ctx, status)
	if err != nil {
		return interrupted(status, err)
	}
	defer rt.closeSession(sess)

	snap := portfolio.New(sess, rt.log)
	_, _ = fmt.Fprintln(status, "\nFetching portfolio information...")
	summary := snap.Summarize(ctx)
	valuations, err := snap.Valuations(ctx)
	if err != nil {
		return interrupted(status, fmt.Errorf("failed to fetch positions: %w", err))
	}

	formatter := output.New(out, opts.jsonMode)
	if opts.jsonMode {
		view := portfolioView{Summary: summary, Positions: make([]positionView, 0, len(valuations))}
		for _, v := range valuations {
			pv := positionView{
				Symbol:      v.Symbol,
				Shares:      v.Quantity,
				AverageCost: v.AverageCost,
				Price:       v.Price,
				Value:       v.Value,
			}
			if v.PriceErr != nil {
				pv.Error = v.PriceErr.Error()
			}
			view.Positions = append(view.Positions, pv)
		}
		return formatter.Print(view)
	}

	printSummary(formatter, summary)
	if len(valuations) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo positions found in your account")
		return nil
	}

	_, _ = fmt.Fprintf(out, "\n%s\n", output.ValueStyle.Render("Current Positions"))
	headers := []string{"Symbol", "Shares", "Avg Cost", "Price", "Value"}
	rows := make([][]string, 0, len(valuations))
	for _, v := range valuations {
		price, value := output.Money(v.Price), output.Money(v.Value)
		if v.PriceErr != nil {
			price, value = "n/a", "n/a"
		}
		rows = append(rows, []string{
			v.Symbol,
			output.Quantity(v.Quantity),
			output.Money(v.AverageCost),
			price,
			value,
		})
	}
	return formatter.Table(headers, rows)
}

func init() {
	rootCmd.AddCommand(newPortfolioCmd(portfolioOptions{runtimeOptions: defaultRuntimeOptions()}))
}
