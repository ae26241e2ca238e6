package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonandersen/rob/internal/auth"
)

var Version = "dev"

var (
	// jsonOutput controls whether output is formatted as JSON
	jsonOutput bool
	// logLevel overrides the configured log level when set
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "rob",
	Short: "Bulk position adjuster",
	Long: `rob increases or decreases every position in a brokerage account by
the same percentage, one market order per holding.

Run without a command to start interactive mode.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
}

// GetJSONMode returns whether JSON output mode is enabled.
func GetJSONMode() bool {
	return jsonOutput
}

// exitCode maps a command error to the process exit status. Only a failed
// login is reported as failure.
func exitCode(err error) int {
	if errors.Is(err, auth.ErrAuthFailed) {
		return 1
	}
	return 0
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}
