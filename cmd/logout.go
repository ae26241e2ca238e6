package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonandersen/rob/internal/broker"
)

// logoutOptions holds dependencies for the logout command.
type logoutOptions struct {
	runtimeOptions
}

// revoker is implemented by clients that can invalidate a token server-side.
type revoker interface {
	Revoke(ctx context.Context, token *broker.Token) error
}

func newLogoutCmd(opts logoutOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and remove the saved session",
		Long: `Revoke the saved brokerage session and delete the session file, so the
next run logs in from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runLogout(cmd, opts)
		},
	}
}

func runLogout(cmd *cobra.Command, opts logoutOptions) error {
	out := cmd.OutOrStdout()

	rt, err := newRuntime(cmd, opts.runtimeOptions)
	if err != nil {
		return err
	}
	if rt.cache == nil || !rt.cache.Exists() {
		_, _ = fmt.Fprintln(out, "No saved session.")
		return nil
	}

	token, err := rt.cache.Load()
	if err != nil {
		rt.log.Warn().Err(err).Msg("saved session unreadable, removing it")
	} else if r, ok := rt.client.(revoker); ok {
		if err := r.Revoke(cmd.Context(), token); err != nil {
			rt.log.Warn().Err(err).Msg("failed to revoke session")
		}
	}

	if err := rt.cache.Invalidate(); err != nil {
		return fmt.Errorf("failed to remove saved session: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Logged out. Saved session removed.")
	return nil
}

func init() {
	rootCmd.AddCommand(newLogoutCmd(logoutOptions{runtimeOptions: defaultRuntimeOptions()}))
}
