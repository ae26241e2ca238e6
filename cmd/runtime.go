package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jonandersen/rob/internal/auth"
	"github.com/jonandersen/rob/internal/broker"
	"github.com/jonandersen/rob/internal/broker/alpaca"
	"github.com/jonandersen/rob/internal/broker/robinhood"
	"github.com/jonandersen/rob/internal/config"
	"github.com/jonandersen/rob/internal/credentials"
	"github.com/jonandersen/rob/internal/keyring"
	"github.com/jonandersen/rob/internal/logger"
	"github.com/jonandersen/rob/internal/output"
	"github.com/jonandersen/rob/internal/portfolio"
	"github.com/jonandersen/rob/internal/prompt"
)

// runtimeOptions holds the dependencies shared by commands that log in.
// This allows for dependency injection in tests.
type runtimeOptions struct {
	configPath string
	envFiles   []string
	store      keyring.Store
	in         io.Reader
	newClient  func(cfg *config.Config, log zerolog.Logger) (broker.Client, error)
	newCache   func(cfg *config.Config) auth.SessionCache
}

func defaultRuntimeOptions() runtimeOptions {
	return runtimeOptions{
		configPath: config.ConfigPath(),
		envFiles:   credentials.EnvFiles(),
		store:      keyring.NewEnvStore(keyring.NewSystemStore()),
		in:         os.Stdin,
		newClient:  newBrokerClient,
		newCache:   newSessionCache,
	}
}

// newBrokerClient builds the client named by cfg.Broker.
func newBrokerClient(cfg *config.Config, log zerolog.Logger) (broker.Client, error) {
	switch cfg.Broker {
	case config.BrokerRobinhood:
		return robinhood.NewClient(cfg.APIBaseURL, cfg.DeviceToken, log), nil
	case config.BrokerAlpaca:
		baseURL := cfg.APIBaseURL
		if baseURL == config.DefaultAPIBaseURL {
			baseURL = alpaca.PaperBaseURL
		}
		return alpaca.NewClient(baseURL, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBroker, cfg.Broker)
	}
}

// newSessionCache returns the session file cache. Alpaca sessions are
// stateless and never cached.
func newSessionCache(cfg *config.Config) auth.SessionCache {
	if cfg.Broker == config.BrokerAlpaca {
		return nil
	}
	return auth.NewFileCache(cfg.SessionCachePath)
}

// runtime is the per-invocation state of a command that talks to a broker.
type runtime struct {
	cfg    *config.Config
	log    zerolog.Logger
	term   *prompt.Terminal
	client broker.Client
	cache  auth.SessionCache
	opts   runtimeOptions
}

func newRuntime(cmd *cobra.Command, opts runtimeOptions) (*runtime, error) {
	loaded, err := credentials.LoadEnv(opts.envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  resolveLogLevel(cfg),
		Pretty: true,
		Out:    cmd.ErrOrStderr(),
	})
	log.Debug().Strs("env_files", loaded).Str("broker", cfg.Broker).Msg("configuration loaded")

	client, err := opts.newClient(cfg, log)
	if err != nil {
		return nil, err
	}

	r := &runtime{
		cfg:    cfg,
		log:    log,
		term:   prompt.NewTerminal(opts.in, cmd.OutOrStdout()),
		client: client,
		cache:  opts.newCache(cfg),
		opts:   opts,
	}
	r.wireRobinhood()
	return r, nil
}

// resolveLogLevel applies flag, then environment, then config precedence.
func resolveLogLevel(cfg *config.Config) string {
	if logLevel != "" {
		return logLevel
	}
	if v := strings.TrimSpace(os.Getenv(config.EnvLogLevel)); v != "" {
		return v
	}
	return cfg.LogLevel
}

// wireRobinhood persists the device token so later logins skip device
// approval, and keeps the session cache current across token refreshes.
func (r *runtime) wireRobinhood() {
	rh, ok := r.client.(*robinhood.Client)
	if !ok {
		return
	}
	if r.cfg.DeviceToken == "" {
		r.cfg.DeviceToken = rh.DeviceToken
		if err := config.Save(r.opts.configPath, r.cfg); err != nil {
			r.log.Warn().Err(err).Msg("failed to save device token")
		}
	}
	if r.cache != nil {
		cache := r.cache
		rh.OnRefresh = func(token *broker.Token) {
			if err := cache.Save(token); err != nil {
				r.log.Warn().Err(err).Msg("failed to save refreshed session")
			}
		}
	}
}

// login authenticates, prompting through the terminal for anything missing.
func (r *runtime) login(ctx context.Context, out io.Writer) (*auth.Session, error) {
	source := credentials.NewSource(r.opts.store, r.term, out, r.log)
	source.Username = r.cfg.Username
	source.AskCode = r.cfg.Broker == config.BrokerRobinhood

	authn := auth.New(r.client, r.cache, &auth.PromptApprover{In: r.term, Out: out}, out, r.log).
		WithOptions(auth.Options{
			MaxAttempts: r.cfg.MaxLoginAttempts,
			SettleDelay: r.cfg.ApprovalSettleDelay.Duration,
			RetryDelay:  r.cfg.RetryDelay.Duration,
		})

	sess, err := authn.Authenticate(ctx, source)
	if err != nil {
		if auth.KindOf(err) != auth.Canceled {
			_, _ = fmt.Fprintln(out, output.ErrorStyle.Render("Authentication failed. Check your credentials and try again."))
		}
		return nil, err
	}
	return sess, nil
}

// closeSession logs out on a fresh context so an interrupt still ends the
// session.
func (r *runtime) closeSession(sess *auth.Session) {
	if err := sess.Close(context.Background()); err != nil {
		r.log.Warn().Err(err).Msg("logout failed")
	}
}

func brokerTitle(name string) string {
	switch name {
	case config.BrokerAlpaca:
		return "Alpaca"
	default:
		return "Robinhood"
	}
}

func printBanner(out io.Writer, cfg *config.Config) {
	_, _ = fmt.Fprintf(out, "\n%s\n\n", output.Banner(brokerTitle(cfg.Broker)+" Position Manager"))
}

func printSummary(f *output.Formatter, s portfolio.Summary) {
	f.Section("Portfolio Summary",
		[2]string{"Total Portfolio Value", output.GreenStyle.Render(output.Money(s.TotalValue))},
		[2]string{"Available Cash", output.WarningStyle.Render(output.Money(s.AvailableCash))},
		[2]string{"Positions Value", output.InfoStyle.Render(output.Money(s.PositionsValue))},
	)
}
