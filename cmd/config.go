package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonandersen/rob/internal/config"
	"github.com/jonandersen/rob/internal/credentials"
	"github.com/jonandersen/rob/internal/keyring"
	"github.com/jonandersen/rob/internal/otp"
	"github.com/jonandersen/rob/internal/prompt"
)

// configOptions holds dependencies for the config command.
// This allows for dependency injection in tests.
type configOptions struct {
	configPath string
	envPath    string
	store      keyring.Store
	in         io.Reader
}

type configFlags struct {
	username   string
	password   string
	totpSecret string
	broker     string
	envFile    bool
	show       bool
	clear      bool
}

func newConfigCmd(opts configOptions) *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Store login credentials",
		Long: `Store the brokerage username, password and optional TOTP secret.

The username and broker are saved to the config file. The password and TOTP
secret go to the system keyring, or with --env-file to a .env file readable
only by you. Values not given as flags are prompted for; empty answers keep
what is already stored.

For Alpaca, the API key id is the username and the secret key the password.`,
		Example: `  rob config
  rob config --username me@example.com --env-file
  rob config --show
  rob config --clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runConfig(cmd, opts, flags)
		},
	}

	cmd.Flags().StringVar(&flags.username, "username", "", "Brokerage username or email")
	cmd.Flags().StringVar(&flags.password, "password", "", "Brokerage password (prompted when omitted)")
	cmd.Flags().StringVar(&flags.totpSecret, "totp-secret", "", "Base32 TOTP secret from the authenticator setup")
	cmd.Flags().StringVar(&flags.broker, "broker", "", "Broker to use: robinhood or alpaca")
	cmd.Flags().BoolVar(&flags.envFile, "env-file", false, "Write secrets to "+opts.envPath+" instead of the keyring")
	cmd.Flags().BoolVar(&flags.show, "show", false, "Show the current configuration")
	cmd.Flags().BoolVar(&flags.clear, "clear", false, "Remove the password and TOTP secret from the keyring")
	cmd.MarkFlagsMutuallyExclusive("show", "clear")

	return cmd
}

func runConfig(cmd *cobra.Command, opts configOptions, flags configFlags) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	switch {
	case flags.show:
		return runShowConfig(out, opts, cfg)
	case flags.clear:
		return runClearSecrets(out, opts)
	}

	if flags.broker != "" {
		cfg.Broker = strings.ToLower(flags.broker)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintf(out, "%s credential setup\n\n", brokerTitle(cfg.Broker))

	term := prompt.NewTerminal(opts.in, out)
	ctx := cmd.Context()

	username := flags.username
	if username == "" {
		question := "Username (email): "
		if cfg.Username != "" {
			question = fmt.Sprintf("Username (email) [%s]: ", cfg.Username)
		}
		if username, err = term.ReadLine(ctx, question); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		if username == "" {
			username = cfg.Username
		}
	}
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	password := flags.password
	if password == "" {
		if password, err = term.ReadSecret(ctx, "Password (leave empty to keep current): "); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	seed := flags.totpSecret
	if seed == "" && cfg.Broker == config.BrokerRobinhood {
		if seed, err = term.ReadSecret(ctx, "TOTP secret (optional, leave empty to skip): "); err != nil {
			return fmt.Errorf("failed to read TOTP secret: %w", err)
		}
	}
	seed = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(seed), " ", ""))
	if seed != "" {
		if _, err := otp.NewGenerator().Code(seed); err != nil {
			return fmt.Errorf("invalid TOTP secret: %w", err)
		}
	}

	cfg.Username = username
	if err := config.Save(opts.configPath, cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	creds := credentials.Credentials{
		Username: username,
		Password: credentials.Secret(password),
		TOTPSeed: credentials.Secret(seed),
	}
	if flags.envFile {
		if err := credentials.WriteEnvFile(opts.envPath, creds); err != nil {
			return fmt.Errorf("failed to write credentials: %w", err)
		}
		_, _ = fmt.Fprintf(out, "\nCredentials written to %s (readable only by you)\n", opts.envPath)
	} else {
		if err := storeSecrets(opts.store, creds); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "\nSecrets stored in the system keyring")
	}

	_, _ = fmt.Fprintln(out, "Configuration saved successfully!")
	return nil
}

// storeSecrets writes the non-empty secrets in c to the keyring.
func storeSecrets(store keyring.Store, c credentials.Credentials) error {
	if c.Password != "" {
		if err := store.Set(keyring.ServiceName, keyring.KeyPassword, c.Password.Reveal()); err != nil {
			return fmt.Errorf("failed to store password in keyring: %w", err)
		}
	}
	if c.TOTPSeed != "" {
		if err := store.Set(keyring.ServiceName, keyring.KeyTOTPSecret, c.TOTPSeed.Reveal()); err != nil {
			return fmt.Errorf("failed to store TOTP secret in keyring: %w", err)
		}
	}
	return nil
}

func runShowConfig(out io.Writer, opts configOptions, cfg *config.Config) error {
	configured := func(key string) string {
		v, err := keyring.Lookup(opts.store, key)
		if err != nil || v == "" {
			return "Not configured"
		}
		return "Configured"
	}

	username := cfg.Username
	if env := os.Getenv(credentials.EnvUsername); env != "" {
		username = env + " (from environment)"
	}
	if username == "" {
		username = "Not set"
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Current Configuration:")
	_, _ = fmt.Fprintln(out, "----------------------")
	_, _ = fmt.Fprintf(out, "Config file: %s\n", opts.configPath)
	_, _ = fmt.Fprintf(out, "Broker: %s\n", cfg.Broker)
	_, _ = fmt.Fprintf(out, "Username: %s\n", username)
	_, _ = fmt.Fprintf(out, "Password: %s\n", configured(keyring.KeyPassword))
	_, _ = fmt.Fprintf(out, "TOTP secret: %s\n", configured(keyring.KeyTOTPSecret))
	_, _ = fmt.Fprintf(out, "API base URL: %s\n", cfg.APIBaseURL)
	_, _ = fmt.Fprintf(out, "Session cache: %s\n", cfg.SessionCachePath)
	_, _ = fmt.Fprintf(out, "Trade delay: %s\n", cfg.TradeDelay.Duration)
	return nil
}

func runClearSecrets(out io.Writer, opts configOptions) error {
	for _, key := range []string{keyring.KeyPassword, keyring.KeyTOTPSecret} {
		if err := opts.store.Delete(keyring.ServiceName, key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	_, _ = fmt.Fprintln(out, "Stored secrets cleared.")
	return nil
}

func init() {
	rootCmd.AddCommand(newConfigCmd(configOptions{
		configPath: config.ConfigPath(),
		envPath:    config.EnvFilePath(),
		store:      keyring.NewEnvStore(keyring.NewSystemStore()),
		in:         os.Stdin,
	}))
}
