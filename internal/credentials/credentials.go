// Package credentials resolves the username, password and second-factor
// material used to log in.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonandersen/rob/internal/keyring"
)

const (
	EnvUsername = "ROBINHOOD_USERNAME"
	EnvMFACode  = "ROBINHOOD_MFA_CODE"
)

// ErrMissing is returned when a required field is unset and cannot be
// prompted for.
var ErrMissing = errors.New("missing credentials")

// Secret is a string that never prints its value.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "********"
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return s.String()
}

// Reveal returns the underlying value.
func (s Secret) Reveal() string {
	return string(s)
}

// Credentials is everything a login attempt needs.
type Credentials struct {
	Username   string
	Password   Secret
	TOTPSeed   Secret
	ManualCode string
}

// HasSeed reports whether codes can be generated locally.
func (c Credentials) HasSeed() bool {
	return c.TOTPSeed != ""
}

// Provider resolves credentials on demand, so a valid cached session never
// triggers a prompt.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Static is a Provider returning fixed credentials.
type Static Credentials

func (s Static) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// Prompter asks the operator for missing values.
type Prompter interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	ReadSecret(ctx context.Context, prompt string) (string, error)
}

// Source resolves credentials from the environment, the keyring and, when
// a Prompter is set, the operator.
type Source struct {
	Store    keyring.Store
	Prompter Prompter
	// Username is the configured default used when the environment has none.
	Username string
	// AskCode prompts for a one-time code when no seed or code is configured.
	AskCode bool
	Out     io.Writer
	Getenv  func(string) string

	log zerolog.Logger
}

// NewSource returns a Source reading secrets through store.
func NewSource(store keyring.Store, prompter Prompter, out io.Writer, log zerolog.Logger) *Source {
	return &Source{
		Store:    store,
		Prompter: prompter,
		Out:      out,
		Getenv:   os.Getenv,
		log:      log,
	}
}

func (s *Source) getenv(name string) string {
	get := s.Getenv
	if get == nil {
		get = os.Getenv
	}
	return strings.TrimSpace(get(name))
}

func (s *Source) printf(format string, args ...any) {
	if s.Out != nil {
		_, _ = fmt.Fprintf(s.Out, format, args...)
	}
}

// Credentials implements Provider.
func (s *Source) Credentials(ctx context.Context) (Credentials, error) {
	var c Credentials

	c.Username = s.getenv(EnvUsername)
	if c.Username == "" {
		c.Username = s.Username
	}

	password, err := keyring.Lookup(s.Store, keyring.KeyPassword)
	if err != nil {
		s.log.Warn().Err(err).Msg("keyring password lookup failed")
	}
	c.Password = Secret(password)

	seed, err := keyring.Lookup(s.Store, keyring.KeyTOTPSecret)
	if err != nil {
		s.log.Warn().Err(err).Msg("keyring TOTP seed lookup failed")
	}
	c.TOTPSeed = Secret(strings.TrimSpace(seed))
	c.ManualCode = s.getenv(EnvMFACode)

	if c.Username == "" {
		if c.Username, err = s.ask(ctx, "Enter your username (email): ", false); err != nil {
			return Credentials{}, err
		}
	}
	if c.Password == "" {
		v, err := s.ask(ctx, "Enter your password: ", true)
		if err != nil {
			return Credentials{}, err
		}
		c.Password = Secret(v)
	}
	if c.Username == "" || c.Password == "" {
		return Credentials{}, fmt.Errorf("%w: username and password are required", ErrMissing)
	}

	if s.AskCode && !c.HasSeed() && c.ManualCode == "" && s.Prompter != nil {
		s.printf("\nNote: a 2FA code is required for first-time login\n")
		s.printf("Tip: set %s to generate codes automatically\n", keyring.EnvTOTPSecret)
		code, err := s.Prompter.ReadLine(ctx, "Enter your 2FA code (press ENTER to skip): ")
		if err != nil {
			return Credentials{}, fmt.Errorf("failed to read 2FA code: %w", err)
		}
		c.ManualCode = code
	}

	s.log.Debug().
		Str("username", c.Username).
		Bool("seed", c.HasSeed()).
		Bool("manual_code", c.ManualCode != "").
		Msg("credentials resolved")
	return c, nil
}

func (s *Source) ask(ctx context.Context, prompt string, secret bool) (string, error) {
	if s.Prompter == nil {
		return "", nil
	}
	var (
		v   string
		err error
	)
	if secret {
		v, err = s.Prompter.ReadSecret(ctx, prompt)
	} else {
		v, err = s.Prompter.ReadLine(ctx, prompt)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(v), nil
}
