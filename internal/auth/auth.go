// Package auth drives a brokerage login through second-factor codes, device
// approval and challenges to an authenticated Session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonandersen/rob/internal/broker"
	"github.com/jonandersen/rob/internal/credentials"
	"github.com/jonandersen/rob/internal/otp"
)

const (
	DefaultMaxAttempts = 3
	DefaultSettleDelay = 3 * time.Second
	DefaultRetryDelay  = 2 * time.Second
)

// CodeSource derives one-time codes from a seed.
type CodeSource interface {
	Code(seed string) (string, error)
	Remaining() int
}

// Approver blocks until the operator acknowledges an out-of-band step.
type Approver interface {
	AwaitDeviceApproval(ctx context.Context) error
	AwaitChallenge(ctx context.Context, detail string) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware Sleeper used outside tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options bounds the login loop.
type Options struct {
	MaxAttempts int
	SettleDelay time.Duration
	RetryDelay  time.Duration
}

// Authenticator runs the login state machine against one broker client.
type Authenticator struct {
	client   broker.Client
	cache    SessionCache
	codes    CodeSource
	approver Approver
	sleep    Sleeper
	opts     Options
	out      io.Writer
	log      zerolog.Logger
}

// New returns an Authenticator using the wall-clock TOTP generator; see
// WithCodeSource to replace it. A nil cache disables session reuse.
func New(client broker.Client, cache SessionCache, approver Approver, out io.Writer, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		client:   client,
		cache:    cache,
		codes:    otp.NewGenerator(),
		approver: approver,
		sleep:    Sleep,
		opts: Options{
			MaxAttempts: DefaultMaxAttempts,
			SettleDelay: DefaultSettleDelay,
			RetryDelay:  DefaultRetryDelay,
		},
		out: out,
		log: log,
	}
}

// WithOptions overrides the defaults for non-zero fields.
func (a *Authenticator) WithOptions(opts Options) *Authenticator {
	if opts.MaxAttempts > 0 {
		a.opts.MaxAttempts = opts.MaxAttempts
	}
	if opts.SettleDelay > 0 {
		a.opts.SettleDelay = opts.SettleDelay
	}
	if opts.RetryDelay > 0 {
		a.opts.RetryDelay = opts.RetryDelay
	}
	return a
}

// WithCodeSource replaces the TOTP generator.
func (a *Authenticator) WithCodeSource(codes CodeSource) *Authenticator {
	a.codes = codes
	return a
}

// WithSleeper replaces the delay function.
func (a *Authenticator) WithSleeper(sleep Sleeper) *Authenticator {
	a.sleep = sleep
	return a
}

func (a *Authenticator) printf(format string, args ...any) {
	if a.out != nil {
		_, _ = fmt.Fprintf(a.out, format, args...)
	}
}

// Authenticate returns an authenticated Session or a terminal *Error.
// A cached session is tried first; creds is consulted only when the cache
// cannot be used.
func (a *Authenticator) Authenticate(ctx context.Context, creds credentials.Provider) (*Session, error) {
	sess := &Session{Status: Unauthenticated, client: a.client, log: a.log}

	if a.resume(ctx) {
		sess.Status = Authenticated
		return sess, nil
	}

	c, err := creds.Credentials(ctx)
	if err != nil {
		return a.fail(sess, CredentialsUnavailable, err)
	}

	code := a.initialCode(c)
	approved := false
	var last error

	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return a.fail(sess, Canceled, err)
		}
		sess.Attempts = attempt
		sess.Status = Unauthenticated
		if code != "" {
			sess.Status = PendingCode
		}

		a.printf("\nAttempting authentication (attempt %d/%d)...\n", attempt, a.opts.MaxAttempts)
		if code != "" {
			a.printf("Using 2FA code: %s\n", otp.Mask(code))
		}

		token, err := a.client.Login(ctx, c.Username, c.Password.Reveal(), code)
		if err == nil {
			return a.succeed(sess, token), nil
		}
		if ctx.Err() != nil {
			return a.fail(sess, Canceled, ctx.Err())
		}

		last = err
		remaining := attempt < a.opts.MaxAttempts
		kind := broker.LoginErrorKindOf(err)
		a.log.Debug().Err(err).Int("attempt", attempt).Str("kind", kind.String()).Msg("login attempt failed")

		switch kind {
		case broker.LoginDeviceApprovalRequired:
			sess.Status = PendingDeviceApproval
			sess.LastError = DeviceApprovalRequired
			if !remaining {
				break
			}
			a.printf("\nDevice verification required. Approve this login in your brokerage app.\n")
			if err := a.approver.AwaitDeviceApproval(ctx); err != nil {
				return a.fail(sess, Canceled, err)
			}
			approved = true
			// The code was consumed by the attempt that triggered approval.
			code = ""
			a.printf("Retrying authentication...\n")
			if err := a.sleep(ctx, a.opts.SettleDelay); err != nil {
				return a.fail(sess, Canceled, err)
			}

		case broker.LoginChallengeRequired:
			sess.LastError = ChallengeRequired
			if !remaining {
				break
			}
			if err := a.approver.AwaitChallenge(ctx, err.Error()); err != nil {
				return a.fail(sess, Canceled, err)
			}
			if err := a.sleep(ctx, a.opts.RetryDelay); err != nil {
				return a.fail(sess, Canceled, err)
			}

		case broker.LoginInvalidCode:
			sess.LastError = CodeExpired
			switch {
			case approved && c.HasSeed() && remaining:
				// After a device approval the next code is generated
				// immediately rather than waiting out the retry delay.
				code = a.regenerate(c)
			case c.HasSeed() && remaining:
				a.printf("2FA code may have expired. Regenerating...\n")
				if err := a.sleep(ctx, a.opts.RetryDelay); err != nil {
					return a.fail(sess, Canceled, err)
				}
				code = a.regenerate(c)
			case c.HasSeed():
				// Out of attempts; reported as exhaustion below.
			case attempt == 1 && remaining:
				a.printf("Invalid 2FA code. Trying without it...\n")
				code = ""
			default:
				return a.fail(sess, CodeExpired, err)
			}

		default:
			sess.LastError = Transient
			if kind == broker.LoginInvalidCredentials {
				sess.LastError = InvalidCredentials
			}
			if !remaining {
				break
			}
			a.printf("Retrying...\n")
			if err := a.sleep(ctx, a.opts.RetryDelay); err != nil {
				return a.fail(sess, Canceled, err)
			}
		}
	}

	if approved {
		return a.fail(sess, ApprovedWithoutSession, last)
	}
	return a.fail(sess, AttemptsExhausted, last)
}

// resume tries the cached token. Any failure clears the cache.
func (a *Authenticator) resume(ctx context.Context) bool {
	if a.cache == nil || !a.cache.Exists() {
		return false
	}

	token, err := a.cache.Load()
	if err == nil && token.IsExpired() {
		err = errors.New("cached session expired")
	}
	if err == nil {
		err = a.client.Resume(ctx, token)
	}
	if err == nil {
		a.log.Debug().Msg("resumed cached session")
		a.printf("Authenticated using saved session\n")
		return true
	}

	a.log.Info().Err(err).Msg("cached session unusable, logging in again")
	if invErr := a.cache.Invalidate(); invErr != nil {
		a.log.Warn().Err(invErr).Msg("failed to remove stale session cache")
	}
	return false
}

func (a *Authenticator) initialCode(c credentials.Credentials) string {
	if c.HasSeed() {
		code, err := a.codes.Code(c.TOTPSeed.Reveal())
		if err == nil {
			a.printf("Generated 2FA code %s (expires in ~%ds)\n", otp.Mask(code), a.codes.Remaining())
			return code
		}
		a.log.Warn().Err(err).Msg("could not generate TOTP code, falling back to manual code")
	}
	return c.ManualCode
}

func (a *Authenticator) regenerate(c credentials.Credentials) string {
	code, err := a.codes.Code(c.TOTPSeed.Reveal())
	if err != nil {
		a.log.Warn().Err(err).Msg("could not regenerate TOTP code")
		return ""
	}
	a.printf("New code: %s\n", otp.Mask(code))
	return code
}

func (a *Authenticator) succeed(sess *Session, token *broker.Token) *Session {
	sess.Status = Authenticated
	sess.LastError = NoError
	a.printf("Successfully authenticated\n")
	if a.cache != nil && token != nil {
		if err := a.cache.Save(token); err != nil {
			a.log.Warn().Err(err).Msg("failed to save session; you will need to log in again next time")
		}
	}
	return sess
}

func (a *Authenticator) fail(sess *Session, kind ErrorKind, last error) (*Session, error) {
	sess.Status = Failed
	sess.LastError = kind
	a.log.Debug().Str("kind", kind.String()).Int("attempts", sess.Attempts).Msg("authentication failed")
	return nil, &Error{Kind: kind, Attempts: sess.Attempts, Last: last}
}
