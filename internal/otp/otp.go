// Package otp derives time-based one-time codes from a base32 seed.
package otp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the lifetime of a code.
const Period = 30 * time.Second

// ErrEmptySeed is returned when no seed is configured.
var ErrEmptySeed = errors.New("empty TOTP seed")

// Generator produces 6-digit SHA1 TOTP codes.
type Generator struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewGenerator returns a Generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{Now: time.Now}
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// Code returns the code for the current window. Whitespace in the seed is
// ignored.
func (g *Generator) Code(seed string) (string, error) {
	return g.CodeAt(seed, g.now())
}

// CodeAt returns the code valid at t.
func (g *Generator) CodeAt(seed string, t time.Time) (string, error) {
	seed = strings.ReplaceAll(strings.TrimSpace(seed), " ", "")
	if seed == "" {
		return "", ErrEmptySeed
	}
	code, err := totp.GenerateCodeCustom(seed, t, totp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return code, nil
}

// Remaining returns the whole seconds left before the current code rolls over.
func (g *Generator) Remaining() int {
	period := int64(Period / time.Second)
	return int(period - g.now().Unix()%period)
}

// Mask shows the first three digits of code and hides the rest.
func Mask(code string) string {
	if len(code) <= 3 {
		return strings.Repeat("*", len(code))
	}
	return code[:3] + strings.Repeat("*", len(code)-3)
}
