// Package prompt reads operator input from a terminal. Every read observes
// the caller's context so an interrupt ends a blocked prompt.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when the input stream closes before a line is read.
var ErrNoInput = errors.New("no input")

// Terminal mode hooks, replaced in tests.
var (
	readPassword = term.ReadPassword
	getState     = term.GetState
	restore      = term.Restore
)

// Terminal prompts on a writer and reads lines from a reader. Secrets are
// read without echo when the reader is a terminal.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

// NewTerminal returns a Terminal reading from r and writing prompts to w.
// When r is backed by a terminal file descriptor, secret input is hidden.
func NewTerminal(r io.Reader, w io.Writer) *Terminal {
	t := &Terminal{in: bufio.NewReader(r), out: w, fd: -1}
	if f, ok := r.(interface{ Fd() uintptr }); ok {
		t.fd = int(f.Fd())
		t.tty = term.IsTerminal(t.fd)
	}
	return t
}

type lineResult struct {
	line string
	err  error
}

// ReadLine prints prompt and returns the next trimmed line.
func (t *Terminal) ReadLine(ctx context.Context, prompt string) (string, error) {
	_, _ = fmt.Fprint(t.out, prompt)
	return t.await(ctx, t.readLine)
}

// ReadSecret prints prompt and reads a line without echo.
func (t *Terminal) ReadSecret(ctx context.Context, prompt string) (string, error) {
	_, _ = fmt.Fprint(t.out, prompt)
	if !t.tty {
		return t.await(ctx, t.readLine)
	}
	// ReadPassword restores echo itself, but not when its goroutine is
	// abandoned on cancellation.
	state, stateErr := getState(t.fd)
	read := readPassword
	line, err := t.await(ctx, func() (string, error) {
		b, err := read(t.fd)
		return string(b), err
	})
	if err != nil && ctx.Err() != nil && stateErr == nil {
		_ = restore(t.fd, state)
	}
	_, _ = fmt.Fprintln(t.out)
	return strings.TrimSpace(line), err
}

// Confirm asks a yes/no question. Empty input selects def.
func (t *Terminal) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		answer, err := t.ReadLine(ctx, fmt.Sprintf("%s %s: ", question, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		_, _ = fmt.Fprintln(t.out, "Please answer yes or no.")
	}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// await runs read on its own goroutine and returns early on cancellation.
// An abandoned read finishes in the background once input arrives.
func (t *Terminal) await(ctx context.Context, read func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	done := make(chan lineResult, 1)
	go func() {
		line, err := read()
		done <- lineResult{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.line, res.err
	}
}
