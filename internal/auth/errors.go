package auth

import (
	"errors"
	"fmt"
)

// ErrAuthFailed matches every terminal authentication failure via errors.Is.
var ErrAuthFailed = errors.New("authentication failed")

// ErrorKind classifies authentication failures.
type ErrorKind int

const (
	NoError ErrorKind = iota
	InvalidCredentials
	CodeExpired
	DeviceApprovalRequired
	ChallengeRequired
	Transient
	AttemptsExhausted
	// ApprovedWithoutSession means a device approval was acknowledged but no
	// later attempt produced a session.
	ApprovedWithoutSession
	CredentialsUnavailable
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "none"
	case InvalidCredentials:
		return "invalid credentials"
	case CodeExpired:
		return "invalid or expired 2FA code"
	case DeviceApprovalRequired:
		return "device approval required"
	case ChallengeRequired:
		return "challenge required"
	case Transient:
		return "transient error"
	case AttemptsExhausted:
		return "attempts exhausted"
	case ApprovedWithoutSession:
		return "device approved but no session was issued"
	case CredentialsUnavailable:
		return "credentials unavailable"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a terminal authentication failure.
type Error struct {
	Kind     ErrorKind
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("authentication failed: %s", e.Kind)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Last
}

func (e *Error) Is(target error) bool {
	return target == ErrAuthFailed
}

// KindOf returns the kind of a terminal failure, or NoError when err is not
// an *Error.
func KindOf(err error) ErrorKind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return NoError
}
