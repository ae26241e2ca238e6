package broker

import (
	"errors"
	"fmt"
)

// LoginErrorKind classifies why a login attempt did not produce a session.
type LoginErrorKind int

const (
	// LoginTransient covers network failures, rate limiting and anything
	// the broker did not classify.
	LoginTransient LoginErrorKind = iota
	LoginInvalidCredentials
	LoginInvalidCode
	LoginDeviceApprovalRequired
	LoginChallengeRequired
)

func (k LoginErrorKind) String() string {
	switch k {
	case LoginInvalidCredentials:
		return "invalid credentials"
	case LoginInvalidCode:
		return "invalid or expired code"
	case LoginDeviceApprovalRequired:
		return "device approval required"
	case LoginChallengeRequired:
		return "challenge required"
	default:
		return "transient"
	}
}

// LoginError is returned by Client.Login when the broker refuses to issue a
// session. Kind drives the authentication state machine.
type LoginError struct {
	Kind    LoginErrorKind
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return fmt.Sprintf("login failed: %s", e.Kind)
	}
	return fmt.Sprintf("login failed: %s: %s", e.Kind, msg)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// LoginErrorKindOf extracts the kind from err. Errors that are not a
// *LoginError are treated as transient.
func LoginErrorKindOf(err error) LoginErrorKind {
	var loginErr *LoginError
	if errors.As(err, &loginErr) {
		return loginErr.Kind
	}
	return LoginTransient
}

// ErrNotAuthenticated is returned by clients asked to act without a session.
var ErrNotAuthenticated = errors.New("not authenticated")
