package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the login flow. The flow package re-exports these
// so library consumers can match on them without importing internal packages.
var (
	// Popup channel errors
	ErrPopupBlocked = errors.New("popup window could not be opened")
	ErrCancelled    = errors.New("authorization cancelled")
	ErrTimedOut     = errors.New("authorization timed out")
	ErrRejected     = errors.New("authorization rejected")

	// Provider errors
	ErrUnsupportedProvider  = errors.New("unsupported provider")
	ErrTokenExchangeFailed  = errors.New("token exchange failed")
	ErrMissingIdentityToken = errors.New("no identity token in token response")

	// Token and proof errors
	ErrInvalidToken  = errors.New("invalid identity token")
	ErrProofRejected = errors.New("proof request rejected by prover")

	// Network errors (epoch query, token endpoint, prover unreachable)
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Flow errors
	ErrFlowAlreadyInProgress = errors.New("login flow already in progress")

	// Session errors. Corruption is recovered by discarding the record, never
	// surfaced to the user.
	ErrSessionCorrupted = errors.New("session record corrupted")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
