package flow

import errs "github.com/cryptodash/zklogin/internal/errors"

// Error kinds surfaced by the login flow, re-exported so consumers can match
// with errors.Is without reaching into internal packages.
var (
	ErrPopupBlocked          = errs.ErrPopupBlocked
	ErrCancelled             = errs.ErrCancelled
	ErrTimedOut              = errs.ErrTimedOut
	ErrRejected              = errs.ErrRejected
	ErrUnsupportedProvider   = errs.ErrUnsupportedProvider
	ErrTokenExchangeFailed   = errs.ErrTokenExchangeFailed
	ErrMissingIdentityToken  = errs.ErrMissingIdentityToken
	ErrInvalidToken          = errs.ErrInvalidToken
	ErrProofRejected         = errs.ErrProofRejected
	ErrNetworkUnavailable    = errs.ErrNetworkUnavailable
	ErrFlowAlreadyInProgress = errs.ErrFlowAlreadyInProgress
	ErrSessionCorrupted      = errs.ErrSessionCorrupted
)
