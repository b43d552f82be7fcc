package providers

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	errs "github.com/cryptodash/zklogin/internal/errors"
)

// TokenResponse is the result of a code-for-token exchange. The identity
// token is the part the rest of the flow runs on; the access token alone is
// insufficient.
type TokenResponse struct {
	AccessToken   string
	IdentityToken string
	TokenType     string
	ExpiresIn     int64
}

// ExchangeCode performs the provider's token exchange. A non-success response
// from the token endpoint maps to ErrTokenExchangeFailed carrying the
// provider's status and message; an unreachable endpoint maps to
// ErrNetworkUnavailable; a success response without an identity token maps to
// ErrMissingIdentityToken.
func (r *Registry) ExchangeCode(ctx context.Context, providerID, code string) (*TokenResponse, error) {
	config, ok := r.Get(providerID)
	if !ok {
		return nil, errs.Wrapf(errs.ErrUnsupportedProvider, "[Registry.ExchangeCode] %q", providerID)
	}

	token, err := config.oauth2Config().Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errs.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			log.Warn().
				Str("provider", providerID).
				Int("status", retrieveErr.Response.StatusCode).
				Msg("token exchange failed")
			return nil, errs.Wrapf(errs.ErrTokenExchangeFailed, "[Registry.ExchangeCode] status %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return nil, errs.Wrapf(errs.ErrNetworkUnavailable, "[Registry.ExchangeCode] %v", err)
	}

	identityToken, _ := token.Extra("id_token").(string)
	if identityToken == "" {
		return nil, errs.Wrapf(errs.ErrMissingIdentityToken, "[Registry.ExchangeCode] provider %q", providerID)
	}

	response := &TokenResponse{
		AccessToken:   token.AccessToken,
		IdentityToken: identityToken,
		TokenType:     token.TokenType,
	}
	if !token.Expiry.IsZero() {
		response.ExpiresIn = int64(time.Until(token.Expiry).Seconds())
	}
	return response, nil
}
