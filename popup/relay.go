package popup

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cryptodash/zklogin/providers"
)

// Exchanger performs the code-for-token exchange for a provider.
type Exchanger interface {
	ExchangeCode(ctx context.Context, providerID, code string) (*providers.TokenResponse, error)
}

// ProviderResolver resolves which provider a callback redirect belongs to.
type ProviderResolver interface {
	Determine(redirect *url.URL, hint string) providers.Config
}

// AttemptHints exposes the per-attempt values the relay needs but cannot hold
// in memory: it runs in a different window than the flow that stored them.
type AttemptHints interface {
	// ProviderHint returns the provider id stored at flow start, or "".
	ProviderHint() string

	// ExpectedState returns the authorization state stored at flow start, or
	// "" when no attempt is pending.
	ExpectedState() string
}

// Relay runs on the popup side after the provider redirects back. It parses
// the redirect, exchanges the code, and reports the outcome to the opener.
// Failures never cross the window boundary as errors; they become
// OAUTH_ERROR messages.
type Relay struct {
	endpoint  *Endpoint
	exchanger Exchanger
	resolver  ProviderResolver
	hints     AttemptHints
	closeSelf func()
	log       zerolog.Logger
}

// RelayOption configures the Relay.
type RelayOption func(*Relay)

// WithAttemptHints wires the per-attempt hint store.
func WithAttemptHints(hints AttemptHints) RelayOption {
	return func(r *Relay) {
		r.hints = hints
	}
}

// WithCloseFunc sets the callback that closes the relay's own window once a
// result has been posted.
func WithCloseFunc(close func()) RelayOption {
	return func(r *Relay) {
		r.closeSelf = close
	}
}

// NewRelay creates a relay posting results on endpoint.
func NewRelay(endpoint *Endpoint, exchanger Exchanger, resolver ProviderResolver, options ...RelayOption) *Relay {
	r := &Relay{
		endpoint:  endpoint,
		exchanger: exchanger,
		resolver:  resolver,
		closeSelf: func() {},
		log:       log.With().Str("component", "relay").Logger(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// HandleRedirect processes the provider's callback redirect and posts exactly
// one terminal message to the opener, then closes the relay's window.
func (r *Relay) HandleRedirect(ctx context.Context, redirect *url.URL) {
	defer r.closeSelf()

	query := redirect.Query()
	if errParam := query.Get("error"); errParam != "" {
		if desc := query.Get("error_description"); desc != "" {
			errParam = errParam + ": " + desc
		}
		r.fail(errParam)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		r.fail("missing authorization code or state")
		return
	}

	if r.hints != nil {
		if expected := r.hints.ExpectedState(); expected != "" && state != expected {
			r.fail("state mismatch")
			return
		}
	}

	hint := ""
	if r.hints != nil {
		hint = r.hints.ProviderHint()
	}
	provider := r.resolver.Determine(redirect, hint)

	tokens, err := r.exchanger.ExchangeCode(ctx, provider.ID, code)
	if err != nil {
		r.fail(err.Error())
		return
	}

	r.log.Debug().Str("provider", provider.ID).Msg("relaying authorization result")
	r.endpoint.Post(Message{
		Type:     MessageOAuthSuccess,
		JWT:      tokens.IdentityToken,
		Code:     code,
		State:    state,
		Provider: provider.ID,
	})
}

// ServeHealth answers health checks from the opener until ctx is done. Run it
// in its own goroutine; it shares nothing with HandleRedirect.
func (r *Relay) ServeHealth(ctx context.Context) {
	for {
		select {
		case msg := <-r.endpoint.Messages():
			if msg.Origin != r.endpoint.Origin() {
				continue
			}
			if msg.Type == MessageHealthCheck {
				r.endpoint.Post(Message{Type: MessageHealthResponse})
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) fail(reason string) {
	r.log.Warn().Str("reason", reason).Msg("authorization failed in relay")
	r.endpoint.Post(Message{Type: MessageOAuthError, Error: reason})
}
