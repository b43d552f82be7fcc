// Package providers holds the identity-provider registry: per-provider OAuth2
// configuration, authorization URL construction, and the code-for-token
// exchange.
package providers

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Config describes one identity provider.
type Config struct {
	ID           string
	ClientID     string
	ClientSecret string // empty for public clients
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scopes       []string

	// ExtraAuthParams are provider-specific authorization parameters, e.g.
	// response_mode=query for Google.
	ExtraAuthParams map[string]string

	// IssuerHost is used by the relay's provider sniffing.
	IssuerHost string
}

// Google builds the provider config for Google's OIDC endpoints.
func Google(clientID, clientSecret, redirectURI string) Config {
	return Config{
		ID:              "google",
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		AuthURL:         "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:        "https://oauth2.googleapis.com/token",
		RedirectURI:     redirectURI,
		Scopes:          []string{"openid", "email", "profile"},
		ExtraAuthParams: map[string]string{"response_mode": "query"},
		IssuerHost:      "accounts.google.com",
	}
}

func (c Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
}

// Registry is the set of configured providers plus the default used when the
// relay cannot determine the provider from any hint.
type Registry struct {
	configs   map[string]Config
	defaultID string
}

// NewRegistry creates a registry. defaultID must name one of the configs.
func NewRegistry(defaultID string, configs ...Config) (*Registry, error) {
	if len(configs) == 0 {
		return nil, errors.New("[NewRegistry] at least one provider is required")
	}
	r := &Registry{configs: make(map[string]Config, len(configs)), defaultID: defaultID}
	for _, c := range configs {
		if c.ID == "" {
			return nil, errors.New("[NewRegistry] provider ID is required")
		}
		r.configs[c.ID] = c
	}
	if _, ok := r.configs[defaultID]; !ok {
		return nil, errors.Errorf("[NewRegistry] default provider %q not configured", defaultID)
	}
	return r, nil
}

// Get returns the config for id.
func (r *Registry) Get(id string) (Config, bool) {
	c, ok := r.configs[id]
	return c, ok
}

// Default returns the registry's default provider.
func (r *Registry) Default() Config {
	return r.configs[r.defaultID]
}

// Determine resolves the provider for a callback redirect. It walks a
// priority list of hints: the redirect URL itself (issuer host leaking into
// the URL, or the provider's scope set in the query), then a stored per-attempt
// hint, then the configured default. It never fails: total ambiguity falls
// back to the default provider, a deliberate policy choice for single-provider
// deployments.
func (r *Registry) Determine(redirect *url.URL, hint string) Config {
	if redirect != nil {
		raw := redirect.String()
		scope := redirect.Query().Get("scope")
		for _, c := range r.configs {
			if c.IssuerHost != "" && strings.Contains(raw, c.IssuerHost) {
				return c
			}
			if scope != "" && scope == strings.Join(c.Scopes, " ") {
				return c
			}
		}
	}
	if c, ok := r.configs[hint]; ok {
		return c
	}
	return r.Default()
}
