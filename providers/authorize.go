package providers

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/oauth2"

	errs "github.com/cryptodash/zklogin/internal/errors"
)

// stateLength is the number of random bytes behind the state parameter.
const stateLength = 16

// BuildAuthorizationURL constructs the provider's authorization endpoint URL
// with response_type=code, the registered redirect target, the requested
// scopes, a fresh unguessable state, and the flow-binding nonce. The state is
// returned for the caller to stash and re-check against the callback.
func (r *Registry) BuildAuthorizationURL(providerID, nonce string) (authURL, state string, err error) {
	config, ok := r.Get(providerID)
	if !ok {
		return "", "", errs.Wrapf(errs.ErrUnsupportedProvider, "[Registry.BuildAuthorizationURL] %q", providerID)
	}

	state, err = generateState()
	if err != nil {
		return "", "", errs.Wrapf(err, "[Registry.BuildAuthorizationURL] generate state")
	}

	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("nonce", nonce)}
	for k, v := range config.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return config.oauth2Config().AuthCodeURL(state, opts...), state, nil
}

// generateState returns a random hex state parameter.
func generateState() (string, error) {
	buf := make([]byte, stateLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
