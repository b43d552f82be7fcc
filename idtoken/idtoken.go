// Package idtoken parses the signed claims token issued by an identity
// provider. The token is never re-signed or minted here, only read; signature
// verification is optional and delegated to the provider's published keys.
package idtoken

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	errs "github.com/cryptodash/zklogin/internal/errors"
)

// Claims are the identity claims extracted from a provider token.
type Claims struct {
	Issuer     string
	Subject    string
	Audience   string
	Email      string
	Name       string
	GivenName  string
	FamilyName string
	Picture    string
	Nonce      string
	IssuedAt   time.Time
	Expiry     time.Time
}

// Parse decodes the claims of a raw compact-serialized token without
// verifying its signature. Returns ErrInvalidToken when the token cannot be
// decoded.
func Parse(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errs.Wrapf(errs.ErrInvalidToken, "[idtoken.Parse] empty token")
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errs.Wrapf(errs.ErrInvalidToken, "[idtoken.Parse] %v", err)
	}

	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errs.Wrapf(errs.ErrInvalidToken, "[idtoken.Parse] unexpected claims type")
	}

	claims := &Claims{
		Email:      stringClaim(mapClaims, "email"),
		Name:       stringClaim(mapClaims, "name"),
		GivenName:  stringClaim(mapClaims, "given_name"),
		FamilyName: stringClaim(mapClaims, "family_name"),
		Picture:    stringClaim(mapClaims, "picture"),
		Nonce:      stringClaim(mapClaims, "nonce"),
	}
	claims.Issuer, _ = mapClaims.GetIssuer()
	claims.Subject, _ = mapClaims.GetSubject()
	if aud, err := mapClaims.GetAudience(); err == nil && len(aud) > 0 {
		claims.Audience = aud[0]
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Time
	}
	return claims, nil
}

// DisplayName returns the user's name with a given_name fallback.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.GivenName
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}

// Verifier checks token signatures and claims against the issuer's published
// keys via OIDC discovery. Deployments that cannot reach the issuer may run
// without one; the flow then relies on the provider-bound nonce alone.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers issuerURL and builds a verifier for tokens issued to
// clientID.
func NewVerifier(ctx context.Context, issuerURL, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewVerifier] oidc discovery")
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// Verify checks the token's signature, expiry and audience, and that its
// nonce matches the one bound into the authorization request.
func (v *Verifier) Verify(ctx context.Context, rawToken, nonce string) error {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return errs.Wrapf(errs.ErrInvalidToken, "[Verifier.Verify] %v", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return errs.Wrapf(errs.ErrInvalidToken, "[Verifier.Verify] nonce mismatch")
	}
	return nil
}
