// Package salt derives and caches the per-identity secret salt that, combined
// with the identity token, fixes the user's ledger address. A cached salt is
// never regenerated for an existing identity: doing so would shift the
// address under the user.
package salt

import (
	"math/big"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/cryptodash/zklogin/idtoken"
	errs "github.com/cryptodash/zklogin/internal/errors"
)

// saltBytes is the salt width mandated by the proving scheme: salts are
// 16-byte non-negative integers, 0 <= salt < 2^128.
const saltBytes = 16

var saltModulus = new(big.Int).Lsh(big.NewInt(1), saltBytes*8)

// Deriver resolves identity tokens to salts through the durable cache.
type Deriver struct {
	repo Repo
	log  zerolog.Logger
}

// New creates a Deriver over the given cache.
func New(repo Repo) *Deriver {
	return &Deriver{
		repo: repo,
		log:  log.With().Str("component", "salt").Logger(),
	}
}

// GetSalt returns the salt for the token's identity. The cache key is
// "issuer:subject"; both claims are required. A valid cached value is
// returned unchanged; a missing or corrupted entry is re-derived
// deterministically from the key, so an empty cache always converges to the
// same salt for the same identity.
func (d *Deriver) GetSalt(rawToken string) (string, error) {
	claims, err := idtoken.Parse(rawToken)
	if err != nil {
		return "", errs.Wrapf(err, "[Deriver.GetSalt]")
	}
	if claims.Issuer == "" || claims.Subject == "" {
		return "", errs.Wrapf(errs.ErrInvalidToken, "[Deriver.GetSalt] missing iss or sub claim")
	}

	key := claims.Issuer + ":" + claims.Subject

	if cached, ok := d.repo.Get(key); ok {
		if isValidSalt(cached) {
			return cached, nil
		}
		d.log.Warn().Str("key", key).Msg("cached salt corrupted, re-deriving")
	}

	derived := deriveSalt(key)
	if err := d.repo.Upsert(key, derived); err != nil {
		return "", errs.Wrapf(err, "[Deriver.GetSalt] cache salt")
	}
	d.log.Debug().Str("key", key).Msg("derived new salt")
	return derived, nil
}

// ClearAll removes every cached salt. Used only on full account reset, never
// on ordinary logout.
func (d *Deriver) ClearAll() error {
	return errs.Wrapf(d.repo.DeleteAll(), "[Deriver.ClearAll]")
}

// deriveSalt maps a cache key to a 16-byte integer, rendered as a decimal
// string. Pure function of the key.
func deriveSalt(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return new(big.Int).SetBytes(sum[:saltBytes]).String()
}

// EnsureNumericSalt normalizes an arbitrary salt string into the 16-byte
// numeric form the address and proof derivations require. Decimal values
// within range pass through unchanged; oversized values are reduced mod
// 2^128; anything non-numeric is hashed down to 16 bytes.
func EnsureNumericSalt(value string) string {
	if n, ok := new(big.Int).SetString(value, 10); ok && n.Sign() >= 0 {
		if n.Cmp(saltModulus) < 0 {
			return value
		}
		return n.Mod(n, saltModulus).String()
	}
	return deriveSalt(value)
}

func isValidSalt(value string) bool {
	n, ok := new(big.Int).SetString(value, 10)
	return ok && n.Sign() >= 0 && n.Cmp(saltModulus) < 0
}
