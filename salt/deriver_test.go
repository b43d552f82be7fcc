package salt_test

import (
	"math/big"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	errs "github.com/cryptodash/zklogin/internal/errors"
	"github.com/cryptodash/zklogin/salt"
	"github.com/cryptodash/zklogin/storage"
)

func signToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

var saltLimit = new(big.Int).Lsh(big.NewInt(1), 128)

func requireInRange(t *testing.T, value string) {
	t.Helper()
	n, ok := new(big.Int).SetString(value, 10)
	require.True(t, ok, "salt must be decimal: %q", value)
	require.True(t, n.Sign() >= 0)
	require.True(t, n.Cmp(saltLimit) < 0, "salt must fit in 16 bytes")
}

func TestDeriver_GetSalt(t *testing.T) {
	token := signToken(t, jwtlib.MapClaims{
		"iss": "https://accounts.google.com",
		"sub": "1234567890",
	})

	t.Run("deterministic across empty caches", func(t *testing.T) {
		first, err := salt.New(salt.NewKVRepo(storage.NewMemoryKV())).GetSalt(token)
		require.NoError(t, err)
		second, err := salt.New(salt.NewKVRepo(storage.NewMemoryKV())).GetSalt(token)
		require.NoError(t, err)
		require.Equal(t, first, second)
		requireInRange(t, first)
	})

	t.Run("idempotent with populated cache", func(t *testing.T) {
		d := salt.New(salt.NewKVRepo(storage.NewMemoryKV()))
		first, err := d.GetSalt(token)
		require.NoError(t, err)
		second, err := d.GetSalt(token)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("cached value returned unchanged", func(t *testing.T) {
		repo := salt.NewKVRepo(storage.NewMemoryKV())
		require.NoError(t, repo.Upsert("https://accounts.google.com:1234567890", "42"))

		got, err := salt.New(repo).GetSalt(token)
		require.NoError(t, err)
		require.Equal(t, "42", got)
	})

	t.Run("corrupted cache entry re-derived", func(t *testing.T) {
		repo := salt.NewKVRepo(storage.NewMemoryKV())
		require.NoError(t, repo.Upsert("https://accounts.google.com:1234567890", "not-a-number"))

		got, err := salt.New(repo).GetSalt(token)
		require.NoError(t, err)
		requireInRange(t, got)

		cached, ok := repo.Get("https://accounts.google.com:1234567890")
		require.True(t, ok)
		require.Equal(t, got, cached)
	})

	t.Run("distinct identities get distinct salts", func(t *testing.T) {
		d := salt.New(salt.NewKVRepo(storage.NewMemoryKV()))
		a, err := d.GetSalt(token)
		require.NoError(t, err)
		b, err := d.GetSalt(signToken(t, jwtlib.MapClaims{
			"iss": "https://accounts.google.com",
			"sub": "other-user",
		}))
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := salt.New(salt.NewKVRepo(storage.NewMemoryKV())).
			GetSalt(signToken(t, jwtlib.MapClaims{"iss": "iss"}))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("missing issuer", func(t *testing.T) {
		_, err := salt.New(salt.NewKVRepo(storage.NewMemoryKV())).
			GetSalt(signToken(t, jwtlib.MapClaims{"sub": "sub"}))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("unparsable token", func(t *testing.T) {
		_, err := salt.New(salt.NewKVRepo(storage.NewMemoryKV())).GetSalt("garbage")
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})
}

func TestDeriver_ClearAll(t *testing.T) {
	kv := storage.NewMemoryKV()
	repo := salt.NewKVRepo(kv)
	d := salt.New(repo)

	token := signToken(t, jwtlib.MapClaims{"iss": "iss", "sub": "sub"})
	_, err := d.GetSalt(token)
	require.NoError(t, err)

	// Unrelated keys survive a full salt reset.
	require.NoError(t, kv.Set("session", "keep"))

	require.NoError(t, d.ClearAll())
	require.Empty(t, kv.Keys("salt_"))
	_, ok := kv.Get("session")
	require.True(t, ok)
}

func TestEnsureNumericSalt(t *testing.T) {
	t.Run("in-range decimal unchanged", func(t *testing.T) {
		require.Equal(t, "12345", salt.EnsureNumericSalt("12345"))
	})

	t.Run("zero unchanged", func(t *testing.T) {
		require.Equal(t, "0", salt.EnsureNumericSalt("0"))
	})

	t.Run("oversized decimal reduced", func(t *testing.T) {
		over := new(big.Int).Add(saltLimit, big.NewInt(7))
		requireInRange(t, salt.EnsureNumericSalt(over.String()))
		require.Equal(t, "7", salt.EnsureNumericSalt(over.String()))
	})

	t.Run("non-numeric hashed into range", func(t *testing.T) {
		got := salt.EnsureNumericSalt("definitely-not-a-number")
		requireInRange(t, got)
		// Deterministic.
		require.Equal(t, got, salt.EnsureNumericSalt("definitely-not-a-number"))
	})

	t.Run("negative treated as non-numeric", func(t *testing.T) {
		requireInRange(t, salt.EnsureNumericSalt("-42"))
	})
}
