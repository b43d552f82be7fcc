package ephemeral_test

import (
	"context"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/cryptodash/zklogin/ephemeral"
	errs "github.com/cryptodash/zklogin/internal/errors"
	"github.com/cryptodash/zklogin/prover"
)

type fakeEpochReader struct {
	epoch uint64
	err   error
	calls int
}

func (f *fakeEpochReader) CurrentEpoch(ctx context.Context) (uint64, error) {
	f.calls++
	return f.epoch, f.err
}

type fakeProofService struct {
	calls     int
	failures  int
	failErr   error
	proof     *prover.Proof
	lastReq   prover.Request
	permanent error
}

func (f *fakeProofService) Prove(ctx context.Context, request prover.Request) (*prover.Proof, error) {
	f.calls++
	f.lastReq = request
	if f.permanent != nil {
		return nil, f.permanent
	}
	if f.calls <= f.failures {
		return nil, f.failErr
	}
	return f.proof, nil
}

func signToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func TestManager_BeginFlow(t *testing.T) {
	t.Run("builds credentials from current epoch", func(t *testing.T) {
		m, err := ephemeral.New(&fakeEpochReader{epoch: 410}, nil)
		require.NoError(t, err)

		fc, err := m.BeginFlow(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(412), fc.MaxEpoch)
		require.NotNil(t, fc.Keypair)
		require.NotEmpty(t, fc.Randomness)
		require.Equal(t, ephemeral.ComputeNonce(fc.Keypair.ExtendedPublicKey(), fc.MaxEpoch, fc.Randomness), fc.Nonce)
	})

	t.Run("two flows never share credentials", func(t *testing.T) {
		m, err := ephemeral.New(&fakeEpochReader{epoch: 410}, nil)
		require.NoError(t, err)

		first, err := m.BeginFlow(context.Background())
		require.NoError(t, err)
		second, err := m.BeginFlow(context.Background())
		require.NoError(t, err)

		require.NotEqual(t, first.Keypair.Seed(), second.Keypair.Seed())
		require.NotEqual(t, first.Nonce, second.Nonce)
		require.NotEqual(t, first.Randomness, second.Randomness)
	})

	t.Run("epoch query failure", func(t *testing.T) {
		m, err := ephemeral.New(&fakeEpochReader{err: errs.ErrNetworkUnavailable}, nil)
		require.NoError(t, err)

		_, err = m.BeginFlow(context.Background())
		require.ErrorIs(t, err, errs.ErrNetworkUnavailable)
	})
}

func TestComputeNonce(t *testing.T) {
	nonce := ephemeral.ComputeNonce("AQID", 412, "12345")

	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t, nonce, ephemeral.ComputeNonce("AQID", 412, "12345"))
	})

	t.Run("sensitive to every input", func(t *testing.T) {
		require.NotEqual(t, nonce, ephemeral.ComputeNonce("AQIE", 412, "12345"))
		require.NotEqual(t, nonce, ephemeral.ComputeNonce("AQID", 413, "12345"))
		require.NotEqual(t, nonce, ephemeral.ComputeNonce("AQID", 412, "12346"))
	})
}

func TestDeriveAddress(t *testing.T) {
	token := signToken(t, jwtlib.MapClaims{
		"iss": "https://accounts.google.com",
		"sub": "1234567890",
		"aud": "client-1",
	})

	t.Run("pure and deterministic", func(t *testing.T) {
		a, err := ephemeral.DeriveAddress(token, "42")
		require.NoError(t, err)
		b, err := ephemeral.DeriveAddress(token, "42")
		require.NoError(t, err)
		require.Equal(t, a, b)
		require.Regexp(t, `^0x[0-9a-f]{64}$`, a)
	})

	t.Run("changing the salt changes the address", func(t *testing.T) {
		a, err := ephemeral.DeriveAddress(token, "42")
		require.NoError(t, err)
		b, err := ephemeral.DeriveAddress(token, "43")
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("changing the token changes the address", func(t *testing.T) {
		a, err := ephemeral.DeriveAddress(token, "42")
		require.NoError(t, err)
		other := signToken(t, jwtlib.MapClaims{
			"iss": "https://accounts.google.com",
			"sub": "999",
			"aud": "client-1",
		})
		b, err := ephemeral.DeriveAddress(other, "42")
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("non-numeric salt normalized, still deterministic", func(t *testing.T) {
		a, err := ephemeral.DeriveAddress(token, "not-numeric")
		require.NoError(t, err)
		b, err := ephemeral.DeriveAddress(token, "not-numeric")
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("unparsable token", func(t *testing.T) {
		_, err := ephemeral.DeriveAddress("garbage", "42")
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := ephemeral.DeriveAddress(signToken(t, jwtlib.MapClaims{"iss": "iss"}), "42")
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})
}

func TestManager_RequestProof(t *testing.T) {
	token := signToken(t, jwtlib.MapClaims{
		"iss": "https://accounts.google.com",
		"sub": "1234567890",
	})
	wantProof := &prover.Proof{HeaderBase64: "hdr"}

	newFlow := func(t *testing.T, m *ephemeral.Manager) *ephemeral.FlowContext {
		t.Helper()
		fc, err := m.BeginFlow(context.Background())
		require.NoError(t, err)
		return fc
	}

	t.Run("passes attempt credentials to the prover", func(t *testing.T) {
		svc := &fakeProofService{proof: wantProof}
		m, err := ephemeral.New(&fakeEpochReader{epoch: 410}, svc)
		require.NoError(t, err)
		fc := newFlow(t, m)

		proof, err := m.RequestProof(context.Background(), token, fc, "42")
		require.NoError(t, err)
		require.Equal(t, wantProof, proof)
		require.Equal(t, token, svc.lastReq.JWT)
		require.Equal(t, fc.Keypair.ExtendedPublicKey(), svc.lastReq.ExtendedEphemeralPublicKey)
		require.Equal(t, "412", svc.lastReq.MaxEpoch)
		require.Equal(t, fc.Randomness, svc.lastReq.JWTRandomness)
		require.Equal(t, "42", svc.lastReq.Salt)
		require.Equal(t, "sub", svc.lastReq.KeyClaimName)
	})

	t.Run("retries once on transient failure", func(t *testing.T) {
		svc := &fakeProofService{proof: wantProof, failures: 1, failErr: errs.ErrNetworkUnavailable}
		m, err := ephemeral.New(&fakeEpochReader{epoch: 410}, svc)
		require.NoError(t, err)

		proof, err := m.RequestProof(context.Background(), token, newFlow(t, m), "42")
		require.NoError(t, err)
		require.Equal(t, wantProof, proof)
		require.Equal(t, 2, svc.calls)
	})

	t.Run("gives up after the single retry", func(t *testing.T) {
		svc := &fakeProofService{failures: 5, failErr: errs.ErrNetworkUnavailable}
		m, err := ephemeral.New(&fakeEpochReader{epoch: 410}, svc)
		require.NoError(t, err)

		_, err = m.RequestProof(context.Background(), token, newFlow(t, m), "42")
		require.ErrorIs(t, err, errs.ErrNetworkUnavailable)
		require.Equal(t, 2, svc.calls)
	})

	t.Run("rejection is not retried", func(t *testing.T) {
		svc := &fakeProofService{permanent: errs.ErrProofRejected}
		m, err := ephemeral.New(&fakeEpochReader{epoch: 410}, svc)
		require.NoError(t, err)

		_, err = m.RequestProof(context.Background(), token, newFlow(t, m), "42")
		require.ErrorIs(t, err, errs.ErrProofRejected)
		require.Equal(t, 1, svc.calls)
	})
}

func TestKeypair(t *testing.T) {
	t.Run("seed roundtrip", func(t *testing.T) {
		kp, err := ephemeral.NewKeypair()
		require.NoError(t, err)

		restored, err := ephemeral.KeypairFromSeed(kp.Seed())
		require.NoError(t, err)
		require.Equal(t, kp.PublicKey(), restored.PublicKey())
		require.Equal(t, kp.ExtendedPublicKey(), restored.ExtendedPublicKey())
	})

	t.Run("bad seed length", func(t *testing.T) {
		_, err := ephemeral.KeypairFromSeed([]byte{1, 2, 3})
		require.Error(t, err)
	})
}
