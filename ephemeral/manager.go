// Package ephemeral owns the per-attempt cryptographic material: the
// ephemeral key pair, randomness and nonce bound into the authorization
// request, and the later address and proof derivations that must agree with
// that material.
package ephemeral

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/cryptodash/zklogin/idtoken"
	errs "github.com/cryptodash/zklogin/internal/errors"
	"github.com/cryptodash/zklogin/prover"
	"github.com/cryptodash/zklogin/salt"
)

const (
	// defaultEpochWindow bounds proof and key exposure: the attempt is valid
	// for the current epoch plus two.
	defaultEpochWindow = 2

	// addressSchemeFlag tags addresses derived from identity-token claims.
	addressSchemeFlag byte = 0x05

	// keyClaimName is the identity claim the address seed is keyed on.
	keyClaimName = "sub"

	randomnessBytes = 16
	nonceBytes      = 20
	saltWidth       = 16
)

// FlowContext is the per-attempt credential bundle. Immutable once created;
// it must never be reused across two authorization attempts.
type FlowContext struct {
	Keypair    *Keypair
	Nonce      string
	MaxEpoch   uint64
	Randomness string
}

// EpochReader reports the target network's current epoch.
type EpochReader interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
}

// ProofService generates a zero-knowledge proof from identity claims.
type ProofService interface {
	Prove(ctx context.Context, request prover.Request) (*prover.Proof, error)
}

// Manager implements credential generation, address derivation and proof
// acquisition.
type Manager struct {
	epochs      EpochReader
	prover      ProofService
	epochWindow uint64
	log         zerolog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithEpochWindow overrides the epoch validity window.
func WithEpochWindow(window uint64) Option {
	return func(m *Manager) {
		m.epochWindow = window
	}
}

// New creates a Manager. The epoch reader is required; the proof service may
// be nil only if RequestProof is never called.
func New(epochs EpochReader, proofService ProofService, options ...Option) (*Manager, error) {
	if epochs == nil {
		return nil, errors.New("[ephemeral.New] epoch reader is required")
	}
	m := &Manager{
		epochs:      epochs,
		prover:      proofService,
		epochWindow: defaultEpochWindow,
		log:         log.With().Str("component", "ephemeral").Logger(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// BeginFlow queries the current epoch and mints the attempt's key pair,
// randomness and nonce. One network read; fails with NetworkUnavailable when
// the epoch query fails.
func (m *Manager) BeginFlow(ctx context.Context) (*FlowContext, error) {
	epoch, err := m.epochs.CurrentEpoch(ctx)
	if err != nil {
		return nil, errs.Wrapf(err, "[Manager.BeginFlow] epoch query")
	}
	maxEpoch := epoch + m.epochWindow

	keypair, err := NewKeypair()
	if err != nil {
		return nil, errs.Wrapf(err, "[Manager.BeginFlow]")
	}

	randomness, err := generateRandomness()
	if err != nil {
		return nil, errs.Wrapf(err, "[Manager.BeginFlow] generate randomness")
	}

	fc := &FlowContext{
		Keypair:    keypair,
		Nonce:      ComputeNonce(keypair.ExtendedPublicKey(), maxEpoch, randomness),
		MaxEpoch:   maxEpoch,
		Randomness: randomness,
	}
	m.log.Debug().Uint64("max_epoch", maxEpoch).Msg("ephemeral credentials ready")
	return fc, nil
}

// DeriveAddress computes the ledger address for (token, salt). Pure function,
// no I/O: identical inputs always yield the identical address.
func (m *Manager) DeriveAddress(rawToken, userSalt string) (string, error) {
	return DeriveAddress(rawToken, userSalt)
}

// DeriveAddress is the package-level form of Manager.DeriveAddress.
func DeriveAddress(rawToken, userSalt string) (string, error) {
	claims, err := idtoken.Parse(rawToken)
	if err != nil {
		return "", errs.Wrapf(err, "[ephemeral.DeriveAddress]")
	}
	if claims.Issuer == "" || claims.Subject == "" {
		return "", errs.Wrapf(errs.ErrInvalidToken, "[ephemeral.DeriveAddress] missing iss or sub claim")
	}

	numericSalt := salt.EnsureNumericSalt(userSalt)
	saltInt, _ := new(big.Int).SetString(numericSalt, 10)
	saltBytes := make([]byte, saltWidth)
	saltInt.FillBytes(saltBytes)

	// Address seed commits to the key claim and salt; length prefixes keep
	// distinct (claim, value) splits from colliding.
	seedHash, _ := blake2b.New256(nil)
	writeLengthPrefixed(seedHash, []byte(keyClaimName))
	writeLengthPrefixed(seedHash, []byte(claims.Subject))
	writeLengthPrefixed(seedHash, []byte(claims.Audience))
	seedHash.Write(saltBytes)
	seed := seedHash.Sum(nil)

	addrHash, _ := blake2b.New256(nil)
	addrHash.Write([]byte{addressSchemeFlag})
	writeLengthPrefixed(addrHash, []byte(claims.Issuer))
	addrHash.Write(seed)

	return "0x" + hex.EncodeToString(addrHash.Sum(nil)), nil
}

// RequestProof asks the remote prover for a proof binding the token to the
// attempt's credentials. A transient network failure is retried exactly once;
// a prover-side rejection is returned as-is.
func (m *Manager) RequestProof(ctx context.Context, rawToken string, fc *FlowContext, userSalt string) (*prover.Proof, error) {
	if m.prover == nil {
		return nil, errs.Wrapf(errs.ErrNetworkUnavailable, "[Manager.RequestProof] no proof service configured")
	}
	if fc == nil || fc.Keypair == nil {
		return nil, errs.Wrapf(errs.ErrInvalidToken, "[Manager.RequestProof] flow context missing")
	}

	request := prover.Request{
		JWT:                        rawToken,
		ExtendedEphemeralPublicKey: fc.Keypair.ExtendedPublicKey(),
		MaxEpoch:                   strconv.FormatUint(fc.MaxEpoch, 10),
		JWTRandomness:              fc.Randomness,
		Salt:                       salt.EnsureNumericSalt(userSalt),
		KeyClaimName:               keyClaimName,
	}

	proof, err := m.prover.Prove(ctx, request)
	if err != nil && errs.Is(err, errs.ErrNetworkUnavailable) && ctx.Err() == nil {
		m.log.Warn().Err(err).Msg("prover unreachable, retrying once")
		proof, err = m.prover.Prove(ctx, request)
	}
	if err != nil {
		return nil, errs.Wrapf(err, "[Manager.RequestProof]")
	}
	return proof, nil
}

// ComputeNonce derives the authorization nonce from the extended ephemeral
// public key, the max epoch and the attempt randomness. Deterministic in its
// inputs.
func ComputeNonce(extendedPublicKey string, maxEpoch uint64, randomness string) string {
	h, _ := blake2b.New256(nil)
	writeLengthPrefixed(h, []byte(extendedPublicKey))
	epochBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(epochBytes, maxEpoch)
	h.Write(epochBytes)
	writeLengthPrefixed(h, []byte(randomness))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:nonceBytes])
}

func generateRandomness() (string, error) {
	buf := make([]byte, randomnessBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(buf).String(), nil
}

func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, data []byte) {
	h.Write(binary.AppendUvarint(nil, uint64(len(data))))
	h.Write(data)
}
