// Package flow orchestrates the full login sequence: ephemeral credentials,
// the popup authorization round-trip, salt resolution, address derivation,
// proof acquisition, and session persistence. It owns the state machine the
// rest of the application observes.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cryptodash/zklogin/ephemeral"
	"github.com/cryptodash/zklogin/flow/attemptrepo"
	"github.com/cryptodash/zklogin/idtoken"
	errs "github.com/cryptodash/zklogin/internal/errors"
	"github.com/cryptodash/zklogin/prover"
	"github.com/cryptodash/zklogin/session"
)

// State is the observable progress of the login flow.
type State string

const (
	StateIdle           State = "idle"
	StateKeypairReady   State = "keypair_ready"
	StatePopupPending   State = "popup_pending"
	StateTokenReceived  State = "token_received"
	StateSaltResolved   State = "salt_resolved"
	StateAddressDerived State = "address_derived"
	StateProofReady     State = "proof_ready"
	StateAuthenticated  State = "authenticated"
	StateErrored        State = "errored"
	StateLoggedOut      State = "logged_out"
)

// inFlight reports whether a login attempt is currently running. Only a
// non-in-flight state accepts a new Start.
func (s State) inFlight() bool {
	switch s {
	case StateKeypairReady, StatePopupPending, StateTokenReceived,
		StateSaltResolved, StateAddressDerived, StateProofReady:
		return true
	}
	return false
}

// CredentialManager mints per-attempt credentials and performs the
// derivations bound to them.
type CredentialManager interface {
	BeginFlow(ctx context.Context) (*ephemeral.FlowContext, error)
	DeriveAddress(rawToken, userSalt string) (string, error)
	RequestProof(ctx context.Context, rawToken string, fc *ephemeral.FlowContext, userSalt string) (*prover.Proof, error)
}

// SaltSource resolves an identity token to the user's salt.
type SaltSource interface {
	GetSalt(rawToken string) (string, error)
}

// URLBuilder constructs provider authorization URLs.
type URLBuilder interface {
	BuildAuthorizationURL(providerID, nonce string) (authURL, state string, err error)
}

// PopupChannel runs the popup round-trip and returns the identity token.
type PopupChannel interface {
	Open(ctx context.Context, url string) (string, error)
}

// SessionStore persists the authenticated session.
type SessionStore interface {
	Save(s *session.Session) error
	Load() (*session.Session, error)
	Clear() error
}

// Deps are the orchestrator's collaborators. All fields are required.
type Deps struct {
	Credentials CredentialManager
	Salts       SaltSource
	URLs        URLBuilder
	Popup       PopupChannel
	Sessions    SessionStore
	Attempts    attemptrepo.Repo
}

// Orchestrator drives login attempts. Safe for concurrent use; at most one
// attempt runs at a time.
type Orchestrator struct {
	deps Deps
	now  func() time.Time
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	lastErr error
	cancel  context.CancelFunc
	proof   *prover.Proof
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithNowTime overrides the clock, for tests.
func WithNowTime(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator, validating that every collaborator is wired.
func New(deps Deps, options ...Option) (*Orchestrator, error) {
	if deps.Credentials == nil {
		return nil, errors.New("[flow.New] credential manager is required")
	}
	if deps.Salts == nil {
		return nil, errors.New("[flow.New] salt source is required")
	}
	if deps.URLs == nil {
		return nil, errors.New("[flow.New] URL builder is required")
	}
	if deps.Popup == nil {
		return nil, errors.New("[flow.New] popup channel is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[flow.New] session store is required")
	}
	if deps.Attempts == nil {
		return nil, errors.New("[flow.New] attempt repository is required")
	}
	o := &Orchestrator{
		deps:  deps,
		now:   time.Now,
		state: StateIdle,
		log:   log.With().Str("component", "flow").Logger(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Start runs one complete login attempt against providerID and returns the
// persisted session. While an attempt is in flight, further Starts fail with
// FlowAlreadyInProgress. On any failure the attempt's transient artifacts are
// removed and no session is persisted.
func (o *Orchestrator) Start(ctx context.Context, providerID string) (*session.Session, error) {
	o.mu.Lock()
	if o.state.inFlight() {
		o.mu.Unlock()
		return nil, errs.Wrapf(errs.ErrFlowAlreadyInProgress, "[Orchestrator.Start]")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.state = StateKeypairReady
	o.mu.Unlock()
	defer cancel()

	sess, err := o.run(ctx, providerID)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancel = nil
	if err != nil {
		// Transient attempt material must not outlive a failed attempt.
		if deleteErr := o.deps.Attempts.Delete(); deleteErr != nil {
			o.log.Warn().Err(deleteErr).Msg("failed to clean up attempt artifacts")
		}
		o.state = StateErrored
		o.lastErr = err
		o.log.Warn().Err(err).Str("provider", providerID).Msg("login attempt failed")
		return nil, err
	}
	o.state = StateAuthenticated
	o.lastErr = nil
	o.log.Info().Str("provider", providerID).Str("address", sess.Address).Msg("login complete")
	return sess, nil
}

func (o *Orchestrator) run(ctx context.Context, providerID string) (*session.Session, error) {
	fc, err := o.deps.Credentials.BeginFlow(ctx)
	if err != nil {
		return nil, err
	}

	authURL, state, err := o.deps.URLs.BuildAuthorizationURL(providerID, fc.Nonce)
	if err != nil {
		return nil, err
	}

	attempt := &attemptrepo.Attempt{
		ID:         uuid.NewString(),
		Provider:   providerID,
		State:      state,
		Nonce:      fc.Nonce,
		KeySeed:    fc.Keypair.Seed(),
		Randomness: fc.Randomness,
		MaxEpoch:   fc.MaxEpoch,
		CreatedAt:  o.now(),
	}
	if err := o.deps.Attempts.Upsert(attempt); err != nil {
		return nil, errs.Wrapf(err, "[Orchestrator.Start] persist attempt")
	}

	o.transition(StatePopupPending)
	rawToken, err := o.deps.Popup.Open(ctx, authURL)
	if err != nil {
		return nil, err
	}
	o.transition(StateTokenReceived)

	claims, err := idtoken.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	// The token must carry the nonce minted for this attempt; a different
	// nonce means the token belongs to some other authorization.
	if claims.Nonce != "" && claims.Nonce != fc.Nonce {
		return nil, errs.Wrapf(errs.ErrInvalidToken, "[Orchestrator.Start] token nonce does not match attempt")
	}

	userSalt, err := o.deps.Salts.GetSalt(rawToken)
	if err != nil {
		return nil, err
	}
	o.transition(StateSaltResolved)

	address, err := o.deps.Credentials.DeriveAddress(rawToken, userSalt)
	if err != nil {
		return nil, err
	}
	o.transition(StateAddressDerived)

	proof, err := o.deps.Credentials.RequestProof(ctx, rawToken, fc, userSalt)
	if err != nil {
		return nil, err
	}
	o.transition(StateProofReady)
	o.setProof(proof)

	sess := &session.Session{
		IdentityToken: rawToken,
		Address:       address,
		Salt:          userSalt,
		User: session.UserInfo{
			Email:     claims.Email,
			Name:      claims.DisplayName(),
			Picture:   claims.Picture,
			Provider:  providerID,
			CreatedAt: o.now(),
		},
	}
	if err := o.deps.Sessions.Save(sess); err != nil {
		return nil, errs.Wrapf(err, "[Orchestrator.Start] persist session")
	}

	// The session is durable; the attempt's transient key material has
	// served its purpose and must not linger.
	if err := o.deps.Attempts.Delete(); err != nil {
		o.log.Warn().Err(err).Msg("failed to clean up attempt artifacts")
	}
	return sess, nil
}

// Cancel aborts the in-flight attempt, if any. The attempt settles as
// cancelled through its own error path.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Logout clears the session and any pending attempt artifacts. It never
// fails and is idempotent: cleanup problems are logged, not surfaced, so the
// user is always logged out from their point of view. The salt cache is
// deliberately left intact; clearing it would shift the user's address on
// their next login.
func (o *Orchestrator) Logout() error {
	o.Cancel()

	if err := o.deps.Sessions.Clear(); err != nil {
		o.log.Warn().Err(err).Msg("failed to clear session on logout")
	}
	if err := o.deps.Attempts.Delete(); err != nil {
		o.log.Warn().Err(err).Msg("failed to clear attempt artifacts on logout")
	}

	o.mu.Lock()
	o.state = StateLoggedOut
	o.lastErr = nil
	o.proof = nil
	o.mu.Unlock()
	return nil
}

// Current returns the persisted session, or nil when signed out.
func (o *Orchestrator) Current() (*session.Session, error) {
	return o.deps.Sessions.Load()
}

// CurrentState returns the flow's observable state.
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the error that moved the flow to Errored, or nil.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Proof returns the proof obtained by the last successful attempt, or nil.
// The proof is held in memory only; it is never persisted.
func (o *Orchestrator) Proof() *prover.Proof {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.proof
}

func (o *Orchestrator) transition(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.log.Debug().Str("state", string(s)).Msg("flow state changed")
}

func (o *Orchestrator) setProof(p *prover.Proof) {
	o.mu.Lock()
	o.proof = p
	o.mu.Unlock()
}
