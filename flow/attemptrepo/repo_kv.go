package attemptrepo

import (
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/cryptodash/zklogin/storage"
)

// attemptKey is the single slot the pending attempt lives under.
const attemptKey = "zkLoginAttempt"

// KVRepo persists the pending attempt in a key-value store, CBOR-encoded and
// base64-wrapped so it survives stores that only take strings.
type KVRepo struct {
	kv storage.KV
}

// NewKVRepo creates a repository backed by kv.
func NewKVRepo(kv storage.KV) *KVRepo {
	return &KVRepo{kv: kv}
}

// Upsert stores attempt, replacing any pending one.
func (r *KVRepo) Upsert(attempt *Attempt) error {
	if attempt == nil {
		return errors.New("[KVRepo.Upsert] attempt cannot be nil")
	}
	if attempt.State == "" {
		return errors.New("[KVRepo.Upsert] attempt state cannot be empty")
	}
	encoded, err := cbor.Marshal(attempt)
	if err != nil {
		return errors.Wrap(err, "[KVRepo.Upsert] encoding attempt")
	}
	if err := r.kv.Set(attemptKey, base64.StdEncoding.EncodeToString(encoded)); err != nil {
		return errors.Wrap(err, "[KVRepo.Upsert] storing attempt")
	}
	return nil
}

// Get returns the pending attempt. A missing or unreadable record yields
// (nil, nil): a corrupt attempt is as good as no attempt, the flow simply
// starts over.
func (r *KVRepo) Get() (*Attempt, error) {
	raw, ok := r.kv.Get(attemptKey)
	if !ok {
		return nil, nil
	}
	encoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, nil
	}
	var attempt Attempt
	if err := cbor.Unmarshal(encoded, &attempt); err != nil {
		return nil, nil
	}
	return &attempt, nil
}

// Delete removes the pending attempt.
func (r *KVRepo) Delete() error {
	if err := r.kv.Delete(attemptKey); err != nil {
		return errors.Wrap(err, "[KVRepo.Delete] removing attempt")
	}
	return nil
}

// Hints adapts a Repo to the callback relay's read-only view of the pending
// attempt.
type Hints struct {
	repo Repo
}

// NewHints creates the relay-side view over repo.
func NewHints(repo Repo) *Hints {
	return &Hints{repo: repo}
}

// ProviderHint returns the pending attempt's provider id, or "".
func (h *Hints) ProviderHint() string {
	attempt, err := h.repo.Get()
	if err != nil || attempt == nil {
		return ""
	}
	return attempt.Provider
}

// ExpectedState returns the pending attempt's authorization state, or "".
func (h *Hints) ExpectedState() string {
	attempt, err := h.repo.Get()
	if err != nil || attempt == nil {
		return ""
	}
	return attempt.State
}
