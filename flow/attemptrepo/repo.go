// Package attemptrepo persists the transient artifacts of an in-flight
// authorization attempt: the ephemeral key seed, randomness, nonce, epoch
// bound, and the state/provider pair the callback relay validates against.
// Exactly one attempt is pending at a time; a completed or failed attempt is
// deleted, never kept.
package attemptrepo

import "time"

// Attempt is the stored per-attempt record. Fields carry keyasint tags to
// keep the encoded record compact and stable across renames.
type Attempt struct {
	ID         string    `cbor:"1,keyasint"`
	Provider   string    `cbor:"2,keyasint"`
	State      string    `cbor:"3,keyasint"`
	Nonce      string    `cbor:"4,keyasint"`
	KeySeed    []byte    `cbor:"5,keyasint"`
	Randomness string    `cbor:"6,keyasint"`
	MaxEpoch   uint64    `cbor:"7,keyasint"`
	CreatedAt  time.Time `cbor:"8,keyasint"`
}

// Repo stores at most one pending attempt.
type Repo interface {
	// Upsert stores attempt, replacing any pending one.
	Upsert(attempt *Attempt) error

	// Get returns the pending attempt, or (nil, nil) when none is pending
	// or the stored record is unreadable.
	Get() (*Attempt, error)

	// Delete removes the pending attempt. Deleting when none is pending is
	// not an error.
	Delete() error
}
