package session

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cryptodash/zklogin/storage"
)

// AddressCheck revalidates a restored session's address against its token and
// salt. A mismatch means the record was tampered with or the derivation
// changed underneath it.
type AddressCheck func(identityToken, salt, address string) error

// Store reads and writes the session record.
type Store struct {
	kv       storage.KV
	validate AddressCheck
	log      zerolog.Logger
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithAddressCheck enables address revalidation on Load.
func WithAddressCheck(check AddressCheck) StoreOption {
	return func(s *Store) {
		s.validate = check
	}
}

// NewStore creates a session store over kv.
func NewStore(kv storage.KV, options ...StoreOption) *Store {
	s := &Store{
		kv:  kv,
		log: log.With().Str("component", "session").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Save persists session. Incomplete records are rejected: a half-written
// session would be silently discarded on the next Load anyway.
func (s *Store) Save(session *Session) error {
	if !session.complete() {
		return errors.New("[Store.Save] session record is incomplete")
	}
	encoded, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[Store.Save] encoding session")
	}
	if err := s.kv.Set(sessionKey, string(encoded)); err != nil {
		return errors.Wrap(err, "[Store.Save] storing session")
	}
	return nil
}

// Load returns the persisted session, or (nil, nil) when none exists.
// Corrupt or incomplete records are deleted and reported as absent rather
// than surfaced as errors: the user simply signs in again. When an address
// check is configured, a failing record is discarded the same way.
func (s *Store) Load() (*Session, error) {
	raw, ok := s.kv.Get(sessionKey)
	if !ok {
		return nil, nil
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.log.Warn().Err(err).Msg("discarding unreadable session record")
		s.discard()
		return nil, nil
	}
	if !session.complete() {
		s.log.Warn().Msg("discarding incomplete session record")
		s.discard()
		return nil, nil
	}
	if s.validate != nil {
		if err := s.validate(session.IdentityToken, session.Salt, session.Address); err != nil {
			s.log.Warn().Err(err).Msg("discarding session with mismatched address")
			s.discard()
			return nil, nil
		}
	}
	return &session, nil
}

// Clear removes the session record. Clearing an absent session is not an
// error.
func (s *Store) Clear() error {
	if err := s.kv.Delete(sessionKey); err != nil {
		return errors.Wrap(err, "[Store.Clear] removing session")
	}
	return nil
}

func (s *Store) discard() {
	if err := s.kv.Delete(sessionKey); err != nil {
		s.log.Warn().Err(err).Msg("failed to delete bad session record")
	}
}
