// Package storage provides the durable key/value service backing the session
// record, the per-user salt cache, and the short-lived per-attempt artifacts.
// It stands in for the per-browser storage the flow was designed around: one
// store per user context, read-modify-write at single-key granularity.
package storage

// KV is a flat string key/value store. Implementations must be safe for
// concurrent use.
type KV interface {
	// Get returns the value for key, and whether the key was present.
	Get(key string) (string, bool)

	// Set stores value under key, overwriting any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys returns all stored keys that begin with prefix.
	Keys(prefix string) []string
}
