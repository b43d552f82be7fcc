package salt

import "github.com/cryptodash/zklogin/storage"

// Repo is the durable per-user salt cache, keyed by "issuer:subject".
type Repo interface {
	Get(key string) (string, bool)
	Upsert(key, value string) error
	DeleteAll() error
}

const cachePrefix = "salt_"

// KVRepo stores salts in the shared KV under a "salt_" key prefix, separate
// from the session record so a logout never disturbs the cache.
type KVRepo struct {
	kv storage.KV
}

var _ Repo = (*KVRepo)(nil)

// NewKVRepo creates a salt cache backed by kv.
func NewKVRepo(kv storage.KV) *KVRepo {
	return &KVRepo{kv: kv}
}

func (r *KVRepo) Get(key string) (string, bool) {
	return r.kv.Get(cachePrefix + key)
}

func (r *KVRepo) Upsert(key, value string) error {
	return r.kv.Set(cachePrefix+key, value)
}

func (r *KVRepo) DeleteAll() error {
	for _, k := range r.kv.Keys(cachePrefix) {
		if err := r.kv.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
