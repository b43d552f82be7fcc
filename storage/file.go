package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// FileKV is a KV backed by a single JSON file, giving the store the same
// durability as browser localStorage. Every write rewrites the file through a
// temp-file rename so a crash mid-write never leaves a half-written store
// behind.
type FileKV struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

var _ KV = (*FileKV)(nil)

// NewFileKV opens (or creates) the store at path. An unreadable or corrupt
// file is treated as empty rather than failing construction; the next write
// replaces it.
func NewFileKV(path string) (*FileKV, error) {
	if path == "" {
		return nil, errors.New("[NewFileKV] path is required")
	}
	f := &FileKV{path: path, values: make(map[string]string)}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "[NewFileKV] create store directory")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, errors.Wrap(err, "[NewFileKV] read store file")
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		f.values = make(map[string]string)
	}
	return f, nil
}

func (f *FileKV) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.persistLocked()
}

func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.persistLocked()
}

func (f *FileKV) Keys(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0)
	for k := range f.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (f *FileKV) persistLocked() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileKV.persist] marshal")
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*")
	if err != nil {
		return errors.Wrap(err, "[FileKV.persist] create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileKV.persist] write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileKV.persist] close temp file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileKV.persist] rename")
	}
	return nil
}
