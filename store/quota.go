package store

import (
	"sync"

	"github.com/pkg/errors"
)

// QuotaStore caps the total size of all keys and values held by the wrapped
// store, the way a browser caps per-origin storage.
type QuotaStore struct {
	Store
	mu       sync.Mutex
	maxBytes int64
}

// WithQuota wraps s so that SetItem fails with ErrQuotaExceeded once the
// total stored size would exceed maxBytes. A non-positive limit disables the
// check and returns s unchanged.
func WithQuota(s Store, maxBytes int64) Store {
	if maxBytes <= 0 {
		return s
	}
	return &QuotaStore{Store: s, maxBytes: maxBytes}
}

// Unwrap returns the underlying store.
func (q *QuotaStore) Unwrap() Store { return q.Store }

// Usage returns the number of bytes currently held.
func (q *QuotaStore) Usage() (int64, error) {
	return Usage(q.Store)
}

func (q *QuotaStore) SetItem(collection, key, value string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	used, err := Usage(q.Store)
	if err != nil {
		return err
	}
	prev, ok, err := q.Store.GetItem(collection, key)
	if err != nil {
		return err
	}
	if ok {
		used -= int64(len(key) + len(prev))
	}
	need := used + int64(len(key)+len(value))
	if need > q.maxBytes {
		return errors.Wrapf(ErrQuotaExceeded, "writing %s/%s needs %d of %d bytes", collection, key, need, q.maxBytes)
	}
	return q.Store.SetItem(collection, key, value)
}

// Usage sums the size of every key and value in s.
func Usage(s Store) (int64, error) {
	collections, err := s.ListCollections()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range collections {
		keys, err := s.Keys(c)
		if err != nil {
			return 0, err
		}
		for _, k := range keys {
			v, ok, err := s.GetItem(c, k)
			if err != nil {
				return 0, err
			}
			if ok {
				total += int64(len(k) + len(v))
			}
		}
	}
	return total, nil
}
