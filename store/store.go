// Package store defines the persistent key-value storage that content
// overrides, the admin session flag and uploaded image payloads live in.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// Collections used by the site.
const (
	CollectionContent = "content"
	CollectionSession = "session"
	CollectionImages  = "images"
)

var (
	// ErrQuotaExceeded is returned by SetItem when a write would push the
	// store past its configured size budget.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrInvalidKey is returned for empty collection or key names.
	ErrInvalidKey = errors.New("invalid collection or key")
)

// Store is the interface that all backing stores must implement.
// It operates on named collections, where each collection maps string keys
// to opaque string values. Values are stored exactly as given; callers own
// serialization.
type Store interface {
	// GetItem returns the value stored under key and whether it exists.
	GetItem(collection, key string) (string, bool, error)

	// SetItem inserts or replaces a value.
	SetItem(collection, key, value string) error

	// RemoveItem removes a value. Returns true if it existed.
	RemoveItem(collection, key string) (bool, error)

	// Keys returns the sorted keys of a collection.
	Keys(collection string) ([]string, error)

	// ListCollections returns the names of all collections that contain data.
	ListCollections() ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

// Event describes a write observed on the backend. A watcher that stops on
// a failure sends one last Event carrying only Err before closing.
type Event struct {
	Collection string
	Key        string
	Err        error
}

// Watcher is implemented by backends that can observe writes made by other
// processes sharing the same storage.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Event, error)
}

// AsWatcher returns the Watcher behind s, looking through wrappers.
func AsWatcher(s Store) (Watcher, bool) {
	for s != nil {
		if w, ok := s.(Watcher); ok {
			return w, true
		}
		u, ok := s.(interface{ Unwrap() Store })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
	return nil, false
}

func checkKey(collection, key string) error {
	if collection == "" || key == "" {
		return errors.Wrapf(ErrInvalidKey, "collection=%q key=%q", collection, key)
	}
	return nil
}
