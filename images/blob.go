package images

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a blob reference is unknown or released.
var ErrNotFound = errors.New("blob not found")

// BlobStore keeps image payloads outside the key-value store and hands back
// a reference that content records can hold.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	// Release revokes ref. Releasing an unknown ref is not an error.
	Release(ctx context.Context, ref string) error
	// Owns reports whether ref was issued by this store.
	Owns(ref string) bool
}

// Opener is implemented by blob stores whose payloads are served by this
// process rather than by an external host.
type Opener interface {
	Open(ctx context.Context, ref string) ([]byte, string, error)
}

// MemoryBlobPrefix starts every reference issued by MemoryBlobStore. The
// HTTP layer serves these paths.
const MemoryBlobPrefix = "/blobs/"

type blob struct {
	data        []byte
	contentType string
}

// MemoryBlobStore holds payloads for the life of the process, like object
// URLs in a browser tab.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]blob)}
}

func (m *MemoryBlobStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = blob{data: append([]byte(nil), data...), contentType: contentType}
	return MemoryBlobPrefix + id, nil
}

func (m *MemoryBlobStore) Release(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, strings.TrimPrefix(ref, MemoryBlobPrefix))
	return nil
}

func (m *MemoryBlobStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, MemoryBlobPrefix)
}

func (m *MemoryBlobStore) Open(_ context.Context, ref string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[strings.TrimPrefix(ref, MemoryBlobPrefix)]
	if !ok {
		return nil, "", ErrNotFound
	}
	return b.data, b.contentType, nil
}

// Len returns the number of live blobs.
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
