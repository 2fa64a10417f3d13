package store

import (
	"sort"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]string),
	}
}

func (m *MemoryStore) GetItem(collection, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return "", false, nil
	}
	v, ok := coll[key]
	return v, ok, nil
}

func (m *MemoryStore) SetItem(collection, key, value string) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = make(map[string]string)
	}
	m.collections[collection][key] = value
	return nil
}

func (m *MemoryStore) RemoveItem(collection, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return false, nil
	}
	if _, exists := coll[key]; !exists {
		return false, nil
	}
	delete(coll, key)
	return true, nil
}

func (m *MemoryStore) Keys(collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.collections[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) ListCollections() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, items := range m.collections {
		if len(items) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Close() error { return nil }
