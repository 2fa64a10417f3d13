package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// JsonFileStore stores each collection as a separate JSON object on disk.
//
// Layout:
//
//	data_dir/
//	  content.json   # {"menu": "<serialized menu>", ...}
//	  session.json   # {"isAdminAuthenticated": "true"}
//	  images.json    # {"image_1712...": "data:image/png;base64,..."}
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create data dir %s", dir)
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) collectionPath(collection string) (string, error) {
	if collection == "" || strings.ContainsAny(collection, `/\.`) {
		return "", errors.Wrapf(ErrInvalidKey, "collection=%q", collection)
	}
	return filepath.Join(s.dir, collection+".json"), nil
}

// loadFile treats a missing or unreadable-as-JSON file as an empty collection.
func (s *JsonFileStore) loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	var result map[string]string
	if err := json.Unmarshal(data, &result); err != nil || result == nil {
		return map[string]string{}, nil
	}
	return result, nil
}

// saveFile writes through a temp file so a crash never leaves a torn collection.
func (s *JsonFileStore) saveFile(path string, data map[string]string) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not marshal collection")
	}
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "could not create tmp file for %s", path)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "could not write to tmp file %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "could not sync tmp file %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "could not close tmp file %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "could not replace %s with %s", path, tmp.Name())
	}
	return nil
}

func (s *JsonFileStore) GetItem(collection, key string) (string, bool, error) {
	path, err := s.collectionPath(collection)
	if err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadFile(path)
	if err != nil {
		return "", false, err
	}
	v, ok := coll[key]
	return v, ok, nil
}

func (s *JsonFileStore) SetItem(collection, key, value string) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}
	path, err := s.collectionPath(collection)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadFile(path)
	if err != nil {
		return err
	}
	coll[key] = value
	return s.saveFile(path, coll)
}

func (s *JsonFileStore) RemoveItem(collection, key string) (bool, error) {
	path, err := s.collectionPath(collection)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadFile(path)
	if err != nil {
		return false, err
	}
	if _, ok := coll[key]; !ok {
		return false, nil
	}
	delete(coll, key)
	return true, s.saveFile(path, coll)
}

func (s *JsonFileStore) Keys(collection string) ([]string, error) {
	path, err := s.collectionPath(collection)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadFile(path)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *JsonFileStore) ListCollections() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not list %s", s.dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		coll, err := s.loadFile(filepath.Join(s.dir, name))
		if err != nil || len(coll) == 0 {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) Close() error { return nil }
