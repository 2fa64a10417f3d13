// Package content is the site's content store: six typed records, each
// resolved as "stored override if it decodes, else compiled-in default".
package content

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/stevemurr/site-content-server/store"
)

// GalleryPollInterval is how often live gallery views re-read the store.
const GalleryPollInterval = 5 * time.Second

// Source tells subscribers where a change came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceExternal Source = "external"
)

// Change is published whenever an override is written or removed.
type Change struct {
	Kind   Kind
	Source Source
}

// Store resolves and persists content records. Create one per process with
// New and share it; it is safe for concurrent use. Writes are last-write-wins
// with no version check.
type Store struct {
	kv  store.Store
	log *slog.Logger

	mu      sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for discarded overrides and write failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Store over kv.
func New(kv store.Store, opts ...Option) *Store {
	s := &Store{
		kv:   kv,
		log:  slog.Default(),
		subs: make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	loadDefaults()
	return s
}

// Lookup returns the stored override for kind. It fails with ErrNoOverride
// when nothing is stored and with a *ParseError when the stored value does
// not decode.
func (s *Store) Lookup(kind Kind) (Record, error) {
	raw, ok, err := s.kv.GetItem(store.CollectionContent, string(kind))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s override", kind)
	}
	if !ok {
		return nil, ErrNoOverride
	}
	return decodeRecord(kind, raw)
}

// Get returns the override for kind, or its default. It never fails.
func (s *Store) Get(kind Kind) Record {
	rec, err := s.Lookup(kind)
	if err == nil {
		return rec
	}
	if !errors.Is(err, ErrNoOverride) {
		s.log.Warn("Content override ignored, serving default", "kind", kind, "err", err)
	}
	return Default(kind)
}

func (s *Store) Menu() Menu       { return s.Get(KindMenu).(Menu) }
func (s *Store) Contact() Contact { return s.Get(KindContact).(Contact) }
func (s *Store) Hours() Hours     { return s.Get(KindHours).(Hours) }
func (s *Store) Hero() Hero       { return s.Get(KindHero).(Hero) }
func (s *Store) About() About     { return s.Get(KindAbout).(About) }
func (s *Store) Gallery() Gallery { return s.Get(KindGallery).(Gallery) }

// All returns every record keyed by kind.
func (s *Store) All() map[Kind]Record {
	out := make(map[Kind]Record, len(Kinds))
	for _, k := range Kinds {
		out[k] = s.Get(k)
	}
	return out
}

// Update stores r as the override for its kind, replacing any previous one.
// The value is not validated. A persistence failure is returned as is; the
// caller can confirm with a subsequent Get.
func (s *Store) Update(r Record) error {
	if r == nil {
		return errors.New("nil record")
	}
	raw, err := encodeRecord(r)
	if err != nil {
		return err
	}
	if err := s.kv.SetItem(store.CollectionContent, string(r.Kind()), raw); err != nil {
		s.log.Error("Content override not saved", "kind", r.Kind(), "bytes", len(raw), "err", err)
		return errors.Wrapf(err, "could not save %s override", r.Kind())
	}
	s.publish(Change{Kind: r.Kind(), Source: SourceLocal})
	return nil
}

func (s *Store) UpdateMenu(v Menu) error       { return s.Update(v) }
func (s *Store) UpdateContact(v Contact) error { return s.Update(v) }
func (s *Store) UpdateHours(v Hours) error     { return s.Update(v) }
func (s *Store) UpdateHero(v Hero) error       { return s.Update(v) }
func (s *Store) UpdateAbout(v About) error     { return s.Update(v) }
func (s *Store) UpdateGallery(v Gallery) error { return s.Update(v) }

// Reset removes the override for kind.
func (s *Store) Reset(kind Kind) error {
	existed, err := s.kv.RemoveItem(store.CollectionContent, string(kind))
	if err != nil {
		return errors.Wrapf(err, "could not reset %s", kind)
	}
	if existed {
		s.publish(Change{Kind: kind, Source: SourceLocal})
	}
	return nil
}

// ResetAll removes the override of every kind. It attempts every kind even
// if one removal fails and returns the first error.
func (s *Store) ResetAll() error {
	var first error
	for _, k := range Kinds {
		if err := s.Reset(k); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Overridden lists the kinds that currently have a stored override.
func (s *Store) Overridden() ([]Kind, error) {
	keys, err := s.kv.Keys(store.CollectionContent)
	if err != nil {
		return nil, errors.Wrap(err, "could not list overrides")
	}
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	var out []Kind
	for _, k := range Kinds {
		if present[string(k)] {
			out = append(out, k)
		}
	}
	return out, nil
}

// Version hashes the current value of kind. Equal versions mean equal content.
func (s *Store) Version(kind Kind) uint64 {
	return VersionOf(s.Get(kind))
}

// VersionOf hashes the serialized form of r.
func VersionOf(r Record) uint64 {
	raw, err := encodeRecord(r)
	if err != nil {
		return 0
	}
	return xxhash.Sum64String(raw)
}

// Subscribe returns a channel of changes that stays open until ctx is done.
// Slow subscribers miss changes rather than block writers; a consumer that
// needs the current value re-reads the store anyway.
func (s *Store) Subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, 16)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Watch forwards content writes made by other processes to subscribers. It
// blocks until ctx is done or the backend stops watching, and returns nil at
// once when the backend cannot observe external writes.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := store.AsWatcher(s.kv)
	if !ok {
		return nil
	}
	events, err := w.Watch(ctx)
	if err != nil {
		return errors.Wrap(err, "could not watch storage")
	}
	for ev := range events {
		if ev.Err != nil {
			return errors.Wrap(ev.Err, "storage watch failed")
		}
		if ev.Collection != store.CollectionContent {
			continue
		}
		kind, err := ParseKind(ev.Key)
		if err != nil {
			continue
		}
		s.publish(Change{Kind: kind, Source: SourceExternal})
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("storage watch ended")
}

// ImagesInUse returns the image references held by the current records.
func (s *Store) ImagesInUse() []string {
	var refs []string
	for _, k := range Kinds {
		refs = append(refs, ImageRefs(s.Get(k))...)
	}
	return refs
}
