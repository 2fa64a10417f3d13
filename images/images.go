// Package images turns uploaded image files into references that content
// records can store. Large images are downscaled and recompressed. Inline
// references are data URIs; blob references point at a BlobStore. Every
// issued reference is recorded in the images collection so it can be cleaned
// up later.
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"

	"github.com/stevemurr/site-content-server/store"
)

const (
	MaxUploadBytes    = 10 << 20
	CompressThreshold = 2 << 20
	MaxDimension      = 1200
	JPEGQuality       = 80

	// KeyPrefix starts every side-table key.
	KeyPrefix = "image_"
)

var (
	ErrTooLarge = errors.New("image exceeds 10 MiB")
	ErrNotImage = errors.New("file is not an image")
)

// Upload is one file received from an editor.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result describes an ingested image. Persisted is false when the side-table
// entry could not be written even after eviction; Ref is usable regardless.
type Result struct {
	Ref         string `json:"ref"`
	Key         string `json:"key,omitempty"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Compressed  bool   `json:"compressed"`
	Persisted   bool   `json:"persisted"`
}

// Ingester applies the upload policy and keeps the side-table.
type Ingester struct {
	kv     store.Store
	blobs  BlobStore
	inUse  func() []string
	log    *slog.Logger
	now    func() time.Time
	random func() string

	mu sync.Mutex
}

type Option func(*Ingester)

// WithBlobStore switches from inline data URIs to blob references.
func WithBlobStore(b BlobStore) Option {
	return func(in *Ingester) { in.blobs = b }
}

// WithInUse supplies the references that eviction must never remove.
func WithInUse(f func() []string) Option {
	return func(in *Ingester) { in.inUse = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(in *Ingester) {
		if l != nil {
			in.log = l
		}
	}
}

func NewIngester(kv store.Store, opts ...Option) *Ingester {
	in := &Ingester{
		kv:  kv,
		log: slog.Default(),
		now: time.Now,
		random: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
		},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Mode reports "blob" or "inline".
func (in *Ingester) Mode() string {
	if in.blobs != nil {
		return "blob"
	}
	return "inline"
}

// Ingest validates u, compresses it if needed and returns its reference.
func (in *Ingester) Ingest(ctx context.Context, u Upload) (Result, error) {
	if len(u.Data) > MaxUploadBytes {
		return Result{}, errors.Wrapf(ErrTooLarge, "%s is %d bytes", u.Name, len(u.Data))
	}
	contentType := u.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(u.Data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Result{}, errors.Wrapf(ErrNotImage, "%s has type %s", u.Name, contentType)
	}

	data := u.Data
	res := Result{ContentType: contentType}
	if len(data) > CompressThreshold {
		out, err := compress(data)
		if err != nil {
			return Result{}, errors.Wrapf(err, "could not compress %s", u.Name)
		}
		data, res.ContentType, res.Compressed = out, "image/jpeg", true
	}
	res.Size = len(data)

	if in.blobs != nil {
		ref, err := in.blobs.Put(ctx, data, res.ContentType)
		if err != nil {
			return Result{}, err
		}
		res.Ref = ref
	} else {
		res.Ref = "data:" + res.ContentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	res.Key = fmt.Sprintf("%s%d_%s", KeyPrefix, in.now().UnixMilli(), in.random())
	res.Persisted = in.persist(ctx, res.Key, res.Ref)
	if !res.Persisted {
		res.Key = ""
	}
	return res, nil
}

func compress(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrNotImage, err.Error())
	}
	img = resize.Thumbnail(MaxDimension, MaxDimension, img, resize.Lanczos3)
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// persist writes the side-table entry. On a full store it evicts the oldest
// unreferenced entries and retries once.
func (in *Ingester) persist(ctx context.Context, key, ref string) bool {
	err := in.kv.SetItem(store.CollectionImages, key, ref)
	if err == nil {
		return true
	}
	if !errors.Is(err, store.ErrQuotaExceeded) {
		in.log.Warn("Image reference not recorded", "key", key, "err", err)
		return false
	}
	freed, evicted := in.evict(ctx, int64(len(key)+len(ref)))
	in.log.Info("Evicted stored images", "count", evicted, "bytes", freed)
	if err := in.kv.SetItem(store.CollectionImages, key, ref); err != nil {
		in.log.Warn("Image reference not recorded after eviction", "key", key, "err", err)
		return false
	}
	return true
}

type entry struct {
	ts  int64
	key string
}

func byAge(a, b entry) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	return a.key < b.key
}

// timestampOf parses the millisecond timestamp out of image_<ms>_<rand>.
// Keys that do not parse sort first.
func timestampOf(key string) int64 {
	rest := strings.TrimPrefix(key, KeyPrefix)
	if i := strings.IndexByte(rest, '_'); i >= 0 {
		rest = rest[:i]
	}
	ts, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

func (in *Ingester) stored() (*btree.BTreeG[entry], error) {
	keys, err := in.kv.Keys(store.CollectionImages)
	if err != nil {
		return nil, err
	}
	tr := btree.NewBTreeG(byAge)
	for _, k := range keys {
		if strings.HasPrefix(k, KeyPrefix) {
			tr.Set(entry{ts: timestampOf(k), key: k})
		}
	}
	return tr, nil
}

func (in *Ingester) referenced() map[string]bool {
	keep := make(map[string]bool)
	if in.inUse != nil {
		for _, ref := range in.inUse() {
			keep[ref] = true
		}
	}
	return keep
}

func (in *Ingester) evict(ctx context.Context, need int64) (freed int64, count int) {
	tr, err := in.stored()
	if err != nil {
		in.log.Warn("Could not list stored images", "err", err)
		return 0, 0
	}
	keep := in.referenced()
	tr.Scan(func(e entry) bool {
		ref, ok, err := in.kv.GetItem(store.CollectionImages, e.key)
		if err != nil || !ok || keep[ref] {
			return true
		}
		if in.remove(ctx, e.key, ref) {
			freed += int64(len(e.key) + len(ref))
			count++
		}
		return freed < need
	})
	return freed, count
}

func (in *Ingester) remove(ctx context.Context, key, ref string) bool {
	if _, err := in.kv.RemoveItem(store.CollectionImages, key); err != nil {
		in.log.Warn("Could not remove stored image", "key", key, "err", err)
		return false
	}
	in.release(ctx, ref)
	return true
}

func (in *Ingester) release(ctx context.Context, ref string) {
	if in.blobs == nil || !in.blobs.Owns(ref) {
		return
	}
	if err := in.blobs.Release(ctx, ref); err != nil {
		in.log.Warn("Could not release image blob", "ref", ref, "err", err)
	}
}

// Cleanup forgets ref: it removes every side-table entry holding it and
// releases the blob behind it. It returns the number of entries removed.
func (in *Ingester) Cleanup(ctx context.Context, ref string) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	tr, err := in.stored()
	if err != nil {
		return 0, errors.Wrap(err, "could not list stored images")
	}
	removed := 0
	var scanErr error
	tr.Scan(func(e entry) bool {
		v, ok, err := in.kv.GetItem(store.CollectionImages, e.key)
		if err != nil {
			scanErr = err
			return false
		}
		if ok && v == ref {
			if _, err := in.kv.RemoveItem(store.CollectionImages, e.key); err != nil {
				scanErr = err
				return false
			}
			removed++
		}
		return true
	})
	if scanErr != nil {
		return removed, errors.Wrap(scanErr, "could not clean up image")
	}
	in.release(ctx, ref)
	return removed, nil
}

// Sweep removes every stored image whose reference is not in keep.
func (in *Ingester) Sweep(ctx context.Context, keep []string) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	tr, err := in.stored()
	if err != nil {
		return 0, errors.Wrap(err, "could not list stored images")
	}
	live := make(map[string]bool, len(keep))
	for _, ref := range keep {
		live[ref] = true
	}
	removed := 0
	tr.Scan(func(e entry) bool {
		ref, ok, err := in.kv.GetItem(store.CollectionImages, e.key)
		if err != nil || !ok || live[ref] {
			return true
		}
		if in.remove(ctx, e.key, ref) {
			removed++
		}
		return true
	})
	return removed, nil
}

// Stored returns the number of side-table entries.
func (in *Ingester) Stored() (int, error) {
	tr, err := in.stored()
	if err != nil {
		return 0, err
	}
	return tr.Len(), nil
}

// OpenBlob returns a payload served by this process.
func (in *Ingester) OpenBlob(ctx context.Context, ref string) ([]byte, string, error) {
	o, ok := in.blobs.(Opener)
	if !ok {
		return nil, "", ErrNotFound
	}
	return o.Open(ctx, ref)
}
