package content

import (
	"embed"
	"sync"

	"github.com/jinzhu/copier"
)

//go:embed defaults/*.json
var defaultsFS embed.FS

var (
	defaultsOnce sync.Once
	defaults     map[Kind]Record
)

// loadDefaults decodes the compiled-in records once. A bad default is a
// build defect, so it panics rather than returning an error.
func loadDefaults() map[Kind]Record {
	defaultsOnce.Do(func() {
		defaults = make(map[Kind]Record, len(Kinds))
		for _, kind := range Kinds {
			raw, err := defaultsFS.ReadFile("defaults/" + string(kind) + ".json")
			if err != nil {
				panic("content: missing default for " + string(kind) + ": " + err.Error())
			}
			rec, err := decodeRecord(kind, string(raw))
			if err != nil {
				panic("content: invalid default for " + string(kind) + ": " + err.Error())
			}
			defaults[kind] = rec
		}
	})
	return defaults
}

// Default returns a private copy of the compiled-in value for kind.
func Default(kind Kind) Record {
	switch kind {
	case KindMenu:
		return defaultOf[Menu](kind)
	case KindContact:
		return defaultOf[Contact](kind)
	case KindHours:
		return defaultOf[Hours](kind)
	case KindHero:
		return defaultOf[Hero](kind)
	case KindAbout:
		return defaultOf[About](kind)
	case KindGallery:
		return defaultOf[Gallery](kind)
	}
	return nil
}

func defaultOf[T Record](kind Kind) T {
	src := loadDefaults()[kind].(T)
	var dst T
	if err := copier.CopyWithOption(&dst, &src, copier.Option{DeepCopy: true}); err != nil {
		panic("content: could not copy default " + string(kind) + ": " + err.Error())
	}
	return dst
}
