package content

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	// ErrNoOverride means the record has no stored override.
	ErrNoOverride = errors.New("no override stored")
	// ErrMalformed means the stored override is not a JSON object.
	ErrMalformed = errors.New("override is not a JSON object")
)

// ParseError reports a stored override that could not be decoded.
type ParseError struct {
	Kind Kind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decode %s override: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func decodeRecord(kind Kind, raw string) (Record, error) {
	switch kind {
	case KindMenu:
		return decode[Menu](kind, raw)
	case KindContact:
		return decode[Contact](kind, raw)
	case KindHours:
		return decode[Hours](kind, raw)
	case KindHero:
		return decode[Hero](kind, raw)
	case KindAbout:
		return decode[About](kind, raw)
	case KindGallery:
		return decode[Gallery](kind, raw)
	}
	return nil, errors.Errorf("unknown content kind %q", kind)
}

func decode[T Record](kind Kind, raw string) (T, error) {
	var v T
	// null, arrays and scalars decode into a zero record without error, which
	// would render an empty section; only objects count as overrides.
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return v, &ParseError{Kind: kind, Err: ErrMalformed}
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, &ParseError{Kind: kind, Err: err}
	}
	return v, nil
}

func encodeRecord(r Record) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", errors.Wrapf(err, "could not encode %s", r.Kind())
	}
	return string(b), nil
}

// Decode parses raw as a record of kind. Only JSON objects are accepted; the
// fields themselves are not validated.
func Decode(kind Kind, raw []byte) (Record, error) {
	return decodeRecord(kind, string(raw))
}

// Encode returns the stored form of r.
func Encode(r Record) ([]byte, error) {
	raw, err := encodeRecord(r)
	return []byte(raw), err
}
