// Package schema validates submitted forms against a JSON Schema subset.
package schema

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// FieldError reports the first constraint a document violates.
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Message }

func fieldErr(path, format string, args ...any) error {
	return &FieldError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// Validate checks doc against a draft-07 subset and returns the first
// *FieldError found. A nil schema accepts anything.
//
// Keywords: type, enum, properties, required, additionalProperties, items,
// minItems, maxItems, minLength, maxLength (in characters), pattern,
// format (email, date), minimum, maximum, exclusiveMinimum and
// exclusiveMaximum. Properties are checked in name order so the reported
// field is stable.
func Validate(schema map[string]any, doc map[string]any) error {
	if schema == nil {
		return nil
	}
	return check(schema, doc, "$")
}

func check(s map[string]any, v any, path string) error {
	if want, ok := s["type"].(string); ok && !hasType(want, v) {
		return fieldErr(path, "must be %s, got %s", want, kindOf(v))
	}
	if allowed, ok := s["enum"].([]any); ok && !oneOf(allowed, v) {
		return fieldErr(path, "must be one of %v", allowed)
	}
	switch v := v.(type) {
	case map[string]any:
		return checkObject(s, v, path)
	case []any:
		return checkArray(s, v, path)
	case string:
		return checkString(s, v, path)
	case float64:
		return checkNumber(s, v, path)
	case json.Number:
		f, _ := v.Float64()
		return checkNumber(s, f, path)
	}
	return nil
}

// hasType treats whole floats as integers and integers as numbers.
func hasType(want string, v any) bool {
	got := kindOf(v)
	switch want {
	case "integer":
		if f, ok := v.(float64); ok {
			return f == float64(int64(f))
		}
		return got == "integer"
	case "number":
		return got == "number" || got == "integer"
	}
	return got == want
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case int, int64:
		return "integer"
	}
	return reflect.TypeOf(v).String()
}

func oneOf(allowed []any, v any) bool {
	for _, a := range allowed {
		if reflect.DeepEqual(a, v) {
			return true
		}
	}
	return false
}

func checkObject(s map[string]any, obj map[string]any, path string) error {
	required, _ := s["required"].([]any)
	for _, r := range required {
		if name, ok := r.(string); ok {
			if _, present := obj[name]; !present {
				return fieldErr(path, "%s is required", name)
			}
		}
	}

	props, _ := s["properties"].(map[string]any)
	for _, name := range sortedKeys(props) {
		val, present := obj[name]
		sub, ok := props[name].(map[string]any)
		if !present || !ok {
			continue
		}
		if err := check(sub, val, path+"."+name); err != nil {
			return err
		}
	}

	if closed, ok := s["additionalProperties"].(bool); ok && !closed {
		var unknown []string
		for _, name := range sortedKeys(obj) {
			if _, known := props[name]; !known {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			return fieldErr(path, "unknown fields: %s", strings.Join(unknown, ", "))
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func checkArray(s map[string]any, arr []any, path string) error {
	n := float64(len(arr))
	if lo, ok := number(s["minItems"]); ok && n < lo {
		return fieldErr(path, "needs at least %v items, has %d", lo, len(arr))
	}
	if hi, ok := number(s["maxItems"]); ok && n > hi {
		return fieldErr(path, "allows at most %v items, has %d", hi, len(arr))
	}
	items, ok := s["items"].(map[string]any)
	if !ok {
		return nil
	}
	for i, elem := range arr {
		if err := check(items, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func checkString(s map[string]any, str string, path string) error {
	n := float64(utf8.RuneCountInString(str))
	if lo, ok := number(s["minLength"]); ok && n < lo {
		return fieldErr(path, "must be at least %v characters", lo)
	}
	if hi, ok := number(s["maxLength"]); ok && n > hi {
		return fieldErr(path, "must be at most %v characters", hi)
	}
	if p, ok := s["pattern"].(string); ok {
		re, err := compilePattern(p)
		if err != nil {
			return fieldErr(path, "invalid pattern %q: %v", p, err)
		}
		if !re.MatchString(str) {
			return fieldErr(path, "%q does not match %q", str, p)
		}
	}
	if f, ok := s["format"].(string); ok {
		if err := checkFormat(f, str); err != nil {
			return fieldErr(path, "%q is not a valid %s", str, f)
		}
	}
	return nil
}

var patterns sync.Map // string -> *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patterns.Store(p, re)
	return re, nil
}

// checkFormat understands "email" and "date"; other formats are annotations.
func checkFormat(format, s string) error {
	switch format {
	case "email":
		addr, err := mail.ParseAddress(s)
		if err != nil {
			return err
		}
		if addr.Address != s || !strings.Contains(addr.Address[strings.LastIndexByte(addr.Address, '@')+1:], ".") {
			return fmt.Errorf("not a bare address")
		}
	case "date":
		_, err := time.Parse(time.DateOnly, s)
		return err
	}
	return nil
}

func checkNumber(s map[string]any, n float64, path string) error {
	bounds := []struct {
		keyword string
		fails   func(n, bound float64) bool
		message string
	}{
		{"minimum", func(n, b float64) bool { return n < b }, "must be at least %v"},
		{"maximum", func(n, b float64) bool { return n > b }, "must be at most %v"},
		{"exclusiveMinimum", func(n, b float64) bool { return n <= b }, "must be greater than %v"},
		{"exclusiveMaximum", func(n, b float64) bool { return n >= b }, "must be less than %v"},
	}
	for _, b := range bounds {
		if bound, ok := number(s[b.keyword]); ok && b.fails(n, bound) {
			return fieldErr(path, b.message, bound)
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
