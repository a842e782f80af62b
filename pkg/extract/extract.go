// Package extract pulls values out of decoded JSON documents.
//
// Every function here is total: missing keys, wrong types and malformed
// documents produce a "not found" result, never a panic.
package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonpointer"
)

// Pointer resolves an RFC 6901 JSON pointer against doc. The empty path
// returns the whole document, including a null one.
func Pointer(doc any, path string) (v any, ok bool) {
	if path == "" {
		return doc, true
	}
	if doc == nil || !strings.HasPrefix(path, "/") {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			v, ok = nil, false
		}
	}()

	p, err := gojsonpointer.NewJsonPointer(path)
	if err != nil {
		return nil, false
	}
	v, _, err = p.Get(doc)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Key looks up a single top-level key of an object. The empty key returns
// the whole document.
func Key(doc any, key string) (any, bool) {
	if key == "" {
		return doc, doc != nil
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Decode parses JSON bytes into the generic document shape the extractors
// work on.
func Decode(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// String coerces v to a string. Numbers and booleans are formatted.
func String(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Float coerces v to a float. Numeric strings such as "3250" or " 12.5 "
// are accepted; a trailing unit ("3250 W") is ignored.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if i := strings.IndexByte(s, ' '); i > 0 {
			s = s[:i]
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Int coerces v to an int, truncating floats.
func Int(v any) (int, bool) {
	f, ok := Float(v)
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int(f), true
}

// Uint coerces v to a non-negative integer.
func Uint(v any) (uint64, bool) {
	f, ok := Float(v)
	if !ok || f < 0 || math.IsInf(f, 0) {
		return 0, false
	}
	return uint64(f), true
}

// Bool coerces v to a bool. Strings "true"/"false" and numbers are accepted.
func Bool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

// Object returns v as a JSON object.
func Object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// Array returns v as a JSON array.
func Array(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// LastSegment returns the final component of a pointer path, unescaped.
func LastSegment(path string) string {
	i := strings.LastIndexByte(path, '/')
	seg := path[i+1:]
	seg = strings.ReplaceAll(seg, "~1", "/")
	return strings.ReplaceAll(seg, "~0", "~")
}
