package collector

import (
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// FieldMap holds the raw values collected for each field. It lives for one
// collection pass.
type FieldMap map[miner.DataField]any

// Value returns the raw value of f.
func (m FieldMap) Value(f miner.DataField) (any, bool) {
	v, ok := m[f]
	return v, ok && v != nil
}

// String returns f as a string.
func (m FieldMap) String(f miner.DataField) (string, bool) {
	return extract.String(m[f])
}

// StringPtr returns f as a string pointer, nil when absent or empty.
func (m FieldMap) StringPtr(f miner.DataField) *string {
	s, ok := m.String(f)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Float returns f as a float.
func (m FieldMap) Float(f miner.DataField) (float64, bool) {
	return extract.Float(m[f])
}

// FloatPtr returns f as a float pointer, nil when absent.
func (m FieldMap) FloatPtr(f miner.DataField) *float64 {
	v, ok := m.Float(f)
	if !ok {
		return nil
	}
	return &v
}

// Int returns f as an int.
func (m FieldMap) Int(f miner.DataField) (int, bool) {
	return extract.Int(m[f])
}

// Uint returns f as an unsigned integer.
func (m FieldMap) Uint(f miner.DataField) (uint64, bool) {
	return extract.Uint(m[f])
}

// UintPtr returns f as an unsigned integer pointer, nil when absent.
func (m FieldMap) UintPtr(f miner.DataField) *uint64 {
	v, ok := m.Uint(f)
	if !ok {
		return nil
	}
	return &v
}

// Bool returns f as a bool.
func (m FieldMap) Bool(f miner.DataField) (bool, bool) {
	return extract.Bool(m[f])
}

// Object returns f as a JSON object, as produced by multi-location fields.
func (m FieldMap) Object(f miner.DataField) (map[string]any, bool) {
	return extract.Object(m[f])
}

// Array returns f as a JSON array.
func (m FieldMap) Array(f miner.DataField) ([]any, bool) {
	return extract.Array(m[f])
}

// Nested returns key from the object stored for f.
func (m FieldMap) Nested(f miner.DataField, key string) (any, bool) {
	obj, ok := m.Object(f)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok && v != nil
}
