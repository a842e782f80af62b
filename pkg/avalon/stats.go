package avalon

import (
	"regexp"
	"strconv"
	"strings"
)

var statPattern = regexp.MustCompile(`(\w+)\[([^\]]+)\]`)

// Stats is the decoded form of Avalon's bracketed stat strings,
// "Key[value] Key2[v1 v2 v3]". Values containing spaces are split.
type Stats map[string][]string

// ParseStats decodes an Avalon stat string. Unrecognized text is skipped.
func ParseStats(s string) Stats {
	out := make(Stats)
	for _, m := range statPattern.FindAllStringSubmatch(s, -1) {
		key, raw := m[1], m[2]
		if strings.Contains(raw, " ") {
			out[key] = strings.Fields(raw)
		} else {
			out[key] = []string{raw}
		}
	}
	return out
}

// First returns the first value of key.
func (s Stats) First(key string) (string, bool) {
	v := s[key]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// Float returns the first value of key as a float.
func (s Stats) Float(key string) (float64, bool) {
	v, ok := s.First(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	return f, err == nil
}

// FloatAt returns the i-th value of key as a float.
func (s Stats) FloatAt(key string, i int) (float64, bool) {
	v := s[key]
	if i < 0 || i >= len(v) {
		return 0, false
	}
	f, err := strconv.ParseFloat(v[i], 64)
	return f, err == nil
}

// Fans returns fan speeds keyed by zero-based position. "FanN" is position
// N-1; a bare "Fan" key is position 0.
func (s Stats) Fans() map[int]float64 {
	fans := make(map[int]float64)
	for key := range s {
		if !strings.HasPrefix(key, "Fan") {
			continue
		}
		suffix := strings.TrimPrefix(key, "Fan")
		pos := 0
		if suffix != "" {
			n, err := strconv.Atoi(suffix)
			if err != nil || n < 1 {
				continue
			}
			pos = n - 1
		}
		if rpm, ok := s.Float(key); ok {
			fans[pos] = rpm
		}
	}
	return fans
}
