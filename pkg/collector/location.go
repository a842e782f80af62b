// Package collector gathers telemetry from a miner by resolving declarative
// data locations into a minimal set of requests.
package collector

import (
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// Strategy selects how an Extractor reads its path.
type Strategy uint8

const (
	// StrategyPointer treats Path as a JSON pointer.
	StrategyPointer Strategy = iota
	// StrategyKey treats Path as a single top-level object key.
	StrategyKey
)

// Extractor pulls one value out of a command response.
type Extractor struct {
	Strategy Strategy
	Path     string
	// Tag names the value when several locations feed one field.
	Tag string
}

// Pointer returns a pointer extractor. "" selects the whole document.
func Pointer(path string) Extractor {
	return Extractor{Strategy: StrategyPointer, Path: path}
}

// Tagged returns a pointer extractor whose result is stored under tag.
func Tagged(path, tag string) Extractor {
	return Extractor{Strategy: StrategyPointer, Path: path, Tag: tag}
}

// Key returns a flat key extractor.
func Key(key string) Extractor {
	return Extractor{Strategy: StrategyKey, Path: key}
}

// Apply runs the extractor against doc.
func (e Extractor) Apply(doc any) (any, bool) {
	if e.Strategy == StrategyKey {
		return extract.Key(doc, e.Path)
	}
	return extract.Pointer(doc, e.Path)
}

// name is the key the extracted value is stored under in a merged result.
func (e Extractor) name() string {
	if e.Tag != "" {
		return e.Tag
	}
	if e.Strategy == StrategyKey {
		return e.Path
	}
	return extract.LastSegment(e.Path)
}

// Location says where one piece of a field lives.
type Location struct {
	Command   miner.Command
	Extractor Extractor
}

// At pairs a command with an extractor.
func At(cmd miner.Command, e Extractor) Location {
	return Location{Command: cmd, Extractor: e}
}

// Locator maps each field to the locations that hold it. An empty result
// means the field is unsupported. Implementations must be pure.
type Locator interface {
	Locations(field miner.DataField) []Location
}

// LocationMap is a static Locator.
type LocationMap map[miner.DataField][]Location

// Locations implements Locator. Unmapped fields yield an empty slice.
func (m LocationMap) Locations(field miner.DataField) []Location {
	if locs, ok := m[field]; ok {
		return locs
	}
	return []Location{}
}

// Commands returns the distinct commands needed for fields, in first-seen
// order.
func Commands(l Locator, fields ...miner.DataField) []miner.Command {
	seen := make(map[miner.Command]struct{})
	var cmds []miner.Command
	for _, f := range fields {
		for _, loc := range l.Locations(f) {
			if _, ok := seen[loc.Command]; ok {
				continue
			}
			seen[loc.Command] = struct{}{}
			cmds = append(cmds, loc.Command)
		}
	}
	return cmds
}
