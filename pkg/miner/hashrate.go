package miner

import (
	"fmt"
	"math"
	"strings"
)

// HashRateUnit is a decimal multiple of hashes per second.
type HashRateUnit string

const (
	UnitHash     HashRateUnit = "H/s"
	UnitKiloHash HashRateUnit = "KH/s"
	UnitMegaHash HashRateUnit = "MH/s"
	UnitGigaHash HashRateUnit = "GH/s"
	UnitTeraHash HashRateUnit = "TH/s"
	UnitPetaHash HashRateUnit = "PH/s"
	UnitExaHash  HashRateUnit = "EH/s"
)

// DefaultHRUnit is the unit MinerData hash rates are reported in.
const DefaultHRUnit = UnitTeraHash

var unitExponent = map[HashRateUnit]int{
	UnitHash: 0, UnitKiloHash: 3, UnitMegaHash: 6, UnitGigaHash: 9,
	UnitTeraHash: 12, UnitPetaHash: 15, UnitExaHash: 18,
}

// ParseHashRateUnit accepts "TH/s", "th", "GH" and similar spellings.
func ParseHashRateUnit(s string) (HashRateUnit, bool) {
	key := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "/S")
	for u := range unitExponent {
		if strings.TrimSuffix(strings.ToUpper(string(u)), "/S") == key {
			return u, true
		}
	}
	return "", false
}

// HashRate is a measured or nominal hashing speed.
type HashRate struct {
	Value float64       `json:"value"`
	Unit  HashRateUnit  `json:"unit"`
	Algo  HashAlgorithm `json:"algo"`
}

// NewHashRate builds a SHA256 hash rate in the given unit.
func NewHashRate(value float64, unit HashRateUnit) HashRate {
	return HashRate{Value: value, Unit: unit, Algo: AlgoSHA256}
}

// As converts the hash rate to another unit.
func (h HashRate) As(unit HashRateUnit) HashRate {
	from, ok := unitExponent[h.Unit]
	if !ok {
		from = unitExponent[DefaultHRUnit]
	}
	to, ok := unitExponent[unit]
	if !ok {
		return h
	}
	v := h.Value
	if from >= to {
		v *= math.Pow10(from - to)
	} else {
		v /= math.Pow10(to - from)
	}
	return HashRate{Value: v, Unit: unit, Algo: h.Algo}
}

func (h HashRate) String() string {
	return fmt.Sprintf("%.2f %s", h.Value, h.Unit)
}

// SumHashRates adds rates in the unit of the first one. Nil entries are skipped.
func SumHashRates(rates ...*HashRate) *HashRate {
	var total *HashRate
	for _, r := range rates {
		if r == nil {
			continue
		}
		if total == nil {
			t := *r
			total = &t
			continue
		}
		total.Value += r.As(total.Unit).Value
	}
	return total
}
