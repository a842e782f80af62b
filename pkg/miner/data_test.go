package miner

import (
	"math"
	"testing"
)

func TestCommandIsComparable(t *testing.T) {
	seen := map[Command]int{}
	seen[RPC("stats", nil)]++
	seen[RPC("stats", nil)]++
	seen[RPC("get.miner.status", "summary")]++
	seen[RPC("get.miner.status", "pools")]++
	seen[Web("summary", "", nil)]++
	seen[Web("summary", "GET", nil)]++
	seen[Web("unlock", "POST", map[string]string{"pw": "admin"})]++

	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct commands, got %d: %v", len(seen), seen)
	}
	if seen[RPC("stats", nil)] != 2 {
		t.Errorf("stats counted %d times", seen[RPC("stats", nil)])
	}
	if seen[Web("summary", "GET", nil)] != 2 {
		t.Errorf("web summary counted %d times", seen[Web("summary", "GET", nil)])
	}
}

func TestCommandCanonicalParams(t *testing.T) {
	a := Web("x", "POST", map[string]any{"b": 1, "a": "z"})
	b := Web("x", "POST", map[string]any{"a": "z", "b": 1})
	if a != b {
		t.Fatalf("map parameter order changed identity: %q vs %q", a.Parameters, b.Parameters)
	}
	if got := RPC("ascset", "0,led,1-1").ParamString(); got != "0,led,1-1" {
		t.Errorf("ParamString = %q", got)
	}
	if got := RPC("version", nil).ParamString(); got != "" {
		t.Errorf("ParamString of no parameter = %q", got)
	}
}

func TestHashRateAs(t *testing.T) {
	h := NewHashRate(95000, UnitGigaHash).As(UnitTeraHash)
	if h.Unit != UnitTeraHash || math.Abs(h.Value-95) > 1e-9 {
		t.Fatalf("got %v", h)
	}
	m := NewHashRate(1.5, UnitTeraHash).As(UnitMegaHash)
	if math.Abs(m.Value-1.5e6) > 1e-6 {
		t.Fatalf("got %v", m)
	}
	if u, ok := ParseHashRateUnit("gh"); !ok || u != UnitGigaHash {
		t.Errorf("ParseHashRateUnit(gh) = %q %v", u, ok)
	}
}

func TestFinalize(t *testing.T) {
	info := NewDeviceInfo(MakeAntMiner, Model{MakeAntMiner, "S19 Pro"}, FirmwareStock, AlgoSHA256)
	d := NewMinerData("10.0.0.2", info)
	r1 := NewHashRate(30, UnitTeraHash)
	r2 := NewHashRate(40000, UnitGigaHash)
	d.Hashboards = []BoardData{
		{Position: 0, Hashrate: &r1, WorkingChips: Ptr(114), BoardTemperature: Ptr(60.0)},
		{Position: 1, Hashrate: &r2, WorkingChips: Ptr(110), BoardTemperature: Ptr(0.0)},
	}
	d.Wattage = Ptr(3500.0)
	d.Finalize()

	if d.ExpectedHashboards == nil || *d.ExpectedHashboards != 3 {
		t.Errorf("ExpectedHashboards = %v", d.ExpectedHashboards)
	}
	if d.ExpectedChips == nil || *d.ExpectedChips != 342 {
		t.Errorf("ExpectedChips = %v", d.ExpectedChips)
	}
	if d.TotalChips == nil || *d.TotalChips != 224 {
		t.Errorf("TotalChips = %v", d.TotalChips)
	}
	if d.AverageTemperature == nil || *d.AverageTemperature != 60 {
		t.Errorf("AverageTemperature = %v", d.AverageTemperature)
	}
	if d.Hashrate == nil || math.Abs(d.Hashrate.As(UnitTeraHash).Value-70) > 1e-9 {
		t.Errorf("Hashrate = %v", d.Hashrate)
	}
	if d.Efficiency == nil || math.Abs(*d.Efficiency-50) > 1e-9 {
		t.Errorf("Efficiency = %v", d.Efficiency)
	}
}

func TestFormatMAC(t *testing.T) {
	cases := map[string]string{
		"aabbccddeeff":      "AA:BB:CC:DD:EE:FF",
		"aa:bb:cc:dd:ee:ff": "AA:BB:CC:DD:EE:FF",
		"AA-BB-CC-DD-EE-FF": "AA:BB:CC:DD:EE:FF",
		"":                  "",
	}
	for in, want := range cases {
		if got := FormatMAC(in); got != want {
			t.Errorf("FormatMAC(%q) = %q, want %q", in, got, want)
		}
	}
}
