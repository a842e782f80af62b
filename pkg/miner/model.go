package miner

import "strings"

// Model identifies a miner model within a make. An empty Name means the
// make is known but the model string was not recognized.
type Model struct {
	Make Make   `json:"make"`
	Name string `json:"name,omitempty"`
}

// Known reports whether the model name was recognized.
func (m Model) Known() bool { return m.Name != "" }

func (m Model) String() string {
	if m.Name == "" {
		return string(m.Make) + " (unknown model)"
	}
	return string(m.Make) + " " + m.Name
}

// Hardware describes the physical layout of a model. Nil fields are unknown.
type Hardware struct {
	Chips  *int `json:"chips,omitempty"`
	Fans   *int `json:"fans,omitempty"`
	Boards *int `json:"boards,omitempty"`
}

type modelSpec struct {
	make     Make
	name     string
	aliases  []string
	hardware Hardware
}

// hw builds a Hardware value; negative counts are left unknown.
func hw(chips, fans, boards int) Hardware {
	opt := func(n int) *int {
		if n < 0 {
			return nil
		}
		return &n
	}
	return Hardware{Chips: opt(chips), Fans: opt(fans), Boards: opt(boards)}
}

var catalog = []modelSpec{
	{MakeAntMiner, "S9", nil, hw(63, 2, 3)},
	{MakeAntMiner, "S9i", nil, hw(63, 2, 3)},
	{MakeAntMiner, "S9j", nil, hw(63, 2, 3)},
	{MakeAntMiner, "T9", nil, hw(54, 2, 3)},
	{MakeAntMiner, "S17", nil, hw(48, 4, 3)},
	{MakeAntMiner, "S17 Pro", nil, hw(48, 4, 3)},
	{MakeAntMiner, "S17+", nil, hw(65, 4, 3)},
	{MakeAntMiner, "T17", nil, hw(30, 4, 3)},
	{MakeAntMiner, "S19", nil, hw(76, 4, 3)},
	{MakeAntMiner, "S19 Pro", nil, hw(114, 4, 3)},
	{MakeAntMiner, "S19i", nil, hw(80, 4, 3)},
	{MakeAntMiner, "S19j", nil, hw(114, 4, 3)},
	{MakeAntMiner, "S19j Pro", nil, hw(126, 4, 3)},
	{MakeAntMiner, "S19j Pro+", nil, hw(120, 4, 3)},
	{MakeAntMiner, "S19k Pro", nil, hw(77, 4, 3)},
	{MakeAntMiner, "S19a", nil, hw(72, 4, 3)},
	{MakeAntMiner, "S19a Pro", nil, hw(100, 4, 3)},
	{MakeAntMiner, "S19 XP", []string{"S19XP"}, hw(110, 4, 3)},
	{MakeAntMiner, "S19 Hydro", nil, hw(104, 0, 4)},
	{MakeAntMiner, "T19", nil, hw(76, 4, 3)},
	{MakeAntMiner, "S21", nil, hw(108, 4, 3)},
	{MakeAntMiner, "S21 Pro", nil, hw(65, 4, 3)},
	{MakeAntMiner, "S21 XP", nil, hw(91, 4, 3)},
	{MakeAntMiner, "S21 Hydro", nil, hw(216, 0, 3)},
	{MakeAntMiner, "T21", nil, hw(108, 4, 3)},
	{MakeAntMiner, "L7", nil, hw(120, 4, 4)},
	{MakeAntMiner, "L9", nil, hw(-1, 4, 3)},
	{MakeAntMiner, "KS5", nil, hw(-1, 4, 3)},

	{MakeWhatsMiner, "M20S", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M30S", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M30S+", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M30S++", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M31S", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M31S+", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M50", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M50S", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M50S+", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M53", nil, hw(-1, 0, 4)},
	{MakeWhatsMiner, "M56S", nil, hw(-1, 0, 3)},
	{MakeWhatsMiner, "M60", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M60S", nil, hw(-1, 2, 3)},
	{MakeWhatsMiner, "M63S", nil, hw(-1, 0, 4)},
	{MakeWhatsMiner, "M66S", nil, hw(-1, 0, 3)},

	{MakeAvalonMiner, "Avalon 721", nil, hw(-1, 1, 4)},
	{MakeAvalonMiner, "Avalon 741", nil, hw(-1, 1, 4)},
	{MakeAvalonMiner, "Avalon 761", nil, hw(-1, 1, 4)},
	{MakeAvalonMiner, "Avalon 821", nil, hw(-1, 1, 4)},
	{MakeAvalonMiner, "Avalon 841", nil, hw(-1, 1, 4)},
	{MakeAvalonMiner, "Avalon 851", nil, hw(-1, 1, 4)},
	{MakeAvalonMiner, "Avalon 921", nil, hw(-1, 1, 4)},
	{MakeAvalonMiner, "Avalon 1026", nil, hw(-1, 2, 3)},
	{MakeAvalonMiner, "Avalon 1047", nil, hw(-1, 2, 3)},
	{MakeAvalonMiner, "Avalon 1066", nil, hw(-1, 2, 3)},
	{MakeAvalonMiner, "Avalon 1126 Pro", nil, hw(-1, 2, 3)},
	{MakeAvalonMiner, "Avalon 1166 Pro", nil, hw(-1, 2, 3)},
	{MakeAvalonMiner, "Avalon 1246", nil, hw(-1, 2, 3)},
	{MakeAvalonMiner, "Avalon 1566", nil, hw(-1, 2, 3)},
	{MakeAvalonMiner, "Avalon Nano 3", nil, hw(10, 1, 1)},
	{MakeAvalonMiner, "Avalon Nano 3s", nil, hw(6, 1, 1)},

	{MakeBraiins, "BMM 100", nil, hw(-1, 1, 1)},
	{MakeBraiins, "BMM 101", nil, hw(-1, 1, 1)},

	{MakeBitAxe, "Max", []string{"BM1397"}, hw(1, 1, 1)},
	{MakeBitAxe, "Ultra", []string{"BM1366"}, hw(1, 1, 1)},
	{MakeBitAxe, "Supra", []string{"BM1368"}, hw(1, 1, 1)},
	{MakeBitAxe, "Gamma", []string{"BM1370"}, hw(1, 1, 1)},

	{MakeEPic, "BlockMiner 520i", nil, hw(-1, 2, 3)},
	{MakeEPic, "BlockMiner 720i", nil, hw(-1, 2, 3)},
	{MakeEPic, "BlockMiner eLITE 1.0", nil, hw(-1, 2, 3)},
}

// normalizeModel folds case, drops separators and vendor prefixes so that
// "Antminer S19 Pro", "ANTMINER S19PRO" and "s19 pro" compare equal.
func normalizeModel(make Make, s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if make == MakeAvalonMiner {
		// PROD carries a hardware revision: "AVALON1066-22".
		s, _, _ = strings.Cut(s, "-")
	}
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	switch make {
	case MakeAntMiner:
		s = strings.TrimPrefix(s, "BITMAIN")
		s = strings.TrimPrefix(s, "ANTMINER")
	case MakeWhatsMiner:
		s = trimWhatsMinerVariant(strings.TrimPrefix(s, "WHATSMINER"))
	case MakeAvalonMiner:
		s = normalizeAvalon(s)
	case MakeBitAxe:
		s = strings.TrimPrefix(s, "BITAXE")
	case MakeEPic:
		s = strings.TrimPrefix(s, "EPIC")
	}
	return s
}

// normalizeAvalon maps "AVALONMINER 1246", "1246" and "AVALON1246" to one
// key. Nano units report only a short sub-model ("AVALONMINER 3S" or "3S"),
// which becomes "AVALONNANO3S"; full-size models have three or more digits.
func normalizeAvalon(s string) string {
	if s == "" {
		return ""
	}
	rest := strings.TrimPrefix(s, "AVALONMINER")
	if rest == s {
		rest = strings.TrimPrefix(s, "AVALON")
	}
	digits := len(rest) - len(strings.TrimLeft(rest, "0123456789"))
	if digits > 0 && digits < 3 {
		rest = "NANO" + rest
	}
	return "AVALON" + rest
}

// trimWhatsMinerVariant drops the chip bin suffix ("M30S+V40" -> "M30S+",
// "M50VH20" -> "M50").
func trimWhatsMinerVariant(s string) string {
	i := strings.LastIndexByte(s, 'V')
	if i <= 0 {
		return s
	}
	rest := strings.TrimLeft(s[i+1:], "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	if rest == "" || strings.Trim(rest, "0123456789") != "" {
		return s
	}
	return s[:i]
}

// ParseModel matches s against the known models of a make. Unrecognized
// strings yield Model{Make: make} so callers keep the make.
func ParseModel(make Make, s string) Model {
	want := normalizeModel(make, s)
	if want == "" {
		return Model{Make: make}
	}
	for _, spec := range catalog {
		if spec.make != make {
			continue
		}
		if normalizeModel(make, spec.name) == want {
			return Model{Make: make, Name: spec.name}
		}
		for _, alias := range spec.aliases {
			if normalizeModel(make, alias) == want {
				return Model{Make: make, Name: spec.name}
			}
		}
	}
	return Model{Make: make}
}

// ParseModelForFirmware resolves a model string when only the firmware is
// known. Aftermarket firmwares run on other vendors' hardware, so each
// firmware lists the makes it is installed on.
func ParseModelForFirmware(fw Firmware, s string) Model {
	makes := firmwareMakes[fw]
	if len(makes) == 0 {
		return Model{}
	}
	for _, mk := range makes {
		if m := ParseModel(mk, s); m.Known() {
			return m
		}
	}
	return Model{Make: makes[0]}
}

var firmwareMakes = map[Firmware][]Make{
	FirmwareBraiinsOS: {MakeAntMiner, MakeBraiins},
	FirmwareLuxOS:     {MakeAntMiner},
	FirmwareVNish:     {MakeAntMiner},
	FirmwareEPic:      {MakeAntMiner, MakeEPic},
	FirmwareHiveOS:    {MakeAntMiner},
	FirmwareMarathon:  {MakeAntMiner},
	FirmwareMSKMiner:  {MakeAntMiner},
}

// HardwareFor returns the static hardware description of a model.
func HardwareFor(m Model) Hardware {
	for _, spec := range catalog {
		if spec.make == m.Make && spec.name == m.Name {
			return spec.hardware
		}
	}
	return Hardware{}
}

// Models lists the known model names of a make.
func Models(make Make) []string {
	var names []string
	for _, spec := range catalog {
		if spec.make == make {
			names = append(names, spec.name)
		}
	}
	return names
}
