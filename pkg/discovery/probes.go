package discovery

import (
	"slices"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// Probe is one discovery request. It is comparable so probe sets dedupe
// through a map.
type Probe struct {
	// RPC is the cgminer command name; empty for web probes.
	RPC string
	// Path is fetched over HTTP when RPC is empty.
	Path  string
	HTTPS bool
}

func rpcProbe(cmd string) Probe  { return Probe{RPC: cmd} }
func webProbe(path string) Probe { return Probe{Path: path} }

func (p Probe) String() string {
	switch {
	case p.RPC != "":
		return "rpc " + p.RPC
	case p.HTTPS:
		return "https " + p.Path
	default:
		return "http " + p.Path
	}
}

var (
	probeVersion    = rpcProbe("version")
	probeStats      = rpcProbe("stats")
	probeGetVersion = rpcProbe("get_version")
	probeDevDetails = rpcProbe("devdetails")
	probeRoot       = webProbe("/")
	probeRootTLS    = Probe{Path: "/", HTTPS: true}
)

var makeProbes = map[miner.Make][]Probe{
	miner.MakeAntMiner:    {probeVersion, probeStats, probeRoot},
	miner.MakeWhatsMiner:  {probeGetVersion, probeDevDetails, probeRoot, probeRootTLS},
	miner.MakeAvalonMiner: {probeVersion, probeStats, probeRoot},
	miner.MakeEPic:        {probeRoot},
	miner.MakeBraiins:     {probeVersion, probeRoot},
	miner.MakeBitAxe:      {probeRoot},
}

var firmwareProbes = map[miner.Firmware][]Probe{
	miner.FirmwareStock:     nil,
	miner.FirmwareBraiinsOS: {probeVersion, probeDevDetails, probeRoot},
	miner.FirmwareVNish:     {probeStats, probeRoot},
	miner.FirmwareEPic:      {probeRoot},
	miner.FirmwareHiveOS:    {probeVersion},
	miner.FirmwareLuxOS:     {probeVersion},
	miner.FirmwareMarathon:  {probeVersion},
	miner.FirmwareMSKMiner:  {probeRoot},
}

// ProbeSet returns the deduplicated union of the discovery probes of the
// given makes and firmwares, RPC probes first.
func ProbeSet(makes []miner.Make, firmwares []miner.Firmware) []Probe {
	seen := make(map[Probe]bool)
	var out []Probe
	add := func(ps []Probe) {
		for _, p := range ps {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	for _, m := range makes {
		add(makeProbes[m])
	}
	for _, f := range firmwares {
		add(firmwareProbes[f])
	}

	slices.SortStableFunc(out, func(a, b Probe) int {
		switch {
		case a.RPC != "" && b.RPC == "":
			return -1
		case a.RPC == "" && b.RPC != "":
			return 1
		default:
			return 0
		}
	})
	return out
}
