// Package avalon reads Canaan AvalonMiner units over the cgminer API.
package avalon

import (
	"context"
	"sort"
	"strconv"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
)

var (
	cmdVersion = miner.RPC("version", nil)
	cmdStats   = miner.RPC("stats", nil)
	cmdDevs    = miner.RPC("devs", nil)
	cmdPools   = miner.RPC("pools", nil)
)

// Both stat strings are read; newer firmware moves the board summary into
// "MM ID0:Summary".
var mmStats = []collector.Location{
	collector.At(cmdStats, collector.Tagged("/STATS/0/MM ID0", "mm")),
	collector.At(cmdStats, collector.Tagged("/STATS/0/MM ID0:Summary", "summary")),
}

// Locations is where each field lives on an AvalonMiner.
var Locations = collector.LocationMap{
	miner.FieldMac:              {collector.At(cmdVersion, collector.Pointer("/VERSION/0/MAC"))},
	miner.FieldApiVersion:       {collector.At(cmdVersion, collector.Pointer("/VERSION/0/API"))},
	miner.FieldFirmwareVersion:  {collector.At(cmdVersion, collector.Pointer("/VERSION/0/CGMiner"))},
	miner.FieldHashrate:         {collector.At(cmdDevs, collector.Pointer("/DEVS/0/MHS 5m"))},
	miner.FieldExpectedHashrate: mmStats,
	miner.FieldHashboards:       {collector.At(cmdStats, collector.Pointer("/STATS"))},
	miner.FieldFluidTemperature: mmStats,
	miner.FieldWattageLimit:     mmStats,
	miner.FieldWattage:          mmStats,
	miner.FieldFans:             mmStats,
	miner.FieldLightFlashing:    mmStats,
	miner.FieldUptime:           {collector.At(cmdStats, collector.Pointer("/STATS/0/Elapsed"))},
	miner.FieldPools:            {collector.At(cmdPools, collector.Pointer("/POOLS"))},
}

// Miner is an AvalonMiner running stock Canaan firmware.
type Miner struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// New creates an Avalon backend. client is normally an rpc.Client for ip.
func New(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *Miner {
	return &Miner{
		ip:     ip,
		info:   miner.NewDeviceInfo(miner.MakeAvalonMiner, model, miner.FirmwareStock, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// Dial creates an Avalon backend speaking the cgminer API on ip.
func Dial(ip string, model miner.Model, rpcOpts []rpc.ClientOption, opts ...collector.Option) *Miner {
	return New(ip, model, rpc.NewClient(ip, rpcOpts...), opts...)
}

func (m *Miner) IP() string                   { return m.ip }
func (m *Miner) DeviceInfo() miner.DeviceInfo { return m.info }

// Locations implements collector.Locator.
func (m *Miner) Locations(f miner.DataField) []collector.Location {
	return Locations.Locations(f)
}

// GetData collects and normalizes the miner's telemetry.
func (m *Miner) GetData(ctx context.Context) *miner.MinerData {
	fields := collector.New(m.client, m, m.opts...).CollectAll(ctx)
	return m.Parse(fields)
}

// Parse builds MinerData from collected fields.
func (m *Miner) Parse(fields collector.FieldMap) *miner.MinerData {
	data := miner.NewMinerData(m.ip, m.info)

	if mac, ok := fields.String(miner.FieldMac); ok && mac != "" {
		data.MAC = miner.Ptr(miner.FormatMAC(mac))
	}
	data.ApiVersion = fields.StringPtr(miner.FieldApiVersion)
	data.FirmwareVersion = fields.StringPtr(miner.FieldFirmwareVersion)
	data.Uptime = fields.UintPtr(miner.FieldUptime)

	if mhs, ok := fields.Float(miner.FieldHashrate); ok {
		hr := miner.NewHashRate(mhs, miner.UnitMegaHash).As(miner.DefaultHRUnit)
		data.Hashrate = &hr
	}

	mm := statsOf(fields[miner.FieldFans])
	if ghs, ok := statsOf(fields[miner.FieldExpectedHashrate]).Float("GHSmm"); ok {
		hr := miner.NewHashRate(ghs, miner.UnitGigaHash).As(miner.DefaultHRUnit)
		data.ExpectedHashrate = &hr
	}
	if t, ok := statsOf(fields[miner.FieldFluidTemperature]).Float("Temp"); ok {
		data.FluidTemperature = &t
	}
	if w, ok := statsOf(fields[miner.FieldWattage]).Float("WALLPOWER"); ok {
		data.Wattage = &w
	}
	if w, ok := statsOf(fields[miner.FieldWattageLimit]).Float("MPO"); ok {
		data.WattageLimit = &w
	}
	if led, ok := statsOf(fields[miner.FieldLightFlashing]).First("Led"); ok {
		data.LightFlashing = miner.Ptr(led == "1")
	}
	data.Fans = fanData(mm, m.info.Hardware)

	data.Hashboards = parseHashboards(fields[miner.FieldHashboards], m.info.Hardware)
	data.Pools = rpc.ParsePools(fields[miner.FieldPools])
	if data.Pools == nil {
		data.Pools = []miner.PoolData{}
	}

	data.IsMining = data.Hashrate != nil && data.Hashrate.Value > 0
	data.Finalize()
	return data
}

// statsOf decodes a stat string, or the tagged strings of a multi-location
// field with later tags overriding earlier keys.
func statsOf(v any) Stats {
	switch t := v.(type) {
	case string:
		return ParseStats(t)
	case map[string]any:
		out := make(Stats)
		for _, tag := range []string{"mm", "summary"} {
			s, ok := t[tag].(string)
			if !ok {
				continue
			}
			for k, vals := range ParseStats(s) {
				out[k] = vals
			}
		}
		return out
	default:
		return Stats{}
	}
}

func fanData(s Stats, hw miner.Hardware) []miner.FanData {
	byPos := s.Fans()
	positions := make([]int, 0, len(byPos))
	for pos := range byPos {
		if hw.Fans != nil && pos >= *hw.Fans {
			continue
		}
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	fans := make([]miner.FanData, 0, len(positions))
	for _, pos := range positions {
		fans = append(fans, miner.FanData{Position: pos, RPM: byPos[pos]})
	}
	return fans
}

// parseHashboards reads board data from the whole STATS array. The board
// summary lives in the AVALON0 entry, or the first entry with MM data.
func parseHashboards(v any, hw miner.Hardware) []miner.BoardData {
	count := 1
	if hw.Boards != nil {
		count = *hw.Boards
	}

	boards := make([]miner.BoardData, count)
	for i := range boards {
		boards[i] = miner.BoardData{Position: i, Active: miner.Ptr(false), Chips: []miner.ChipData{}}
		if hw.Chips != nil {
			boards[i].ExpectedChips = miner.Ptr(*hw.Chips)
		}
	}

	entry := findStatsEntry(v)
	if entry == nil {
		return boards
	}

	summary := Stats{}
	for _, key := range []string{"MM ID0", "MM ID0:Summary"} {
		if s, ok := entry[key].(string); ok {
			for k, vals := range ParseStats(s) {
				summary[k] = vals
			}
		}
	}

	for i := range boards {
		b := &boards[i]
		if ghs, ok := perBoard(summary, "MGHS", i, count); ok {
			hr := miner.NewHashRate(ghs, miner.UnitGigaHash).As(miner.DefaultHRUnit)
			b.Hashrate = &hr
			b.Active = miner.Ptr(ghs > 0)
		}
		if t, ok := perBoard(summary, "HBITemp", i, count); ok {
			b.BoardTemperature = &t
		}
		if t, ok := perBoard(summary, "ITemp", i, count); ok {
			b.IntakeTemperature = &t
		}
		if t, ok := perBoard(summary, "HBOTemp", i, count); ok {
			b.OutletTemperature = &t
		}
	}

	if hb, ok := entry["HBinfo"].(string); ok {
		if vals := ParseStats(hb)["PVT_T0"]; len(vals) > 0 {
			working := 0
			for _, v := range vals {
				if v != "0" {
					working++
				}
			}
			boards[0].WorkingChips = miner.Ptr(working)
		}
	}

	return boards
}

// perBoard returns board i's value of key. A key with one value per board
// is indexed; a single value only applies to a single-board machine.
func perBoard(s Stats, key string, i, count int) (float64, bool) {
	vals := s[key]
	switch {
	case len(vals) == count:
		f, err := strconv.ParseFloat(vals[i], 64)
		return f, err == nil
	case len(vals) == 1 && count == 1:
		return s.Float(key)
	default:
		return 0, false
	}
}

func findStatsEntry(v any) map[string]any {
	arr, ok := extract.Array(v)
	if !ok {
		return nil
	}
	var fallback map[string]any
	for _, e := range arr {
		obj, ok := extract.Object(e)
		if !ok {
			continue
		}
		if id, _ := extract.String(obj["ID"]); id == "AVALON0" {
			return obj
		}
		if _, hasMM := obj["MM ID0"]; hasMM && fallback == nil {
			fallback = obj
		}
	}
	return fallback
}

var _ miner.Miner = (*Miner)(nil)
