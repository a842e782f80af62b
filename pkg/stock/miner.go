package stock

import (
	"context"
	"strconv"
	"strings"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
)

var (
	cmdSystemInfo = miner.Web("get_system_info", "", nil)
	cmdBlink      = miner.Web("get_blink_status", "", nil)
	cmdMinerConf  = miner.Web("get_miner_conf", "", nil)
	cmdWebStats   = miner.Web("stats", "", nil)
	cmdWebSummary = miner.Web("summary", "", nil)

	cmdVersion = miner.RPC("version", nil)
	cmdSummary = miner.RPC("summary", nil)
	cmdStats   = miner.RPC("stats", nil)
	cmdPools   = miner.RPC("pools", nil)
)

// Locations is where each field lives on a stock Antminer.
var Locations = collector.LocationMap{
	miner.FieldMac:              {collector.At(cmdSystemInfo, collector.Pointer("/macaddr"))},
	miner.FieldSerialNumber:     {collector.At(cmdSystemInfo, collector.Pointer("/serinum"))},
	miner.FieldHostname:         {collector.At(cmdSystemInfo, collector.Pointer("/hostname"))},
	miner.FieldApiVersion:       {collector.At(cmdVersion, collector.Pointer("/VERSION/0/API"))},
	miner.FieldFirmwareVersion:  {collector.At(cmdVersion, collector.Pointer("/VERSION/0/CompileTime"))},
	miner.FieldHashrate:         {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/GHS 5s"))},
	miner.FieldExpectedHashrate: {collector.At(cmdStats, collector.Pointer("/STATS/1/total_rateideal"))},
	miner.FieldFans:             {collector.At(cmdStats, collector.Pointer("/STATS/1"))},
	miner.FieldHashboards:       {collector.At(cmdWebStats, collector.Pointer("/STATS/0/chain"))},
	miner.FieldLightFlashing:    {collector.At(cmdBlink, collector.Pointer("/blink"))},
	miner.FieldIsMining:         {collector.At(cmdMinerConf, collector.Pointer("/bitmain-work-mode"))},
	miner.FieldUptime:           {collector.At(cmdStats, collector.Pointer("/STATS/1/Elapsed"))},
	miner.FieldPools:            {collector.At(cmdPools, collector.Pointer("/POOLS"))},
	miner.FieldWattage:          {collector.At(cmdStats, collector.Pointer("/STATS/1"))},
	miner.FieldWattageLimit:     {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/Power Limit"))},
	miner.FieldMessages:         {collector.At(cmdWebSummary, collector.Pointer("/SUMMARY/0/status"))},
}

// Miner is an Antminer running stock Bitmain firmware.
type Miner struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// New creates a stock Antminer backend over client, which must route RPC
// and web commands (see miner.Dispatch).
func New(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *Miner {
	return &Miner{
		ip:     ip,
		info:   miner.NewDeviceInfo(miner.MakeAntMiner, model, miner.FirmwareStock, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// Dial creates a backend for ip using the cgminer API and the CGI API.
func Dial(ip string, model miner.Model, auth *DigestAuth, rpcOpts []rpc.ClientOption, opts ...collector.Option) *Miner {
	rpcOpts = append([]rpc.ClientOption{rpc.WithLenientStatus()}, rpcOpts...)
	client := miner.Dispatch{
		RPC: rpc.NewClient(ip, rpcOpts...),
		Web: NewClient(ip, auth),
	}
	return New(ip, model, client, opts...)
}

func (m *Miner) IP() string                   { return m.ip }
func (m *Miner) DeviceInfo() miner.DeviceInfo { return m.info }

// Locations implements collector.Locator.
func (m *Miner) Locations(f miner.DataField) []collector.Location {
	return Locations.Locations(f)
}

// GetData collects and normalizes the miner's telemetry.
func (m *Miner) GetData(ctx context.Context) *miner.MinerData {
	return m.Parse(collector.New(m.client, m, m.opts...).CollectAll(ctx))
}

// Parse builds MinerData from collected fields.
func (m *Miner) Parse(fields collector.FieldMap) *miner.MinerData {
	data := miner.NewMinerData(m.ip, m.info)

	if mac, ok := fields.String(miner.FieldMac); ok && mac != "" {
		data.MAC = miner.Ptr(miner.FormatMAC(mac))
	}
	data.SerialNumber = fields.StringPtr(miner.FieldSerialNumber)
	data.Hostname = fields.StringPtr(miner.FieldHostname)
	data.ApiVersion = fields.StringPtr(miner.FieldApiVersion)
	data.FirmwareVersion = fields.StringPtr(miner.FieldFirmwareVersion)
	data.Uptime = fields.UintPtr(miner.FieldUptime)
	data.WattageLimit = fields.FloatPtr(miner.FieldWattageLimit)

	if ghs, ok := fields.Float(miner.FieldHashrate); ok {
		hr := miner.NewHashRate(ghs, miner.UnitGigaHash).As(miner.DefaultHRUnit)
		data.Hashrate = &hr
	}
	if ghs, ok := fields.Float(miner.FieldExpectedHashrate); ok {
		hr := miner.NewHashRate(ghs, miner.UnitGigaHash).As(miner.DefaultHRUnit)
		data.ExpectedHashrate = &hr
	}

	if stats, ok := fields.Object(miner.FieldFans); ok {
		data.Fans = parseFans(stats, m.info.Hardware)
	}
	if stats, ok := fields.Object(miner.FieldWattage); ok {
		data.Wattage = parseWattage(stats)
	}

	if v, ok := fields.Value(miner.FieldLightFlashing); ok {
		if b, ok := extract.Bool(v); ok {
			data.LightFlashing = &b
		}
	}

	hydro := strings.Contains(m.info.Model.Name, "Hydro")
	var chains []Chain
	if raw, ok := fields.Value(miner.FieldHashboards); ok {
		_ = decodeInto(raw, &chains)
	}
	data.Hashboards = parseHashboards(chains, m.info.Hardware, hydro)
	if hydro {
		data.FluidTemperature = fluidTemperature(chains)
	}

	if raw, ok := fields.Value(miner.FieldMessages); ok {
		var items []StatusItem
		if decodeInto(raw, &items) == nil {
			data.Messages = parseMessages(items)
		}
	}

	if pools := rpc.ParsePools(fields[miner.FieldPools]); pools != nil {
		data.Pools = pools
	}

	data.IsMining = isMining(fields, data.Hashrate)
	data.Finalize()
	return data
}

func parseFans(stats map[string]any, hw miner.Hardware) []miner.FanData {
	n := 4
	if hw.Fans != nil {
		n = *hw.Fans
	}
	fans := []miner.FanData{}
	for i := 1; i <= n; i++ {
		v, ok := stats["fan"+strconv.Itoa(i)]
		if !ok {
			v = stats["Fan"+strconv.Itoa(i)]
		}
		if rpm, ok := extract.Float(v); ok && rpm > 0 {
			fans = append(fans, miner.FanData{Position: i - 1, RPM: rpm})
		}
	}
	return fans
}

// parseWattage reads "chain_power" ("3250 W") or a numeric power field.
func parseWattage(stats map[string]any) *float64 {
	for _, key := range []string{"chain_power", "power", "Power"} {
		if w, ok := extract.Float(stats[key]); ok {
			return &w
		}
	}
	return nil
}

// parseHashboards converts stats.cgi chains. Without chain data the
// expected number of inactive boards is returned.
func parseHashboards(chains []Chain, hw miner.Hardware, hydro bool) []miner.BoardData {
	var expectedChips *int
	if hw.Chips != nil {
		expectedChips = miner.Ptr(*hw.Chips)
	}

	if len(chains) == 0 {
		n := 3
		if hw.Boards != nil {
			n = *hw.Boards
		}
		boards := make([]miner.BoardData, n)
		for i := range boards {
			boards[i] = miner.BoardData{
				Position:      i,
				ExpectedChips: expectedChips,
				Chips:         []miner.ChipData{},
				Tuned:         miner.Ptr(false),
				Active:        miner.Ptr(false),
			}
		}
		return boards
	}

	boards := make([]miner.BoardData, 0, len(chains))
	for _, c := range chains {
		hr := miner.NewHashRate(c.RateReal, miner.UnitGigaHash).As(miner.DefaultHRUnit)
		ideal := miner.NewHashRate(c.RateIdeal, miner.UnitGigaHash).As(miner.DefaultHRUnit)
		b := miner.BoardData{
			Position:         c.Index,
			Hashrate:         &hr,
			ExpectedHashrate: &ideal,
			ExpectedChips:    expectedChips,
			WorkingChips:     miner.Ptr(c.AsicNum),
			Chips:            []miner.ChipData{},
			Tuned:            miner.Ptr(true),
			Active:           miner.Ptr(c.RateReal > 0),
		}
		if c.SN != "" {
			b.SerialNumber = miner.Ptr(c.SN)
		}
		if c.FreqAvg > 0 {
			b.Frequency = miner.Ptr(c.FreqAvg)
		}

		if hydro {
			b.IntakeTemperature = nonZeroAt(c.TempPCB, 0)
			b.OutletTemperature = nonZeroAt(c.TempPCB, 2)
			var temps []float64
			temps = append(temps, pick(c.TempPIC, 1, 2, 3)...)
			temps = append(temps, pick(c.TempPCB, 1, 3)...)
			if avg, ok := miner.Average(temps); ok {
				b.BoardTemperature = &avg
			}
		} else if avg, ok := miner.Average(c.TempPCB); ok {
			b.BoardTemperature = &avg
		}

		boards = append(boards, b)
	}
	return boards
}

// fluidTemperature averages the inlet and outlet sensors of hydro chains.
func fluidTemperature(chains []Chain) *float64 {
	var temps []float64
	for _, c := range chains {
		temps = append(temps, pick(c.TempPCB, 0, 2)...)
	}
	if avg, ok := miner.Average(temps); ok {
		return &avg
	}
	return nil
}

func parseMessages(items []StatusItem) []miner.Message {
	msgs := []miner.Message{}
	for _, it := range items {
		var sev miner.Severity
		switch strings.ToLower(it.Status) {
		case "s", "":
			continue
		case "e":
			sev = miner.SeverityError
		case "w":
			sev = miner.SeverityWarning
		default:
			sev = miner.SeverityInfo
		}
		text := it.Msg
		if text == "" {
			text = "Unknown error"
		}
		msgs = append(msgs, miner.Message{Code: it.Code, Text: text, Severity: sev})
	}
	return msgs
}

// isMining reads the work mode ("1" is sleep) and falls back to the
// hashrate when the mode is unavailable.
func isMining(fields collector.FieldMap, hr *miner.HashRate) bool {
	if mode, ok := fields.String(miner.FieldIsMining); ok {
		switch strings.ToLower(mode) {
		case "1", "sleep", "stopped", "idle":
			return false
		default:
			return true
		}
	}
	return hr != nil && hr.Value > 0
}

func pick(vals []float64, idx ...int) []float64 {
	var out []float64
	for _, i := range idx {
		if i < len(vals) && vals[i] != 0 {
			out = append(out, vals[i])
		}
	}
	return out
}

func nonZeroAt(vals []float64, i int) *float64 {
	if i < len(vals) && vals[i] != 0 {
		return miner.Ptr(vals[i])
	}
	return nil
}

var _ miner.Miner = (*Miner)(nil)
