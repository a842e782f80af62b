package vnish

import (
	"context"
	"strings"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

var (
	cmdInfo    = miner.Web("info", "", nil)
	cmdStatus  = miner.Web("status", "", nil)
	cmdSummary = miner.Web("summary", "", nil)
)

// hashrateWith pairs a summary value with the unit reported by /info.
func hashrateWith(path string) []collector.Location {
	return []collector.Location{
		collector.At(cmdSummary, collector.Tagged(path, "value")),
		collector.At(cmdInfo, collector.Tagged("/hr_measure", "unit")),
	}
}

// Locations is where each field lives on a VNish miner.
var Locations = collector.LocationMap{
	miner.FieldMac:                 {collector.At(cmdInfo, collector.Pointer("/system/network_status/mac"))},
	miner.FieldHostname:            {collector.At(cmdInfo, collector.Pointer("/system/network_status/hostname"))},
	miner.FieldSerialNumber:        {collector.At(cmdInfo, collector.Pointer("/serial"))},
	miner.FieldFirmwareVersion:     {collector.At(cmdInfo, collector.Pointer("/fw_version"))},
	miner.FieldControlBoardVersion: {collector.At(cmdInfo, collector.Pointer("/platform"))},
	miner.FieldHashrate:            hashrateWith("/miner/instant_hashrate"),
	miner.FieldExpectedHashrate: {
		collector.At(cmdSummary, collector.Tagged("/miner/hr_nominal", "value")),
		collector.At(cmdSummary, collector.Tagged("/miner/hr_stock", "stock")),
		collector.At(cmdInfo, collector.Tagged("/hr_measure", "unit")),
	},
	miner.FieldHashboards: {
		collector.At(cmdSummary, collector.Tagged("/miner/chains", "chains")),
		collector.At(cmdInfo, collector.Tagged("/hr_measure", "unit")),
	},
	miner.FieldFans:          {collector.At(cmdSummary, collector.Pointer("/miner/cooling/fans"))},
	miner.FieldWattage:       {collector.At(cmdSummary, collector.Pointer("/miner/power_consumption"))},
	miner.FieldPools:         {collector.At(cmdSummary, collector.Pointer("/miner/pools"))},
	miner.FieldLightFlashing: {collector.At(cmdStatus, collector.Pointer("/find_miner"))},
	miner.FieldIsMining:      {collector.At(cmdStatus, collector.Pointer("/miner_state"))},
	miner.FieldMessages:      {collector.At(cmdStatus, collector.Pointer(""))},
}

// Miner is an Antminer running VNish.
type Miner struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// New creates a VNish backend over client.
func New(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *Miner {
	make := model.Make
	if make == "" {
		make = miner.MakeAntMiner
	}
	return &Miner{
		ip:     ip,
		info:   miner.NewDeviceInfo(make, model, miner.FirmwareVNish, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// Dial creates a backend speaking the VNish web API on ip.
func Dial(ip string, model miner.Model, auth *AuthManager, clientOpts []ClientOption, opts ...collector.Option) *Miner {
	return New(ip, model, NewClient(ip, auth, clientOpts...), opts...)
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
	data.Hostname = fields.StringPtr(miner.FieldHostname)
	data.SerialNumber = fields.StringPtr(miner.FieldSerialNumber)
	data.FirmwareVersion = fields.StringPtr(miner.FieldFirmwareVersion)
	data.ControlBoardVersion = fields.StringPtr(miner.FieldControlBoardVersion)
	data.Wattage = fields.FloatPtr(miner.FieldWattage)

	data.Hashrate = taggedHashrate(fields, miner.FieldHashrate, "value")
	data.ExpectedHashrate = taggedHashrate(fields, miner.FieldExpectedHashrate, "value")
	if data.ExpectedHashrate == nil {
		data.ExpectedHashrate = taggedHashrate(fields, miner.FieldExpectedHashrate, "stock")
	}

	if raw, ok := fields.Nested(miner.FieldHashboards, "chains"); ok {
		var chains []Chain
		if decodeInto(raw, &chains) == nil {
			data.Hashboards = parseChains(chains, unitOf(fields, miner.FieldHashboards), m.info.Hardware)
		}
	}

	if raw, ok := fields.Value(miner.FieldFans); ok {
		var fans FanData
		if decodeInto(raw, &fans) == nil {
			for i, f := range fans {
				if f.RPM > 0 {
					data.Fans = append(data.Fans, miner.FanData{Position: i, RPM: float64(f.RPM)})
				}
			}
		}
	}

	if raw, ok := fields.Value(miner.FieldPools); ok {
		var pools []Pool
		if decodeInto(raw, &pools) == nil {
			data.Pools = parsePools(pools)
		}
	}

	if b, ok := fields.Bool(miner.FieldLightFlashing); ok {
		data.LightFlashing = &b
	}

	if state, ok := fields.String(miner.FieldIsMining); ok {
		data.IsMining = isMiningState(state)
	} else {
		data.IsMining = data.Hashrate != nil && data.Hashrate.Value > 0
	}

	if raw, ok := fields.Value(miner.FieldMessages); ok {
		var status MinerStatus
		if decodeInto(raw, &status) == nil && status.FailureCode != 0 {
			data.Messages = append(data.Messages, miner.Message{
				Code:     status.FailureCode,
				Text:     status.Description,
				Severity: miner.SeverityError,
			})
		}
	}

	data.Finalize()
	return data
}

// unitOf reads the tagged hr_measure of a field, defaulting to GH/s.
func unitOf(fields collector.FieldMap, f miner.DataField) miner.HashRateUnit {
	if raw, ok := fields.Nested(f, "unit"); ok {
		if s, ok := raw.(string); ok {
			if u, ok := miner.ParseHashRateUnit(s); ok {
				return u
			}
		}
	}
	return miner.UnitGigaHash
}

func taggedHashrate(fields collector.FieldMap, f miner.DataField, tag string) *miner.HashRate {
	raw, ok := fields.Nested(f, tag)
	if !ok {
		return nil
	}
	v, ok := extract.Float(raw)
	if !ok || v == 0 {
		return nil
	}
	hr := miner.NewHashRate(v, unitOf(fields, f)).As(miner.DefaultHRUnit)
	return &hr
}

func parseChains(chains []Chain, unit miner.HashRateUnit, hw miner.Hardware) []miner.BoardData {
	boards := make([]miner.BoardData, 0, len(chains))
	for i, c := range chains {
		hr := miner.NewHashRate(c.HashrateRT, unit).As(miner.DefaultHRUnit)
		ideal := miner.NewHashRate(c.HashrateIdeal, unit).As(miner.DefaultHRUnit)
		b := miner.BoardData{
			Position:         i,
			Hashrate:         &hr,
			ExpectedHashrate: &ideal,
			Chips:            []miner.ChipData{},
			Active:           miner.Ptr(c.HashrateRT > 0 || strings.EqualFold(c.Status.State, "mining")),
		}
		if hw.Chips != nil {
			b.ExpectedChips = miner.Ptr(*hw.Chips)
		}
		if c.ChipCount > 0 {
			b.WorkingChips = miner.Ptr(c.ChipCount)
		} else if hw.Chips != nil {
			b.WorkingChips = miner.Ptr(max(*hw.Chips-c.ChipStatuses.Grey, 0))
		}
		if c.PCBTemp.Max > 0 {
			b.BoardTemperature = miner.Ptr(c.PCBTemp.Max)
		}
		if c.Frequency > 0 {
			b.Frequency = miner.Ptr(c.Frequency)
		}
		if c.Voltage > 0 {
			// Reported in millivolts.
			b.Voltage = miner.Ptr(c.Voltage / 1000)
		}
		boards = append(boards, b)
	}
	return boards
}

func parsePools(pools []Pool) []miner.PoolData {
	out := make([]miner.PoolData, 0, len(pools))
	for i, p := range pools {
		if p.URL == "" {
			continue
		}
		status := strings.ToLower(p.Status)
		out = append(out, miner.PoolData{
			Position:       miner.Ptr(i),
			URL:            miner.Ptr(p.URL),
			User:           miner.Ptr(p.User),
			AcceptedShares: miner.Ptr(p.Accepted),
			RejectedShares: miner.Ptr(p.Rejected),
			Alive:          miner.Ptr(status == "working" || status == "active" || status == "alive"),
			Active:         miner.Ptr(status == "working" || status == "active"),
		})
	}
	return out
}

func isMiningState(state string) bool {
	switch strings.ToLower(state) {
	case "mining", "auto-tuning", "starting", "initializing":
		return true
	default:
		return false
	}
}

var _ miner.Miner = (*Miner)(nil)
