// Package luxos reads Antminers running Luxor's LuxOS firmware. LuxOS
// extends the cgminer API with config, fans, power and profiles commands.
package luxos

import (
	"context"
	"fmt"
	"strings"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
)

var (
	cmdVersion  = miner.RPC("version", nil)
	cmdStats    = miner.RPC("stats", nil)
	cmdSummary  = miner.RPC("summary", nil)
	cmdPools    = miner.RPC("pools", nil)
	cmdConfig   = miner.RPC("config", nil)
	cmdFans     = miner.RPC("fans", nil)
	cmdPower    = miner.RPC("power", nil)
	cmdProfiles = miner.RPC("profiles", nil)
)

// Locations is where each field lives on a LuxOS miner.
var Locations = collector.LocationMap{
	miner.FieldMac:              {collector.At(cmdConfig, collector.Pointer("/CONFIG/0/MACAddr"))},
	miner.FieldHostname:         {collector.At(cmdConfig, collector.Pointer("/CONFIG/0/Hostname"))},
	miner.FieldSerialNumber:     {collector.At(cmdConfig, collector.Pointer("/CONFIG/0/SerialNumber"))},
	miner.FieldApiVersion:       {collector.At(cmdVersion, collector.Pointer("/VERSION/0/API"))},
	miner.FieldFirmwareVersion:  {collector.At(cmdVersion, collector.Pointer("/VERSION/0/Miner"))},
	miner.FieldHashrate:         {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/GHS 5s"))},
	miner.FieldExpectedHashrate: {collector.At(cmdStats, collector.Pointer("/STATS/1/total_rateideal"))},
	miner.FieldFans:             {collector.At(cmdFans, collector.Pointer("/FANS"))},
	miner.FieldHashboards:       {collector.At(cmdStats, collector.Pointer("/STATS/1"))},
	miner.FieldLightFlashing:    {collector.At(cmdConfig, collector.Pointer("/CONFIG/0/RedLed"))},
	miner.FieldIsMining:         {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/GHS 5s"))},
	miner.FieldUptime:           {collector.At(cmdStats, collector.Pointer("/STATS/1/Elapsed"))},
	miner.FieldPools:            {collector.At(cmdPools, collector.Pointer("/POOLS"))},
	miner.FieldWattage:          {collector.At(cmdPower, collector.Pointer("/POWER/0/Watts"))},
	miner.FieldWattageLimit:     {collector.At(cmdProfiles, collector.Pointer("/PROFILES"))},
	miner.FieldMessages:         {collector.At(cmdSummary, collector.Pointer("/STATUS"))},
}

// Miner is an Antminer running LuxOS.
type Miner struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// New creates a LuxOS backend.
func New(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *Miner {
	return &Miner{
		ip:     ip,
		info:   miner.NewDeviceInfo(miner.MakeAntMiner, model, miner.FirmwareLuxOS, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// Dial creates a LuxOS backend speaking the cgminer API on ip.
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
	data.ApiVersion = fields.StringPtr(miner.FieldApiVersion)
	data.FirmwareVersion = fields.StringPtr(miner.FieldFirmwareVersion)
	data.Uptime = fields.UintPtr(miner.FieldUptime)
	data.Wattage = fields.FloatPtr(miner.FieldWattage)

	if ghs, ok := fields.Float(miner.FieldHashrate); ok {
		data.Hashrate = gigahash(ghs)
	}
	if ghs, ok := fields.Float(miner.FieldExpectedHashrate); ok && ghs > 0 {
		data.ExpectedHashrate = gigahash(ghs)
	}
	if ghs, ok := fields.Float(miner.FieldIsMining); ok {
		data.IsMining = ghs > 0
	}

	stats, _ := fields.Object(miner.FieldHashboards)
	data.Hashboards = parseHashboards(stats, m.info.Hardware)

	if fans, ok := fields.Array(miner.FieldFans); ok {
		for i, f := range fans {
			if rpm, ok := extract.Float(pointer(f, "/RPM")); ok {
				data.Fans = append(data.Fans, miner.FanData{Position: i, RPM: rpm})
			}
		}
	}

	if led, ok := fields.String(miner.FieldLightFlashing); ok {
		data.LightFlashing = miner.Ptr(!strings.EqualFold(led, "off"))
	}

	data.Pools = rpc.ParsePools(fields[miner.FieldPools])
	data.WattageLimit = activeProfilePower(fields[miner.FieldWattageLimit])
	data.Messages = append(data.Messages, parseMessages(fields[miner.FieldMessages])...)

	data.Finalize()
	return data
}

func gigahash(v float64) *miner.HashRate {
	hr := miner.NewHashRate(v, miner.UnitGigaHash).As(miner.DefaultHRUnit)
	return &hr
}

func pointer(doc any, path string) any {
	v, _ := extract.Pointer(doc, path)
	return v
}

// parseHashboards reads the chain_* keys of the second STATS entry. Boards
// are numbered from 1 there. A nil stats map yields inactive placeholders.
func parseHashboards(stats map[string]any, hw miner.Hardware) []miner.BoardData {
	count := 3
	if hw.Boards != nil {
		count = *hw.Boards
	}

	boards := make([]miner.BoardData, count)
	for i := range boards {
		b := miner.BoardData{
			Position: i,
			Chips:    []miner.ChipData{},
			Tuned:    miner.Ptr(false),
			Active:   miner.Ptr(false),
		}
		if hw.Chips != nil {
			b.ExpectedChips = miner.Ptr(*hw.Chips)
		}

		n := i + 1
		if ghs, ok := extract.Float(stats[fmt.Sprintf("chain_rate%d", n)]); ok {
			b.Hashrate = gigahash(ghs)
		}
		if chips, ok := extract.Int(stats[fmt.Sprintf("chain_acn%d", n)]); ok {
			b.WorkingChips = miner.Ptr(chips)
		}
		if s, ok := extract.String(stats[fmt.Sprintf("temp_pcb%d", n)]); ok {
			if t, ok := dashedAverage(s); ok {
				b.BoardTemperature = &t
			}
		}
		if s, ok := extract.String(stats[fmt.Sprintf("temp_chip%d", n)]); ok {
			if t, ok := dashedAverage(s); ok {
				b.IntakeTemperature = &t
			}
		}
		if freq, ok := extract.Float(stats[fmt.Sprintf("freq%d", n)]); ok {
			b.Frequency = &freq
		}

		working := (b.Hashrate != nil && b.Hashrate.Value > 0) ||
			(b.WorkingChips != nil && *b.WorkingChips > 0)
		b.Active = miner.Ptr(working)
		b.Tuned = miner.Ptr(working)
		boards[i] = b
	}
	return boards
}

// dashedAverage averages a sensor string like "40-42-0-44", ignoring zeros.
func dashedAverage(s string) (float64, bool) {
	var temps []float64
	for _, part := range strings.Split(s, "-") {
		if t, ok := extract.Float(strings.TrimSpace(part)); ok && t > 0 {
			temps = append(temps, t)
		}
	}
	return miner.Average(temps)
}

// activeProfilePower returns the Power of the profile marked Active.
func activeProfilePower(v any) *float64 {
	profiles, ok := extract.Array(v)
	if !ok {
		return nil
	}
	for _, p := range profiles {
		if active, _ := extract.Bool(pointer(p, "/Active")); !active {
			continue
		}
		if w, ok := extract.Float(pointer(p, "/Power")); ok {
			return &w
		}
	}
	return nil
}

func parseMessages(v any) []miner.Message {
	items, ok := extract.Array(v)
	if !ok {
		return nil
	}
	var msgs []miner.Message
	for i, item := range items {
		status, _ := extract.String(pointer(item, "/STATUS"))
		if status == "" || status == "S" {
			continue
		}
		text, ok := extract.String(pointer(item, "/Msg"))
		if !ok {
			text = "Unknown error"
		}
		severity := miner.SeverityInfo
		switch status {
		case "E":
			severity = miner.SeverityError
		case "W":
			severity = miner.SeverityWarning
		}
		msgs = append(msgs, miner.Message{Code: uint64(i), Text: text, Severity: severity})
	}
	return msgs
}

var _ miner.Miner = (*Miner)(nil)
