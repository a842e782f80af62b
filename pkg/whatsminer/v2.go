// Package whatsminer reads MicroBT WhatsMiner units. Firmware released
// before November 2024 serves the BTMiner cgminer-style API (MinerV2);
// later firmware serves the framed JSON API v3 (MinerV3).
package whatsminer

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
	cmdSummary    = miner.RPC("summary", nil)
	cmdDevs       = miner.RPC("devs", nil)
	cmdPools      = miner.RPC("pools", nil)
	cmdGetVersion = miner.RPC("get_version", nil)
	cmdGetPSU     = miner.RPC("get_psu", nil)
	cmdDevDetails = miner.RPC("devdetails", nil)
)

// V2Locations is where each field lives on the BTMiner API.
var V2Locations = collector.LocationMap{
	miner.FieldMac:                 {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/MAC"))},
	miner.FieldApiVersion:          {collector.At(cmdGetVersion, collector.Pointer("/Msg/api_ver"))},
	miner.FieldFirmwareVersion:     {collector.At(cmdGetVersion, collector.Pointer("/Msg/fw_ver"))},
	miner.FieldControlBoardVersion: {collector.At(cmdGetVersion, collector.Pointer("/Msg/platform"))},
	miner.FieldWattageLimit:        {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/Power Limit"))},
	miner.FieldFans:                {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0"))},
	miner.FieldPsuFans:             {collector.At(cmdGetPSU, collector.Pointer("/Msg/fan_speed"))},
	miner.FieldHashboards:          {collector.At(cmdDevs, collector.Pointer("/DEVS"))},
	miner.FieldPools:               {collector.At(cmdPools, collector.Pointer("/POOLS"))},
	miner.FieldUptime:              {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/Elapsed"))},
	miner.FieldWattage:             {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/Power"))},
	miner.FieldHashrate:            {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/HS RT"))},
	miner.FieldExpectedHashrate:    {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/Factory GHS"))},
	miner.FieldFluidTemperature:    {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/Env Temp"))},
	miner.FieldIsMining:            {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0/btmineroff"))},
	miner.FieldMessages:            {collector.At(cmdSummary, collector.Pointer("/SUMMARY/0"))},
}

// MinerV2 is a WhatsMiner on the BTMiner cgminer-style API.
type MinerV2 struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// NewV2 creates a BTMiner API backend.
func NewV2(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *MinerV2 {
	return &MinerV2{
		ip:     ip,
		info:   miner.NewDeviceInfo(miner.MakeWhatsMiner, model, miner.FirmwareStock, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// DialV2 creates a BTMiner API backend on ip. BTMiner omits STATUS on some
// replies, so the client is lenient.
func DialV2(ip string, model miner.Model, rpcOpts []rpc.ClientOption, opts ...collector.Option) *MinerV2 {
	rpcOpts = append([]rpc.ClientOption{rpc.WithLenientStatus()}, rpcOpts...)
	return NewV2(ip, model, rpc.NewClient(ip, rpcOpts...), opts...)
}

func (m *MinerV2) IP() string                   { return m.ip }
func (m *MinerV2) DeviceInfo() miner.DeviceInfo { return m.info }

// Locations implements collector.Locator.
func (m *MinerV2) Locations(f miner.DataField) []collector.Location {
	return V2Locations.Locations(f)
}

// GetData collects and normalizes the miner's telemetry.
func (m *MinerV2) GetData(ctx context.Context) *miner.MinerData {
	return m.Parse(collector.New(m.client, m, m.opts...).CollectAll(ctx))
}

// Parse builds MinerData from collected fields.
func (m *MinerV2) Parse(fields collector.FieldMap) *miner.MinerData {
	data := miner.NewMinerData(m.ip, m.info)

	if mac, ok := fields.String(miner.FieldMac); ok && mac != "" {
		data.MAC = miner.Ptr(miner.FormatMAC(mac))
	}
	data.ApiVersion = fields.StringPtr(miner.FieldApiVersion)
	data.FirmwareVersion = fields.StringPtr(miner.FieldFirmwareVersion)
	data.ControlBoardVersion = fields.StringPtr(miner.FieldControlBoardVersion)
	data.Uptime = fields.UintPtr(miner.FieldUptime)
	data.Wattage = fields.FloatPtr(miner.FieldWattage)
	data.WattageLimit = fields.FloatPtr(miner.FieldWattageLimit)
	data.FluidTemperature = fields.FloatPtr(miner.FieldFluidTemperature)

	if mhs, ok := fields.Float(miner.FieldHashrate); ok {
		data.Hashrate = rate(mhs, miner.UnitMegaHash)
	}
	if ghs, ok := fields.Float(miner.FieldExpectedHashrate); ok && ghs > 0 {
		data.ExpectedHashrate = rate(ghs, miner.UnitGigaHash)
	}

	devs, _ := fields.Array(miner.FieldHashboards)
	data.Hashboards = parseDevs(devs, m.info.Hardware)

	for i, dir := range []string{"In", "Out"} {
		if rpm, ok := extract.Float(nested(fields, miner.FieldFans, "Fan Speed "+dir)); ok {
			data.Fans = append(data.Fans, miner.FanData{Position: i, RPM: rpm})
		}
	}
	if rpm, ok := fields.Float(miner.FieldPsuFans); ok {
		data.PsuFans = append(data.PsuFans, miner.FanData{Position: 0, RPM: rpm})
	}

	if off, ok := fields.String(miner.FieldIsMining); ok {
		data.IsMining = !strings.EqualFold(off, "true")
	} else {
		data.IsMining = data.Hashrate != nil && data.Hashrate.Value > 0
	}

	data.Pools = rpc.ParsePools(fields[miner.FieldPools])
	data.Messages = append(data.Messages, errorCodes(fields[miner.FieldMessages])...)

	data.Finalize()
	return data
}

func rate(v float64, unit miner.HashRateUnit) *miner.HashRate {
	hr := miner.NewHashRate(v, unit).As(miner.DefaultHRUnit)
	return &hr
}

func pointer(doc any, path string) any {
	v, _ := extract.Pointer(doc, path)
	return v
}

func nested(fields collector.FieldMap, f miner.DataField, key string) any {
	v, _ := fields.Nested(f, key)
	return v
}

// parseDevs converts the DEVS array. Placeholder boards fill the count the
// hardware table expects.
func parseDevs(devs []any, hw miner.Hardware) []miner.BoardData {
	count := 3
	if hw.Boards != nil {
		count = *hw.Boards
	}
	count = max(count, len(devs))

	boards := make([]miner.BoardData, count)
	for i := range boards {
		b := miner.BoardData{
			Position: i,
			Chips:    []miner.ChipData{},
			Tuned:    miner.Ptr(true),
			Active:   miner.Ptr(false),
		}
		if hw.Chips != nil {
			b.ExpectedChips = miner.Ptr(*hw.Chips)
		}
		if i < len(devs) {
			dev := devs[i]
			if mhs, ok := extract.Float(pointer(dev, "/MHS av")); ok {
				b.Hashrate = rate(mhs, miner.UnitMegaHash)
			}
			if ghs, ok := extract.Float(pointer(dev, "/Factory GHS")); ok && ghs > 0 {
				b.ExpectedHashrate = rate(ghs, miner.UnitGigaHash)
			}
			b.BoardTemperature = floatPtr(pointer(dev, "/Temperature"))
			b.IntakeTemperature = floatPtr(pointer(dev, "/Chip Temp Min"))
			b.OutletTemperature = floatPtr(pointer(dev, "/Chip Temp Max"))
			b.Frequency = floatPtr(pointer(dev, "/Frequency"))
			if sn, ok := extract.String(pointer(dev, "/PCB SN")); ok && sn != "" {
				b.SerialNumber = &sn
			}
			if chips, ok := extract.Int(pointer(dev, "/Effective Chips")); ok {
				b.WorkingChips = &chips
			}
			b.Active = miner.Ptr(b.Hashrate != nil && b.Hashrate.Value > 0)
		}
		boards[i] = b
	}
	return boards
}

func floatPtr(v any) *float64 {
	f, ok := extract.Float(v)
	if !ok {
		return nil
	}
	return &f
}

// errorCodes reads "Error Code Count" and the numbered "Error Code N" keys
// of a summary entry.
func errorCodes(summary any) []miner.Message {
	n, _ := extract.Int(pointer(summary, "/Error Code Count"))
	var msgs []miner.Message
	for i := 0; i < n; i++ {
		code, ok := extract.Uint(pointer(summary, fmt.Sprintf("/Error Code %d", i)))
		if !ok {
			continue
		}
		msgs = append(msgs, miner.Message{Code: code, Severity: miner.SeverityError})
	}
	return msgs
}

var _ miner.Miner = (*MinerV2)(nil)
