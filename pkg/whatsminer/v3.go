package whatsminer

import (
	"context"
	"fmt"
	"strings"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

var (
	cmdDeviceInfo    = miner.RPC("get.device.info", nil)
	cmdStatusSummary = miner.RPC("get.miner.status", "summary")
	cmdStatusPools   = miner.RPC("get.miner.status", "pools")
	cmdStatusEdevs   = miner.RPC("get.miner.status", "edevs")
)

// V3Locations is where each field lives on API v3. Hashboards merge the
// miner section of get.device.info (pcbsnN keys) with the edevs list.
var V3Locations = collector.LocationMap{
	miner.FieldMac:                 {collector.At(cmdDeviceInfo, collector.Pointer("/msg/network/mac"))},
	miner.FieldApiVersion:          {collector.At(cmdDeviceInfo, collector.Pointer("/msg/system/api"))},
	miner.FieldFirmwareVersion:     {collector.At(cmdDeviceInfo, collector.Pointer("/msg/system/fwversion"))},
	miner.FieldControlBoardVersion: {collector.At(cmdDeviceInfo, collector.Pointer("/msg/system/platform"))},
	miner.FieldSerialNumber:        {collector.At(cmdDeviceInfo, collector.Pointer("/msg/miner/miner-sn"))},
	miner.FieldHostname:            {collector.At(cmdDeviceInfo, collector.Pointer("/msg/network/hostname"))},
	miner.FieldLightFlashing:       {collector.At(cmdDeviceInfo, collector.Pointer("/msg/system/ledstatus"))},
	miner.FieldWattageLimit:        {collector.At(cmdDeviceInfo, collector.Pointer("/msg/miner/power-limit-set"))},
	miner.FieldFans:                {collector.At(cmdStatusSummary, collector.Pointer("/msg/summary"))},
	miner.FieldPsuFans:             {collector.At(cmdDeviceInfo, collector.Pointer("/msg/power/fanspeed"))},
	miner.FieldHashboards: {
		collector.At(cmdDeviceInfo, collector.Pointer("/msg/miner")),
		collector.At(cmdStatusEdevs, collector.Key("msg")),
	},
	miner.FieldPools:            {collector.At(cmdStatusPools, collector.Pointer("/msg/pools"))},
	miner.FieldUptime:           {collector.At(cmdStatusSummary, collector.Pointer("/msg/summary/elapsed"))},
	miner.FieldWattage:          {collector.At(cmdStatusSummary, collector.Pointer("/msg/summary/power-realtime"))},
	miner.FieldHashrate:         {collector.At(cmdStatusSummary, collector.Pointer("/msg/summary/hash-realtime"))},
	miner.FieldExpectedHashrate: {collector.At(cmdStatusSummary, collector.Pointer("/msg/summary/factory-hash"))},
	miner.FieldFluidTemperature: {collector.At(cmdStatusSummary, collector.Pointer("/msg/summary/environment-temperature"))},
}

// MinerV3 is a WhatsMiner on API v3.
type MinerV3 struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// NewV3 creates an API v3 backend.
func NewV3(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *MinerV3 {
	return &MinerV3{
		ip:     ip,
		info:   miner.NewDeviceInfo(miner.MakeWhatsMiner, model, miner.FirmwareStock, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// DialV3 creates an API v3 backend on ip.
func DialV3(ip string, model miner.Model, v3Opts []V3Option, opts ...collector.Option) *MinerV3 {
	return NewV3(ip, model, NewV3Client(ip, v3Opts...), opts...)
}

func (m *MinerV3) IP() string                   { return m.ip }
func (m *MinerV3) DeviceInfo() miner.DeviceInfo { return m.info }

// Locations implements collector.Locator.
func (m *MinerV3) Locations(f miner.DataField) []collector.Location {
	return V3Locations.Locations(f)
}

// GetData collects and normalizes the miner's telemetry.
func (m *MinerV3) GetData(ctx context.Context) *miner.MinerData {
	return m.Parse(collector.New(m.client, m, m.opts...).CollectAll(ctx))
}

// Parse builds MinerData from collected fields. API v3 reports hash rates
// in TH/s.
func (m *MinerV3) Parse(fields collector.FieldMap) *miner.MinerData {
	data := miner.NewMinerData(m.ip, m.info)

	if mac, ok := fields.String(miner.FieldMac); ok && mac != "" {
		data.MAC = miner.Ptr(miner.FormatMAC(mac))
	}
	data.SerialNumber = fields.StringPtr(miner.FieldSerialNumber)
	data.Hostname = fields.StringPtr(miner.FieldHostname)
	data.ApiVersion = fields.StringPtr(miner.FieldApiVersion)
	data.FirmwareVersion = fields.StringPtr(miner.FieldFirmwareVersion)
	data.ControlBoardVersion = fields.StringPtr(miner.FieldControlBoardVersion)
	data.Uptime = fields.UintPtr(miner.FieldUptime)
	data.Wattage = fields.FloatPtr(miner.FieldWattage)
	data.WattageLimit = fields.FloatPtr(miner.FieldWattageLimit)
	data.FluidTemperature = fields.FloatPtr(miner.FieldFluidTemperature)

	if ths, ok := fields.Float(miner.FieldHashrate); ok {
		data.Hashrate = rate(ths, miner.UnitTeraHash)
		data.IsMining = ths > 0
	}
	if ths, ok := fields.Float(miner.FieldExpectedHashrate); ok && ths > 0 {
		data.ExpectedHashrate = rate(ths, miner.UnitTeraHash)
	}

	boards, _ := fields.Object(miner.FieldHashboards)
	data.Hashboards = parseEdevs(boards, m.info.Hardware)

	for i, dir := range []string{"in", "out"} {
		if rpm, ok := extract.Float(nested(fields, miner.FieldFans, "fan-speed-"+dir)); ok {
			data.Fans = append(data.Fans, miner.FanData{Position: i, RPM: rpm})
		}
	}
	if rpm, ok := fields.Float(miner.FieldPsuFans); ok {
		data.PsuFans = append(data.PsuFans, miner.FanData{Position: 0, RPM: rpm})
	}

	if led, ok := fields.String(miner.FieldLightFlashing); ok {
		data.LightFlashing = miner.Ptr(!strings.EqualFold(led, "auto"))
	}

	if pools, ok := fields.Array(miner.FieldPools); ok {
		data.Pools = parseV3Pools(pools)
	}

	data.Finalize()
	return data
}

func parseEdevs(merged map[string]any, hw miner.Hardware) []miner.BoardData {
	edevs, _ := extract.Array(merged["edevs"])

	count := 3
	if hw.Boards != nil {
		count = *hw.Boards
	}
	count = max(count, len(edevs))

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
		if sn, ok := extract.String(merged[fmt.Sprintf("pcbsn%d", i)]); ok && sn != "" {
			b.SerialNumber = &sn
		}
		if i < len(edevs) {
			dev := edevs[i]
			if ths, ok := extract.Float(pointer(dev, "/hash-average")); ok {
				b.Hashrate = rate(ths, miner.UnitTeraHash)
			}
			if ths, ok := extract.Float(pointer(dev, "/factory-hash")); ok && ths > 0 {
				b.ExpectedHashrate = rate(ths, miner.UnitTeraHash)
			}
			b.IntakeTemperature = floatPtr(pointer(dev, "/chip-temp-min"))
			b.OutletTemperature = floatPtr(pointer(dev, "/chip-temp-max"))
			b.BoardTemperature = floatPtr(pointer(dev, "/chip-temp-min"))
			b.Frequency = floatPtr(pointer(dev, "/freq"))
			if chips, ok := extract.Int(pointer(dev, "/effective-chips")); ok {
				b.WorkingChips = &chips
			}
			b.Active = miner.Ptr(b.Hashrate != nil && b.Hashrate.Value > 0)
		}
		boards[i] = b
	}
	return boards
}

func parseV3Pools(pools []any) []miner.PoolData {
	out := make([]miner.PoolData, 0, len(pools))
	for i, p := range pools {
		url, _ := extract.String(pointer(p, "/url"))
		if url == "" {
			continue
		}
		pool := miner.PoolData{Position: miner.Ptr(i), URL: &url}
		if user, ok := extract.String(pointer(p, "/account")); ok {
			pool.User = &user
		}
		if status, ok := extract.String(pointer(p, "/status")); ok {
			pool.Alive = miner.Ptr(strings.EqualFold(status, "alive"))
		}
		if active, ok := extract.Bool(pointer(p, "/stratum-active")); ok {
			pool.Active = &active
		}
		out = append(out, pool)
	}
	return out
}

var _ miner.Miner = (*MinerV3)(nil)
