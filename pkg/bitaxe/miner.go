// Package bitaxe reads BitAxe boards running AxeOS.
package bitaxe

import (
	"context"
	"fmt"
	"time"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/web"
)

var cmdSystemInfo = miner.Web("api/system/info", "", nil)

// Locations is where each field lives on AxeOS. Everything comes from one
// endpoint.
var Locations = collector.LocationMap{
	miner.FieldMac:                 {collector.At(cmdSystemInfo, collector.Pointer("/macAddr"))},
	miner.FieldHostname:            {collector.At(cmdSystemInfo, collector.Pointer("/hostname"))},
	miner.FieldFirmwareVersion:     {collector.At(cmdSystemInfo, collector.Pointer("/version"))},
	miner.FieldControlBoardVersion: {collector.At(cmdSystemInfo, collector.Pointer("/boardVersion"))},
	miner.FieldHashrate:            {collector.At(cmdSystemInfo, collector.Pointer("/hashRate"))},
	miner.FieldExpectedHashrate:    {collector.At(cmdSystemInfo, collector.Pointer("/expectedHashrate"))},
	miner.FieldHashboards:          {collector.At(cmdSystemInfo, collector.Pointer(""))},
	miner.FieldFans:                {collector.At(cmdSystemInfo, collector.Pointer("/fanrpm"))},
	miner.FieldWattage:             {collector.At(cmdSystemInfo, collector.Pointer("/power"))},
	miner.FieldUptime:              {collector.At(cmdSystemInfo, collector.Pointer("/uptimeSeconds"))},
	miner.FieldPools:               {collector.At(cmdSystemInfo, collector.Pointer(""))},
}

// Miner is a BitAxe board.
type Miner struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// New creates a BitAxe backend.
func New(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *Miner {
	return &Miner{
		ip:     ip,
		info:   miner.NewDeviceInfo(miner.MakeBitAxe, model, miner.FirmwareStock, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// Dial creates a BitAxe backend on ip.
func Dial(ip string, model miner.Model, webOpts []web.ClientOption, opts ...collector.Option) *Miner {
	return New(ip, model, NewClient("http://"+ip, webOpts...), opts...)
}

// NewClient returns the web client for an AxeOS root.
func NewClient(baseURL string, opts ...web.ClientOption) *web.Client {
	opts = append([]web.ClientOption{web.WithTimeout(5 * time.Second)}, opts...)
	return web.NewClient(baseURL, opts...)
}

func (m *Miner) IP() string                   { return m.ip }
func (m *Miner) DeviceInfo() miner.DeviceInfo { return m.info }

// Locations implements collector.Locator.
func (m *Miner) Locations(f miner.DataField) []collector.Location {
	return Locations.Locations(f)
}

// GetData collects and normalizes the board's telemetry.
func (m *Miner) GetData(ctx context.Context) *miner.MinerData {
	return m.Parse(collector.New(m.client, m, m.opts...).CollectAll(ctx))
}

// Parse builds MinerData from collected fields. AxeOS reports hash rates
// in GH/s and core voltage in mV.
func (m *Miner) Parse(fields collector.FieldMap) *miner.MinerData {
	data := miner.NewMinerData(m.ip, m.info)

	if mac, ok := fields.String(miner.FieldMac); ok && mac != "" {
		data.MAC = miner.Ptr(miner.FormatMAC(mac))
	}
	data.Hostname = fields.StringPtr(miner.FieldHostname)
	data.FirmwareVersion = fields.StringPtr(miner.FieldFirmwareVersion)
	data.ControlBoardVersion = fields.StringPtr(miner.FieldControlBoardVersion)
	data.Wattage = fields.FloatPtr(miner.FieldWattage)
	data.Uptime = fields.UintPtr(miner.FieldUptime)

	if ghs, ok := fields.Float(miner.FieldHashrate); ok {
		data.Hashrate = gigahash(ghs)
		data.IsMining = ghs > 0
	}
	if ghs, ok := fields.Float(miner.FieldExpectedHashrate); ok && ghs > 0 {
		data.ExpectedHashrate = gigahash(ghs)
	}

	if sys, ok := fields.Object(miner.FieldHashboards); ok {
		data.Hashboards = []miner.BoardData{parseBoard(sys, m.info.Hardware, data.Hashrate, data.ExpectedHashrate)}
	}

	if rpm, ok := fields.Float(miner.FieldFans); ok {
		data.Fans = append(data.Fans, miner.FanData{Position: 0, RPM: rpm})
	}

	if sys, ok := fields.Object(miner.FieldPools); ok {
		if p, ok := parsePool(sys); ok {
			data.Pools = append(data.Pools, p)
		}
	}

	data.Finalize()
	return data
}

func gigahash(v float64) *miner.HashRate {
	hr := miner.NewHashRate(v, miner.UnitGigaHash).As(miner.DefaultHRUnit)
	return &hr
}

func parseBoard(sys map[string]any, hw miner.Hardware, hr, expected *miner.HashRate) miner.BoardData {
	b := miner.BoardData{
		Position:         0,
		Hashrate:         hr,
		ExpectedHashrate: expected,
		Chips:            []miner.ChipData{},
		Active:           miner.Ptr(hr != nil && hr.Value > 0),
	}
	if hw.Chips != nil {
		b.ExpectedChips = miner.Ptr(*hw.Chips)
	}
	if n, ok := extract.Int(sys["asicCount"]); ok {
		b.WorkingChips = &n
	} else if hw.Chips != nil {
		b.WorkingChips = miner.Ptr(*hw.Chips)
	}
	if t, ok := extract.Float(sys["vrTemp"]); ok {
		b.BoardTemperature = &t
	}
	if mv, ok := extract.Float(sys["coreVoltageActual"]); ok {
		b.Voltage = miner.Ptr(mv / 1000)
	}
	if f, ok := extract.Float(sys["frequency"]); ok {
		b.Frequency = &f
	}
	if t, ok := extract.Float(sys["temp"]); ok {
		b.Chips = append(b.Chips, miner.ChipData{Position: 0, Temperature: &t, Working: miner.Ptr(true)})
	}
	return b
}

func parsePool(sys map[string]any) (miner.PoolData, bool) {
	host, _ := extract.String(sys["stratumURL"])
	if host == "" {
		return miner.PoolData{}, false
	}
	url := host
	if port, ok := extract.Int(sys["stratumPort"]); ok && port > 0 {
		url = fmt.Sprintf("stratum+tcp://%s:%d", host, port)
	}
	p := miner.PoolData{Position: miner.Ptr(0), URL: &url, Active: miner.Ptr(true)}
	if user, ok := extract.String(sys["stratumUser"]); ok {
		p.User = &user
	}
	if n, ok := extract.Uint(sys["sharesAccepted"]); ok {
		p.AcceptedShares = &n
	}
	if n, ok := extract.Uint(sys["sharesRejected"]); ok {
		p.RejectedShares = &n
	}
	return p, true
}

var _ miner.Miner = (*Miner)(nil)
