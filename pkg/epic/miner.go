// Package epic reads miners running ePIC PowerPlay firmware through its
// HTTP API on port 4028.
package epic

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/web"
)

// DefaultPort is the PowerPlay API port.
const DefaultPort = 4028

var (
	cmdSummary      = miner.Web("summary", "", nil)
	cmdNetwork      = miner.Web("network", "", nil)
	cmdCapabilities = miner.Web("capabilities", "", nil)
)

// Locations is where each field lives on ePIC firmware.
var Locations = collector.LocationMap{
	miner.FieldMac:             {collector.At(cmdNetwork, collector.Pointer(""))},
	miner.FieldHostname:        {collector.At(cmdSummary, collector.Pointer("/Hostname"))},
	miner.FieldFirmwareVersion: {collector.At(cmdSummary, collector.Pointer("/Software"))},
	miner.FieldUptime:          {collector.At(cmdSummary, collector.Pointer("/Session/Uptime"))},
	miner.FieldHashrate:        {collector.At(cmdSummary, collector.Pointer("/Session/Average MHs"))},
	miner.FieldHashboards:      {collector.At(cmdSummary, collector.Pointer("/HBs"))},
	miner.FieldWattage:         {collector.At(cmdSummary, collector.Pointer("/Power Supply Stats/Input Power"))},
	miner.FieldFans:            {collector.At(cmdSummary, collector.Pointer("/Fans Rpm"))},
	miner.FieldPools: {
		collector.At(cmdSummary, collector.Pointer("/Stratum")),
		collector.At(cmdSummary, collector.Pointer("/Session")),
	},
	miner.FieldIsMining:      {collector.At(cmdSummary, collector.Pointer("/Status/Operating State"))},
	miner.FieldLightFlashing: {collector.At(cmdSummary, collector.Pointer("/Misc/Locate Miner State"))},
}

// Miner is a miner running ePIC PowerPlay.
type Miner struct {
	ip     string
	info   miner.DeviceInfo
	client miner.Client
	opts   []collector.Option
}

// New creates an ePIC backend. The make comes from the resolved model, as
// PowerPlay runs on both Antminer and ePIC hardware.
func New(ip string, model miner.Model, client miner.Client, opts ...collector.Option) *Miner {
	make := model.Make
	if make == "" {
		make = miner.MakeEPic
	}
	return &Miner{
		ip:     ip,
		info:   miner.NewDeviceInfo(make, model, miner.FirmwareEPic, miner.AlgoSHA256),
		client: client,
		opts:   opts,
	}
}

// BaseURL is the API root of the miner at ip.
func BaseURL(ip string) string {
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(DefaultPort))
}

// Dial creates an ePIC backend on ip.
func Dial(ip string, model miner.Model, webOpts []web.ClientOption, opts ...collector.Option) *Miner {
	return New(ip, model, NewClient(BaseURL(ip), webOpts...), opts...)
}

// NewClient returns the web client for a PowerPlay API root.
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

// GetData collects and normalizes the miner's telemetry.
func (m *Miner) GetData(ctx context.Context) *miner.MinerData {
	return m.Parse(collector.New(m.client, m, m.opts...).CollectAll(ctx))
}

// Parse builds MinerData from collected fields.
func (m *Miner) Parse(fields collector.FieldMap) *miner.MinerData {
	data := miner.NewMinerData(m.ip, m.info)

	if mac := macAddress(fields[miner.FieldMac]); mac != "" {
		data.MAC = miner.Ptr(miner.FormatMAC(mac))
	}
	data.Hostname = fields.StringPtr(miner.FieldHostname)
	if sw, ok := fields.String(miner.FieldFirmwareVersion); ok {
		if v := SoftwareVersion(sw); v != "" {
			data.FirmwareVersion = &v
		}
	}
	data.Uptime = fields.UintPtr(miner.FieldUptime)
	data.Wattage = fields.FloatPtr(miner.FieldWattage)

	if mhs, ok := fields.Float(miner.FieldHashrate); ok {
		data.Hashrate = megahash(mhs)
	}

	hbs, _ := fields.Array(miner.FieldHashboards)
	data.Hashboards = parseHashboards(hbs, m.info.Hardware)

	if fans, ok := fields.Object(miner.FieldFans); ok {
		data.Fans = parseFans(fans)
	}

	if state, ok := fields.String(miner.FieldIsMining); ok {
		data.IsMining = !strings.EqualFold(state, "Idling")
	}
	if b, ok := fields.Bool(miner.FieldLightFlashing); ok {
		data.LightFlashing = &b
	}

	if pool, ok := fields.Object(miner.FieldPools); ok {
		if p, ok := parsePool(pool); ok {
			data.Pools = append(data.Pools, p)
		}
	}

	data.Finalize()
	return data
}

func megahash(v float64) *miner.HashRate {
	hr := miner.NewHashRate(v, miner.UnitMegaHash).As(miner.DefaultHRUnit)
	return &hr
}

// SoftwareVersion returns the trailing "vX.Y.Z" of a PowerPlay Software
// string ("PowerPlay-BM v1.8.2") without the "v".
func SoftwareVersion(sw string) string {
	fields := strings.Fields(sw)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if !strings.HasPrefix(last, "v") && !strings.HasPrefix(last, "V") {
		return ""
	}
	return last[1:]
}

// macAddress reads the DHCP or static interface section of /network.
func macAddress(network any) string {
	for _, section := range []string{"/dhcp/mac_address", "/static/mac_address"} {
		if v, ok := extract.Pointer(network, section); ok {
			if s, ok := extract.String(v); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// parseFans reads "Fans Speed N" keys.
func parseFans(fans map[string]any) []miner.FanData {
	out := []miner.FanData{}
	for pos := 0; pos < len(fans)+1; pos++ {
		rpm, ok := extract.Float(fans["Fans Speed "+strconv.Itoa(pos)])
		if ok {
			out = append(out, miner.FanData{Position: pos, RPM: rpm})
		}
	}
	return out
}

func parseHashboards(hbs []any, hw miner.Hardware) []miner.BoardData {
	count := 3
	if hw.Boards != nil {
		count = *hw.Boards
	}
	count = max(count, len(hbs))

	boards := make([]miner.BoardData, count)
	for i := range boards {
		boards[i] = miner.BoardData{
			Position: i,
			Chips:    []miner.ChipData{},
			Active:   miner.Ptr(false),
		}
		if hw.Chips != nil {
			boards[i].ExpectedChips = miner.Ptr(*hw.Chips)
		}
	}

	for _, hb := range hbs {
		obj, ok := extract.Object(hb)
		if !ok {
			continue
		}
		idx, ok := extract.Int(obj["Index"])
		if !ok || idx < 0 || idx >= count {
			continue
		}
		b := &boards[idx]
		// Hashrate is [MH/s, fraction of ideal].
		if arr, ok := extract.Array(obj["Hashrate"]); ok && len(arr) > 0 {
			if mhs, ok := extract.Float(arr[0]); ok {
				b.Hashrate = megahash(mhs)
				if len(arr) > 1 {
					if frac, ok := extract.Float(arr[1]); ok && frac > 0 {
						b.ExpectedHashrate = megahash(mhs / frac)
					}
				}
			}
		}
		if t, ok := extract.Float(obj["Temperature"]); ok {
			b.BoardTemperature = &t
		}
		if v, ok := extract.Float(obj["Input Voltage"]); ok {
			b.Voltage = &v
		}
		if f, ok := extract.Float(obj["Core Clock Avg"]); ok {
			b.Frequency = &f
		}
		b.Active = miner.Ptr(b.Hashrate != nil && b.Hashrate.Value > 0)
	}
	return boards
}

// parsePool reads the merged Stratum and Session sections.
func parsePool(pool map[string]any) (miner.PoolData, bool) {
	url, _ := extract.String(pool["Current Pool"])
	if url == "" {
		return miner.PoolData{}, false
	}
	p := miner.PoolData{URL: &url, Active: miner.Ptr(true)}
	if pos, ok := extract.Int(pool["Config Id"]); ok {
		p.Position = &pos
	}
	if user, ok := extract.String(pool["Current User"]); ok {
		p.User = &user
	}
	if alive, ok := extract.Bool(pool["IsPoolConnected"]); ok {
		p.Alive = &alive
	}
	if n, ok := extract.Uint(pool["Accepted"]); ok {
		p.AcceptedShares = &n
	}
	if n, ok := extract.Uint(pool["Rejected"]); ok {
		p.RejectedShares = &n
	}
	return p, true
}

var _ miner.Miner = (*Miner)(nil)
