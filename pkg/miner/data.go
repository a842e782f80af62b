package miner

import (
	"strings"
	"time"
)

// SchemaVersion is the version of the MinerData layout.
const SchemaVersion = "1.0.0"

// DeviceInfo describes what a miner is. Hardware is always derived from
// the model.
type DeviceInfo struct {
	Make     Make          `json:"make"`
	Model    Model         `json:"model"`
	Firmware Firmware      `json:"firmware"`
	Algo     HashAlgorithm `json:"algo"`
	Hardware Hardware      `json:"hardware"`
}

// NewDeviceInfo builds a DeviceInfo and looks up the model's hardware.
func NewDeviceInfo(make Make, model Model, firmware Firmware, algo HashAlgorithm) DeviceInfo {
	return DeviceInfo{
		Make:     make,
		Model:    model,
		Firmware: firmware,
		Algo:     algo,
		Hardware: HardwareFor(model),
	}
}

// ChipData is a single ASIC on a hashboard.
type ChipData struct {
	Position    int       `json:"position"`
	Hashrate    *HashRate `json:"hashrate,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Voltage     *float64  `json:"voltage,omitempty"`
	Frequency   *float64  `json:"frequency,omitempty"`
	Tuned       *bool     `json:"tuned,omitempty"`
	Working     *bool     `json:"working,omitempty"`
}

// BoardData is one hashboard.
type BoardData struct {
	Position          int        `json:"position"`
	Hashrate          *HashRate  `json:"hashrate,omitempty"`
	ExpectedHashrate  *HashRate  `json:"expected_hashrate,omitempty"`
	BoardTemperature  *float64   `json:"board_temperature,omitempty"`
	IntakeTemperature *float64   `json:"intake_temperature,omitempty"`
	OutletTemperature *float64   `json:"outlet_temperature,omitempty"`
	ExpectedChips     *int       `json:"expected_chips,omitempty"`
	WorkingChips      *int       `json:"working_chips,omitempty"`
	SerialNumber      *string    `json:"serial_number,omitempty"`
	Chips             []ChipData `json:"chips"`
	Voltage           *float64   `json:"voltage,omitempty"`
	Frequency         *float64   `json:"frequency,omitempty"`
	Tuned             *bool      `json:"tuned,omitempty"`
	Active            *bool      `json:"active,omitempty"`
}

// FanData is one fan reading. Position is zero-based.
type FanData struct {
	Position int     `json:"position"`
	RPM      float64 `json:"rpm"`
}

// PoolData is one configured pool.
type PoolData struct {
	Position       *int    `json:"position,omitempty"`
	URL            *string `json:"url,omitempty"`
	AcceptedShares *uint64 `json:"accepted_shares,omitempty"`
	RejectedShares *uint64 `json:"rejected_shares,omitempty"`
	Active         *bool   `json:"active,omitempty"`
	Alive          *bool   `json:"alive,omitempty"`
	User           *string `json:"user,omitempty"`
}

// Severity grades a miner message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Message is an error or status message reported by the miner.
type Message struct {
	Timestamp uint32   `json:"timestamp"`
	Code      uint64   `json:"code"`
	Text      string   `json:"message"`
	Severity  Severity `json:"severity"`
}

// MinerData is the normalized telemetry record of one miner.
type MinerData struct {
	SchemaVersion       string     `json:"schema_version"`
	Timestamp           int64      `json:"timestamp"`
	IP                  string     `json:"ip"`
	MAC                 *string    `json:"mac,omitempty"`
	DeviceInfo          DeviceInfo `json:"device_info"`
	SerialNumber        *string    `json:"serial_number,omitempty"`
	Hostname            *string    `json:"hostname,omitempty"`
	ApiVersion          *string    `json:"api_version,omitempty"`
	FirmwareVersion     *string    `json:"firmware_version,omitempty"`
	ControlBoardVersion *string    `json:"control_board_version,omitempty"`

	ExpectedHashboards *int        `json:"expected_hashboards,omitempty"`
	Hashboards         []BoardData `json:"hashboards"`
	Hashrate           *HashRate   `json:"hashrate,omitempty"`
	ExpectedHashrate   *HashRate   `json:"expected_hashrate,omitempty"`

	ExpectedChips *int `json:"expected_chips,omitempty"`
	TotalChips    *int `json:"total_chips,omitempty"`

	ExpectedFans *int      `json:"expected_fans,omitempty"`
	Fans         []FanData `json:"fans"`
	PsuFans      []FanData `json:"psu_fans"`

	AverageTemperature *float64 `json:"average_temperature,omitempty"`
	FluidTemperature   *float64 `json:"fluid_temperature,omitempty"`

	Wattage      *float64 `json:"wattage,omitempty"`
	WattageLimit *float64 `json:"wattage_limit,omitempty"`
	// Efficiency is watts per TH/s.
	Efficiency *float64 `json:"efficiency,omitempty"`

	LightFlashing *bool     `json:"light_flashing,omitempty"`
	Messages      []Message `json:"messages"`
	// Uptime is in seconds.
	Uptime   *uint64    `json:"uptime,omitempty"`
	IsMining bool       `json:"is_mining"`
	Pools    []PoolData `json:"pools"`
}

// NewMinerData starts a record for ip with the schema version and the
// current time filled in.
func NewMinerData(ip string, info DeviceInfo) *MinerData {
	return &MinerData{
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().Unix(),
		IP:            ip,
		DeviceInfo:    info,
		Hashboards:    []BoardData{},
		Fans:          []FanData{},
		PsuFans:       []FanData{},
		Messages:      []Message{},
		Pools:         []PoolData{},
	}
}

// Finalize fills the derived fields: expectations from the hardware table,
// chip totals and average temperature from the boards, and efficiency.
func (d *MinerData) Finalize() {
	hwInfo := d.DeviceInfo.Hardware
	if hwInfo.Boards != nil {
		d.ExpectedHashboards = Ptr(*hwInfo.Boards)
	}
	if hwInfo.Fans != nil {
		d.ExpectedFans = Ptr(*hwInfo.Fans)
	}
	if hwInfo.Chips != nil && hwInfo.Boards != nil {
		d.ExpectedChips = Ptr(*hwInfo.Chips * *hwInfo.Boards)
	}

	var (
		chips    int
		anyChips bool
		temps    []float64
	)
	for _, b := range d.Hashboards {
		if b.WorkingChips != nil {
			chips += *b.WorkingChips
			anyChips = true
		}
		if b.BoardTemperature != nil && *b.BoardTemperature > 0 {
			temps = append(temps, *b.BoardTemperature)
		}
	}
	if anyChips {
		d.TotalChips = Ptr(chips)
	}
	if avg, ok := Average(temps); ok {
		d.AverageTemperature = &avg
	}

	if d.Hashrate == nil {
		rates := make([]*HashRate, 0, len(d.Hashboards))
		for _, b := range d.Hashboards {
			rates = append(rates, b.Hashrate)
		}
		d.Hashrate = SumHashRates(rates...)
	}
	if d.Wattage != nil && d.Hashrate != nil {
		if th := d.Hashrate.As(UnitTeraHash).Value; th > 0 {
			eff := *d.Wattage / th
			d.Efficiency = &eff
		}
	}
}

// Average returns the mean of the non-zero values.
func Average(values []float64) (float64, bool) {
	var sum float64
	var n int
	for _, v := range values {
		if v == 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// FormatMAC upper-cases a MAC address and inserts ':' separators when the
// miner reports bare hex ("AABBCCDDEEFF").
func FormatMAC(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || strings.ContainsAny(s, ":-") {
		return strings.ReplaceAll(s, "-", ":")
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%2 == 0 {
			b.WriteByte(':')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
