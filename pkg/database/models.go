package database

import (
	"time"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// Miner is the stored identity of a device.
type Miner struct {
	ID              int64
	MACAddress      string
	IPAddress       string
	Hostname        *string
	SerialNumber    *string
	Make            string
	Model           *string
	FirmwareType    string
	FirmwareVersion *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSeenAt      time.Time
}

// Snapshot is one stored telemetry reading. The summary columns are
// denormalized from Data for range queries.
type Snapshot struct {
	ID          string           `json:"id"`
	MinerID     int64            `json:"miner_id"`
	ScanID      *string          `json:"scan_id,omitempty"`
	IPAddress   string           `json:"ip"`
	TakenAt     time.Time        `json:"taken_at"`
	IsMining    bool             `json:"is_mining"`
	HashrateTHs *float64         `json:"hashrate_ths,omitempty"`
	ExpectedTHs *float64         `json:"expected_ths,omitempty"`
	Wattage     *float64         `json:"wattage,omitempty"`
	Efficiency  *float64         `json:"efficiency,omitempty"`
	AvgTemp     *float64         `json:"avg_temp,omitempty"`
	Data        *miner.MinerData `json:"data"`
}

// Scan is a stored network scan summary.
type Scan struct {
	ID              string            `json:"id"`
	Target          string            `json:"target"`
	StartedAt       time.Time         `json:"started_at"`
	Duration        time.Duration     `json:"duration"`
	ScannedIPs      int               `json:"scanned_ips"`
	ResponsiveHosts int               `json:"responsive_hosts"`
	MinersFound     int               `json:"miners_found"`
	Errors          map[string]string `json:"errors"`

	// Result is the full scan result as JSON.
	Result []byte `json:"-"`
}
