package discovery

import (
	"time"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// Found is a miner located by a scan.
type Found struct {
	Identity *Identity `json:"identity"`

	// Data is the collected telemetry when the scan collects.
	Data *miner.MinerData `json:"data,omitempty"`
}

// ScanResult contains the results of a network scan.
type ScanResult struct {
	// ID identifies the scan.
	ID string `json:"id"`

	Target string  `json:"target"`
	Miners []Found `json:"miners"`

	// Errors contains per-host failures, keyed by IP.
	Errors map[string]string `json:"errors"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// ScannedIPs is the number of addresses in the target.
	ScannedIPs int `json:"scanned_ips"`

	// ResponsiveHosts is the number of hosts that passed the port check.
	ResponsiveHosts int `json:"responsive_hosts"`
}

// ScanOptions configures network scanning behavior.
type ScanOptions struct {
	// Concurrency is the maximum number of hosts handled at once (default: 25).
	Concurrency int

	// PortTimeout bounds each port check connection (default: 1s).
	PortTimeout time.Duration

	// PortCheck runs a TCP reachability pass before discovery.
	PortCheck bool

	// Collect fetches telemetry from every identified miner.
	Collect bool
}

// DefaultScanOptions returns the default scan options.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Concurrency: 25,
		PortTimeout: time.Second,
		PortCheck:   true,
		Collect:     false,
	}
}
