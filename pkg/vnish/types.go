package vnish

import "encoding/json"

// UnlockRequest is the request body for authentication.
type UnlockRequest struct {
	Password string `json:"pw"`
}

// UnlockResponse contains the bearer token from authentication.
type UnlockResponse struct {
	Token string `json:"token"`
}

// NetworkStatus contains network configuration details.
type NetworkStatus struct {
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
}

// SystemInfo contains system-level information.
type SystemInfo struct {
	OS                string        `json:"os"`
	MinerName         string        `json:"miner_name"`
	FileSystemVersion string        `json:"file_system_version"`
	NetworkStatus     NetworkStatus `json:"network_status"`
	Uptime            string        `json:"uptime"`
}

// MinerInfo is the public /info document.
type MinerInfo struct {
	Miner     string     `json:"miner"`
	Model     string     `json:"model"`
	FWName    string     `json:"fw_name"`
	FWVersion string     `json:"fw_version"`
	Platform  string     `json:"platform"`
	Algorithm string     `json:"algorithm"`
	HRMeasure string     `json:"hr_measure"`
	System    SystemInfo `json:"system"`
	Serial    string     `json:"serial"`
}

// MinerStatus is the public /status document.
type MinerStatus struct {
	MinerState      string `json:"miner_state"`
	MinerStateTime  int    `json:"miner_state_time"`
	Description     string `json:"description"`
	FailureCode     uint64 `json:"failure_code"`
	FindMiner       bool   `json:"find_miner"`
	RestartRequired bool   `json:"restart_required"`
	RebootRequired  bool   `json:"reboot_required"`
	Unlocked        bool   `json:"unlocked"`
}

// TempRange contains min/max temperature values.
type TempRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Pool contains mining pool information.
type Pool struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	User     string `json:"user"`
	Status   string `json:"status"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Fan contains individual fan status (object format from newer VNish versions).
type Fan struct {
	ID     int    `json:"id"`
	RPM    int    `json:"rpm"`
	Status string `json:"status"`
	MaxRPM int    `json:"max_rpm"`
}

// FanData handles both VNish fan response formats:
// - Legacy: array of ints [5400, 5300, ...]
// - Modern: array of objects [{"rpm": 5400, "status": "ok"}, ...]
type FanData []Fan

// UnmarshalJSON implements custom unmarshaling for flexible fan data.
func (f *FanData) UnmarshalJSON(data []byte) error {
	var fans []Fan
	if err := json.Unmarshal(data, &fans); err == nil {
		*f = fans
		return nil
	}

	var rpms []int
	if err := json.Unmarshal(data, &rpms); err != nil {
		return err
	}

	*f = make([]Fan, len(rpms))
	for i, rpm := range rpms {
		status := "ok"
		if rpm == 0 {
			status = "failed"
		}
		(*f)[i] = Fan{ID: i, RPM: rpm, Status: status}
	}
	return nil
}

// ChipStatuses contains chip health status counts.
type ChipStatuses struct {
	Red    int `json:"red"`
	Orange int `json:"orange"`
	Grey   int `json:"grey"`
}

// ChainStatus contains chain operational state.
type ChainStatus struct {
	State string `json:"state"`
}

// Chain contains mining chain (board) information.
type Chain struct {
	ID            int          `json:"id"`
	Frequency     float64      `json:"frequency"`
	Voltage       float64      `json:"voltage"`
	HashrateIdeal float64      `json:"hashrate_ideal"`
	HashrateRT    float64      `json:"hashrate_rt"`
	PCBTemp       TempRange    `json:"pcb_temp"`
	ChipTemp      TempRange    `json:"chip_temp"`
	ChipStatuses  ChipStatuses `json:"chip_statuses"`
	Status        ChainStatus  `json:"status"`
	// Older firmware only.
	ChipCount int `json:"chip_count,omitempty"`
}

// ErrorResponse contains an error message from the API.
type ErrorResponse struct {
	Err string `json:"err"`
}
