// Package stock reads Bitmain Antminers running stock firmware, combining
// the cgminer API with the digest-protected CGI web API.
package stock

// SystemInfo contains system information from get_system_info.cgi.
type SystemInfo struct {
	MinerType  string `json:"minertype"`
	MACAddr    string `json:"macaddr"`
	Hostname   string `json:"hostname"`
	IPAddress  string `json:"ipaddress"`
	SystemMode string `json:"system_mode"`

	SystemKernelVersion     string `json:"system_kernel_version"`
	SystemFilesystemVersion string `json:"system_filesystem_version"`

	// KS5/newer model fields
	FirmwareType string `json:"firmware_type"`
	Algorithm    string `json:"Algorithm"` // capital A in API
	Serinum      string `json:"serinum"`   // misspelled in API
}

// Chain contains per-chain information from stats.cgi.
type Chain struct {
	Index     int       `json:"index"`
	FreqAvg   float64   `json:"freq_avg"`
	RateIdeal float64   `json:"rate_ideal"`
	RateReal  float64   `json:"rate_real"`
	AsicNum   int       `json:"asic_num"`
	TempPIC   []float64 `json:"temp_pic"`
	TempPCB   []float64 `json:"temp_pcb"`
	TempChip  []float64 `json:"temp_chip"`
	HW        int       `json:"hw"`
	SN        string    `json:"sn"`
}

// StatusItem is one health check from summary.cgi.
type StatusItem struct {
	Type   string `json:"type"`   // "rate", "network", "fans", "temp"
	Status string `json:"status"` // "s" = success, "w" = warning, "e" = error
	Code   uint64 `json:"code"`
	Msg    string `json:"msg"`
}
