package database

import (
	"strings"
	"time"

	"github.com/powerhive/minerprobe/pkg/miner"
)

const ipKeyPrefix = "ip:"

// MinerKey returns the storage key of a record: its MAC address, or
// "ip:<address>" when the miner did not report one.
func MinerKey(data *miner.MinerData) string {
	if data.MAC != nil && *data.MAC != "" {
		return miner.FormatMAC(*data.MAC)
	}
	return ipKeyPrefix + data.IP
}

func normalizeKey(key string) string {
	if strings.HasPrefix(key, ipKeyPrefix) {
		return key
	}
	return miner.FormatMAC(key)
}

// MinerFromData maps the identity part of a record to a Miner row.
func MinerFromData(data *miner.MinerData) *Miner {
	m := &Miner{
		MACAddress:      MinerKey(data),
		IPAddress:       data.IP,
		Hostname:        data.Hostname,
		SerialNumber:    data.SerialNumber,
		Make:            string(data.DeviceInfo.Make),
		FirmwareType:    string(data.DeviceInfo.Firmware),
		FirmwareVersion: data.FirmwareVersion,
	}
	if data.DeviceInfo.Model.Known() {
		m.Model = miner.Ptr(data.DeviceInfo.Model.Name)
	}
	return m
}

// SnapshotFromData fills the summary columns of a snapshot. Hash rates are
// stored in TH/s whatever unit the miner reported.
func SnapshotFromData(data *miner.MinerData) *Snapshot {
	s := &Snapshot{
		IPAddress:  data.IP,
		TakenAt:    time.Unix(data.Timestamp, 0).UTC(),
		IsMining:   data.IsMining,
		Wattage:    data.Wattage,
		Efficiency: data.Efficiency,
		AvgTemp:    data.AverageTemperature,
		Data:       data,
	}
	if data.Timestamp == 0 {
		s.TakenAt = time.Now().UTC().Truncate(time.Second)
	}
	if data.Hashrate != nil {
		s.HashrateTHs = miner.Ptr(data.Hashrate.As(miner.UnitTeraHash).Value)
	}
	if data.ExpectedHashrate != nil {
		s.ExpectedTHs = miner.Ptr(data.ExpectedHashrate.As(miner.UnitTeraHash).Value)
	}
	return s
}
