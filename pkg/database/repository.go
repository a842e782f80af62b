package database

import (
	"context"
	"time"

	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// Repository defines the interface for miner data storage.
type Repository interface {
	// Database lifecycle
	Close() error

	// Miners
	GetMinerByMAC(ctx context.Context, mac string) (*Miner, error)
	GetMinerByIP(ctx context.Context, ip string) (*Miner, error)
	ListMiners(ctx context.Context) ([]*Miner, error)
	UpsertMiner(ctx context.Context, m *Miner) error
	DeleteMiner(ctx context.Context, id int64) error

	// Snapshots
	SaveSnapshot(ctx context.Context, data *miner.MinerData, scanID string) (*Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	History(ctx context.Context, mac string, limit int) ([]*Snapshot, error)
	HistoryRange(ctx context.Context, mac string, from, to time.Time) ([]*Snapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)

	// Scans
	SaveScan(ctx context.Context, res *discovery.ScanResult) error
	GetScan(ctx context.Context, id string) (*discovery.ScanResult, error)
	ListScans(ctx context.Context, limit int) ([]*Scan, error)
}

// SaveScanWithSnapshots stores a scan and a snapshot for every miner it
// collected telemetry from.
func SaveScanWithSnapshots(ctx context.Context, repo Repository, res *discovery.ScanResult) (int, error) {
	if err := repo.SaveScan(ctx, res); err != nil {
		return 0, err
	}
	saved := 0
	for _, f := range res.Miners {
		if f.Data == nil {
			continue
		}
		if _, err := repo.SaveSnapshot(ctx, f.Data, res.ID); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}
