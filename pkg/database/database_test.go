package database

import (
	"context"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/miner"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleData(ip, mac string, ts int64, ths float64) *miner.MinerData {
	model := miner.ParseModel(miner.MakeAntMiner, "S19J PRO")
	data := miner.NewMinerData(ip, miner.NewDeviceInfo(miner.MakeAntMiner, model, miner.FirmwareStock, miner.AlgoSHA256))
	data.Timestamp = ts
	if mac != "" {
		data.MAC = miner.Ptr(mac)
	}
	data.Hostname = miner.Ptr("rig-01")
	hr := miner.NewHashRate(ths*1000, miner.UnitGigaHash)
	data.Hashrate = &hr
	data.Wattage = miner.Ptr(3050.0)
	data.IsMining = true
	data.Fans = []miner.FanData{{Position: 0, RPM: 5000}}
	data.Finalize()
	return data
}

func TestMigrateIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	if err := repo.DB().QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}
}

func TestSaveSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	data := sampleData("10.0.0.5", "aabbccddeeff", 1700000000, 104.5)
	s, err := repo.SaveSnapshot(ctx, data, "scan-1")
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if s.ID == "" || s.MinerID == 0 {
		t.Fatalf("snapshot not keyed: %+v", s)
	}
	if s.HashrateTHs == nil || *s.HashrateTHs != 104.5 {
		t.Errorf("hashrate_ths = %v, want 104.5", s.HashrateTHs)
	}

	got, err := repo.GetSnapshot(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("snapshot not found")
	}
	if !got.TakenAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("taken_at = %v", got.TakenAt)
	}
	if got.ScanID == nil || *got.ScanID != "scan-1" {
		t.Errorf("scan_id = %v", got.ScanID)
	}
	if diff := deep.Equal(got.Data, data); diff != nil {
		t.Error(diff)
	}

	m, err := repo.GetMinerByMAC(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("miner not stored")
	}
	if m.Model == nil || *m.Model != data.DeviceInfo.Model.Name {
		t.Errorf("model = %v", m.Model)
	}
	if m.FirmwareType != string(miner.FirmwareStock) {
		t.Errorf("firmware = %q", m.FirmwareType)
	}
}

func TestHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, ths := range []float64{100, 101, 102} {
		data := sampleData("10.0.0.5", "AA:BB:CC:DD:EE:FF", 1700000000+int64(i)*60, ths)
		if _, err := repo.SaveSnapshot(ctx, data, ""); err != nil {
			t.Fatal(err)
		}
	}
	// Same MAC on a new address: still one miner.
	moved := sampleData("10.0.0.9", "aa-bb-cc-dd-ee-ff", 1700000300, 103)
	if _, err := repo.SaveSnapshot(ctx, moved, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.SaveSnapshot(ctx, sampleData("10.0.0.6", "", 1700000000, 90), ""); err != nil {
		t.Fatal(err)
	}

	miners, err := repo.ListMiners(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(miners) != 2 {
		t.Fatalf("miners = %d, want 2", len(miners))
	}

	hist, err := repo.History(ctx, "aabbccddeeff", 2)
	if err != nil {
		t.Fatal(err)
	}
	var got []float64
	for _, s := range hist {
		got = append(got, *s.HashrateTHs)
	}
	if diff := deep.Equal(got, []float64{103, 102}); diff != nil {
		t.Error(diff)
	}

	all, err := repo.History(ctx, "AA:BB:CC:DD:EE:FF", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("history = %d snapshots, want 4", len(all))
	}

	byIP, err := repo.History(ctx, "ip:10.0.0.6", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(byIP) != 1 {
		t.Errorf("ip keyed history = %d snapshots, want 1", len(byIP))
	}

	m, err := repo.GetMinerByIP(ctx, "10.0.0.9")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.MACAddress != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("miner at new address = %+v", m)
	}

	window, err := repo.HistoryRange(ctx, "AA:BB:CC:DD:EE:FF", time.Unix(1700000060, 0), time.Unix(1700000120, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 2 || *window[0].HashrateTHs != 101 {
		t.Errorf("range = %d snapshots", len(window))
	}
}

func TestDeleteSnapshotsBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data := sampleData("10.0.0.5", "AA:BB:CC:DD:EE:FF", 1700000000+int64(i)*3600, 100)
		if _, err := repo.SaveSnapshot(ctx, data, ""); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.DeleteSnapshotsBefore(ctx, time.Unix(1700003600, 0))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
}

func TestScans(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	data := sampleData("10.0.0.5", "AA:BB:CC:DD:EE:FF", 1700000000, 100)
	res := &discovery.ScanResult{
		ID:     "5b0d6c1e-1111-4222-8333-944455556666",
		Target: "10.0.0.0/29",
		Miners: []discovery.Found{
			{Identity: &discovery.Identity{IP: "10.0.0.5", Make: miner.MakeAntMiner, Firmware: miner.FirmwareStock}, Data: data},
			{Identity: &discovery.Identity{IP: "10.0.0.4", Make: miner.MakeWhatsMiner, Firmware: miner.FirmwareStock}},
		},
		Errors:          map[string]string{"10.0.0.3": "no miner found"},
		StartedAt:       time.Unix(1700000000, 0).UTC(),
		Duration:        1500 * time.Millisecond,
		ScannedIPs:      6,
		ResponsiveHosts: 3,
	}

	saved, err := SaveScanWithSnapshots(ctx, repo, res)
	if err != nil {
		t.Fatalf("SaveScanWithSnapshots: %v", err)
	}
	if saved != 1 {
		t.Errorf("saved %d snapshots, want 1", saved)
	}

	got, err := repo.GetScan(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("scan not found")
	}
	if got.Target != res.Target || len(got.Miners) != 2 || got.Duration != res.Duration {
		t.Errorf("scan = %+v", got)
	}
	if diff := deep.Equal(got.Errors, res.Errors); diff != nil {
		t.Error(diff)
	}

	scans, err := repo.ListScans(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 1 || scans[0].MinersFound != 2 || scans[0].Duration != res.Duration {
		t.Errorf("scans = %+v", scans)
	}

	hist, err := repo.History(ctx, "AA:BB:CC:DD:EE:FF", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].ScanID == nil || *hist[0].ScanID != res.ID {
		t.Errorf("snapshot not linked to scan: %+v", hist)
	}

	missing, err := repo.GetScan(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetScan(unknown) = %v, %v", missing, err)
	}
}

func TestSaveSnapshotNil(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.SaveSnapshot(context.Background(), nil, ""); err != ErrNilData {
		t.Errorf("err = %v, want ErrNilData", err)
	}
}
