package avalon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

func TestParseStats(t *testing.T) {
	got := ParseStats("Ver[1066-22] GHSmm[54321.5] Fan1[3120] Fan2[3060] PVT_T0[0 75 77 0] Led[0]")
	want := Stats{
		"Ver":    {"1066-22"},
		"GHSmm":  {"54321.5"},
		"Fan1":   {"3120"},
		"Fan2":   {"3060"},
		"PVT_T0": {"0", "75", "77", "0"},
		"Led":    {"0"},
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}

	if len(ParseStats("no brackets here")) != 0 {
		t.Error("expected no stats from plain text")
	}
}

func TestBareFanKey(t *testing.T) {
	got := fanData(ParseStats("Fan[5000]"), miner.Hardware{})
	want := []miner.FanData{{Position: 0, RPM: 5000}}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}

	got = fanData(ParseStats("Fan1[3120] Fan2[3060] FanR[40%]"), miner.Hardware{})
	want = []miner.FanData{{Position: 0, RPM: 3120}, {Position: 1, RPM: 3060}}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestFanIndexOutOfRange(t *testing.T) {
	fields := collector.FieldMap{miner.FieldFans: "Fan1[5000] Fan4000000000[10]"}

	done := make(chan *miner.MinerData, 1)
	go func() {
		m := New("10.0.0.5", miner.ParseModel(miner.MakeAvalonMiner, "Avalon 1066"), fakeClient(nil))
		done <- m.Parse(fields)
	}()

	select {
	case data := <-done:
		want := []miner.FanData{{Position: 0, RPM: 5000}}
		if diff := deep.Equal(data.Fans, want); diff != nil {
			t.Error(diff)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Parse did not return for a large fan index")
	}

	// Without a known fan count every reported fan is kept, in order.
	got := fanData(ParseStats("Fan4000000000[10] Fan1[5000]"), miner.Hardware{})
	want := []miner.FanData{{Position: 0, RPM: 5000}, {Position: 3999999999, RPM: 10}}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

const mmID0 = "Ver[1066-22] Elapsed[3600] Fan1[3120] Fan2[3060] GHSmm[54000] " +
	"Temp[25] MPO[3300] WALLPOWER[3250] Led[1] " +
	"MGHS[18000 18100 17900] HBITemp[70 72 71] ITemp[30 31 32]"

func fixtures() map[miner.Command]any {
	return map[miner.Command]any{
		cmdVersion: map[string]any{
			"VERSION": []any{map[string]any{"MAC": "b4a2eb3f1c2d", "API": "3.7", "CGMiner": "4.11.1", "PROD": "AVALON1066-22"}},
		},
		cmdDevs: map[string]any{
			"DEVS": []any{map[string]any{"MHS 5m": 54000000.0}},
		},
		cmdStats: map[string]any{
			"STATS": []any{
				map[string]any{"STATS": 0.0, "ID": "AVA100", "Elapsed": 3600.0, "MM ID0": mmID0},
			},
		},
		cmdPools: map[string]any{
			"POOLS": []any{
				map[string]any{"POOL": 0.0, "URL": "stratum+tcp://pool.example:3333", "User": "acct.worker", "Status": "Alive", "Accepted": 10.0, "Rejected": 1.0},
				map[string]any{"POOL": 1.0, "URL": "", "Status": "Dead"},
			},
		},
	}
}

func fakeClient(responses map[miner.Command]any) miner.Client {
	return miner.ClientFunc(func(_ context.Context, cmd miner.Command) (any, error) {
		doc, ok := responses[cmd]
		if !ok {
			return nil, errors.New("no fixture")
		}
		return doc, nil
	})
}

func TestGetData(t *testing.T) {
	model := miner.ParseModel(miner.MakeAvalonMiner, "AVALON1066-22")
	if model.Name != "Avalon 1066" {
		t.Fatalf("model = %q", model.Name)
	}

	m := New("10.0.0.5", model, fakeClient(fixtures()))
	data := m.GetData(context.Background())

	if data.MAC == nil || *data.MAC != "B4:A2:EB:3F:1C:2D" {
		t.Errorf("MAC = %v", data.MAC)
	}
	if data.ApiVersion == nil || *data.ApiVersion != "3.7" {
		t.Errorf("ApiVersion = %v", data.ApiVersion)
	}
	if data.Hashrate == nil || data.Hashrate.Value != 54 || data.Hashrate.Unit != miner.UnitTeraHash {
		t.Errorf("Hashrate = %+v", data.Hashrate)
	}
	if data.ExpectedHashrate == nil || data.ExpectedHashrate.Value != 54 {
		t.Errorf("ExpectedHashrate = %+v", data.ExpectedHashrate)
	}
	if data.Wattage == nil || *data.Wattage != 3250 {
		t.Errorf("Wattage = %v", data.Wattage)
	}
	if data.WattageLimit == nil || *data.WattageLimit != 3300 {
		t.Errorf("WattageLimit = %v", data.WattageLimit)
	}
	if data.FluidTemperature == nil || *data.FluidTemperature != 25 {
		t.Errorf("FluidTemperature = %v", data.FluidTemperature)
	}
	if data.LightFlashing == nil || !*data.LightFlashing {
		t.Errorf("LightFlashing = %v", data.LightFlashing)
	}
	if data.Uptime == nil || *data.Uptime != 3600 {
		t.Errorf("Uptime = %v", data.Uptime)
	}
	if !data.IsMining {
		t.Error("expected IsMining")
	}

	wantFans := []miner.FanData{{Position: 0, RPM: 3120}, {Position: 1, RPM: 3060}}
	if diff := deep.Equal(data.Fans, wantFans); diff != nil {
		t.Error(diff)
	}

	if len(data.Hashboards) != 3 {
		t.Fatalf("hashboards = %d", len(data.Hashboards))
	}
	b1 := data.Hashboards[1]
	if b1.Hashrate == nil || b1.Hashrate.Value != 18.1 {
		t.Errorf("board 1 hashrate = %+v", b1.Hashrate)
	}
	if b1.BoardTemperature == nil || *b1.BoardTemperature != 72 {
		t.Errorf("board 1 temp = %v", b1.BoardTemperature)
	}
	if b1.Active == nil || !*b1.Active {
		t.Error("board 1 should be active")
	}
	if data.AverageTemperature == nil || *data.AverageTemperature != 71 {
		t.Errorf("AverageTemperature = %v", data.AverageTemperature)
	}

	if len(data.Pools) != 1 {
		t.Fatalf("pools = %+v", data.Pools)
	}
	p := data.Pools[0]
	if *p.URL != "stratum+tcp://pool.example:3333" || !*p.Alive || *p.AcceptedShares != 10 {
		t.Errorf("pool = %+v", p)
	}
}

func TestGetDataMissingCommands(t *testing.T) {
	responses := fixtures()
	delete(responses, cmdStats)

	data := New("10.0.0.5", miner.ParseModel(miner.MakeAvalonMiner, "Avalon 1066"), fakeClient(responses)).
		GetData(context.Background())

	if data.MAC == nil {
		t.Error("version data should survive a failed stats command")
	}
	if len(data.Fans) != 0 || data.Wattage != nil {
		t.Errorf("stats-derived fields should be empty: %+v", data)
	}
	if len(data.Hashboards) != 3 {
		t.Errorf("expected placeholder boards, got %d", len(data.Hashboards))
	}
	for _, b := range data.Hashboards {
		if b.Active == nil || *b.Active {
			t.Errorf("board %d should be inactive", b.Position)
		}
	}
}

func TestHBInfoWorkingChips(t *testing.T) {
	stats := []any{
		map[string]any{"ID": "AVA100"},
		map[string]any{
			"ID":             "AVALON0",
			"MM ID0:Summary": "MGHS[4.2] HBITemp[55] ITemp[28]",
			"HBinfo":         "PVT_T0[0 61 62 63 0 64]",
		},
	}
	boards := parseHashboards(stats, miner.HardwareFor(miner.ParseModel(miner.MakeAvalonMiner, "Avalon Nano 3s")))
	if len(boards) != 1 {
		t.Fatalf("boards = %d", len(boards))
	}
	if boards[0].WorkingChips == nil || *boards[0].WorkingChips != 4 {
		t.Errorf("WorkingChips = %v", boards[0].WorkingChips)
	}
	if boards[0].IntakeTemperature == nil || *boards[0].IntakeTemperature != 28 {
		t.Errorf("IntakeTemperature = %v", boards[0].IntakeTemperature)
	}
}

func TestLocationsExtract(t *testing.T) {
	responses := fixtures()
	for _, f := range []miner.DataField{miner.FieldMac, miner.FieldUptime, miner.FieldPools} {
		locs := Locations.Locations(f)
		if len(locs) == 0 {
			t.Fatalf("%s has no location", f)
		}
		if _, ok := locs[0].Extractor.Apply(responses[locs[0].Command]); !ok {
			t.Errorf("%s: %s did not resolve", f, locs[0].Extractor.Path)
		}
	}
	if v, _ := extract.Pointer(responses[cmdStats], "/STATS/0/MM ID0"); v != mmID0 {
		t.Error("MM ID0 pointer did not resolve")
	}
	var _ collector.Locator = Locations
}
