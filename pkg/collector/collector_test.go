package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// mockClient answers from a fixed table and counts calls per command.
type mockClient struct {
	mu        sync.Mutex
	responses map[miner.Command]any
	fail      map[miner.Command]bool
	calls     map[miner.Command]int
}

func newMockClient() *mockClient {
	return &mockClient{
		responses: make(map[miner.Command]any),
		fail:      make(map[miner.Command]bool),
		calls:     make(map[miner.Command]int),
	}
}

func (m *mockClient) Send(_ context.Context, cmd miner.Command) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[cmd]++
	if m.fail[cmd] {
		return nil, errors.New("connection refused")
	}
	doc, ok := m.responses[cmd]
	if !ok {
		return nil, errors.New("no response")
	}
	return doc, nil
}

var (
	cmdVersion = miner.RPC("version", nil)
	cmdSummary = miner.RPC("summary", nil)
	cmdStats   = miner.RPC("stats", nil)
)

func TestCollectDedupsCommands(t *testing.T) {
	client := newMockClient()
	client.responses[cmdVersion] = map[string]any{"VERSION": []any{map[string]any{"API": "3.7", "CGMiner": "4.11"}}}
	client.responses[cmdSummary] = map[string]any{"SUMMARY": []any{map[string]any{"GHS 5s": 95000.0, "Elapsed": 100.0}}}

	locs := LocationMap{
		miner.FieldApiVersion:      {At(cmdVersion, Pointer("/VERSION/0/API"))},
		miner.FieldFirmwareVersion: {At(cmdVersion, Pointer("/VERSION/0/CGMiner"))},
		miner.FieldHashrate:        {At(cmdSummary, Pointer("/SUMMARY/0/GHS 5s"))},
		miner.FieldUptime:          {At(cmdSummary, Pointer("/SUMMARY/0/Elapsed"))},
	}

	got := New(client, locs).CollectAll(context.Background())

	for cmd, n := range client.calls {
		if n != 1 {
			t.Errorf("%s sent %d times, want 1", cmd, n)
		}
	}
	if len(client.calls) != 2 {
		t.Errorf("sent %d distinct commands, want 2", len(client.calls))
	}

	want := FieldMap{
		miner.FieldApiVersion:      "3.7",
		miner.FieldFirmwareVersion: "4.11",
		miner.FieldHashrate:        95000.0,
		miner.FieldUptime:          100.0,
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestCollectSurvivesFailedCommand(t *testing.T) {
	client := newMockClient()
	client.fail[cmdVersion] = true
	client.responses[cmdSummary] = map[string]any{"SUMMARY": []any{map[string]any{"MAC": "aa:bb"}}}

	locs := LocationMap{
		miner.FieldApiVersion: {At(cmdVersion, Pointer("/VERSION/0/API"))},
		miner.FieldMac:        {At(cmdSummary, Pointer("/SUMMARY/0/MAC"))},
	}

	got := New(client, locs).Collect(context.Background(), miner.FieldApiVersion, miner.FieldMac)

	if _, ok := got[miner.FieldApiVersion]; ok {
		t.Error("field from failed command should be absent")
	}
	if mac, _ := got.String(miner.FieldMac); mac != "aa:bb" {
		t.Errorf("mac = %q", mac)
	}
}

func TestCollectMergesMultipleLocations(t *testing.T) {
	stratum := miner.Web("summary", "GET", nil)
	client := newMockClient()
	client.responses[stratum] = map[string]any{
		"Stratum": map[string]any{"Current Pool": "stratum+tcp://a", "Accepted": 10.0},
		"Session": map[string]any{"Accepted": 12.0, "Uptime": 500.0},
		"Fans":    map[string]any{"Fans Speed 0": 3000.0},
	}

	locs := LocationMap{
		miner.FieldPools: {
			At(stratum, Pointer("/Stratum")),
			At(stratum, Pointer("/Session")),
		},
		miner.FieldFans: {
			At(stratum, Tagged("/Fans", "speeds")),
			At(stratum, Pointer("/Session/Uptime")),
		},
	}

	got := New(client, locs).Collect(context.Background(), miner.FieldPools, miner.FieldFans)

	wantPools := map[string]any{"Current Pool": "stratum+tcp://a", "Accepted": 12.0, "Uptime": 500.0}
	if diff := deep.Equal(got[miner.FieldPools], any(wantPools)); diff != nil {
		t.Errorf("pools: %v", diff)
	}

	wantFans := map[string]any{"speeds": map[string]any{"Fans Speed 0": 3000.0}, "Uptime": 500.0}
	if diff := deep.Equal(got[miner.FieldFans], any(wantFans)); diff != nil {
		t.Errorf("fans: %v", diff)
	}
}

func TestCollectFlatKeyMerge(t *testing.T) {
	info := miner.RPC("get.device.info", nil)
	edevs := miner.RPC("get.miner.status", "edevs")
	client := newMockClient()
	client.responses[info] = map[string]any{"msg": map[string]any{"miner": map[string]any{"pcbsn0": "SN0"}}}
	client.responses[edevs] = map[string]any{"msg": map[string]any{"edevs": []any{map[string]any{"id": 0.0}}}}

	locs := LocationMap{
		miner.FieldHashboards: {
			At(info, Pointer("/msg/miner")),
			At(edevs, Key("msg")),
		},
	}

	got := New(client, locs).Collect(context.Background(), miner.FieldHashboards)
	obj, ok := got.Object(miner.FieldHashboards)
	if !ok {
		t.Fatalf("hashboards missing: %v", got)
	}
	if obj["pcbsn0"] != "SN0" {
		t.Errorf("pcbsn0 = %v", obj["pcbsn0"])
	}
	if _, ok := obj["edevs"]; !ok {
		t.Error("edevs not merged")
	}
}

func TestCollectUnsupportedFieldsAbsent(t *testing.T) {
	client := newMockClient()
	got := New(client, LocationMap{}).CollectAll(context.Background())
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
	if len(client.calls) != 0 {
		t.Errorf("no commands should be sent, got %v", client.calls)
	}
}

func TestCollectRunsConcurrently(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	client := miner.ClientFunc(func(ctx context.Context, cmd miner.Command) (any, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return map[string]any{}, nil
	})

	locs := LocationMap{
		miner.FieldMac:      {At(cmdVersion, Pointer(""))},
		miner.FieldHashrate: {At(cmdSummary, Pointer(""))},
		miner.FieldFans:     {At(cmdStats, Pointer(""))},
	}

	var observed int
	var obsMu sync.Mutex
	New(client, locs, WithObserver(func(miner.Command, time.Duration, error) {
		obsMu.Lock()
		observed++
		obsMu.Unlock()
	})).CollectAll(context.Background())

	if maxSeen < 2 {
		t.Errorf("commands were not issued concurrently (max in flight %d)", maxSeen)
	}
	if observed != 3 {
		t.Errorf("observer saw %d commands, want 3", observed)
	}
}

func TestFieldMapAccessors(t *testing.T) {
	m := FieldMap{
		miner.FieldWattage:       "3250 W",
		miner.FieldHostname:      "",
		miner.FieldLightFlashing: true,
		miner.FieldPools:         map[string]any{"url": "stratum+tcp://x"},
	}
	if p := m.FloatPtr(miner.FieldWattage); p == nil || *p != 3250 {
		t.Errorf("wattage = %v", p)
	}
	if p := m.StringPtr(miner.FieldHostname); p != nil {
		t.Errorf("empty hostname should be nil, got %q", *p)
	}
	if b, ok := m.Bool(miner.FieldLightFlashing); !ok || !b {
		t.Error("light flashing")
	}
	if v, ok := m.Nested(miner.FieldPools, "url"); !ok || v != "stratum+tcp://x" {
		t.Errorf("nested url = %v", v)
	}
	if _, ok := m.Value(miner.FieldUptime); ok {
		t.Error("absent field reported present")
	}
}
