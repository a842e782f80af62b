package stock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// digestServer serves get_system_info.cgi behind digest auth for root:root.
func digestServer(t *testing.T) *httptest.Server {
	t.Helper()
	const realm, nonce = "antMiner Configuration", "5f1a2b3c"

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		challenge := func() {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth"`, realm, nonce))
			w.WriteHeader(http.StatusUnauthorized)
		}

		c := parseAuthorization(r.Header.Get("Authorization"))
		if c == nil {
			challenge()
			return
		}
		ha1 := md5Hex("root:" + realm + ":root")
		ha2 := md5Hex(r.Method + ":" + c["uri"])
		want := md5Hex(strings.Join([]string{ha1, nonce, c["nc"], c["cnonce"], c["qop"], ha2}, ":"))
		if c["response"] != want {
			challenge()
			return
		}

		switch r.URL.Path {
		case "/cgi-bin/get_system_info.cgi":
			w.Write([]byte(`{"minertype":"Antminer S19 Pro","macaddr":"02:11:22:33:44:55","hostname":"Antminer","system_filesystem_version":"Mon Jul 15 2024"}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func parseAuthorization(h string) map[string]string {
	params, ok := strings.CutPrefix(h, "Digest ")
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(params, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		out[k] = strings.Trim(v, `"`)
	}
	return out
}

func TestProbeWithDigestAuth(t *testing.T) {
	srv := digestServer(t)
	defer srv.Close()

	p := NewProber(nil, WithClientOptions(WithBaseURL(srv.URL+"/cgi-bin")))
	model, version, err := p.Probe(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if diff := deep.Equal(model, miner.Model{Make: miner.MakeAntMiner, Name: "S19 Pro"}); diff != nil {
		t.Error(diff)
	}
	if version != "Mon Jul 15 2024" {
		t.Errorf("version = %q", version)
	}
}

func TestProbeWrongPassword(t *testing.T) {
	srv := digestServer(t)
	defer srv.Close()

	p := NewProber(NewDigestAuthWithCredentials("root", "wrong"), WithClientOptions(WithBaseURL(srv.URL+"/cgi-bin")))
	_, _, err := p.Probe(context.Background(), "ignored")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestDigestChallengeCached(t *testing.T) {
	srv := digestServer(t)
	defer srv.Close()

	var calls int
	counting := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return http.DefaultTransport.RoundTrip(r)
	})

	auth := NewDigestAuth()
	c := NewClient("ignored", auth, WithBaseURL(srv.URL+"/cgi-bin"), WithTransport(counting))
	for i := 0; i < 2; i++ {
		if _, err := c.GetSystemInfo(context.Background()); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	// One challenge round trip, then two authenticated requests.
	if calls != 3 {
		t.Errorf("round trips = %d, want 3", calls)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestParseDigestChallenge(t *testing.T) {
	c := parseDigestChallenge(`Digest realm="antMiner Configuration", nonce="abc", qop="auth,auth-int", opaque="xyz"`)
	want := &digestChallenge{Realm: "antMiner Configuration", Nonce: "abc", QOP: "auth", Opaque: "xyz"}
	if diff := deep.Equal(c, want); diff != nil {
		t.Error(diff)
	}
	if parseDigestChallenge(`Basic realm="x"`) != nil {
		t.Error("basic challenge should not parse")
	}
}

func fixtures() map[miner.Command]any {
	return map[miner.Command]any{
		cmdSystemInfo: map[string]any{"macaddr": "02:11:22:33:44:55", "hostname": "Antminer", "serinum": "SN123"},
		cmdBlink:      map[string]any{"blink": false},
		cmdMinerConf:  map[string]any{"bitmain-work-mode": "0"},
		cmdWebStats: map[string]any{"STATS": []any{map[string]any{"chain": []any{
			map[string]any{"index": 0.0, "rate_real": 36000.0, "rate_ideal": 36500.0, "asic_num": 114.0, "temp_pcb": []any{60.0, 62.0, 0.0, 64.0}, "sn": "B1"},
			map[string]any{"index": 1.0, "rate_real": 35000.0, "rate_ideal": 36500.0, "asic_num": 110.0, "temp_pcb": []any{58.0, 0.0, 0.0, 62.0}},
		}}}},
		cmdWebSummary: map[string]any{"SUMMARY": []any{map[string]any{"status": []any{
			map[string]any{"type": "rate", "status": "s", "code": 0.0, "msg": ""},
			map[string]any{"type": "fans", "status": "e", "code": 201.0, "msg": "fan lost"},
		}}}},
		cmdVersion: map[string]any{"VERSION": []any{map[string]any{"API": "3.1", "CompileTime": "Mon Jul 15 2024"}}},
		cmdSummary: map[string]any{"SUMMARY": []any{map[string]any{"GHS 5s": 71000.0, "Power Limit": 3600.0}}},
		cmdStats: map[string]any{"STATS": []any{
			map[string]any{"BMMiner": "1.0.0"},
			map[string]any{"Elapsed": 7200.0, "total_rateideal": 73000.0, "fan1": 5400.0, "fan2": 5460.0, "fan3": 0.0, "fan4": 5300.0, "chain_power": "3250 W"},
		}},
		cmdPools: map[string]any{"POOLS": []any{
			map[string]any{"URL": "stratum+tcp://pool:3333", "User": "w", "Status": "Alive", "Stratum Active": true, "Accepted": 5.0, "Rejected": 0.0},
		}},
	}
}

func TestGetData(t *testing.T) {
	responses := fixtures()
	client := miner.ClientFunc(func(_ context.Context, cmd miner.Command) (any, error) {
		if doc, ok := responses[cmd]; ok {
			return doc, nil
		}
		return nil, errors.New("no fixture")
	})

	m := New("10.0.0.9", miner.ParseModel(miner.MakeAntMiner, "Antminer S19 Pro"), client)
	data := m.GetData(context.Background())

	if data.Hashrate == nil || data.Hashrate.Value != 71 {
		t.Errorf("Hashrate = %+v", data.Hashrate)
	}
	if data.ExpectedHashrate == nil || data.ExpectedHashrate.Value != 73 {
		t.Errorf("ExpectedHashrate = %+v", data.ExpectedHashrate)
	}
	if data.Wattage == nil || *data.Wattage != 3250 {
		t.Errorf("Wattage = %v", data.Wattage)
	}
	if data.WattageLimit == nil || *data.WattageLimit != 3600 {
		t.Errorf("WattageLimit = %v", data.WattageLimit)
	}
	wantFans := []miner.FanData{{Position: 0, RPM: 5400}, {Position: 1, RPM: 5460}, {Position: 3, RPM: 5300}}
	if diff := deep.Equal(data.Fans, wantFans); diff != nil {
		t.Error(diff)
	}
	if len(data.Hashboards) != 2 {
		t.Fatalf("hashboards = %d", len(data.Hashboards))
	}
	if temp := data.Hashboards[0].BoardTemperature; temp == nil || *temp != 62 {
		t.Errorf("board 0 temperature = %v", temp)
	}
	if data.TotalChips == nil || *data.TotalChips != 224 {
		t.Errorf("TotalChips = %v", data.TotalChips)
	}
	if data.ExpectedChips == nil || *data.ExpectedChips != 342 {
		t.Errorf("ExpectedChips = %v", data.ExpectedChips)
	}
	wantMsgs := []miner.Message{{Code: 201, Text: "fan lost", Severity: miner.SeverityError}}
	if diff := deep.Equal(data.Messages, wantMsgs); diff != nil {
		t.Error(diff)
	}
	if !data.IsMining {
		t.Error("expected IsMining")
	}
	if data.LightFlashing == nil || *data.LightFlashing {
		t.Errorf("LightFlashing = %v", data.LightFlashing)
	}
	if data.SerialNumber == nil || *data.SerialNumber != "SN123" {
		t.Errorf("SerialNumber = %v", data.SerialNumber)
	}
	if len(data.Pools) != 1 || !*data.Pools[0].Active {
		t.Errorf("pools = %+v", data.Pools)
	}
}

func TestGetDataSleeping(t *testing.T) {
	responses := fixtures()
	responses[cmdMinerConf] = map[string]any{"bitmain-work-mode": "1"}
	delete(responses, cmdWebStats)

	client := miner.ClientFunc(func(_ context.Context, cmd miner.Command) (any, error) {
		if doc, ok := responses[cmd]; ok {
			return doc, nil
		}
		return nil, errors.New("no fixture")
	})
	data := New("10.0.0.9", miner.ParseModel(miner.MakeAntMiner, "S19 Pro"), client).GetData(context.Background())

	if data.IsMining {
		t.Error("sleep mode should not count as mining")
	}
	if len(data.Hashboards) != 3 {
		t.Fatalf("expected 3 placeholder boards, got %d", len(data.Hashboards))
	}
	for _, b := range data.Hashboards {
		if *b.Active {
			t.Errorf("board %d active without chain data", b.Position)
		}
	}
}

func TestHydroTemperatures(t *testing.T) {
	chains := []Chain{
		{Index: 0, RateReal: 1000, TempPCB: []float64{30, 50, 40, 52}, TempPIC: []float64{0, 60, 62, 64}},
	}
	boards := parseHashboards(chains, miner.Hardware{}, true)
	b := boards[0]
	if *b.IntakeTemperature != 30 || *b.OutletTemperature != 40 {
		t.Errorf("intake/outlet = %v/%v", *b.IntakeTemperature, *b.OutletTemperature)
	}
	if *b.BoardTemperature != 57.6 {
		t.Errorf("board temperature = %v", *b.BoardTemperature)
	}
	if f := fluidTemperature(chains); f == nil || *f != 35 {
		t.Errorf("fluid temperature = %v", f)
	}
}
