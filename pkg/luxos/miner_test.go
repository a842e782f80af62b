package luxos

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/phayes/freeport"

	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
)

const statusOK = `{"STATUS":"S","When":1700000000,"Code":1,"Msg":"ok"}`

var replies = map[string]string{
	"version": `{"STATUS":[` + statusOK + `],"VERSION":[{"API":"3.7","Miner":"2024.10.2.201542-1b3c8a","Type":"Antminer S19j Pro"}]}`,
	"config":  `{"STATUS":[` + statusOK + `],"CONFIG":[{"MACAddr":"02:10:20:30:40:50","Hostname":"lux-12","SerialNumber":"YNAHA1234","RedLed":"blink"}]}`,
	"summary": `{"STATUS":[` + statusOK + `],"SUMMARY":[{"GHS 5s":98500.0,"Elapsed":7200}]}`,
	"stats": `{"STATUS":[` + statusOK + `],"STATS":[{"STATS":0,"ID":"luxminer"},{"STATS":1,"Elapsed":7200,"total_rateideal":100000.0,` +
		`"chain_rate1":33000.0,"chain_acn1":126,"temp_pcb1":"45-47-0-49","temp_chip1":"60-62-64-0","freq1":525,` +
		`"chain_rate2":32500.0,"chain_acn2":126,"temp_pcb2":"46-48-50-52","chain_rate3":33000.0,"chain_acn3":125}]}`,
	"pools":    `{"STATUS":[` + statusOK + `],"POOLS":[{"POOL":0,"URL":"stratum+tcp://lux.example:700","User":"acct.lux12","Status":"Alive","Stratum Active":true,"Accepted":500,"Rejected":3}]}`,
	"fans":     `{"STATUS":[` + statusOK + `],"FANS":[{"ID":0,"RPM":4200},{"ID":1,"RPM":4260},{"ID":2,"RPM":4180},{"ID":3,"RPM":4300}]}`,
	"power":    `{"STATUS":[` + statusOK + `],"POWER":[{"Watts":3050}]}`,
	"profiles": `{"STATUS":[` + statusOK + `],"PROFILES":[{"Profile Name":"default","Power":3250,"Active":false},{"Profile Name":"+1","Power":3400,"Active":true}]}`,
}

// fakeLuxMiner answers cgminer commands from replies and counts them.
func fakeLuxMiner(t *testing.T) (int, func(string) int) {
	t.Helper()
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("freeport: %v", err)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var mu sync.Mutex
	calls := make(map[string]int)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				conn.SetDeadline(time.Now().Add(2 * time.Second))
				var req struct {
					Command string `json:"command"`
				}
				if err := json.NewDecoder(conn).Decode(&req); err != nil {
					return
				}
				mu.Lock()
				calls[req.Command]++
				mu.Unlock()

				reply, ok := replies[req.Command]
				if !ok {
					reply = `{"STATUS":[{"STATUS":"E","Msg":"Invalid command"}]}`
				}
				conn.Write([]byte(reply + "\x00"))
			}(conn)
		}
	}()

	count := func(cmd string) int {
		mu.Lock()
		defer mu.Unlock()
		return calls[cmd]
	}
	return port, count
}

func TestGetData(t *testing.T) {
	port, count := fakeLuxMiner(t)

	model := miner.ParseModelForFirmware(miner.FirmwareLuxOS, "Antminer S19j Pro")
	m := Dial("127.0.0.1", model, []rpc.ClientOption{rpc.WithPort(port), rpc.WithTimeout(time.Second)})
	data := m.GetData(context.Background())

	for cmd := range replies {
		if n := count(cmd); n != 1 {
			t.Errorf("%s sent %d times, want 1", cmd, n)
		}
	}

	if data.DeviceInfo.Model.Name != "S19j Pro" || data.DeviceInfo.Firmware != miner.FirmwareLuxOS {
		t.Errorf("device info = %+v", data.DeviceInfo)
	}
	if data.MAC == nil || *data.MAC != "02:10:20:30:40:50" {
		t.Errorf("mac = %v", data.MAC)
	}
	if data.Hashrate == nil || data.Hashrate.Value != 98.5 || data.Hashrate.Unit != miner.UnitTeraHash {
		t.Errorf("hashrate = %v", data.Hashrate)
	}
	if data.ExpectedHashrate == nil || data.ExpectedHashrate.Value != 100 {
		t.Errorf("expected hashrate = %v", data.ExpectedHashrate)
	}
	if !data.IsMining {
		t.Error("expected mining")
	}
	if data.Uptime == nil || *data.Uptime != 7200 {
		t.Errorf("uptime = %v", data.Uptime)
	}
	if data.Wattage == nil || *data.Wattage != 3050 {
		t.Errorf("wattage = %v", data.Wattage)
	}
	if data.WattageLimit == nil || *data.WattageLimit != 3400 {
		t.Errorf("wattage limit = %v", data.WattageLimit)
	}
	if data.LightFlashing == nil || !*data.LightFlashing {
		t.Errorf("light flashing = %v", data.LightFlashing)
	}
	if len(data.Fans) != 4 {
		t.Errorf("fans = %+v", data.Fans)
	}
	if len(data.Pools) != 1 || !*data.Pools[0].Active {
		t.Errorf("pools = %+v", data.Pools)
	}

	if len(data.Hashboards) != 3 {
		t.Fatalf("boards = %d", len(data.Hashboards))
	}
	b0 := data.Hashboards[0]
	if b0.BoardTemperature == nil || *b0.BoardTemperature != 47 {
		t.Errorf("board 0 temperature = %v", b0.BoardTemperature)
	}
	if b0.IntakeTemperature == nil || *b0.IntakeTemperature != 62 {
		t.Errorf("board 0 chip temperature = %v", b0.IntakeTemperature)
	}
	if b0.Frequency == nil || *b0.Frequency != 525 {
		t.Errorf("board 0 frequency = %v", b0.Frequency)
	}
	if data.TotalChips == nil || *data.TotalChips != 377 {
		t.Errorf("total chips = %v", data.TotalChips)
	}
	// Board 2 reports no temperature; the average covers boards 0 and 1.
	if data.AverageTemperature == nil || *data.AverageTemperature != 48 {
		t.Errorf("average temperature = %v", data.AverageTemperature)
	}
}

func TestDashedAverage(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"40-42-0-44", 42, true},
		{"0-0-0", 0, false},
		{"", 0, false},
		{"55", 55, true},
	}
	for _, tt := range tests {
		got, ok := dashedAverage(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("dashedAverage(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMessages(t *testing.T) {
	status := []any{
		map[string]any{"STATUS": "S", "Msg": "Summary"},
		map[string]any{"STATUS": "W", "Msg": "Fan 2 slow"},
		map[string]any{"STATUS": "E"},
	}
	want := []miner.Message{
		{Code: 1, Text: "Fan 2 slow", Severity: miner.SeverityWarning},
		{Code: 2, Text: "Unknown error", Severity: miner.SeverityError},
	}
	if diff := deep.Equal(parseMessages(status), want); diff != nil {
		t.Error(diff)
	}
}

func TestGetDataUnreachable(t *testing.T) {
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("freeport: %v", err)
	}
	m := Dial("127.0.0.1", miner.Model{Make: miner.MakeAntMiner}, []rpc.ClientOption{rpc.WithPort(port), rpc.WithTimeout(200 * time.Millisecond)})
	data := m.GetData(context.Background())

	if data.Hashrate != nil || data.IsMining {
		t.Errorf("unreachable miner reported data: %+v", data)
	}
	if len(data.Hashboards) != 3 {
		t.Errorf("expected placeholder boards, got %d", len(data.Hashboards))
	}
}
