package whatsminer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-test/deep"
	"github.com/phayes/freeport"

	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
)

func TestParseFirmwareVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"20240912.17.REL", "2024.9.12", false},
		{"20230911.12.Rel", "2023.9.11", false},
		{"20241105", "2024.11.5", false},
		{"2024.11", "", true},
		{"", "", true},
		{"V20240912.17", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseFirmwareVersion(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadVersion) {
					t.Fatalf("err = %v, want ErrBadVersion", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if v.String() != tt.want {
				t.Errorf("version = %s, want %s", v, tt.want)
			}
		})
	}
}

func TestUsesV3(t *testing.T) {
	if UsesV3(semver.MustParse("2024.10.30")) {
		t.Error("2024.10.30 should use the BTMiner API")
	}
	if !UsesV3(semver.MustParse("2024.11.0")) {
		t.Error("2024.11.0 should use API v3")
	}
	if UsesV3(nil) {
		t.Error("nil version should use the BTMiner API")
	}
}

// serveFramed starts a fake API v3 service answering from replies, keyed
// by "cmd" or "cmd param".
func serveFramed(t *testing.T, replies map[string]string) int {
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

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				conn.SetDeadline(time.Now().Add(2 * time.Second))
				body, err := readFrame(conn)
				if err != nil {
					return
				}
				var req struct {
					Cmd   string `json:"cmd"`
					Param string `json:"param"`
				}
				if json.Unmarshal(body, &req) != nil {
					return
				}
				key := req.Cmd
				if req.Param != "" {
					key += " " + req.Param
				}
				reply, ok := replies[key]
				if !ok {
					reply = `{"code":-1,"when":0,"msg":"invalid command"}`
				}
				writeFrame(conn, []byte(reply))
			}(conn)
		}
	}()
	return port
}

var v3Replies = map[string]string{
	"get.device.info": `{"code":0,"when":1730000000,"msg":{
		"network":{"mac":"C4:08:28:00:AA:01","hostname":"wm-01"},
		"system":{"api":"3.0.1","fwversion":"20241105.22.REL","platform":"H6OS","ledstatus":"auto"},
		"miner":{"type":"M60SVK30","miner-sn":"HKM60S1","power-limit-set":"3600","pcbsn0":"PCB0","pcbsn1":"PCB1","pcbsn2":"PCB2"},
		"power":{"fanspeed":8200}}}`,
	"get.miner.status summary": `{"code":0,"when":1730000000,"msg":{"summary":{
		"elapsed":86400,"hash-realtime":172.5,"factory-hash":180,"power-realtime":3400,
		"environment-temperature":24.5,"fan-speed-in":4100,"fan-speed-out":4200}}}`,
	"get.miner.status pools": `{"code":0,"when":1730000000,"msg":{"pools":[
		{"id":1,"url":"stratum+tcp://wm.example:3333","account":"acct.wm01","status":"alive","stratum-active":true}]}}`,
	"get.miner.status edevs": `{"code":0,"when":1730000000,"msg":{"edevs":[
		{"id":0,"hash-average":57.5,"factory-hash":60,"chip-temp-min":60,"chip-temp-max":70,"freq":600,"effective-chips":156},
		{"id":1,"hash-average":57.5,"factory-hash":60,"chip-temp-min":62,"chip-temp-max":72,"freq":600,"effective-chips":156},
		{"id":2,"hash-average":57.5,"factory-hash":60,"chip-temp-min":64,"chip-temp-max":74,"freq":600,"effective-chips":155}]}}`,
}

func TestV3ClientErrorCode(t *testing.T) {
	port := serveFramed(t, v3Replies)
	c := NewV3Client("127.0.0.1", WithV3Port(port), WithV3Timeout(time.Second))

	doc, err := c.Send(context.Background(), cmdStatusSummary)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got := pointer(doc, "/msg/summary/elapsed"); got != 86400.0 {
		t.Errorf("elapsed = %v", got)
	}

	_, err = c.Send(context.Background(), miner.RPC("set.miner.power", nil))
	var statusErr *rpc.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestV3ClientRejectsHugeFrame(t *testing.T) {
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("freeport: %v", err)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		readFrame(conn)
		conn.Write([]byte{0xff, 0xff, 0xff, 0x7f})
	}()

	c := NewV3Client("127.0.0.1", WithV3Port(port), WithV3Timeout(time.Second))
	if _, err := c.Send(context.Background(), cmdDeviceInfo); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestV3GetData(t *testing.T) {
	port := serveFramed(t, v3Replies)
	model := miner.ParseModel(miner.MakeWhatsMiner, "M60SVK30")
	m := DialV3("127.0.0.1", model, []V3Option{WithV3Port(port), WithV3Timeout(time.Second)})
	data := m.GetData(context.Background())

	if data.DeviceInfo.Model.Name != "M60S" {
		t.Errorf("model = %+v", data.DeviceInfo.Model)
	}
	if data.MAC == nil || *data.MAC != "C4:08:28:00:AA:01" {
		t.Errorf("mac = %v", data.MAC)
	}
	if diff := deep.Equal(data.Hashrate, &miner.HashRate{Value: 172.5, Unit: miner.UnitTeraHash, Algo: miner.AlgoSHA256}); diff != nil {
		t.Errorf("hashrate: %v", diff)
	}
	if !data.IsMining {
		t.Error("expected mining")
	}
	if data.WattageLimit == nil || *data.WattageLimit != 3600 {
		t.Errorf("wattage limit = %v", data.WattageLimit)
	}
	if data.FluidTemperature == nil || *data.FluidTemperature != 24.5 {
		t.Errorf("fluid temperature = %v", data.FluidTemperature)
	}
	if data.LightFlashing == nil || *data.LightFlashing {
		t.Errorf("light flashing = %v", data.LightFlashing)
	}
	wantFans := []miner.FanData{{Position: 0, RPM: 4100}, {Position: 1, RPM: 4200}}
	if diff := deep.Equal(data.Fans, wantFans); diff != nil {
		t.Errorf("fans: %v", diff)
	}
	if len(data.PsuFans) != 1 || data.PsuFans[0].RPM != 8200 {
		t.Errorf("psu fans = %+v", data.PsuFans)
	}
	if len(data.Hashboards) != 3 {
		t.Fatalf("boards = %d", len(data.Hashboards))
	}
	if sn := data.Hashboards[2].SerialNumber; sn == nil || *sn != "PCB2" {
		t.Errorf("board 2 serial = %v", sn)
	}
	if data.TotalChips == nil || *data.TotalChips != 467 {
		t.Errorf("total chips = %v", data.TotalChips)
	}
	if data.AverageTemperature == nil || *data.AverageTemperature != 62 {
		t.Errorf("average temperature = %v", data.AverageTemperature)
	}
	if len(data.Pools) != 1 || !*data.Pools[0].Alive || *data.Pools[0].User != "acct.wm01" {
		t.Errorf("pools = %+v", data.Pools)
	}
}

func v2Fixtures() map[miner.Command]any {
	decode := func(s string) any {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			panic(err)
		}
		return v
	}
	return map[miner.Command]any{
		cmdSummary: decode(`{"STATUS":[{"STATUS":"S"}],"SUMMARY":[{"MAC":"C4:08:28:11:22:33","Elapsed":3600,
			"HS RT":86000000,"Factory GHS":88000,"Power":3300,"Power Limit":3500,"Env Temp":28,
			"Fan Speed In":5100,"Fan Speed Out":5200,"btmineroff":"false","Error Code Count":2,"Error Code 0":111,"Error Code 1":2010}]}`),
		cmdDevs: decode(`{"STATUS":[{"STATUS":"S"}],"DEVS":[
			{"MHS av":28800000,"Factory GHS":29300,"Temperature":66,"Chip Temp Min":61,"Chip Temp Max":79,"PCB SN":"S0","Effective Chips":111,"Frequency":580},
			{"MHS av":28600000,"Factory GHS":29300,"Temperature":68,"PCB SN":"S1","Effective Chips":111},
			{"MHS av":0,"Temperature":0,"PCB SN":"S2","Effective Chips":0}]}`),
		cmdGetVersion: decode(`{"STATUS":"S","Msg":{"api_ver":"2.0.5","fw_ver":"20230911.12.Rel","platform":"H6OS"}}`),
		cmdGetPSU:     decode(`{"STATUS":"S","Msg":{"fan_speed":"6480"}}`),
	}
}

func TestV2GetData(t *testing.T) {
	fixtures := v2Fixtures()
	client := miner.ClientFunc(func(_ context.Context, cmd miner.Command) (any, error) {
		if doc, ok := fixtures[cmd]; ok {
			return doc, nil
		}
		return nil, errors.New("no fixture")
	})

	m := NewV2("10.0.0.9", miner.ParseModel(miner.MakeWhatsMiner, "M30S+V40"), client)
	data := m.GetData(context.Background())

	if data.Hashrate == nil || data.Hashrate.Value != 86 {
		t.Errorf("hashrate = %v", data.Hashrate)
	}
	if data.ExpectedHashrate == nil || data.ExpectedHashrate.Value != 88 {
		t.Errorf("expected hashrate = %v", data.ExpectedHashrate)
	}
	if !data.IsMining {
		t.Error("btmineroff=false should be mining")
	}
	if data.FirmwareVersion == nil || *data.FirmwareVersion != "20230911.12.Rel" {
		t.Errorf("firmware version = %v", data.FirmwareVersion)
	}
	if len(data.PsuFans) != 1 || data.PsuFans[0].RPM != 6480 {
		t.Errorf("psu fans = %+v", data.PsuFans)
	}
	wantMsgs := []miner.Message{
		{Code: 111, Severity: miner.SeverityError},
		{Code: 2010, Severity: miner.SeverityError},
	}
	if diff := deep.Equal(data.Messages, wantMsgs); diff != nil {
		t.Errorf("messages: %v", diff)
	}
	if len(data.Hashboards) != 3 {
		t.Fatalf("boards = %d", len(data.Hashboards))
	}
	if *data.Hashboards[2].Active {
		t.Error("board 2 reports no hashrate and should be inactive")
	}
	// The zero reading of board 2 is left out of the average.
	if data.AverageTemperature == nil || *data.AverageTemperature != 67 {
		t.Errorf("average temperature = %v", data.AverageTemperature)
	}
	if data.TotalChips == nil || *data.TotalChips != 222 {
		t.Errorf("total chips = %v", data.TotalChips)
	}
}

func TestProbeFallsBackToV3(t *testing.T) {
	port := serveFramed(t, v3Replies)
	closed, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("freeport: %v", err)
	}

	p := NewProber(
		WithRPCOptions(rpc.WithPort(closed), rpc.WithTimeout(300*time.Millisecond)),
		WithV3Options(WithV3Port(port), WithV3Timeout(time.Second)),
	)
	model, version, err := p.Probe(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if diff := deep.Equal(model, miner.Model{Make: miner.MakeWhatsMiner, Name: "M60S"}); diff != nil {
		t.Error(diff)
	}
	if version.String() != "2024.11.5" {
		t.Errorf("version = %s", version)
	}

	if _, ok := Dial("127.0.0.1", model, version, nil, nil).(*MinerV3); !ok {
		t.Error("Dial should pick the API v3 backend")
	}
	if _, ok := Dial("127.0.0.1", model, semver.MustParse("2023.9.11"), nil, nil).(*MinerV2); !ok {
		t.Error("Dial should pick the BTMiner API backend")
	}
}
