package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/phayes/freeport"

	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		lenient bool
		wantErr error
	}{
		{"success", `{"STATUS":[{"STATUS":"S","Msg":"ok"}],"SUMMARY":[]}`, false, nil},
		{"info", `{"STATUS":[{"STATUS":"I","Msg":"info"}]}`, false, nil},
		{"nul bytes", "{\"STATUS\":[{\"STATUS\":\"S\"}]}\x00", false, nil},
		{"btminer string status", `{"STATUS":"S","Code":131,"Msg":{"fw_ver":"20230911.12.Rel"}}`, false, nil},
		{"refused", "Socket connect failed: Connection refused\n", false, ErrConnectionFailed},
		{"empty", "", false, ErrNoData},
		{"garbage", "not json", false, ErrInvalidResponse},
		{"missing status strict", `{"SUMMARY":[]}`, false, ErrInvalidResponse},
		{"missing status lenient", `{"SUMMARY":[]}`, true, nil},
		{"concatenated sections", `{"STATUS":[{"STATUS":"S"}],"STATS":[{"a":1}{"b":2}]}`, false, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw), tc.lenient)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseStatusError(t *testing.T) {
	_, err := Parse([]byte(`{"STATUS":[{"STATUS":"E","Msg":"Invalid command"}]}`), false)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Msg != "Invalid command" {
		t.Errorf("Msg = %q", statusErr.Msg)
	}

	_, err = Parse([]byte(`{"STATUS":[{"STATUS":"X"}]}`), false)
	if !errors.As(err, &statusErr) || statusErr.Status != "X" {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}

// serveOnce starts a fake miner that answers every connection with reply.
func serveOnce(t *testing.T, reply func(req map[string]any) string) int {
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
				var req map[string]any
				if err := json.NewDecoder(conn).Decode(&req); err != nil {
					return
				}
				conn.Write([]byte(reply(req) + "\x00"))
			}(conn)
		}
	}()
	return port
}

func TestClientSend(t *testing.T) {
	port := serveOnce(t, func(req map[string]any) string {
		if req["command"] != "version" {
			return `{"STATUS":[{"STATUS":"E","Msg":"Invalid command"}]}`
		}
		return `{"STATUS":[{"STATUS":"S"}],"VERSION":[{"API":"3.7","PROD":"AvalonMiner 1066"}]}`
	})

	c := NewClient("127.0.0.1", WithPort(port), WithTimeout(time.Second))
	doc, err := c.Send(context.Background(), miner.RPC("version", nil))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if api, _ := extract.Pointer(doc, "/VERSION/0/API"); api != "3.7" {
		t.Errorf("API = %v", api)
	}

	_, err = c.Send(context.Background(), miner.RPC("bogus", nil))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Errorf("expected status error, got %v", err)
	}
}

// serveRaw answers every connection with body as-is and closes it.
func serveRaw(t *testing.T, body string) int {
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
				var req map[string]any
				if err := json.NewDecoder(conn).Decode(&req); err != nil {
					return
				}
				conn.Write([]byte(body))
			}(conn)
		}
	}()
	return port
}

func TestClientRaw(t *testing.T) {
	ctx := context.Background()

	// Reply terminated by EOF instead of NUL.
	port := serveRaw(t, `{"STATUS":[{"STATUS":"S"}],"SUMMARY":[{"Elapsed":60}]}`)
	c := NewClient("127.0.0.1", WithPort(port), WithTimeout(time.Second))
	raw, err := c.Raw(ctx, "summary", "")
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if string(raw) != `{"STATUS":[{"STATUS":"S"}],"SUMMARY":[{"Elapsed":60}]}` {
		t.Errorf("raw = %q", raw)
	}

	// Non-JSON replies are returned untouched for the classifier.
	port = serveRaw(t, "STATUS=S,When=1,Code=22,Msg=CGMiner versions|\x00")
	c = NewClient("127.0.0.1", WithPort(port), WithTimeout(time.Second))
	if raw, err = c.Raw(ctx, "version", ""); err != nil || !strings.HasPrefix(string(raw), "STATUS=S") {
		t.Errorf("raw = %q, %v", raw, err)
	}

	port = serveRaw(t, "")
	c = NewClient("127.0.0.1", WithPort(port), WithTimeout(time.Second))
	if _, err := c.Raw(ctx, "version", ""); !errors.Is(err, ErrNoData) {
		t.Errorf("empty reply err = %v, want ErrNoData", err)
	}
}

func TestClientConnectionRefused(t *testing.T) {
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient("127.0.0.1", WithPort(port), WithTimeout(time.Second))
	if _, err := c.Raw(context.Background(), "version", ""); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("err = %v, want ErrConnectionFailed", err)
	}
}

func TestClientSendsParameter(t *testing.T) {
	got := make(chan any, 1)
	port := serveOnce(t, func(req map[string]any) string {
		got <- req["parameter"]
		return `{"STATUS":[{"STATUS":"S"}]}`
	})

	c := NewClient("127.0.0.1", WithPort(port), WithTimeout(time.Second))
	if _, err := c.Send(context.Background(), miner.RPC("get.miner.status", "summary")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if p := <-got; p != "summary" {
		t.Errorf("parameter = %v", p)
	}
}

func TestClientRejectsWebCommands(t *testing.T) {
	c := NewClient("127.0.0.1")
	_, err := c.Send(context.Background(), miner.Web("summary", "GET", nil))
	if !errors.Is(err, miner.ErrUnsupportedCommand) {
		t.Fatalf("err = %v", err)
	}
}

func TestClientConnectionFailure(t *testing.T) {
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("freeport: %v", err)
	}
	c := NewClient("127.0.0.1", WithPort(port), WithTimeout(500*time.Millisecond))
	if _, err := c.Send(context.Background(), miner.RPC("version", nil)); err == nil {
		t.Fatal("expected an error from a closed port")
	}
}
