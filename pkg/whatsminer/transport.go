package whatsminer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
)

// DefaultV3Port is the port of the API v3 service.
const DefaultV3Port = 4433

// maxFrame bounds a reply; the largest documents (edevs on four-board
// units) stay well under it.
const maxFrame = 1 << 20

// V3Client speaks the WhatsMiner API v3: each message is a little-endian
// uint32 length followed by that many bytes of JSON. Requests are
// {"cmd": name, "param": value}; replies carry "code" (0 on success) and
// "msg".
type V3Client struct {
	host    string
	port    int
	timeout time.Duration
}

// V3Option configures a V3Client.
type V3Option func(*V3Client)

// WithV3Port overrides the API port.
func WithV3Port(port int) V3Option {
	return func(c *V3Client) {
		c.port = port
	}
}

// WithV3Timeout sets the dial and read timeout of each call.
func WithV3Timeout(timeout time.Duration) V3Option {
	return func(c *V3Client) {
		c.timeout = timeout
	}
}

// NewV3Client creates a v3 client for host.
func NewV3Client(host string, opts ...V3Option) *V3Client {
	c := &V3Client{
		host:    host,
		port:    DefaultV3Port,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns host:port.
func (c *V3Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

type v3Request struct {
	Cmd   string `json:"cmd"`
	Param any    `json:"param,omitempty"`
}

// Send implements miner.Client for RPC commands.
func (c *V3Client) Send(ctx context.Context, cmd miner.Command) (any, error) {
	if !cmd.IsRPC() {
		return nil, fmt.Errorf("%w: %s over api v3", miner.ErrUnsupportedCommand, cmd)
	}

	payload, err := json.Marshal(v3Request{Cmd: cmd.Name, Param: cmd.Param()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", rpc.ErrConnectionFailed, c.Address(), err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if err := writeFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	body, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	doc, err := extract.Decode(body)
	if err != nil {
		return nil, rpc.ErrInvalidResponse
	}
	if code, ok := extract.Int(pointer(doc, "/code")); ok && code != 0 {
		msg, _ := extract.String(pointer(doc, "/msg"))
		return nil, &rpc.StatusError{Status: "E", Msg: fmt.Sprintf("code %d: %s", code, msg)}
	}
	return doc, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, rpc.ErrNoData
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if n == 0 {
		return nil, rpc.ErrNoData
	}
	if n > maxFrame {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

var _ miner.Client = (*V3Client)(nil)
