// Package rpc provides a client for the cgminer-style JSON API that most
// ASIC firmwares expose on TCP port 4028.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	cg "github.com/x1unix/go-cgminer-api"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// DefaultPort is the cgminer API port.
const DefaultPort = 4028

// Client sends RPC commands to one miner. It implements miner.Client for
// RPC commands.
type Client struct {
	host    string
	port    int
	timeout time.Duration
	lenient bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPort overrides the API port.
func WithPort(port int) ClientOption {
	return func(c *Client) {
		c.port = port
	}
}

// WithTimeout sets the dial and read timeout of each call.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLenientStatus accepts replies that carry no STATUS section, as
// Bitmain's bmminer does for some commands.
func WithLenientStatus() ClientOption {
	return func(c *Client) {
		c.lenient = true
	}
}

// NewClient creates an RPC client for host.
func NewClient(host string, opts ...ClientOption) *Client {
	c := &Client{
		host:    host,
		port:    DefaultPort,
		timeout: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Host returns the miner host address.
func (c *Client) Host() string {
	return c.host
}

// Address returns host:port.
func (c *Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Send implements miner.Client.
func (c *Client) Send(ctx context.Context, cmd miner.Command) (any, error) {
	if !cmd.IsRPC() {
		return nil, fmt.Errorf("%w: %s over rpc", miner.ErrUnsupportedCommand, cmd)
	}
	return c.Call(ctx, cmd.Name, cmd.ParamString())
}

// Call sends one command and returns the decoded, status-checked reply.
func (c *Client) Call(ctx context.Context, command, parameter string) (any, error) {
	raw, err := c.Raw(ctx, command, parameter)
	if err != nil {
		return nil, err
	}
	return Parse(raw, c.lenient)
}

// Raw sends one command and returns the reply bytes unparsed.
func (c *Client) Raw(ctx context.Context, command, parameter string) ([]byte, error) {
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	api := &cg.CGMiner{
		Address:   c.Address(),
		Timeout:   timeout,
		Transport: rawTransport{},
		Dialer:    net.Dialer{Timeout: c.timeout},
	}

	req := cg.NewCommandWithoutParameter(command)
	if parameter != "" {
		req = cg.NewCommand(command, parameter)
	}

	var reply rawReply
	if err := api.CallContext(ctx, req, &reply); err != nil {
		var connErr cg.ConnectError
		if errors.As(err, &connErr) {
			return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, c.Address(), err)
		}
		return nil, fmt.Errorf("rpc %s: %w", command, err)
	}
	return reply, nil
}

// maxReply bounds a single reply.
const maxReply = 1 << 20

// rawReply keeps the reply bytes; status checks happen in Parse.
type rawReply []byte

func (rawReply) HasError() error { return nil }

// rawTransport writes the command as JSON and reads until the NUL
// terminator or EOF, since some firmwares close without sending one.
type rawTransport struct{}

func (rawTransport) SendCommand(conn net.Conn, cmd cg.Command, out cg.AbstractResponse) error {
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return err
	}
	b, err := bufio.NewReader(io.LimitReader(conn, maxReply)).ReadBytes(0x00)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	b = bytes.TrimRight(b, "\x00")
	if len(b) == 0 {
		return ErrNoData
	}
	if r, ok := out.(*rawReply); ok {
		*r = b
	}
	return nil
}

var _ miner.Client = (*Client)(nil)
