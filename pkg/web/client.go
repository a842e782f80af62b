// Package web provides a small JSON-over-HTTP client shared by the vendor
// backends whose APIs need no session handling.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// ErrStatus indicates a non-2xx reply.
var ErrStatus = errors.New("unexpected HTTP status")

// StatusError carries the code of a non-2xx reply. It matches ErrStatus.
type StatusError struct {
	Code     int
	Endpoint string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %d from %s", ErrStatus, e.Code, e.Endpoint)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Client sends web commands to baseURL + "/" + command (+ suffix).
type Client struct {
	baseURL    string
	suffix     string
	header     http.Header
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithSuffix appends a fixed suffix to every command path (".cgi").
func WithSuffix(suffix string) ClientOption {
	return func(c *Client) {
		c.suffix = suffix
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// NewClient creates a client rooted at baseURL ("http://10.0.0.2:4028").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  make(http.Header),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the root URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send implements miner.Client for web commands.
func (c *Client) Send(ctx context.Context, cmd miner.Command) (any, error) {
	if !cmd.IsWeb() {
		return nil, fmt.Errorf("%w: %s over http", miner.ErrUnsupportedCommand, cmd)
	}
	var body []byte
	if cmd.Parameters != "" && cmd.Method != http.MethodGet {
		body = []byte(cmd.Parameters)
	}
	return c.Do(ctx, cmd.Method, cmd.Name, body)
}

// Get fetches one endpoint and decodes the JSON reply.
func (c *Client) Get(ctx context.Context, endpoint string) (any, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil)
}

// maxBody bounds the bytes read from a single reply.
const maxBody = 1 << 20

// Do performs a request and decodes the JSON reply. Replies larger than
// maxBody are truncated and fail to parse.
func (c *Client) Do(ctx context.Context, method, endpoint string, body []byte) (any, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/") + c.suffix

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Endpoint: endpoint}
	}

	doc, err := extract.Decode(respBody)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return doc, nil
}

// Page is a raw HTTP reply used for fingerprinting.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Fetch performs a GET without following redirects and returns the status,
// headers and body whatever the status code.
func Fetch(ctx context.Context, client *http.Client, url string) (*Page, error) {
	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := noRedirect.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Page{StatusCode: resp.StatusCode, Header: resp.Header, Body: string(body)}, nil
}

var _ miner.Client = (*Client)(nil)
