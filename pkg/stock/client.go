package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/web"
)

// HTTPClient talks to the CGI API of stock firmware. Web commands map to
// /cgi-bin/<name>.cgi.
type HTTPClient struct {
	host string
	web  *web.Client
}

// ClientOption configures an HTTPClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithBaseURL overrides the default http://host/cgi-bin root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *clientConfig) {
		c.baseURL = baseURL
	}
}

// WithTransport sets the transport wrapped by digest authentication.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) {
		c.transport = rt
	}
}

// NewClient creates a stock firmware CGI client. A nil auth uses the
// factory credentials.
func NewClient(host string, auth *DigestAuth, opts ...ClientOption) *HTTPClient {
	cfg := clientConfig{
		baseURL:   fmt.Sprintf("http://%s/cgi-bin", host),
		timeout:   30 * time.Second,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if auth == nil {
		auth = NewDigestAuth()
	}

	httpClient := &http.Client{
		Timeout:   cfg.timeout,
		Transport: &DigestTransport{Auth: auth, Transport: cfg.transport},
	}

	return &HTTPClient{
		host: host,
		web:  web.NewClient(cfg.baseURL, web.WithHTTPClient(httpClient), web.WithSuffix(".cgi")),
	}
}

// Host returns the miner host address.
func (c *HTTPClient) Host() string {
	return c.host
}

// Send implements miner.Client for CGI commands.
func (c *HTTPClient) Send(ctx context.Context, cmd miner.Command) (any, error) {
	doc, err := c.web.Send(ctx, cmd)
	if web.StatusCode(err) == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, cmd.Name)
	}
	return doc, err
}

// GetSystemInfo returns system information.
func (c *HTTPClient) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	doc, err := c.Send(ctx, cmdSystemInfo)
	if err != nil {
		return nil, err
	}
	var info SystemInfo
	if err := decodeInto(doc, &info); err != nil {
		return nil, fmt.Errorf("failed to parse system info: %w", err)
	}
	if info.MinerType == "" {
		return nil, ErrNotStockFirmware
	}
	return &info, nil
}

// decodeInto converts a generic JSON document into a typed value.
func decodeInto(doc any, out any) error {
	if doc == nil {
		return errors.New("empty document")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

var _ miner.Client = (*HTTPClient)(nil)
