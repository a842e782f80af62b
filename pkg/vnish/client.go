package vnish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// authEndpoints need a bearer token. Everything else under /api/v1 that
// telemetry reads is public.
var authEndpoints = map[string]bool{
	"summary":      true,
	"chains":       true,
	"perf-summary": true,
	"settings":     true,
}

// HTTPClient is the VNish /api/v1 client.
type HTTPClient struct {
	host       string
	baseURL    string
	httpClient *http.Client
	auth       *AuthManager
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL overrides the default http://host/api/v1 root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = baseURL
	}
}

// NewClient creates a new VNish HTTP client. A nil auth manager uses the
// factory password.
func NewClient(host string, auth *AuthManager, opts ...ClientOption) *HTTPClient {
	if auth == nil {
		auth = NewAuthManager("")
	}
	c := &HTTPClient{
		host:    host,
		baseURL: fmt.Sprintf("http://%s/api/v1", host),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth: auth,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Host returns the miner host address.
func (c *HTTPClient) Host() string {
	return c.host
}

type requestOptions struct {
	method       string
	endpoint     string
	body         []byte
	requiresAuth bool
	retried      bool
}

// request performs one API call and returns the decoded JSON. A 401 on an
// authenticated endpoint drops the cached token, unlocks again and retries
// once.
func (c *HTTPClient) request(ctx context.Context, opts requestOptions) (any, error) {
	fullURL := c.baseURL + "/" + opts.endpoint

	var bodyReader io.Reader
	if opts.body != nil {
		bodyReader = bytes.NewReader(opts.body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if opts.requiresAuth {
		if err := c.EnsureAuthenticated(ctx); err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.auth.Token(c.host))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.auth.ClearToken(c.host)
		if opts.requiresAuth && !opts.retried {
			opts.retried = true
			return c.request(ctx, opts)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: opts.endpoint}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Err != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Err, Endpoint: opts.endpoint}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(bodyBytes), Endpoint: opts.endpoint}
	}

	if len(bodyBytes) == 0 {
		return nil, nil
	}
	doc, err := extract.Decode(bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return doc, nil
}

// Send implements miner.Client. The command name is the endpoint path
// below /api/v1.
func (c *HTTPClient) Send(ctx context.Context, cmd miner.Command) (any, error) {
	if !cmd.IsWeb() {
		return nil, fmt.Errorf("%w: %s over http", miner.ErrUnsupportedCommand, cmd)
	}
	opts := requestOptions{
		method:       cmd.Method,
		endpoint:     cmd.Name,
		requiresAuth: authEndpoints[cmd.Name],
	}
	if cmd.Parameters != "" && cmd.Method != http.MethodGet {
		opts.body = []byte(cmd.Parameters)
	}
	return c.request(ctx, opts)
}

// Unlock authenticates with the miner and caches the bearer token.
func (c *HTTPClient) Unlock(ctx context.Context) (string, error) {
	body, err := json.Marshal(&UnlockRequest{Password: c.auth.Password()})
	if err != nil {
		return "", err
	}
	doc, err := c.request(ctx, requestOptions{
		method:   http.MethodPost,
		endpoint: "unlock",
		body:     body,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.IsUnauthorized() || apiErr.StatusCode == http.StatusForbidden) {
			return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return "", fmt.Errorf("unlock failed: %w", err)
	}

	var result UnlockResponse
	if err := decodeInto(doc, &result); err != nil || result.Token == "" {
		return "", fmt.Errorf("%w: no token in unlock response", ErrAuthenticationFailed)
	}

	c.auth.SetToken(c.host, result.Token)
	return result.Token, nil
}

// EnsureAuthenticated ensures we have a valid bearer token.
func (c *HTTPClient) EnsureAuthenticated(ctx context.Context) error {
	if token := c.auth.Token(c.host); token != "" {
		return nil
	}

	_, err := c.Unlock(ctx)
	return err
}

// GetInfo returns the public /info document.
func (c *HTTPClient) GetInfo(ctx context.Context) (*MinerInfo, error) {
	doc, err := c.Send(ctx, cmdInfo)
	if err != nil {
		return nil, err
	}
	var result MinerInfo
	if err := decodeInto(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to parse info: %w", err)
	}
	return &result, nil
}

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
