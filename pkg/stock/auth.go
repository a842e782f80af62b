package stock

import (
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// DefaultUsername is the default stock firmware username.
	DefaultUsername = "root"

	// DefaultPassword is the default stock firmware password.
	DefaultPassword = "root"
)

// DigestAuth holds stock firmware credentials and the last challenge the
// miner issued, so later requests can authenticate up front.
type DigestAuth struct {
	Username string
	Password string

	nc        uint64
	mu        sync.Mutex
	challenge *digestChallenge
}

// NewDigestAuth creates a digest auth handler with the factory credentials.
func NewDigestAuth() *DigestAuth {
	return NewDigestAuthWithCredentials(DefaultUsername, DefaultPassword)
}

// NewDigestAuthWithCredentials creates a digest auth handler with custom credentials.
func NewDigestAuthWithCredentials(username, password string) *DigestAuth {
	return &DigestAuth{
		Username: username,
		Password: password,
	}
}

func (a *DigestAuth) cached() *digestChallenge {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.challenge
}

func (a *DigestAuth) remember(c *digestChallenge) {
	a.mu.Lock()
	a.challenge = c
	a.mu.Unlock()
}

// DigestTransport is an http.RoundTripper that answers digest challenges.
type DigestTransport struct {
	Auth      *DigestAuth
	Transport http.RoundTripper
}

// RoundTrip implements http.RoundTripper. A cached challenge is used
// pre-emptively; a fresh 401 replaces it and the request is retried once.
func (t *DigestTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if t.Auth == nil {
		return transport.RoundTrip(req)
	}

	first := req
	if c := t.Auth.cached(); c != nil {
		first = req.Clone(req.Context())
		first.Header.Set("Authorization", t.Auth.header(req.Method, req.URL.RequestURI(), c))
	}

	resp, err := transport.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	challenge := parseDigestChallenge(resp.Header.Get("WWW-Authenticate"))
	if challenge == nil {
		return resp, nil
	}

	retry := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	t.Auth.remember(challenge)
	retry.Header.Set("Authorization", t.Auth.header(req.Method, req.URL.RequestURI(), challenge))
	return transport.RoundTrip(retry)
}

type digestChallenge struct {
	Realm     string
	Nonce     string
	QOP       string
	Algorithm string
	Opaque    string
}

// parseDigestChallenge parses a WWW-Authenticate: Digest header. Other
// schemes yield nil.
func parseDigestChallenge(header string) *digestChallenge {
	params, ok := strings.CutPrefix(header, "Digest ")
	if !ok {
		return nil
	}

	c := &digestChallenge{}
	for _, part := range strings.Split(params, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "realm":
			c.Realm = value
		case "nonce":
			c.Nonce = value
		case "qop":
			// "auth,auth-int" offers both; auth is enough for GET and POST.
			c.QOP = "auth"
			if value != "" && !strings.Contains(value, "auth") {
				c.QOP = value
			}
		case "algorithm":
			c.Algorithm = value
		case "opaque":
			c.Opaque = value
		}
	}
	if c.Nonce == "" {
		return nil
	}
	return c
}

// header builds the Authorization value for one request.
func (a *DigestAuth) header(method, uri string, c *digestChallenge) string {
	nc := atomic.AddUint64(&a.nc, 1)
	ncStr := fmt.Sprintf("%08x", nc)
	cnonce := fmt.Sprintf("%08x", nc*12345)

	ha1 := md5Hex(a.Username + ":" + c.Realm + ":" + a.Password)
	ha2 := md5Hex(method + ":" + uri)

	var response string
	if c.QOP != "" {
		response = md5Hex(strings.Join([]string{ha1, c.Nonce, ncStr, cnonce, c.QOP, ha2}, ":"))
	} else {
		response = md5Hex(ha1 + ":" + c.Nonce + ":" + ha2)
	}

	h := fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		a.Username, c.Realm, c.Nonce, uri, response)
	if c.QOP != "" {
		h += fmt.Sprintf(`, qop=%s, nc=%s, cnonce="%s"`, c.QOP, ncStr, cnonce)
	}
	if c.Opaque != "" {
		h += fmt.Sprintf(`, opaque="%s"`, c.Opaque)
	}
	return h
}

func md5Hex(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}
