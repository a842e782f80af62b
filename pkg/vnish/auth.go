package vnish

import (
	"sync"
	"time"
)

const (
	// DefaultPassword is the factory unlock password.
	DefaultPassword = "admin"

	// DefaultTokenTTL is how long a bearer token is reused. VNish does not
	// report expiry; a 401 clears the token early.
	DefaultTokenTTL = 30 * time.Minute
)

// TokenInfo holds a bearer token and its metadata.
type TokenInfo struct {
	Token     string
	ExpiresAt time.Time
}

// IsExpired reports whether the token has less than a minute left.
func (t *TokenInfo) IsExpired() bool {
	return time.Now().Add(time.Minute).After(t.ExpiresAt)
}

// AuthManager caches bearer tokens per host. One manager is shared by every
// client of a scan so each miner is unlocked once.
type AuthManager struct {
	mu       sync.RWMutex
	tokens   map[string]*TokenInfo
	password string
	tokenTTL time.Duration
}

// NewAuthManager creates an authentication manager. An empty password uses
// the factory default.
func NewAuthManager(password string) *AuthManager {
	if password == "" {
		password = DefaultPassword
	}
	return &AuthManager{
		tokens:   make(map[string]*TokenInfo),
		password: password,
		tokenTTL: DefaultTokenTTL,
	}
}

// WithTokenTTL sets the token time-to-live duration.
func (am *AuthManager) WithTokenTTL(ttl time.Duration) *AuthManager {
	am.tokenTTL = ttl
	return am
}

// Password returns the unlock password.
func (am *AuthManager) Password() string {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.password
}

// Token returns the cached bearer token for a host, or "" if none is valid.
func (am *AuthManager) Token(host string) string {
	am.mu.RLock()
	defer am.mu.RUnlock()

	info, ok := am.tokens[host]
	if !ok || info.IsExpired() {
		return ""
	}
	return info.Token
}

// SetToken caches a bearer token for a host.
func (am *AuthManager) SetToken(host, token string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.tokens[host] = &TokenInfo{
		Token:     token,
		ExpiresAt: time.Now().Add(am.tokenTTL),
	}
}

// ClearToken removes the cached token for a host.
func (am *AuthManager) ClearToken(host string) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.tokens, host)
}
