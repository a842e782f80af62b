package stock

import (
	"context"
	"strings"
	"time"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// Prober resolves the model of a host already classified as a stock
// Antminer.
type Prober struct {
	auth    *DigestAuth
	timeout time.Duration
	opts    []ClientOption
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProberTimeout sets the probe timeout.
func WithProberTimeout(timeout time.Duration) ProberOption {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithClientOptions passes options to the CGI client used for probing.
func WithClientOptions(opts ...ClientOption) ProberOption {
	return func(p *Prober) {
		p.opts = append(p.opts, opts...)
	}
}

// NewProber creates a stock firmware prober. A nil auth uses the factory
// credentials.
func NewProber(auth *DigestAuth, opts ...ProberOption) *Prober {
	p := &Prober{
		auth:    auth,
		timeout: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Probe reads get_system_info.cgi and returns the model and the
// filesystem version. The model is unknown when minertype does not match
// the catalog.
func (p *Prober) Probe(ctx context.Context, host string) (miner.Model, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	opts := append([]ClientOption{WithTimeout(p.timeout)}, p.opts...)
	client := NewClient(host, p.auth, opts...)

	info, err := client.GetSystemInfo(ctx)
	if err != nil {
		return miner.Model{Make: miner.MakeAntMiner}, "", err
	}

	return miner.ParseModel(miner.MakeAntMiner, strings.ToUpper(info.MinerType)), info.SystemFilesystemVersion, nil
}
