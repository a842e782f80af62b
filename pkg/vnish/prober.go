package vnish

import (
	"context"
	"strings"
	"time"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// Prober resolves the model and firmware version of a VNish host.
type Prober struct {
	auth    *AuthManager
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

// WithClientOptions passes options to the client used for probing.
func WithClientOptions(opts ...ClientOption) ProberOption {
	return func(p *Prober) {
		p.opts = append(p.opts, opts...)
	}
}

// NewProber creates a new VNish firmware prober.
func NewProber(auth *AuthManager, opts ...ProberOption) *Prober {
	p := &Prober{
		auth:    auth,
		timeout: 3 * time.Second,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Probe reads the public /info endpoint. VNish runs on Antminer hardware,
// so the model is resolved against the AntMiner catalog.
func (p *Prober) Probe(ctx context.Context, host string) (miner.Model, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	opts := append([]ClientOption{WithTimeout(p.timeout)}, p.opts...)
	client := NewClient(host, p.auth, opts...)

	info, err := client.GetInfo(ctx)
	if err != nil {
		return miner.Model{}, "", err
	}
	if info.FWName != "" && !strings.EqualFold(info.FWName, "vnish") {
		return miner.Model{}, "", ErrNotVNishFirmware
	}

	return miner.ParseModelForFirmware(miner.FirmwareVNish, info.Model), info.FWVersion, nil
}
