package epic

import (
	"context"
	"errors"
	"time"

	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/web"
)

// ErrNoModel is returned when /capabilities carries no model.
var ErrNoModel = errors.New("epic: capabilities report no model")

// Prober resolves the model and firmware version of a PowerPlay host.
type Prober struct {
	timeout time.Duration
	opts    []web.ClientOption
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProberTimeout sets the probe timeout.
func WithProberTimeout(timeout time.Duration) ProberOption {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithClientOptions passes options to the web client used for probing.
func WithClientOptions(opts ...web.ClientOption) ProberOption {
	return func(p *Prober) {
		p.opts = append(p.opts, opts...)
	}
}

// NewProber creates an ePIC prober.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe reads the model from /capabilities and the version from the
// summary Software string. A missing version is not an error.
func (p *Prober) Probe(ctx context.Context, baseURL string) (miner.Model, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := NewClient(baseURL, append([]web.ClientOption{web.WithTimeout(p.timeout)}, p.opts...)...)

	caps, err := client.Send(ctx, cmdCapabilities)
	if err != nil {
		return miner.Model{}, "", err
	}
	name, _ := extract.String(pointer(caps, "/Model"))
	if name == "" {
		return miner.Model{}, "", ErrNoModel
	}
	model := miner.ParseModelForFirmware(miner.FirmwareEPic, name)

	var version string
	if summary, err := client.Send(ctx, cmdSummary); err == nil {
		sw, _ := extract.String(pointer(summary, "/Software"))
		version = SoftwareVersion(sw)
	}
	return model, version, nil
}

func pointer(doc any, path string) any {
	v, _ := extract.Pointer(doc, path)
	return v
}
