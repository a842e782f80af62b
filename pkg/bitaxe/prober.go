package bitaxe

import (
	"context"
	"time"

	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/web"
)

// Prober resolves the model and AxeOS version of a BitAxe.
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

// NewProber creates a BitAxe prober.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe reads /api/system/info. The ASIC part number ("BM1370") maps to the
// board family; newer AxeOS also reports deviceModel directly.
func (p *Prober) Probe(ctx context.Context, baseURL string) (miner.Model, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := NewClient(baseURL, append([]web.ClientOption{web.WithTimeout(p.timeout)}, p.opts...)...)
	doc, err := client.Send(ctx, cmdSystemInfo)
	if err != nil {
		return miner.Model{Make: miner.MakeBitAxe}, "", err
	}

	var model miner.Model
	for _, key := range []string{"ASICModel", "deviceModel"} {
		v, _ := extract.Key(doc, key)
		if s, ok := extract.String(v); ok {
			if model = miner.ParseModel(miner.MakeBitAxe, s); model.Known() {
				break
			}
		}
	}
	if !model.Known() {
		model = miner.Model{Make: miner.MakeBitAxe}
	}

	v, _ := extract.Key(doc, "version")
	version, _ := extract.String(v)
	return model, version, nil
}
