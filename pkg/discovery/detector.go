// Package discovery identifies miners on the network: a concurrent probe
// race classifies the make and firmware, then a vendor-specific request
// resolves the model and firmware version.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
	"github.com/powerhive/minerprobe/pkg/web"
)

// DefaultTimeout is the deadline of the classification race.
const DefaultTimeout = 5 * time.Second

// Transport sends raw discovery probes.
type Transport interface {
	RPC(ctx context.Context, host, command string) ([]byte, error)
	Fetch(ctx context.Context, url string) (*web.Page, error)
}

type netTransport struct {
	rpcOpts []rpc.ClientOption
	client  *http.Client
}

func (t netTransport) RPC(ctx context.Context, host, command string) ([]byte, error) {
	return rpc.NewClient(host, t.rpcOpts...).Raw(ctx, command, "")
}

func (t netTransport) Fetch(ctx context.Context, url string) (*web.Page, error) {
	return web.Fetch(ctx, t.client, url)
}

// Credentials are the passwords used for authenticated model lookups and
// for the backends the factory creates.
type Credentials struct {
	StockUsername string
	StockPassword string
	VNishPassword string
}

// Detector runs discovery against single hosts. It is safe for concurrent
// use once configured.
type Detector struct {
	makes     []miner.Make
	firmwares []miner.Firmware
	timeout   time.Duration
	logger    *slog.Logger
	transport Transport
	rpcOpts   []rpc.ClientOption
	creds     Credentials

	httpPort  int
	httpsPort int
	epicPort  int
}

// Option configures a Detector.
type Option func(*Detector)

// WithSearchMakes limits the makes whose probes are sent.
func WithSearchMakes(makes ...miner.Make) Option {
	return func(d *Detector) {
		d.makes = makes
	}
}

// WithSearchFirmwares limits the firmwares whose probes are sent.
func WithSearchFirmwares(firmwares ...miner.Firmware) Option {
	return func(d *Detector) {
		d.firmwares = firmwares
	}
}

// WithTimeout sets the deadline of the classification race.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		d.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// WithTransport replaces the network transport used by the race.
func WithTransport(t Transport) Option {
	return func(d *Detector) {
		d.transport = t
	}
}

// WithRPCOptions configures every cgminer API client the detector and the
// backends it creates use.
func WithRPCOptions(opts ...rpc.ClientOption) Option {
	return func(d *Detector) {
		d.rpcOpts = append(d.rpcOpts, opts...)
	}
}

// WithWebPorts overrides the dashboard ports (80 and 443).
func WithWebPorts(httpPort, httpsPort int) Option {
	return func(d *Detector) {
		d.httpPort = httpPort
		d.httpsPort = httpsPort
	}
}

// WithEPicPort overrides the PowerPlay API port.
func WithEPicPort(port int) Option {
	return func(d *Detector) {
		d.epicPort = port
	}
}

// WithCredentials sets the miner passwords.
func WithCredentials(c Credentials) Option {
	return func(d *Detector) {
		d.creds = c
	}
}

// NewDetector creates a detector searching every known make and firmware.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		makes:     miner.AllMakes(),
		firmwares: miner.AllFirmwares(),
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		httpPort:  80,
		httpsPort: 443,
		epicPort:  4028,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.transport == nil {
		d.transport = netTransport{
			rpcOpts: d.rpcOpts,
			client:  &http.Client{Timeout: d.timeout},
		}
	}
	d.logger = d.logger.With(slog.String("component", "discovery"))
	return d
}

// AddSearchMake adds a make to the search set.
func (d *Detector) AddSearchMake(m miner.Make) {
	if !slices.Contains(d.makes, m) {
		d.makes = append(d.makes, m)
	}
}

// RemoveSearchMake removes a make from the search set.
func (d *Detector) RemoveSearchMake(m miner.Make) {
	d.makes = slices.DeleteFunc(d.makes, func(x miner.Make) bool { return x == m })
}

// AddSearchFirmware adds a firmware to the search set.
func (d *Detector) AddSearchFirmware(f miner.Firmware) {
	if !slices.Contains(d.firmwares, f) {
		d.firmwares = append(d.firmwares, f)
	}
}

// RemoveSearchFirmware removes a firmware from the search set.
func (d *Detector) RemoveSearchFirmware(f miner.Firmware) {
	d.firmwares = slices.DeleteFunc(d.firmwares, func(x miner.Firmware) bool { return x == f })
}

// Probes returns the probe set of the current search.
func (d *Detector) Probes() []Probe {
	return ProbeSet(d.makes, d.firmwares)
}

type probeResult struct {
	probe Probe
	class Classification
	ok    bool
}

// Classify races every probe against host and returns the first
// classification. Probes still in flight when a winner arrives or the
// deadline passes are abandoned; the result channel is buffered for all of
// them, so none blocks on send.
func (d *Detector) Classify(ctx context.Context, host string) (Classification, error) {
	probes := d.Probes()
	if len(probes) == 0 {
		return Classification{}, fmt.Errorf("%w: %s: empty search", ErrNoMiner, host)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	results := make(chan probeResult, len(probes))
	for _, p := range probes {
		go func(p Probe) {
			c, ok := d.run(ctx, host, p)
			results <- probeResult{probe: p, class: c, ok: ok}
		}(p)
	}

	for range probes {
		select {
		case r := <-results:
			if r.ok {
				d.logger.Debug("classified", slog.String("host", host), slog.String("probe", r.probe.String()), slog.String("class", r.class.String()))
				return r.class, nil
			}
		case <-ctx.Done():
			return Classification{}, fmt.Errorf("%w: %s: %w", ErrNoMiner, host, ctx.Err())
		}
	}
	return Classification{}, fmt.Errorf("%w: %s", ErrNoMiner, host)
}

func (d *Detector) run(ctx context.Context, host string, p Probe) (Classification, bool) {
	if p.RPC != "" {
		raw, err := d.transport.RPC(ctx, host, p.RPC)
		if err != nil {
			d.logger.Debug("probe failed", slog.String("host", host), slog.String("probe", p.String()), slog.Any("error", err))
			return Classification{}, false
		}
		return ClassifyRPC(raw)
	}

	page, err := d.transport.Fetch(ctx, d.webURL(host, p))
	if err != nil {
		d.logger.Debug("probe failed", slog.String("host", host), slog.String("probe", p.String()), slog.Any("error", err))
		return Classification{}, false
	}
	return ClassifyWeb(page)
}

func (d *Detector) webURL(host string, p Probe) string {
	scheme, port := "http", d.httpPort
	if p.HTTPS {
		scheme, port = "https", d.httpsPort
	}
	return scheme + "://" + hostPort(host, port, p.HTTPS) + p.Path
}

// hostPort omits default ports so Host headers match what a browser sends.
func hostPort(host string, port int, tls bool) string {
	if (!tls && port == 80) || (tls && port == 443) {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Identity is a fully discovered miner.
type Identity struct {
	IP       string         `json:"ip"`
	Make     miner.Make     `json:"make"`
	Model    miner.Model    `json:"model"`
	Firmware miner.Firmware `json:"firmware"`
	// FirmwareVersion is the version string as reported; Version is its
	// semantic form when it parses.
	FirmwareVersion string          `json:"firmware_version,omitempty"`
	Version         *semver.Version `json:"-"`
	DiscoveredAt    time.Time       `json:"discovered_at"`
}

// Identify classifies host and resolves its model. A host whose model
// string is not recognized is still returned, with Model.Name empty.
func (d *Detector) Identify(ctx context.Context, host string) (*Identity, error) {
	class, err := d.Classify(ctx, host)
	if err != nil {
		return nil, err
	}

	res := d.resolveModel(ctx, host, class)

	id := &Identity{
		IP:              host,
		Make:            class.Make,
		Model:           res.model,
		Firmware:        class.Firmware,
		FirmwareVersion: res.version,
		Version:         res.semver,
		DiscoveredAt:    time.Now(),
	}
	if id.Model.Make != "" {
		id.Make = id.Model.Make
	}
	if id.Firmware == "" {
		id.Firmware = miner.FirmwareStock
	}

	d.logger.Info("identified miner",
		slog.String("host", host),
		slog.String("make", string(id.Make)),
		slog.String("model", id.Model.Name),
		slog.String("firmware", string(id.Firmware)),
		slog.String("version", id.FirmwareVersion),
	)
	return id, nil
}
