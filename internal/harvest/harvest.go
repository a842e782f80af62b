// Package harvest polls networks for miners, stores their telemetry and
// forwards it to publishers.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/powerhive/minerprobe/internal/metrics"
	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/database"
	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/publish"
)

// Scanner scans a target and collects from every miner it finds.
type Scanner interface {
	Scan(ctx context.Context, target string) (*discovery.ScanResult, error)
}

// Collector reads a single host.
type Collector interface {
	Collect(ctx context.Context, host string, opts ...collector.Option) (*miner.MinerData, *discovery.Identity, error)
}

// Harvester orchestrates data collection from miners.
type Harvester struct {
	scanner     Scanner
	collector   Collector
	repo        database.Repository
	publisher   publish.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	interval    time.Duration
	staleAfter  time.Duration
	concurrency int
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithRepository stores scans and snapshots.
func WithRepository(repo database.Repository) Option {
	return func(h *Harvester) {
		h.repo = repo
	}
}

// WithPublisher forwards every collected record.
func WithPublisher(p publish.Publisher) Option {
	return func(h *Harvester) {
		h.publisher = p
	}
}

// WithMetrics records scans and per-miner gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Harvester) {
		h.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harvester) {
		h.logger = l
	}
}

// WithInterval sets the daemon polling interval (default 60s).
func WithInterval(d time.Duration) Option {
	return func(h *Harvester) {
		h.interval = d
	}
}

// WithStaleAfter sets how long a stored miner may go unseen before the
// daemon re-checks it at its last known address (default 24h).
func WithStaleAfter(d time.Duration) Option {
	return func(h *Harvester) {
		h.staleAfter = d
	}
}

// WithConcurrency bounds parallel re-checks of known miners (default 10).
func WithConcurrency(n int) Option {
	return func(h *Harvester) {
		h.concurrency = n
	}
}

// New creates a harvester. scanner should collect telemetry from the
// miners it finds.
func New(scanner Scanner, c Collector, opts ...Option) *Harvester {
	h := &Harvester{
		scanner:     scanner,
		collector:   c,
		logger:      slog.Default(),
		interval:    60 * time.Second,
		staleAfter:  24 * time.Hour,
		concurrency: 10,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.concurrency < 1 {
		h.concurrency = 1
	}
	h.logger = h.logger.With(slog.String("component", "harvester"))
	return h
}

// HarvestNetwork scans target and stores and publishes every record.
func (h *Harvester) HarvestNetwork(ctx context.Context, target string) (*discovery.ScanResult, error) {
	h.logger.Info("scanning", slog.String("target", target))

	res, err := h.scanner.Scan(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", target, err)
	}
	h.metrics.ObserveScan(res)

	if h.repo != nil {
		if err := h.repo.SaveScan(ctx, res); err != nil {
			h.logger.Warn("scan not saved", slog.String("scan_id", res.ID), slog.Any("error", err))
		}
	}
	for _, f := range res.Miners {
		if f.Data != nil {
			h.record(ctx, f.Data, res.ID)
		}
	}

	h.logger.Info("scan harvested",
		slog.String("target", target),
		slog.Int("miners", len(res.Miners)),
		slog.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// HarvestMiners collects from specific hosts and returns the records read.
func (h *Harvester) HarvestMiners(ctx context.Context, ips []string) []*miner.MinerData {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		sem     = make(chan struct{}, h.concurrency)
		results []*miner.MinerData
	)
	var opts []collector.Option
	if h.metrics != nil {
		opts = append(opts, collector.WithObserver(h.metrics.CommandObserver()))
	}

	for _, ip := range ips {
		select {
		case <-ctx.Done():
			wg.Wait()
			return results
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			defer func() { <-sem }()

			data, _, err := h.collector.Collect(ctx, ip, opts...)
			if err != nil {
				h.logger.Debug("collect failed", slog.String("ip", ip), slog.Any("error", err))
				return
			}
			h.metrics.ObserveMiner(data)
			h.record(ctx, data, "")

			mu.Lock()
			results = append(results, data)
			mu.Unlock()
		}(ip)
	}
	wg.Wait()
	return results
}

// record stores and publishes one record. Failures are logged; one sink
// failing does not stop the others.
func (h *Harvester) record(ctx context.Context, data *miner.MinerData, scanID string) {
	if h.repo != nil {
		if _, err := h.repo.SaveSnapshot(ctx, data, scanID); err != nil {
			h.logger.Warn("snapshot not saved", slog.String("ip", data.IP), slog.Any("error", err))
		}
	}
	if h.publisher != nil {
		err := h.publisher.Publish(ctx, data)
		h.metrics.Published("publisher", err)
		if err != nil {
			h.logger.Warn("publish failed", slog.String("ip", data.IP), slog.Any("error", err))
		}
	}
}

// RunDaemon harvests targets every interval until ctx is cancelled.
func (h *Harvester) RunDaemon(ctx context.Context, targets []string) error {
	h.logger.Info("daemon started", slog.Duration("interval", h.interval), slog.Any("targets", targets))

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.HarvestAll(ctx, targets)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("daemon stopped")
			return ctx.Err()
		case <-ticker.C:
			h.HarvestAll(ctx, targets)
		}
	}
}

// HarvestAll runs one cycle: every target, then known miners that have not
// been seen for staleAfter and were not found by this cycle.
func (h *Harvester) HarvestAll(ctx context.Context, targets []string) {
	start := time.Now()
	seen := make(map[string]bool)

	for _, target := range targets {
		res, err := h.HarvestNetwork(ctx, target)
		if err != nil {
			h.logger.Error("harvest failed", slog.String("target", target), slog.Any("error", err))
			continue
		}
		for _, f := range res.Miners {
			seen[f.Identity.IP] = true
		}
	}

	if h.repo == nil {
		return
	}
	known, err := h.repo.ListMiners(ctx)
	if err != nil {
		h.logger.Error("listing miners", slog.Any("error", err))
		return
	}

	threshold := time.Now().Add(-h.staleAfter)
	var stale []string
	for _, m := range known {
		if !seen[m.IPAddress] && m.LastSeenAt.Before(threshold) {
			stale = append(stale, m.IPAddress)
		}
	}
	if len(stale) > 0 {
		h.logger.Info("re-checking stale miners", slog.Int("count", len(stale)))
		found := h.HarvestMiners(ctx, stale)
		h.logger.Info("stale miners answered", slog.Int("count", len(found)))
	}

	h.logger.Info("cycle finished", slog.Duration("duration", time.Since(start)))
}
