package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// Observer is told about every command the collector sends.
type Observer func(cmd miner.Command, elapsed time.Duration, err error)

// Collector issues the commands a Locator needs and assembles a FieldMap.
type Collector struct {
	client   miner.Client
	locator  Locator
	logger   *slog.Logger
	observer Observer
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger used for swallowed command failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = l
	}
}

// WithObserver registers a per-command callback.
func WithObserver(o Observer) Option {
	return func(c *Collector) {
		c.observer = o
	}
}

// New creates a collector over client using the locations from locator.
func New(client miner.Client, locator Locator, opts ...Option) *Collector {
	c := &Collector{
		client:  client,
		locator: locator,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With(slog.String("component", "collector"))
	return c
}

// CollectAll collects every DataField.
func (c *Collector) CollectAll(ctx context.Context) FieldMap {
	return c.Collect(ctx, miner.AllFields()...)
}

// Collect gathers the requested fields. Each distinct command is sent once,
// all concurrently. Failed commands are logged and skipped, so the result
// may be sparse; Collect itself never fails.
func (c *Collector) Collect(ctx context.Context, fields ...miner.DataField) FieldMap {
	if len(fields) == 0 {
		fields = miner.AllFields()
	}

	cmds := Commands(c.locator, fields...)
	responses := c.fetch(ctx, cmds)

	out := make(FieldMap, len(fields))
	for _, f := range fields {
		if v, ok := assemble(c.locator.Locations(f), responses); ok {
			out[f] = v
		}
	}
	return out
}

// fetch sends every command concurrently and returns the successful
// responses keyed by command.
func (c *Collector) fetch(ctx context.Context, cmds []miner.Command) map[miner.Command]any {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		responses = make(map[miner.Command]any, len(cmds))
	)

	for _, cmd := range cmds {
		wg.Add(1)
		go func(cmd miner.Command) {
			defer wg.Done()

			start := time.Now()
			doc, err := c.client.Send(ctx, cmd)
			if c.observer != nil {
				c.observer(cmd, time.Since(start), err)
			}
			if err != nil {
				c.logger.Debug("command failed", slog.String("command", cmd.String()), slog.Any("error", err))
				return
			}

			mu.Lock()
			responses[cmd] = doc
			mu.Unlock()
		}(cmd)
	}

	wg.Wait()
	return responses
}

// assemble applies the extractors of one field. A single location yields
// its raw value; several yield an object keyed by tag (or last path
// segment), with untagged object results merged key by key.
func assemble(locs []Location, responses map[miner.Command]any) (any, bool) {
	switch len(locs) {
	case 0:
		return nil, false
	case 1:
		doc, ok := responses[locs[0].Command]
		if !ok {
			return nil, false
		}
		return locs[0].Extractor.Apply(doc)
	}

	merged := make(map[string]any)
	for _, loc := range locs {
		doc, ok := responses[loc.Command]
		if !ok {
			continue
		}
		v, ok := loc.Extractor.Apply(doc)
		if !ok {
			continue
		}
		if obj, isObj := v.(map[string]any); isObj && loc.Extractor.Tag == "" {
			for k, inner := range obj {
				merged[k] = inner
			}
			continue
		}
		merged[loc.Extractor.name()] = v
	}

	if len(merged) == 0 {
		return nil, false
	}
	return merged, true
}
