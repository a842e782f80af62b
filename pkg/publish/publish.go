// Package publish ships normalized miner records to message brokers.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/powerhive/minerprobe/pkg/miner"
)

var (
	// ErrNoTopic is returned when a publisher is configured without a topic.
	ErrNoTopic = errors.New("publish: topic must not be empty")
	// ErrNoBrokers is returned when a publisher has no broker to connect to.
	ErrNoBrokers = errors.New("publish: at least one broker is required")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("publish: publisher closed")
)

// Publisher sends MinerData records somewhere.
type Publisher interface {
	Publish(ctx context.Context, data *miner.MinerData) error
	Close() error
}

// Encode renders a record as the JSON payload every publisher sends.
func Encode(data *miner.MinerData) ([]byte, error) {
	return json.Marshal(data)
}

// Key identifies the miner a record belongs to: its MAC address when known,
// the IP otherwise.
func Key(data *miner.MinerData) string {
	if data.MAC != nil && *data.MAC != "" {
		return miner.FormatMAC(*data.MAC)
	}
	return data.IP
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, data *miner.MinerData) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

var _ Publisher = Multi(nil)
