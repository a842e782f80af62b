package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// Acks is the number of acknowledgements required (-1 all, default 1).
	Acks int

	// BatchTimeout bounds how long the writer waits to fill a batch.
	BatchTimeout time.Duration
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per record, keyed by miner so that a
// miner's records stay ordered within a partition.
type KafkaPublisher struct {
	cfg    KafkaConfig
	log    *slog.Logger
	writer kafkaMessageWriter
	closed atomic.Bool
}

// NewKafkaPublisher constructs a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg KafkaConfig, log *slog.Logger) (*KafkaPublisher, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, ErrNoTopic
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Acks == 0 {
		cfg.Acks = 1
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		AllowAutoTopicCreation: true,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
	}
	return newKafkaPublisherWithWriter(cfg, log, w), nil
}

// newKafkaPublisherWithWriter wires the provided writer into the publisher. It is used in tests.
func newKafkaPublisherWithWriter(cfg KafkaConfig, log *slog.Logger, w kafkaMessageWriter) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaPublisher{
		cfg:    cfg,
		log:    log.With(slog.String("component", "kafka_publisher"), slog.String("topic", cfg.Topic)),
		writer: w,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, data *miner.MinerData) error {
	if p.closed.Load() {
		return ErrClosed
	}
	payload, err := Encode(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", data.IP, err)
	}

	msg := kafka.Message{
		Key:   []byte(Key(data)),
		Value: payload,
		Time:  time.Unix(data.Timestamp, 0),
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(data.SchemaVersion)},
			{Key: "make", Value: []byte(data.DeviceInfo.Make)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publish failed", slog.String("key", string(msg.Key)), slog.Any("error", err))
		return fmt.Errorf("kafka write: %w", err)
	}
	p.log.Debug("published", slog.String("key", string(msg.Key)), slog.Int("bytes", len(payload)))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
