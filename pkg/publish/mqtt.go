package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/powerhive/minerprobe/pkg/miner"
)

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	Broker   string
	ClientID string

	// Topic is the prefix; records go to <Topic>/<miner key>.
	Topic string

	QoS      byte
	Retained bool

	// Timeout bounds connecting and each publish acknowledgement.
	Timeout time.Duration
}

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes each record on a per-miner topic.
type MQTTPublisher struct {
	cfg    MQTTConfig
	log    *slog.Logger
	client mqttClient
	closed atomic.Bool
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(cfg MQTTConfig, log *slog.Logger) (*MQTTPublisher, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, ErrNoTopic
	}
	if cfg.Broker == "" {
		return nil, ErrNoBrokers
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "minerprobe"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true)
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return newMQTTPublisherWithClient(cfg, log, c), nil
}

func newMQTTPublisherWithClient(cfg MQTTConfig, log *slog.Logger, c mqttClient) *MQTTPublisher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MQTTPublisher{
		cfg:    cfg,
		log:    log.With(slog.String("component", "mqtt_publisher"), slog.String("broker", cfg.Broker)),
		client: c,
	}
}

// Topic returns the topic a record is published on. MQTT wildcards and
// separators in the key are replaced.
func (p *MQTTPublisher) Topic(data *miner.MinerData) string {
	key := strings.NewReplacer(":", "", "/", "_", "+", "_", "#", "_").Replace(Key(data))
	return strings.TrimRight(p.cfg.Topic, "/") + "/" + key
}

func (p *MQTTPublisher) Publish(ctx context.Context, data *miner.MinerData) error {
	if p.closed.Load() {
		return ErrClosed
	}
	payload, err := Encode(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", data.IP, err)
	}

	topic := p.Topic(data)
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload)

	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		p.log.Warn("publish failed", slog.String("topic", topic), slog.Any("error", err))
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects after letting in-flight work finish for up to 250ms.
func (p *MQTTPublisher) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.client.Disconnect(250)
	}
	return nil
}

var _ Publisher = (*MQTTPublisher)(nil)
