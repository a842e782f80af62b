package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-test/deep"
	"github.com/segmentio/kafka-go"

	"github.com/powerhive/minerprobe/pkg/miner"
)

func sampleData() *miner.MinerData {
	info := miner.NewDeviceInfo(miner.MakeWhatsMiner, miner.Model{Make: miner.MakeWhatsMiner}, miner.FirmwareStock, miner.AlgoSHA256)
	data := miner.NewMinerData("10.0.0.7", info)
	data.Timestamp = 1700000000
	data.MAC = miner.Ptr("c4:11:22:33:44:55")
	return data
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisherWithWriter(KafkaConfig{Topic: "miners"}, nil, w)

	data := sampleData()
	if err := p.Publish(context.Background(), data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "C4:11:22:33:44:55" {
		t.Errorf("key = %q", msg.Key)
	}
	var got miner.MinerData
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(&got, data); diff != nil {
		t.Error(diff)
	}
	if !msg.Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("time = %v", msg.Time)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	if err := p.Publish(context.Background(), data); !errors.Is(err, ErrClosed) {
		t.Errorf("publish after close = %v, want ErrClosed", err)
	}
}

func TestKafkaPublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisherWithWriter(KafkaConfig{Topic: "miners"}, nil, &fakeWriter{err: boom})
	if err := p.Publish(context.Background(), sampleData()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil); !errors.Is(err, ErrNoTopic) {
		t.Errorf("no topic: %v", err)
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}, nil); !errors.Is(err, ErrNoBrokers) {
		t.Errorf("no brokers: %v", err)
	}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	sent         []published
	err          error
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return newToken(c.err)
}

func (c *fakeMQTT) Disconnect(uint) { c.disconnected = true }

func TestMQTTPublish(t *testing.T) {
	c := &fakeMQTT{}
	p := newMQTTPublisherWithClient(MQTTConfig{Broker: "tcp://broker:1883", Topic: "minerprobe/miners/", QoS: 1, Retained: true}, nil, c)

	if err := p.Publish(context.Background(), sampleData()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(c.sent))
	}
	got := c.sent[0]
	if got.topic != "minerprobe/miners/C41122334455" {
		t.Errorf("topic = %q", got.topic)
	}
	if got.qos != 1 || !got.retained {
		t.Errorf("qos = %d retained = %v", got.qos, got.retained)
	}

	p.Close()
	if !c.disconnected {
		t.Error("client not disconnected")
	}
}

func TestMQTTTopicWithoutMAC(t *testing.T) {
	p := newMQTTPublisherWithClient(MQTTConfig{Topic: "miners"}, nil, &fakeMQTT{})
	data := sampleData()
	data.MAC = nil
	if got := p.Topic(data); got != "miners/10.0.0.7" {
		t.Errorf("topic = %q", got)
	}
}

type recorder struct {
	n   int
	err error
}

func (r *recorder) Publish(context.Context, *miner.MinerData) error {
	r.n++
	return r.err
}

func (r *recorder) Close() error { return nil }

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{}, &recorder{err: boom}
	m := Multi{a, b}

	err := m.Publish(context.Background(), sampleData())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if a.n != 1 || b.n != 1 {
		t.Errorf("calls = %d, %d", a.n, b.n)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092,")
	if diff := deep.Equal(got, []string{"kafka-1:9092", "kafka-2:9092"}); diff != nil {
		t.Error(diff)
	}
}
