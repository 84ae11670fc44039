package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"parkwise/internal/logger"
)

// messageReader is the subset of *kafka.Reader the transport uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaTransport consumes slot updates from a topic. Lot rooms become a local filter:
// every instance reads the whole topic and only forwards lots it has joined.
// Each transport joins its own consumer group so no partition is shared out
// between replicas.
type KafkaTransport struct {
	reader         messageReader
	topic          string
	reconnectDelay time.Duration
	log            *logger.Logger

	mu   sync.Mutex
	lots lotSet
}

// NewKafkaTransport creates a reader on topic in a consumer group private to
// this process, named groupPrefix plus a random suffix.
func NewKafkaTransport(brokers []string, topic, groupPrefix string, reconnectDelay time.Duration, log *logger.Logger) (*KafkaTransport, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupPrefix == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}

	reader := kafka.NewReader(readerConfig(brokers, topic, groupPrefix, log))
	return newKafkaTransport(reader, topic, reconnectDelay, log), nil
}

// readerConfig starts at the newest offset and never commits: a restarted
// instance reloads lots from the backend rather than replaying old updates.
func readerConfig(brokers []string, topic, groupPrefix string, log *logger.Logger) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupPrefix + "-" + uuid.NewString(),
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
		Logger:      kafka.LoggerFunc(func(msg string, args ...any) {}), // Silence default logger
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	}
}

func newKafkaTransport(reader messageReader, topic string, reconnectDelay time.Duration, log *logger.Logger) *KafkaTransport {
	return &KafkaTransport{
		reader:         reader,
		topic:          topic,
		reconnectDelay: reconnectDelay,
		log:            log,
		lots:           make(lotSet),
	}
}

// Join implements Transport.
func (t *KafkaTransport) Join(lotID string) {
	t.mu.Lock()
	t.lots.add(lotID)
	t.mu.Unlock()
}

// Leave implements Transport.
func (t *KafkaTransport) Leave(lotID string) {
	t.mu.Lock()
	t.lots.remove(lotID)
	t.mu.Unlock()
}

func (t *KafkaTransport) joined(lotID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lots.has(lotID)
}

// Run implements Transport. The reader is closed when Run returns.
func (t *KafkaTransport) Run(ctx context.Context, sink Sink) error {
	defer t.reader.Close()

	// The reader connects lazily; treat the channel as up until a fetch fails.
	connected := true
	sink.ConnectionChanged(true, nil)
	for {
		msg, err := t.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if connected {
				connected = false
				sink.ConnectionChanged(false, fmt.Errorf("fetching from %s: %w", t.topic, err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.reconnectDelay):
			}
			continue
		}

		if !connected {
			connected = true
			sink.ConnectionChanged(true, nil)
		}

		ev, ok, err := DecodeSlotUpdate(msg.Value)
		switch {
		case err != nil:
			t.log.Warn("ignoring malformed slot update", "offset", msg.Offset, "error", err)
		case ok && t.joined(ev.LotID):
			sink.SlotChanged(ev)
		}
	}
}
