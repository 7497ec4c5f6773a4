package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHandler publishes outbox envelopes to one Kafka topic. Messages are
// keyed by business id so each business's events stay ordered within a
// partition.
type KafkaHandler struct {
	writer messageWriter
}

// NewKafkaHandler writes to topic on the given brokers.
func NewKafkaHandler(brokers []string, topic string) *KafkaHandler {
	if len(brokers) == 0 {
		panic("events: kafka brokers required")
	}
	if strings.TrimSpace(topic) == "" {
		panic("events: kafka topic required")
	}
	return newKafkaHandler(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	})
}

func newKafkaHandler(w messageWriter) *KafkaHandler {
	return &KafkaHandler{writer: w}
}

func (h *KafkaHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(entry.ID.String())},
		{Key: "event_type", Value: []byte(entry.Type)},
		{Key: "business_id", Value: []byte(entry.BusinessID)},
	}
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msg := kafka.Message{
		Key:     []byte(entry.BusinessID),
		Value:   entry.Payload,
		Headers: carrier.headers,
		Time:    entry.CreatedAt,
	}
	if err := h.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: kafka write %s: %w", entry.Type, err)
	}
	return nil
}

// Close flushes pending writes.
func (h *KafkaHandler) Close() error {
	return h.writer.Close()
}

// KafkaReadyCheck dials the first reachable broker.
func KafkaReadyCheck(brokers []string) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errors.New("events: kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		var lastErr error
		for _, addr := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err == nil {
				return conn.Close()
			}
			lastErr = err
		}
		return fmt.Errorf("events: kafka unreachable: %w", lastErr)
	}
}

// headerCarrier adapts Kafka headers to the otel propagation carrier.
type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
