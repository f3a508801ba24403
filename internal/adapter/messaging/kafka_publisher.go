package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
)

const (
	headerEventID   = "event_id"
	headerEventType = "event_type"
)

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outbox events to one topic, keyed by receipt number
// so events for the same receipt land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

var _ port.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.OutboxEvent) error {
	return p.writer.WriteMessages(ctx, toMessage(ev))
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(ev domain.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(ev.Key),
		Value: ev.Payload,
		Time:  ev.CreatedAt.UTC(),
		Headers: []kafka.Header{
			{Key: headerEventID, Value: []byte(ev.EventID)},
			{Key: headerEventType, Value: []byte(ev.Topic)},
		},
	}
}
