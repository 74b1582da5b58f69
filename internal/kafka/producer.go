package kafka

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-orders-inventory/internal/outbox"
	"github.com/segmentio/kafka-go"
	"time"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes synchronously; topic comes from each message so one writer
// serves every order topic. The outbox relay decides what to retry.
type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{}, // key = order_id -> partition tetap
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) Write(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return p.w.WriteMessages(ctx, msgs...)
}

// Publish implements outbox.Publisher.
func (p *Producer) Publish(ctx context.Context, msgs []outbox.Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Topic == "" {
			return fmt.Errorf("outbox message %s has no topic", m.ID)
		}
		out = append(out, ToMessage(m))
	}
	return p.Write(ctx, out...)
}

func (p *Producer) Close() error { return p.w.Close() }

// ToMessage maps an outbox row onto the wire message.
func ToMessage(m outbox.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers)+1)
	for _, k := range sortedKeys(m.Headers) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(m.Headers[k])})
	}
	headers = append(headers, kafka.Header{Key: HeaderEventID, Value: []byte(m.ID)})
	return kafka.Message{
		Topic:   m.Topic,
		Key:     m.Key,
		Value:   m.Payload,
		Headers: headers,
		Time:    m.CreatedAt,
	}
}
