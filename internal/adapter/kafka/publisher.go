package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

var _ port.EventPublisher = (*Publisher)(nil)

// Publisher writes events keyed by symbol, so each symbol's events land on one
// partition in sequence order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.writer.WriteMessages(ctx, msg), "kafka: publish %s", ev.ID)
}

func encode(ev domain.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "kafka: encode event")
	}
	return kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.ID)},
			{Key: "event-type", Value: []byte(ev.Type)},
		},
		Time: ev.Timestamp,
	}, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
