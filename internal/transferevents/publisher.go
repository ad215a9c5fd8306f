// Package transferevents announces committed transfers to other systems.
package transferevents

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes every TransferCompleted event as a JSON message
// keyed by the source account, so events of one account stay ordered.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher returns a KafkaPublisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish writes the event. It blocks until the broker acknowledges the
// message or ctx is done.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.TransferCompleted) error {
	l := zerolog.Ctx(ctx)

	value, err := json.Marshal(event)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	msg := kafka.Message{
		Key:   []byte(event.FromAccountID),
		Value: value,
		Time:  event.CreatedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		l.Error().Err(err).Str("transfer_id", event.ID).Msg("cannot write transfer event")
		return err
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the logger of the context. It is used when
// no broker is configured.
type LogPublisher struct{}

// Publish logs the event.
func (LogPublisher) Publish(ctx context.Context, event domain.TransferCompleted) error {
	zerolog.Ctx(ctx).Info().
		Str("event", "transfer_completed").
		Str("transfer_id", event.ID).
		Str("from_account_id", event.FromAccountID).
		Str("to_account_id", event.ToAccountID).
		Int64("amount", event.Amount).
		Time("created_at", event.CreatedAt).
		Send()

	return nil
}
