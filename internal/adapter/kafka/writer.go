package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/margdarshak/internal/config"
	"github.com/couchcryptid/margdarshak/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces corridor lifecycle events to a Kafka topic.
// It implements domain.CorridorPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured corridor topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaCorridorTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishCorridor writes one corridor event keyed by request ID so every
// event for a corridor lands on the same partition in order.
func (w *Writer) PublishCorridor(ctx context.Context, e domain.CorridorEvent) error {
	out, err := serializeCorridorEvent(e)
	if err != nil {
		return err
	}
	return w.LoadBatch(ctx, []domain.OutputEvent{out})
}

// LoadBatch publishes pre-serialized events in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msgs[i] = toMessage(events[i])
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d corridor events: %w", len(msgs), err)
	}
	w.logger.Debug("corridor events published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeCorridorEvent(e domain.CorridorEvent) (domain.OutputEvent, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize corridor event: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(e.RequestID),
		Value: data,
		Headers: map[string]string{
			"event_type":  e.Type,
			"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

// toMessage converts an OutputEvent to a Kafka message. Header order is
// fixed so consumers see a stable layout.
func toMessage(e domain.OutputEvent) kafkago.Message {
	msg := kafkago.Message{Key: e.Key, Value: e.Value}
	for _, k := range []string{"event_type", "occurred_at"} {
		if v, ok := e.Headers[k]; ok {
			msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
		}
	}
	return msg
}
