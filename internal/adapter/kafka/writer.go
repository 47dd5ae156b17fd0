package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/config"
	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes inserted readings to a Kafka topic.
// It implements ingest.ReadingSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured readings topic.
// Messages are keyed by plant id, so readings of one plant stay ordered
// within a partition.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaReadingsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch serializes readings and writes them in a single
// WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(readings))
	for i := range readings {
		msg, err := serializeToMessage(readings[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write readings: %w", err)
	}
	w.logger.Debug("readings published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Reading into a Kafka message.
func serializeToMessage(r domain.Reading) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reading: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(r.PlantID, 10)),
		Value: data,
		Time:  r.ObservedAt,
		Headers: []kafkago.Header{
			{Key: "plant_id", Value: []byte(strconv.FormatInt(r.PlantID, 10))},
			{Key: "observed_at", Value: []byte(r.ObservedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
