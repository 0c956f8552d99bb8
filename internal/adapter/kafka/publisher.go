package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/groundwatch/sinkhole-risk-service/internal/aggregate"
	"github.com/groundwatch/sinkhole-risk-service/internal/config"
)

// Publisher produces district risk results to a Kafka topic after each
// city-wide refresh. It implements aggregate.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured risk topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishResults serializes and publishes every district result from the
// snapshot in a single WriteMessages call.
func (p *Publisher) PublishResults(ctx context.Context, snap *aggregate.Snapshot) error {
	if snap == nil || len(snap.Results) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(snap.Results))
	for i := range snap.Results {
		msg, err := serializeToMessage(snap.Results[i].District, snap.Meta.FetchedAt, snap.Results[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish risk results: %w", err)
	}
	p.logger.Info("published risk results", "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals one district result into a Kafka message keyed
// by district so compacted consumers keep only the latest grade per gu.
func serializeToMessage(district string, fetchedAt time.Time, v any) (kafkago.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize risk result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(district),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "fetched_at", Value: []byte(fetchedAt.Format(time.RFC3339))},
		},
	}, nil
}
