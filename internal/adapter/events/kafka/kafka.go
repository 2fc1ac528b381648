// Package kafka implements domain.EventPublisher over a Kafka/Redpanda-
// compatible broker, generalizing the original controller's out-of-band
// progress callback into a fire-and-forget event stream.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// Publisher wraps a franz-go client implementing domain.EventPublisher.
// Progress events are best-effort telemetry, not the study's record of
// truth, so unlike the teacher's transactional job queue this publisher
// produces without a transaction: an occasional dropped or duplicated
// progress event doesn't corrupt anything a worker later depends on.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// New constructs a Publisher against brokers.
func New(brokers []string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=kafka.New: no seed brokers provided")
	}

	kotelTracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(kotelTracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=kafka.New: %w", err)
	}
	return &Publisher{client: client, logger: logger}, nil
}

// Publish implements domain.EventPublisher.
func (p *Publisher) Publish(ctx domain.Context, topic string, event domain.ProgressEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("op=kafka.publish.marshal: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.BreederID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "worker_id", Value: []byte(event.WorkerID)},
			{Key: "state", Value: []byte(event.State)},
		},
	}

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		p.logger.Warn("progress event publish failed", slog.String("topic", topic), slog.Any("error", err))
		return fmt.Errorf("op=kafka.publish: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
