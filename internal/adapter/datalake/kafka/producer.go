// Package kafka publishes satisfaction events to the data-lake ingestion
// topic.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/weni-ai/nexus-conversations/internal/adapter/observability"
	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// Producer wraps a Kafka producer and implements domain.DataLakeSender.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer constructs a Producer against the given brokers.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	slog.Info("data lake producer created", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic}, nil
}

// Send publishes one event. The contact URN keys the record so events of the
// same contact land in order on a single partition.
func (p *Producer) Send(ctx domain.Context, ev domain.DataLakeEvent) error {
	b, err := json.Marshal(ev.Payload())
	if err != nil {
		observability.DataLakeEvent(ev.Key, "error")
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.ContactURN),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_name", Value: []byte(ev.EventName)},
			{Key: "project", Value: []byte(ev.Project)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		observability.DataLakeEvent(ev.Key, "error")
		return fmt.Errorf("produce: %w", err)
	}
	observability.DataLakeEvent(ev.Key, "ok")
	slog.Info("data lake event published",
		slog.String("key", ev.Key),
		slog.String("project", ev.Project),
		slog.String("topic", p.topic))
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
