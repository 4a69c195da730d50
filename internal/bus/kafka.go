package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/opencourt/registrar/internal/telemetry"
)

// publishTimeout bounds each synchronous produce so a dead broker cannot
// stall the pipeline.
const publishTimeout = 10 * time.Second

// KafkaPublisher produces lifecycle events with an idempotent franz-go
// client. One instance lives for the whole process.
type KafkaPublisher struct {
	client  *kgo.Client
	logger  *slog.Logger
	metrics *telemetry.PipelineMetrics
}

// NewKafkaPublisher connects to the given bootstrap servers
// (comma-separated). franz-go producers are idempotent by default, which
// gives at-least-once publishing without duplicates per producer session.
func NewKafkaPublisher(bootstrapServers string, logger *slog.Logger, metrics *telemetry.PipelineMetrics) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(bootstrapServers, ",")...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{client: client, logger: logger, metrics: metrics}, nil
}

// Discovered publishes to court.documents.discovered.
func (p *KafkaPublisher) Discovered(ctx context.Context, ev DiscoveredEvent) bool {
	return p.publish(ctx, TopicDiscovered, ev.DocID, ev)
}

// Fetched publishes to court.documents.fetched.
func (p *KafkaPublisher) Fetched(ctx context.Context, ev FetchedEvent) bool {
	return p.publish(ctx, TopicFetched, ev.DocID, ev)
}

// Parsed publishes to court.documents.parsed.
func (p *KafkaPublisher) Parsed(ctx context.Context, ev ParsedEvent) bool {
	return p.publish(ctx, TopicParsed, ev.DocID, ev)
}

// Failed publishes to court.documents.failed.
func (p *KafkaPublisher) Failed(ctx context.Context, ev FailedEvent) bool {
	return p.publish(ctx, TopicFailed, ev.DocID, ev)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key string, payload any) bool {
	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("bus: marshal event", "topic", topic, "error", err)
		p.metrics.BusPublished(ctx, topic, "failed")
		return false
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	if err := p.client.ProduceSync(pubCtx, record).FirstErr(); err != nil {
		// The metadata store is the system of record; the event is dropped.
		p.logger.Warn("bus: publish failed, event dropped",
			"topic", topic, "doc_id", key, "error", err)
		p.metrics.BusPublished(ctx, topic, "failed")
		return false
	}

	p.logger.Debug("bus: published", "topic", topic, "doc_id", key)
	p.metrics.BusPublished(ctx, topic, "success")
	return true
}

// Close flushes outstanding records and closes the client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("bus: flush on close", "error", err)
	}
	p.client.Close()
}
