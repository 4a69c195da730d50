package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics bundles the instruments shared by the monitor, fetcher,
// parser, and coordinator. A single instance is created at startup and
// passed down; a no-op meter provider makes every method safe to call when
// telemetry is disabled.
type PipelineMetrics struct {
	discovered    metric.Int64Counter
	fetched       metric.Int64Counter
	parsed        metric.Int64Counter
	embeddings    metric.Int64Counter
	busPublished  metric.Int64Counter
	stageDuration metric.Float64Histogram
	activeStage   metric.Int64UpDownCounter
}

// NewPipelineMetrics registers the pipeline instrument set on the global meter.
func NewPipelineMetrics() *PipelineMetrics {
	meter := Meter("registrar/pipeline")

	discovered, _ := meter.Int64Counter("registrar.documents.discovered",
		metric.WithDescription("Documents discovered by the change monitor"))
	fetched, _ := meter.Int64Counter("registrar.documents.fetched",
		metric.WithDescription("Document fetch attempts by outcome"))
	parsed, _ := meter.Int64Counter("registrar.documents.parsed",
		metric.WithDescription("Document parses by outcome"))
	embeddings, _ := meter.Int64Counter("registrar.embeddings.generated",
		metric.WithDescription("Embedding vectors generated"))
	busPublished, _ := meter.Int64Counter("registrar.bus.events",
		metric.WithDescription("Event bus publishes by topic and outcome"))
	stageDuration, _ := meter.Float64Histogram("registrar.stage.duration",
		metric.WithDescription("Per-stage processing duration"),
		metric.WithUnit("s"))
	activeStage, _ := meter.Int64UpDownCounter("registrar.stage.active",
		metric.WithDescription("Documents currently in flight per stage"))

	return &PipelineMetrics{
		discovered:    discovered,
		fetched:       fetched,
		parsed:        parsed,
		embeddings:    embeddings,
		busPublished:  busPublished,
		stageDuration: stageDuration,
		activeStage:   activeStage,
	}
}

// Discovered increments the discovery counter by n.
func (m *PipelineMetrics) Discovered(ctx context.Context, n int) {
	m.discovered.Add(ctx, int64(n))
}

// Fetched records a fetch outcome ("success" or "failed").
func (m *PipelineMetrics) Fetched(ctx context.Context, status string) {
	m.fetched.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Parsed records a parse outcome ("success" or "failed").
func (m *PipelineMetrics) Parsed(ctx context.Context, status string) {
	m.parsed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// EmbeddingsGenerated increments the embedding counter by n.
func (m *PipelineMetrics) EmbeddingsGenerated(ctx context.Context, n int) {
	m.embeddings.Add(ctx, int64(n))
}

// BusPublished records an event publish outcome per topic.
func (m *PipelineMetrics) BusPublished(ctx context.Context, topic, status string) {
	m.busPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("status", status),
	))
}

// StageDuration records how long a stage took for one document.
func (m *PipelineMetrics) StageDuration(ctx context.Context, stage string, d time.Duration) {
	m.stageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// StageEnter marks a document entering a stage.
func (m *PipelineMetrics) StageEnter(ctx context.Context, stage string) {
	m.activeStage.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// StageExit marks a document leaving a stage.
func (m *PipelineMetrics) StageExit(ctx context.Context, stage string) {
	m.activeStage.Add(ctx, -1, metric.WithAttributes(attribute.String("stage", stage)))
}
