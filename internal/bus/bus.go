// Package bus publishes document lifecycle events to a durable topic log.
//
// Events are keyed by doc_id so that the log preserves per-document order.
// The bus is a side-channel for observability and downstream fan-out: the
// metadata store is the system of record, so publish failures are logged
// and dropped, never propagated to the pipeline.
package bus

import (
	"context"
	"time"
)

// Topic names. One topic per lifecycle stage, JSON payloads, key = doc_id.
const (
	TopicDiscovered = "court.documents.discovered"
	TopicFetched    = "court.documents.fetched"
	TopicParsed     = "court.documents.parsed"
	TopicFailed     = "court.documents.failed"
)

// Failure stages for FailedEvent.Stage.
const (
	StageDiscovery = "discovery"
	StageFetch     = "fetch"
	StageParse     = "parse"
	StageEmbedding = "embedding"
)

// DiscoveredEvent announces a document the monitor found.
type DiscoveredEvent struct {
	DocID        string    `json:"doc_id"`
	CaseID       string    `json:"case_id"`
	URL          string    `json:"url"`
	DiscoveredAt time.Time `json:"discovered_at"`
	HashHint     *string   `json:"hash_hint,omitempty"`
}

// FetchedEvent announces archived raw bytes.
type FetchedEvent struct {
	DocID       string    `json:"doc_id"`
	StoragePath string    `json:"storage_path"`
	SHA256      string    `json:"sha256"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ParsedEvent announces a persisted structured record.
type ParsedEvent struct {
	DocID     string         `json:"doc_id"`
	VersionID string         `json:"version_id"`
	Entities  map[string]any `json:"entities"`
	LawRefs   []string       `json:"law_refs"`
	ParsedAt  time.Time      `json:"parsed_at"`
}

// FailedEvent announces a stage failure for one document.
type FailedEvent struct {
	DocID        string         `json:"doc_id"`
	Stage        string         `json:"stage"`
	Error        string         `json:"error"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	FailedAt     time.Time      `json:"failed_at"`
}

// Publisher emits lifecycle events. Implementations must be safe for
// concurrent use and must never fail the caller: a broken bus degrades to
// logging. All methods report whether the event reached the log.
type Publisher interface {
	Discovered(ctx context.Context, ev DiscoveredEvent) bool
	Fetched(ctx context.Context, ev FetchedEvent) bool
	Parsed(ctx context.Context, ev ParsedEvent) bool
	Failed(ctx context.Context, ev FailedEvent) bool

	// Close flushes buffered records and releases the producer.
	Close()
}
