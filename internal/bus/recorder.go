package bus

import (
	"context"
	"sync"
)

// Recorded is one captured event with its topic.
type Recorded struct {
	Topic string
	Key   string
	Event any
}

// Recorder is an in-memory Publisher that captures events in publish order.
// Used in tests and in local development when no broker is available.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Discovered(_ context.Context, ev DiscoveredEvent) bool {
	return r.record(TopicDiscovered, ev.DocID, ev)
}

func (r *Recorder) Fetched(_ context.Context, ev FetchedEvent) bool {
	return r.record(TopicFetched, ev.DocID, ev)
}

func (r *Recorder) Parsed(_ context.Context, ev ParsedEvent) bool {
	return r.record(TopicParsed, ev.DocID, ev)
}

func (r *Recorder) Failed(_ context.Context, ev FailedEvent) bool {
	return r.record(TopicFailed, ev.DocID, ev)
}

func (r *Recorder) Close() {}

func (r *Recorder) record(topic, key string, ev any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Topic: topic, Key: key, Event: ev})
	return true
}

// Events returns a copy of everything recorded so far, in publish order.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Topics returns just the topic names in publish order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Topic
	}
	return out
}
