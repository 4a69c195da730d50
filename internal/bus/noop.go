package bus

import "context"

// NoopPublisher discards all events. Used when the bus is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Discovered(context.Context, DiscoveredEvent) bool { return false }
func (NoopPublisher) Fetched(context.Context, FetchedEvent) bool       { return false }
func (NoopPublisher) Parsed(context.Context, ParsedEvent) bool         { return false }
func (NoopPublisher) Failed(context.Context, FailedEvent) bool         { return false }
func (NoopPublisher) Close()                                           {}
