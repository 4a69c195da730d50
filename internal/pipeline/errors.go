package pipeline

import (
	"context"
	"errors"
	"net"

	"github.com/opencourt/registrar/internal/bus"
	"github.com/opencourt/registrar/internal/fetch"
	"github.com/opencourt/registrar/internal/storage"
)

// Kind classifies a stage failure for the failed event and for logs.
type Kind string

const (
	// KindTransientIO covers timeouts, 5xx responses, and connection
	// resets; the fetcher retries these with backoff.
	KindTransientIO Kind = "transient_io"

	// KindNotFound is an HTTP 404, terminal for that URL.
	KindNotFound Kind = "not_found"

	// KindBadContent means the parser found nothing useful; non-fatal,
	// the empty record is still persisted.
	KindBadContent Kind = "bad_content"

	// KindProviderError is an embedding failure, terminal for the current
	// cycle. Nothing is persisted for the document, so its URL stays
	// unknown to the store and the next discovery cycle retries it.
	KindProviderError Kind = "provider_error"

	// KindIntegrity is a database constraint violation; the row is
	// skipped, the loop continues.
	KindIntegrity Kind = "integrity"

	// KindBusUnavailable means an event publish failed; warn and continue.
	KindBusUnavailable Kind = "bus_unavailable"
)

// classify maps a stage error onto its kind. The stage disambiguates
// errors that wrap nothing recognizable.
func classify(stage string, err error) Kind {
	switch {
	case errors.Is(err, fetch.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, storage.ErrIntegrity):
		return KindIntegrity
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransientIO
	}

	if stage == bus.StageEmbedding {
		return KindProviderError
	}
	return KindTransientIO
}
