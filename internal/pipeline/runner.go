package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencourt/registrar/internal/bus"
	"github.com/opencourt/registrar/internal/model"
)

// loopBackoff is how long a loop sleeps after a cycle-level error before
// resuming.
const loopBackoff = 30 * time.Second

// Discoverer produces discovery tuples. *monitor.Discoverer satisfies it.
type Discoverer interface {
	Discover(ctx context.Context) ([]model.Discovery, error)
	DiscoverRange(ctx context.Context, from, to time.Time) ([]model.Discovery, error)
}

// Reconciler reports silently changed versions. *monitor.Reconciler
// satisfies it.
type Reconciler interface {
	Run(ctx context.Context) ([]model.Discovery, error)
}

// Runner drives the discovery and reconciliation loops against one
// Coordinator. Loops are restartable at any cycle boundary; a cycle error
// is logged and retried after a backoff, never fatal.
type Runner struct {
	coordinator            *Coordinator
	discoverer             Discoverer
	reconciler             Reconciler
	discoveryInterval      time.Duration
	reconciliationInterval time.Duration
	backoff                time.Duration
	logger                 *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(coordinator *Coordinator, discoverer Discoverer, reconciler Reconciler, discoveryInterval, reconciliationInterval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		coordinator:            coordinator,
		discoverer:             discoverer,
		reconciler:             reconciler,
		discoveryInterval:      discoveryInterval,
		reconciliationInterval: reconciliationInterval,
		backoff:                loopBackoff,
		logger:                 logger,
	}
}

// Run blocks until ctx is cancelled, running both loops. The first
// discovery cycle fires immediately; reconciliation waits one interval.
func (r *Runner) Run(ctx context.Context) {
	r.discoveryCycle(ctx)

	discoveryTicker := time.NewTicker(r.discoveryInterval)
	defer discoveryTicker.Stop()
	reconcileTicker := time.NewTicker(r.reconciliationInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("pipeline: runner stopped")
			return
		case <-discoveryTicker.C:
			r.discoveryCycle(ctx)
		case <-reconcileTicker.C:
			r.reconcileCycle(ctx)
		}
	}
}

// Backfill runs a synthetic discovery cycle for a date range.
func (r *Runner) Backfill(ctx context.Context, from, to time.Time) (int, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("pipeline: backfill range ends before it starts")
	}
	discoveries, err := r.discoverer.DiscoverRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("pipeline: backfill discovery: %w", err)
	}
	r.logger.Info("pipeline: backfill started",
		"from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"),
		"documents", len(discoveries))
	r.coordinator.ProcessBatch(ctx, discoveries)
	return len(discoveries), nil
}

func (r *Runner) discoveryCycle(ctx context.Context) {
	discoveries, err := r.discoverer.Discover(ctx)
	if err != nil {
		r.logger.Error("pipeline: discovery cycle failed", "error", err)
		// A cycle failure has no doc_id; the empty key lets consumers
		// tell cycle-level failures from per-document ones.
		r.coordinator.bus.Failed(ctx, bus.FailedEvent{
			Stage:        bus.StageDiscovery,
			Error:        err.Error(),
			ErrorDetails: map[string]any{"kind": string(classify(bus.StageDiscovery, err))},
			FailedAt:     time.Now().UTC(),
		})
		r.sleep(ctx, r.backoff)
		return
	}
	r.coordinator.ProcessBatch(ctx, discoveries)
}

func (r *Runner) reconcileCycle(ctx context.Context) {
	changed, err := r.reconciler.Run(ctx)
	if err != nil {
		r.logger.Error("pipeline: reconciliation cycle failed", "error", err)
		r.sleep(ctx, r.backoff)
		return
	}
	r.coordinator.ProcessBatch(ctx, changed)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
