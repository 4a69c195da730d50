package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opencourt/registrar/internal/blob"
	"github.com/opencourt/registrar/internal/model"
	"github.com/opencourt/registrar/internal/storage"
	"github.com/opencourt/registrar/internal/telemetry"
)

// CurrentVersionLister is the slice of the metadata store reconciliation
// needs.
type CurrentVersionLister interface {
	ListCurrentVersions(ctx context.Context, limit, offset int) ([]storage.CurrentVersionRef, error)
}

// Reconciler re-hashes the current version of every known document and
// reports the ones whose upstream bytes changed.
type Reconciler struct {
	store     CurrentVersionLister
	client    *http.Client
	batchSize int
	logger    *slog.Logger
	metrics   *telemetry.PipelineMetrics
}

// NewReconciler creates a Reconciler that scans in batches of batchSize.
func NewReconciler(store CurrentVersionLister, timeout time.Duration, batchSize int, logger *slog.Logger, metrics *telemetry.PipelineMetrics) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reconciler{
		store:     store,
		client:    &http.Client{Timeout: timeout},
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run sweeps all current versions and returns discovery tuples for the
// changed ones, hash hint included. Per-document fetch failures are logged
// and skipped; the sweep itself never mutates the store.
func (r *Reconciler) Run(ctx context.Context) ([]model.Discovery, error) {
	var changed []model.Discovery
	now := time.Now().UTC()

	for offset := 0; ; offset += r.batchSize {
		refs, err := r.store.ListCurrentVersions(ctx, r.batchSize, offset)
		if err != nil {
			return changed, fmt.Errorf("monitor: list versions: %w", err)
		}
		if len(refs) == 0 {
			break
		}

		for _, ref := range refs {
			if ctx.Err() != nil {
				return changed, ctx.Err()
			}

			hash, err := r.rehash(ctx, ref.SourceURL)
			if err != nil {
				r.logger.Warn("monitor: reconcile fetch failed",
					"url", ref.SourceURL, "error", err)
				continue
			}
			if hash == ref.SourceHash {
				continue
			}

			docID := ExtractDocID(ref.SourceURL)
			if docID == "" {
				docID = ref.DocumentID.String()
			}
			changed = append(changed, model.Discovery{
				DocID:        docID,
				URL:          ref.SourceURL,
				DiscoveredAt: now,
				HashHint:     &hash,
			})
		}

		if len(refs) < r.batchSize {
			break
		}
	}

	r.logger.Info("monitor: reconciliation sweep complete", "changed", len(changed))
	return changed, nil
}

// rehash downloads the URL and returns the SHA-256 of its bytes.
func (r *Reconciler) rehash(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return blob.Hash(content), nil
}
