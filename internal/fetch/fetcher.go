// Package fetch downloads raw documents from the registry with bounded
// concurrency, archiving every successful response in the blob store.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/opencourt/registrar/internal/blob"
	"github.com/opencourt/registrar/internal/telemetry"
)

// ErrNotFound reports an HTTP 404. It is terminal for the URL: no retries
// are attempted and no version is written.
var ErrNotFound = errors.New("fetch: document not found")

// Result is one successfully fetched and archived document.
type Result struct {
	Content     []byte
	ContentType string
	Ext         string // "pdf" or "html"
	Hash        string // SHA-256 hex of Content
	StoragePath string
	URL         string
	FetchedAt   time.Time
}

// Pool is a bounded-concurrency HTTP fetcher. The semaphore is the only
// global in-flight cap in the pipeline; permits are released on every exit
// path so the pool can never starve.
type Pool struct {
	workers    int64
	maxRetries int
	client     *http.Client
	store      blob.Store
	sem        *semaphore.Weighted
	logger     *slog.Logger
	metrics    *telemetry.PipelineMetrics

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

// Config holds fetcher pool settings.
type Config struct {
	Workers    int
	MaxRetries int
	Timeout    time.Duration
}

// NewPool creates a fetcher pool. The HTTP client follows redirects and its
// connection pool is bounded to 2x the worker count.
func NewPool(cfg Config, store blob.Store, logger *slog.Logger, metrics *telemetry.PipelineMetrics) *Pool {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * 2,
		MaxConnsPerHost:     cfg.Workers * 2,
		MaxIdleConnsPerHost: cfg.Workers,
	}
	return &Pool{
		workers:    int64(cfg.Workers),
		maxRetries: cfg.MaxRetries,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		store:   store,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch downloads url with retries and exponential backoff, archives the
// bytes, and returns the result. A 404 returns ErrNotFound immediately;
// transient errors are retried up to MaxRetries times before giving up.
func (p *Pool) Fetch(ctx context.Context, url, docID string) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetch: acquire permit: %w", err)
	}
	defer p.sem.Release(1)

	p.enter(ctx)
	defer p.exit(ctx)

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		result, err := p.attempt(ctx, url, docID)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrNotFound) {
			p.logger.Warn("fetch: not found", "doc_id", docID, "url", url)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		p.logger.Warn("fetch: transient failure",
			"doc_id", docID, "url", url, "attempt", attempt+1, "error", err)

		if attempt < p.maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	p.logger.Error("fetch: retries exhausted",
		"doc_id", docID, "url", url, "attempts", p.maxRetries)
	return nil, fmt.Errorf("fetch: %s: retries exhausted: %w", url, lastErr)
}

// attempt performs a single GET, classifies the response, and archives it.
func (p *Pool) attempt(ctx context.Context, url, docID string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	ext := "html"
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		ext = "pdf"
	}

	path, err := p.store.Save(ctx, docID, content, ext)
	if err != nil {
		return nil, fmt.Errorf("fetch: archive: %w", err)
	}

	return &Result{
		Content:     content,
		ContentType: contentType,
		Ext:         ext,
		Hash:        blob.Hash(content),
		StoragePath: path,
		URL:         url,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Request is one (URL, docID) pair for batch fetching.
type Request struct {
	URL   string
	DocID string
}

// FetchBatch fans requests out through the worker bound and collects
// results positionally: index i of the returned slice corresponds to
// requests[i], with nil for any failed slot.
func (p *Pool) FetchBatch(ctx context.Context, requests []Request) []*Result {
	results := make([]*Result, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			res, err := p.Fetch(ctx, req.URL, req.DocID)
			if err != nil {
				return // slot stays nil, caller matches by index
			}
			results[i] = res
		}(i, req)
	}
	wg.Wait()

	return results
}

// InFlight returns the number of fetches currently holding a permit.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// MaxInFlightSeen returns the high-water mark of concurrent fetches.
func (p *Pool) MaxInFlightSeen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSeen
}

func (p *Pool) enter(ctx context.Context) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.mu.Unlock()
	p.metrics.StageEnter(ctx, "fetch")
}

func (p *Pool) exit(ctx context.Context) {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	p.metrics.StageExit(ctx, "fetch")
}
