// Package monitor discovers new and silently modified registry documents.
// Discovery scrapes the syndication feed and the recent-cases search page;
// reconciliation re-hashes known URLs to catch upstream edits.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/opencourt/registrar/internal/model"
	"github.com/opencourt/registrar/internal/storage"
	"github.com/opencourt/registrar/internal/telemetry"
)

// discoveryLimit caps how many new documents one discovery cycle returns.
const discoveryLimit = 100

// VersionFinder is the slice of the metadata store discovery needs.
type VersionFinder interface {
	FindVersionBySourceURL(ctx context.Context, sourceURL string) (model.DocumentVersion, error)
}

// SearchPageParser extracts document URLs from the search-page HTML.
// The upstream markup is not under our control, so the selector is a
// swappable strategy.
type SearchPageParser func(r io.Reader) ([]string, error)

// FeedParser extracts document URLs from the syndication feed, likewise
// swappable.
type FeedParser func(ctx context.Context, feedURL string) ([]string, error)

// Discoverer finds registry documents not yet present in the metadata store.
type Discoverer struct {
	baseURL     string
	client      *http.Client
	store       VersionFinder
	parseFeed   FeedParser
	parseSearch SearchPageParser
	logger      *slog.Logger
	metrics     *telemetry.PipelineMetrics
}

// NewDiscoverer creates a Discoverer against the registry base URL.
// Nil parsers use the defaults matching the upstream markup.
func NewDiscoverer(baseURL string, timeout time.Duration, store VersionFinder, feedParser FeedParser, searchParser SearchPageParser, logger *slog.Logger, metrics *telemetry.PipelineMetrics) *Discoverer {
	if feedParser == nil {
		feedParser = DefaultFeedParser
	}
	if searchParser == nil {
		searchParser = DefaultSearchPageParser
	}
	return &Discoverer{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		store:       store,
		parseFeed:   feedParser,
		parseSearch: searchParser,
		logger:      logger,
		metrics:     metrics,
	}
}

// Discover runs one discovery cycle: feed plus last-24h search page,
// deduplicated, minus URLs already known to the store, capped at the
// discovery limit. Feed and search failures are tolerated independently;
// the cycle only fails if both sources fail.
func (d *Discoverer) Discover(ctx context.Context) ([]model.Discovery, error) {
	var urls []string
	var sourceErrs int

	feedURLs, err := d.fromFeed(ctx)
	if err != nil {
		d.logger.Warn("monitor: feed discovery failed", "error", err)
		sourceErrs++
	}
	urls = append(urls, feedURLs...)

	searchURLs, err := d.fromSearchPage(ctx)
	if err != nil {
		d.logger.Warn("monitor: search page discovery failed", "error", err)
		sourceErrs++
	}
	urls = append(urls, searchURLs...)

	if sourceErrs == 2 {
		return nil, fmt.Errorf("monitor: all discovery sources failed")
	}

	discoveries := d.filterKnown(ctx, urls, discoveryLimit)
	d.metrics.Discovered(ctx, len(discoveries))
	d.logger.Info("monitor: discovery cycle complete",
		"candidates", len(urls), "new", len(discoveries))
	return discoveries, nil
}

// filterKnown dedupes candidate URLs by doc id and drops the ones already
// present in the store. A limit of 0 means unlimited.
func (d *Discoverer) filterKnown(ctx context.Context, urls []string, limit int) []model.Discovery {
	discoveries := make([]model.Discovery, 0, len(urls))
	seen := make(map[string]bool)
	now := time.Now().UTC()
	for _, u := range urls {
		docID := ExtractDocID(u)
		if docID == "" || seen[docID] {
			continue
		}
		seen[docID] = true

		_, err := d.store.FindVersionBySourceURL(ctx, u)
		if err == nil {
			continue // already ingested
		}
		if err != storage.ErrNotFound {
			d.logger.Warn("monitor: store lookup failed", "url", u, "error", err)
			continue
		}

		discoveries = append(discoveries, model.Discovery{
			DocID:        docID,
			URL:          u,
			DiscoveredAt: now,
		})
		if limit > 0 && len(discoveries) >= limit {
			break
		}
	}
	return discoveries
}

// fromFeed pulls document links from the registry RSS feed.
func (d *Discoverer) fromFeed(ctx context.Context) ([]string, error) {
	return d.parseFeed(ctx, d.baseURL+"/RSS")
}

// DefaultFeedParser reads an RSS/Atom feed and returns the item links.
// Items without a usable link are skipped.
func DefaultFeedParser(ctx context.Context, feedURL string) ([]string, error) {
	feed, err := gofeed.NewParser().ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor: parse feed: %w", err)
	}

	var urls []string
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		urls = append(urls, item.Link)
	}
	return urls, nil
}

// DiscoverRange queries the search page for an explicit date range and
// returns tuples for documents not yet in the store. Backfills use this
// directly; its effect is identical to a synthetic discovery cycle.
func (d *Discoverer) DiscoverRange(ctx context.Context, from, to time.Time) ([]model.Discovery, error) {
	urls, err := d.searchRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return d.filterKnown(ctx, urls, 0), nil
}

// fromSearchPage pulls document links from the recent-cases search page for
// the last 24 hours.
func (d *Discoverer) fromSearchPage(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	return d.searchRange(ctx, now.Add(-24*time.Hour), now)
}

func (d *Discoverer) searchRange(ctx context.Context, from, to time.Time) ([]string, error) {
	searchURL := fmt.Sprintf("%s/Search?date_from=%s&date_to=%s",
		d.baseURL,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("monitor: build search request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monitor: get search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("monitor: search page status %d", resp.StatusCode)
	}

	relative, err := d.parseSearch(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("monitor: parse search page: %w", err)
	}

	urls := make([]string, 0, len(relative))
	for _, href := range relative {
		urls = append(urls, d.absolute(href))
	}
	return urls, nil
}

func (d *Discoverer) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return d.baseURL + "/" + strings.TrimLeft(href, "/")
}

// DefaultSearchPageParser extracts hrefs of anchors pointing at documents
// or cases. Result rows link either way depending on the list view, and
// case links resolve to their documents downstream. Malformed anchors are
// skipped, never fatal.
func DefaultSearchPageParser(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	doc.Find(`a[href*="/Document/"], a[href*="/Case/"]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs, nil
}

// ExtractDocID returns the path token after /Document/, or "" when the URL
// does not address a document.
func ExtractDocID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "Document" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}
