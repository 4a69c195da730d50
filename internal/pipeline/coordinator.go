// Package pipeline orchestrates the ingestion flow for one document at a
// time: discovery announcement, fetch, parse, persistence, embedding. The
// coordinator is the only writer to the metadata store.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencourt/registrar/internal/bus"
	"github.com/opencourt/registrar/internal/embedding"
	"github.com/opencourt/registrar/internal/fetch"
	"github.com/opencourt/registrar/internal/model"
	"github.com/opencourt/registrar/internal/storage"
	"github.com/opencourt/registrar/internal/telemetry"
)

// Store is the slice of the metadata store the coordinator writes through.
// *storage.DB satisfies it.
type Store interface {
	UpsertCourt(ctx context.Context, name string, region, level *string) (model.Court, error)
	UpsertJudge(ctx context.Context, fullName string, courtID *uuid.UUID) (model.Judge, error)
	UpsertCaseByRegistryNumber(ctx context.Context, registryNumber string, courtID *uuid.UUID) (model.Case, error)
	UpsertParty(ctx context.Context, partyType, normalizedName string, taxID *string) (model.Party, error)
	LinkCaseParty(ctx context.Context, caseID, partyID uuid.UUID, role string) error
	UpsertLawArticle(ctx context.Context, code string, title *string) (model.LawArticle, error)
	CreateDocument(ctx context.Context, caseID uuid.UUID, docType string) (model.Document, error)
	InsertVersion(ctx context.Context, nv storage.NewVersion) (model.DocumentVersion, bool, error)
	FindVersionBySourceURL(ctx context.Context, sourceURL string) (model.DocumentVersion, error)
	LinkVersionLawArticles(ctx context.Context, versionID uuid.UUID, articleIDs []uuid.UUID) error
	UpsertDecisionOutcome(ctx context.Context, o model.DecisionOutcome) error
	RecordParseRun(ctx context.Context, versionID uuid.UUID, parserVersion string, confidence float64) (model.ParseRun, error)
}

// Fetcher downloads and archives one URL. *fetch.Pool satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url, docID string) (*fetch.Result, error)
}

// Parser extracts a structured record from raw bytes. *parse.Parser
// satisfies it.
type Parser interface {
	Parse(ctx context.Context, content []byte, contentType string) model.ParsedDocument
}

// Coordinator runs the per-document state machine
// DISCOVERED → FETCHED → PARSED → PERSISTED → EMBEDDED.
type Coordinator struct {
	store    Store
	fetcher  Fetcher
	parser   Parser
	embedder embedding.Provider
	chunker  *embedding.Chunker
	bus      bus.Publisher
	logger   *slog.Logger
	metrics  *telemetry.PipelineMetrics

	confidenceThreshold float64
}

// New creates a Coordinator.
func New(store Store, fetcher Fetcher, parser Parser, embedder embedding.Provider, chunker *embedding.Chunker, publisher bus.Publisher, confidenceThreshold float64, logger *slog.Logger, metrics *telemetry.PipelineMetrics) *Coordinator {
	return &Coordinator{
		store:               store,
		fetcher:             fetcher,
		parser:              parser,
		embedder:            embedder,
		chunker:             chunker,
		bus:                 publisher,
		logger:              logger,
		metrics:             metrics,
		confidenceThreshold: confidenceThreshold,
	}
}

// ProcessBatch runs Process for each discovery. One document's failure
// never affects the others; errors are logged per document.
func (c *Coordinator) ProcessBatch(ctx context.Context, discoveries []model.Discovery) {
	for _, disc := range discoveries {
		if ctx.Err() != nil {
			return
		}
		if err := c.Process(ctx, disc); err != nil {
			c.logger.Error("pipeline: document failed",
				"doc_id", disc.DocID, "url", disc.URL, "error", err)
		}
	}
}

// Process runs the full flow for one discovery tuple.
func (c *Coordinator) Process(ctx context.Context, disc model.Discovery) error {
	c.bus.Discovered(ctx, bus.DiscoveredEvent{
		DocID:        disc.DocID,
		CaseID:       disc.CaseID,
		URL:          disc.URL,
		DiscoveredAt: disc.DiscoveredAt,
		HashHint:     disc.HashHint,
	})

	fetchStart := time.Now()
	result, err := c.fetcher.Fetch(ctx, disc.URL, disc.DocID)
	c.metrics.StageDuration(ctx, "fetch", time.Since(fetchStart))
	if err != nil {
		c.metrics.Fetched(ctx, "failed")
		c.bus.Failed(ctx, bus.FailedEvent{
			DocID: disc.DocID,
			Stage: bus.StageFetch,
			Error: err.Error(),
			ErrorDetails: map[string]any{
				"url":  disc.URL,
				"kind": string(classify(bus.StageFetch, err)),
			},
			FailedAt: time.Now().UTC(),
		})
		return fmt.Errorf("pipeline: fetch %s: %w", disc.DocID, err)
	}
	c.metrics.Fetched(ctx, "success")
	c.bus.Fetched(ctx, bus.FetchedEvent{
		DocID:       disc.DocID,
		StoragePath: result.StoragePath,
		SHA256:      result.Hash,
		FetchedAt:   result.FetchedAt,
	})

	parsed := c.parser.Parse(ctx, result.Content, result.ContentType)
	if parsed.Confidence < c.confidenceThreshold {
		c.logger.Warn("pipeline: low-confidence parse",
			"doc_id", disc.DocID, "confidence", parsed.Confidence,
			"kind", string(KindBadContent))
	}

	// Identical bytes re-fetched at the same URL write nothing; the
	// existing version is announced as-is.
	var prior *model.DocumentVersion
	switch found, err := c.store.FindVersionBySourceURL(ctx, disc.URL); {
	case err == nil:
		if found.SourceHash == result.Hash {
			c.publishParsed(ctx, disc, found.ID, parsed)
			return nil
		}
		prior = &found
	case errors.Is(err, storage.ErrNotFound):
	default:
		c.bus.Failed(ctx, bus.FailedEvent{
			DocID:        disc.DocID,
			Stage:        bus.StageParse,
			Error:        err.Error(),
			ErrorDetails: map[string]any{"kind": string(classify(bus.StageParse, err))},
			FailedAt:     time.Now().UTC(),
		})
		return fmt.Errorf("pipeline: look up prior version %s: %w", disc.DocID, err)
	}

	// Embeddings are computed before anything is persisted: a provider
	// failure leaves the URL unknown to the store, so the next discovery
	// cycle retries the document from scratch.
	sections, err := c.buildSections(ctx, parsed)
	if err != nil {
		c.bus.Failed(ctx, bus.FailedEvent{
			DocID:        disc.DocID,
			Stage:        bus.StageEmbedding,
			Error:        err.Error(),
			ErrorDetails: map[string]any{"kind": string(classify(bus.StageEmbedding, err))},
			FailedAt:     time.Now().UTC(),
		})
		return fmt.Errorf("pipeline: embed %s: %w", disc.DocID, err)
	}

	version, err := c.persist(ctx, disc, result, parsed, prior, sections)
	if err != nil {
		if errors.Is(err, storage.ErrIntegrity) {
			// Constraint violations skip the row, never crash the loop.
			c.logger.Warn("pipeline: integrity violation, skipping",
				"doc_id", disc.DocID, "error", err)
		}
		c.bus.Failed(ctx, bus.FailedEvent{
			DocID:        disc.DocID,
			Stage:        bus.StageParse,
			Error:        err.Error(),
			ErrorDetails: map[string]any{"kind": string(classify(bus.StageParse, err))},
			FailedAt:     time.Now().UTC(),
		})
		return fmt.Errorf("pipeline: persist %s: %w", disc.DocID, err)
	}

	c.publishParsed(ctx, disc, version.ID, parsed)
	return nil
}

// publishParsed announces a persisted structured record.
func (c *Coordinator) publishParsed(ctx context.Context, disc model.Discovery, versionID uuid.UUID, parsed model.ParsedDocument) {
	if !c.bus.Parsed(ctx, bus.ParsedEvent{
		DocID:     disc.DocID,
		VersionID: versionID.String(),
		Entities:  entitySummary(parsed),
		LawRefs:   parsed.LawReferences,
		ParsedAt:  parsed.ParsedAt,
	}) {
		c.logger.Debug("pipeline: parsed event not published",
			"doc_id", disc.DocID, "kind", string(KindBusUnavailable))
	}
}

// persist writes the relational rows for one fetched document: the version
// with its sections and chunks in one transaction, then the satellite rows.
// prior, when set, names the version chain this URL already belongs to.
func (c *Coordinator) persist(ctx context.Context, disc model.Discovery, result *fetch.Result, parsed model.ParsedDocument, prior *model.DocumentVersion, sections []storage.NewSection) (model.DocumentVersion, error) {
	var courtID *uuid.UUID
	if parsed.Court != nil {
		court, err := c.store.UpsertCourt(ctx, *parsed.Court, nil, nil)
		if err != nil {
			return model.DocumentVersion{}, err
		}
		courtID = &court.ID

		if parsed.Judge != nil {
			if _, err := c.store.UpsertJudge(ctx, *parsed.Judge, courtID); err != nil {
				return model.DocumentVersion{}, err
			}
		}
	}

	// A document whose case number the parser could not find still gets a
	// case, keyed by a placeholder derived from the doc id.
	registryNumber := "unassigned/" + disc.DocID
	if parsed.CaseNumber != nil {
		registryNumber = *parsed.CaseNumber
	}
	kase, err := c.store.UpsertCaseByRegistryNumber(ctx, registryNumber, courtID)
	if err != nil {
		return model.DocumentVersion{}, err
	}

	// Reconciliation reuses the document already recorded for this URL;
	// first sight creates a new one.
	var documentID uuid.UUID
	if prior != nil {
		documentID = prior.DocumentID
	} else {
		doc, err := c.store.CreateDocument(ctx, kase.ID, "decision")
		if err != nil {
			return model.DocumentVersion{}, err
		}
		documentID = doc.ID
	}

	parsedJSON, err := json.Marshal(parsed)
	if err != nil {
		return model.DocumentVersion{}, fmt.Errorf("pipeline: marshal parsed record: %w", err)
	}

	version, created, err := c.store.InsertVersion(ctx, storage.NewVersion{
		DocumentID:     documentID,
		SourceURL:      disc.URL,
		SourceHash:     result.Hash,
		RawStoragePath: result.StoragePath,
		ParsedJSON:     parsedJSON,
		Sections:       sections,
	})
	if err != nil {
		return model.DocumentVersion{}, err
	}
	if !created {
		// A concurrent writer already landed these bytes.
		return version, nil
	}

	if _, err := c.store.RecordParseRun(ctx, version.ID, parsed.ParserVersion, parsed.Confidence); err != nil {
		return model.DocumentVersion{}, err
	}

	if len(parsed.LawReferences) > 0 {
		articleIDs := make([]uuid.UUID, 0, len(parsed.LawReferences))
		for _, code := range parsed.LawReferences {
			article, err := c.store.UpsertLawArticle(ctx, code, nil)
			if err != nil {
				return model.DocumentVersion{}, err
			}
			articleIDs = append(articleIDs, article.ID)
		}
		if err := c.store.LinkVersionLawArticles(ctx, version.ID, articleIDs); err != nil {
			return model.DocumentVersion{}, err
		}
	}

	if err := c.persistParties(ctx, kase.ID, version.ID, parsed); err != nil {
		return model.DocumentVersion{}, err
	}

	return version, nil
}

// persistParties links extracted parties to the case and records the
// decision outcome for the lead plaintiff when the record supports one.
// Party extraction is best-effort; empty lists are the norm.
func (c *Coordinator) persistParties(ctx context.Context, caseID, versionID uuid.UUID, parsed model.ParsedDocument) error {
	link := func(names []string, role string) (*model.Party, error) {
		var first *model.Party
		for _, name := range names {
			party, err := c.store.UpsertParty(ctx, model.PartyTypePerson, normalizeName(name), nil)
			if err != nil {
				return nil, err
			}
			if err := c.store.LinkCaseParty(ctx, caseID, party.ID, role); err != nil {
				return nil, err
			}
			if first == nil {
				p := party
				first = &p
			}
		}
		return first, nil
	}

	plaintiff, err := link(parsed.Parties.Plaintiff, "plaintiff")
	if err != nil {
		return err
	}
	if _, err := link(parsed.Parties.Defendant, "defendant"); err != nil {
		return err
	}

	if plaintiff == nil || parsed.Decision == nil {
		return nil
	}

	outcome := model.DecisionOutcome{
		DocumentVersionID: versionID,
		PartyID:           plaintiff.ID,
		Result:            decisionResult(*parsed.Decision),
	}
	if len(parsed.Amounts) > 0 {
		outcome.AmountAwarded = &parsed.Amounts[0].Value
		outcome.Currency = &parsed.Amounts[0].Currency
	}
	return c.store.UpsertDecisionOutcome(ctx, outcome)
}

// buildSections chunks each text block and embeds the chunks in one batch,
// returning section rows ready for the version transaction. An empty parse
// yields no sections and no embeddings.
func (c *Coordinator) buildSections(ctx context.Context, parsed model.ParsedDocument) ([]storage.NewSection, error) {
	if len(parsed.TextBlocks) == 0 {
		return nil, nil
	}

	start := time.Now()
	c.metrics.StageEnter(ctx, "embedding")
	defer func() {
		c.metrics.StageExit(ctx, "embedding")
		c.metrics.StageDuration(ctx, "embedding", time.Since(start))
	}()

	sections := make([]storage.NewSection, 0, len(parsed.TextBlocks))
	var texts []string
	type slot struct{ section, chunk int }
	var slots []slot

	for i, block := range parsed.TextBlocks {
		sec := storage.NewSection{
			SectionType: block.Type,
			OrderIndex:  i,
			Text:        block.Text,
		}
		for j, chunk := range c.chunker.Split(block.Text) {
			sec.Chunks = append(sec.Chunks, storage.NewChunk{
				ChunkIndex: j,
				Text:       chunk.Text,
				TokenCount: chunk.TokenCount,
			})
			texts = append(texts, chunk.Text)
			slots = append(slots, slot{section: len(sections), chunk: j})
		}
		sections = append(sections, sec)
	}

	if len(texts) > 0 {
		vectors, err := c.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("pipeline: embed batch: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("pipeline: embed batch returned %d vectors for %d chunks",
				len(vectors), len(texts))
		}
		for i, s := range slots {
			sections[s.section].Chunks[s.chunk].Vector = vectors[i]
		}
		c.metrics.EmbeddingsGenerated(ctx, len(vectors))
	}

	return sections, nil
}

// entitySummary is the entities payload of the parsed event.
func entitySummary(parsed model.ParsedDocument) map[string]any {
	entities := map[string]any{
		"confidence": parsed.Confidence,
	}
	if parsed.Court != nil {
		entities["court"] = *parsed.Court
	}
	if parsed.Judge != nil {
		entities["judge"] = *parsed.Judge
	}
	if parsed.Date != nil {
		entities["date"] = *parsed.Date
	}
	if parsed.CaseNumber != nil {
		entities["case_number"] = *parsed.CaseNumber
	}
	return entities
}

// decisionResult maps the decision text onto a coarse outcome.
func decisionResult(decision string) string {
	lower := strings.ToLower(decision)
	switch {
	case strings.Contains(lower, "частково"):
		return model.OutcomePartial
	case strings.Contains(lower, "задовольнити"), strings.Contains(lower, "задоволено"):
		return model.OutcomeWon
	case strings.Contains(lower, "відмовити"), strings.Contains(lower, "відмовлено"):
		return model.OutcomeLost
	default:
		return model.OutcomePartial
	}
}

// normalizeName lower-cases and collapses whitespace for party dedup.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
