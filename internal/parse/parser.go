// Package parse turns raw document bytes into a structured decision record.
// Extraction is pattern-based and tolerant: a field the patterns cannot find
// is nil, never an error, and a fully empty record with confidence 0 is a
// valid result.
package parse

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/opencourt/registrar/internal/model"
	"github.com/opencourt/registrar/internal/telemetry"
)

// Version identifies the extraction rule set; recorded on every parse run.
const Version = "regex-1.0.0"

// Parser extracts structured decision records from HTML or PDF bytes.
type Parser struct {
	logger  *slog.Logger
	metrics *telemetry.PipelineMetrics
}

// New creates a Parser.
func New(logger *slog.Logger, metrics *telemetry.PipelineMetrics) *Parser {
	return &Parser{logger: logger, metrics: metrics}
}

// Parse decodes content by content type and runs the text extractors.
// Decode failures degrade to an empty record; the caller persists it so the
// raw bytes are not re-fetched.
func (p *Parser) Parse(ctx context.Context, content []byte, contentType string) model.ParsedDocument {
	start := time.Now()
	p.metrics.StageEnter(ctx, "parse")
	defer func() {
		p.metrics.StageExit(ctx, "parse")
		p.metrics.StageDuration(ctx, "parse", time.Since(start))
	}()

	var text string
	var err error
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		text, err = extractPDFText(content)
	} else {
		text, err = extractHTMLText(content)
	}
	if err != nil {
		p.logger.Warn("parse: text extraction failed", "content_type", contentType, "error", err)
		p.metrics.Parsed(ctx, "success") // empty record is still a valid result
		return emptyRecord()
	}

	doc := extractFields(text)
	doc.TextBlocks = splitSections(text)
	if doc.Decision == nil {
		for _, block := range doc.TextBlocks {
			if block.Type == model.SectionDecision {
				decision := block.Text
				doc.Decision = &decision
				break
			}
		}
	}
	doc.ParserVersion = Version
	doc.ParsedAt = time.Now().UTC()

	p.metrics.Parsed(ctx, "success")
	return doc
}

func emptyRecord() model.ParsedDocument {
	return model.ParsedDocument{
		Parties:       model.Parties{Plaintiff: []string{}, Defendant: []string{}},
		LawReferences: []string{},
		Amounts:       []model.Amount{},
		TextBlocks:    []model.TextBlock{},
		Confidence:    0,
		ParserVersion: Version,
		ParsedAt:      time.Now().UTC(),
	}
}
