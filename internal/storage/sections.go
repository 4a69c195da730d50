package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/opencourt/registrar/internal/model"
)

// NewChunk is one embedding chunk to be inserted under a section.
type NewChunk struct {
	ChunkIndex int
	Text       string
	Vector     pgvector.Vector
	TokenCount int
}

// NewSection is one section, with its chunks, to be inserted under a
// version. OrderIndex values must be dense 0..N-1 across the batch.
type NewSection struct {
	SectionType string
	OrderIndex  int
	Text        string
	Chunks      []NewChunk
}

// InsertSectionsAndChunks writes all sections and chunks for a version in a
// single transaction. A version either has its full section set or none.
// Pipeline writes go through InsertVersion, which inserts the sections in
// the version's own transaction; this entry point serves repair tooling.
func (db *DB) InsertSectionsAndChunks(ctx context.Context, versionID uuid.UUID, sections []NewSection) ([]model.DocumentSection, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out, err := insertSectionsTx(ctx, tx, versionID, sections)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("storage: commit sections: %w", err)
	}
	return out, nil
}

// insertSectionsTx inserts sections and their chunks inside the caller's
// transaction.
func insertSectionsTx(ctx context.Context, tx pgx.Tx, versionID uuid.UUID, sections []NewSection) ([]model.DocumentSection, error) {
	out := make([]model.DocumentSection, 0, len(sections))
	for _, s := range sections {
		var sec model.DocumentSection
		err := tx.QueryRow(ctx,
			`INSERT INTO document_sections (document_version_id, section_type, order_index, text)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, document_version_id, section_type, order_index, text, created_at`,
			versionID, s.SectionType, s.OrderIndex, s.Text,
		).Scan(&sec.ID, &sec.DocumentVersionID, &sec.SectionType, &sec.OrderIndex,
			&sec.Text, &sec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("storage: insert section %d: %w", s.OrderIndex, classify(err))
		}

		for _, c := range s.Chunks {
			if _, err := tx.Exec(ctx,
				`INSERT INTO embedding_chunks (section_id, chunk_index, text, embedding, token_count)
				 VALUES ($1, $2, $3, $4, $5)`,
				sec.ID, c.ChunkIndex, c.Text, c.Vector, c.TokenCount,
			); err != nil {
				return nil, fmt.Errorf("storage: insert chunk %d of section %d: %w",
					c.ChunkIndex, s.OrderIndex, classify(err))
			}
		}
		out = append(out, sec)
	}
	return out, nil
}

// ListSections returns a version's sections in order.
func (db *DB) ListSections(ctx context.Context, versionID uuid.UUID) ([]model.DocumentSection, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, document_version_id, section_type, order_index, text, created_at
		 FROM document_sections
		 WHERE document_version_id = $1
		 ORDER BY order_index`, versionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list sections: %w", err)
	}
	defer rows.Close()

	var out []model.DocumentSection
	for rows.Next() {
		var s model.DocumentSection
		if err := rows.Scan(&s.ID, &s.DocumentVersionID, &s.SectionType,
			&s.OrderIndex, &s.Text, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan section: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListChunks returns a section's chunks in order.
func (db *DB) ListChunks(ctx context.Context, sectionID uuid.UUID) ([]model.EmbeddingChunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, section_id, chunk_index, text, embedding, token_count, created_at
		 FROM embedding_chunks
		 WHERE section_id = $1
		 ORDER BY chunk_index`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list chunks: %w", err)
	}
	defer rows.Close()

	var out []model.EmbeddingChunk
	for rows.Next() {
		var c model.EmbeddingChunk
		if err := rows.Scan(&c.ID, &c.SectionID, &c.ChunkIndex, &c.Text,
			&c.Vector, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LinkVersionLawArticles attaches law articles to a version. Idempotent.
func (db *DB) LinkVersionLawArticles(ctx context.Context, versionID uuid.UUID, articleIDs []uuid.UUID) error {
	for _, id := range articleIDs {
		if _, err := db.pool.Exec(ctx,
			`INSERT INTO version_law_articles (document_version_id, law_article_id)
			 VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			versionID, id,
		); err != nil {
			return fmt.Errorf("storage: link law article: %w", classify(err))
		}
	}
	return nil
}

// ListVersionLawArticles returns the law articles referenced by a version.
func (db *DB) ListVersionLawArticles(ctx context.Context, versionID uuid.UUID) ([]model.LawArticle, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.id, a.code, a.title, a.created_at, a.updated_at
		 FROM version_law_articles vla
		 JOIN law_articles a ON a.id = vla.law_article_id
		 WHERE vla.document_version_id = $1
		 ORDER BY a.code`, versionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list version law articles: %w", err)
	}
	defer rows.Close()

	var out []model.LawArticle
	for rows.Next() {
		var a model.LawArticle
		if err := rows.Scan(&a.ID, &a.Code, &a.Title, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan law article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertDecisionOutcome records the per-party result on a version,
// replacing any previous row for the same (version, party).
func (db *DB) UpsertDecisionOutcome(ctx context.Context, o model.DecisionOutcome) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO decision_outcomes
		   (document_version_id, party_id, result, amount_awarded, currency)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (document_version_id, party_id) DO UPDATE
		 SET result = EXCLUDED.result,
		     amount_awarded = EXCLUDED.amount_awarded,
		     currency = EXCLUDED.currency`,
		o.DocumentVersionID, o.PartyID, o.Result, o.AmountAwarded, o.Currency,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert decision outcome: %w", classify(err))
	}
	return nil
}

// RecordParseRun appends a parse-run audit row for a version.
func (db *DB) RecordParseRun(ctx context.Context, versionID uuid.UUID, parserVersion string, confidence float64) (model.ParseRun, error) {
	var pr model.ParseRun
	err := db.pool.QueryRow(ctx,
		`INSERT INTO parse_runs (document_version_id, parser_version, confidence)
		 VALUES ($1, $2, $3)
		 RETURNING id, document_version_id, parser_version, parsed_at, confidence`,
		versionID, parserVersion, confidence,
	).Scan(&pr.ID, &pr.DocumentVersionID, &pr.ParserVersion, &pr.ParsedAt, &pr.Confidence)
	if err != nil {
		return model.ParseRun{}, fmt.Errorf("storage: record parse run: %w", classify(err))
	}
	return pr, nil
}
