package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// SearchHit is one vector-search result with its provenance chain up to the
// owning document and case.
type SearchHit struct {
	ChunkID     uuid.UUID
	SectionID   uuid.UUID
	VersionID   uuid.UUID
	DocumentID  uuid.UUID
	CaseID      uuid.UUID
	SectionType string
	Text        string
	Similarity  float64
}

// VectorSearch returns the chunks nearest to query by cosine distance,
// optionally restricted to one section type. Similarity is 1-distance
// clamped to [0,1]. Only chunks of current versions are searched.
func (db *DB) VectorSearch(ctx context.Context, query pgvector.Vector, sectionType *string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.pool.Query(ctx,
		`SELECT ec.id, ec.section_id, ds.document_version_id, d.id, d.case_id,
		        ds.section_type, ec.text,
		        1 - (ec.embedding <=> $1) AS similarity
		 FROM embedding_chunks ec
		 JOIN document_sections ds ON ds.id = ec.section_id
		 JOIN document_versions dv ON dv.id = ds.document_version_id
		 JOIN documents d ON d.id = dv.document_id AND d.current_version_id = dv.id
		 WHERE ec.embedding IS NOT NULL
		   AND ($2::text IS NULL OR ds.section_type = $2)
		 ORDER BY ec.embedding <=> $1
		 LIMIT $3`,
		query, sectionType, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: vector search: %w", err)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ChunkID, &h.SectionID, &h.VersionID, &h.DocumentID,
			&h.CaseID, &h.SectionType, &h.Text, &h.Similarity); err != nil {
			return nil, fmt.Errorf("storage: scan search hit: %w", err)
		}
		if h.Similarity < 0 {
			h.Similarity = 0
		}
		if h.Similarity > 1 {
			h.Similarity = 1
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
