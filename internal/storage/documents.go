package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opencourt/registrar/internal/model"
)

// CreateDocument inserts a document shell under a case. Versions are
// attached separately; a fresh document has no current version.
func (db *DB) CreateDocument(ctx context.Context, caseID uuid.UUID, docType string) (model.Document, error) {
	var d model.Document
	err := db.pool.QueryRow(ctx,
		`INSERT INTO documents (case_id, type)
		 VALUES ($1, $2)
		 RETURNING id, case_id, type, current_version_id, created_at, updated_at`,
		caseID, docType,
	).Scan(&d.ID, &d.CaseID, &d.Type, &d.CurrentVersionID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return model.Document{}, fmt.Errorf("storage: create document: %w", classify(err))
	}
	return d, nil
}

// GetDocument returns a document by ID or ErrNotFound.
func (db *DB) GetDocument(ctx context.Context, id uuid.UUID) (model.Document, error) {
	var d model.Document
	err := db.pool.QueryRow(ctx,
		`SELECT id, case_id, type, current_version_id, created_at, updated_at
		 FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.CaseID, &d.Type, &d.CurrentVersionID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Document{}, ErrNotFound
		}
		return model.Document{}, fmt.Errorf("storage: get document: %w", err)
	}
	return d, nil
}

// NewVersion is the input for InsertVersion. Sections, when present, are
// written in the same transaction as the version row.
type NewVersion struct {
	DocumentID     uuid.UUID
	PublishedAt    *time.Time
	SourceURL      string
	SourceHash     string
	RawStoragePath string
	ParsedJSON     []byte
	Sections       []NewSection
}

// InsertVersion appends an immutable version to a document, inserts its
// sections and chunks, and advances the document's current version pointer,
// all in one transaction: a version is never visible without its sections.
// The version number is always max(existing)+1 under a row lock on the
// document. If the document already has a version with the same source
// hash, that version is returned unchanged and created is false.
func (db *DB) InsertVersion(ctx context.Context, nv NewVersion) (model.DocumentVersion, bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.DocumentVersion{}, false, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes concurrent version inserts for the same document.
	var docID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM documents WHERE id = $1 FOR UPDATE`, nv.DocumentID,
	).Scan(&docID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.DocumentVersion{}, false, ErrNotFound
		}
		return model.DocumentVersion{}, false, fmt.Errorf("storage: lock document: %w", err)
	}

	var existing model.DocumentVersion
	err = tx.QueryRow(ctx,
		`SELECT id, document_id, version_number, published_at, source_url,
		        source_hash, raw_storage_path, parsed_json, created_at
		 FROM document_versions
		 WHERE document_id = $1 AND source_hash = $2`,
		nv.DocumentID, nv.SourceHash,
	).Scan(&existing.ID, &existing.DocumentID, &existing.VersionNumber,
		&existing.PublishedAt, &existing.SourceURL, &existing.SourceHash,
		&existing.RawStoragePath, &existing.ParsedJSON, &existing.CreatedAt)
	if err == nil {
		return existing, false, nil
	}
	if err != pgx.ErrNoRows {
		return model.DocumentVersion{}, false, fmt.Errorf("storage: check source hash: %w", err)
	}

	var v model.DocumentVersion
	err = tx.QueryRow(ctx,
		`INSERT INTO document_versions
		   (document_id, version_number, published_at, source_url, source_hash,
		    raw_storage_path, parsed_json)
		 SELECT $1,
		        COALESCE(MAX(version_number), 0) + 1,
		        $2, $3, $4, $5, $6
		 FROM document_versions WHERE document_id = $1
		 RETURNING id, document_id, version_number, published_at, source_url,
		           source_hash, raw_storage_path, parsed_json, created_at`,
		nv.DocumentID, nv.PublishedAt, nv.SourceURL, nv.SourceHash,
		nv.RawStoragePath, nv.ParsedJSON,
	).Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.PublishedAt, &v.SourceURL,
		&v.SourceHash, &v.RawStoragePath, &v.ParsedJSON, &v.CreatedAt)
	if err != nil {
		return model.DocumentVersion{}, false, fmt.Errorf("storage: insert version: %w", classify(err))
	}

	if len(nv.Sections) > 0 {
		if _, err := insertSectionsTx(ctx, tx, v.ID, nv.Sections); err != nil {
			return model.DocumentVersion{}, false, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE documents SET current_version_id = $1, updated_at = now() WHERE id = $2`,
		v.ID, nv.DocumentID,
	); err != nil {
		return model.DocumentVersion{}, false, fmt.Errorf("storage: advance current version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.DocumentVersion{}, false, fmt.Errorf("storage: commit version: %w", err)
	}
	return v, true, nil
}

// UpdateVersionParsedJSON stores the parsed projection for a version.
// The raw bytes and hash stay immutable; only the projection column moves.
func (db *DB) UpdateVersionParsedJSON(ctx context.Context, versionID uuid.UUID, parsedJSON []byte) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE document_versions SET parsed_json = $1 WHERE id = $2`,
		parsedJSON, versionID,
	)
	if err != nil {
		return fmt.Errorf("storage: update parsed json: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetVersion returns a version by ID or ErrNotFound.
func (db *DB) GetVersion(ctx context.Context, id uuid.UUID) (model.DocumentVersion, error) {
	var v model.DocumentVersion
	err := db.pool.QueryRow(ctx,
		`SELECT id, document_id, version_number, published_at, source_url,
		        source_hash, raw_storage_path, parsed_json, created_at
		 FROM document_versions WHERE id = $1`, id,
	).Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.PublishedAt, &v.SourceURL,
		&v.SourceHash, &v.RawStoragePath, &v.ParsedJSON, &v.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.DocumentVersion{}, ErrNotFound
		}
		return model.DocumentVersion{}, fmt.Errorf("storage: get version: %w", err)
	}
	return v, nil
}

// FindVersionBySourceURL returns the latest version recorded for a source
// URL, or ErrNotFound. Used by discovery to skip already-known documents.
func (db *DB) FindVersionBySourceURL(ctx context.Context, sourceURL string) (model.DocumentVersion, error) {
	var v model.DocumentVersion
	err := db.pool.QueryRow(ctx,
		`SELECT id, document_id, version_number, published_at, source_url,
		        source_hash, raw_storage_path, parsed_json, created_at
		 FROM document_versions
		 WHERE source_url = $1
		 ORDER BY version_number DESC
		 LIMIT 1`, sourceURL,
	).Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.PublishedAt, &v.SourceURL,
		&v.SourceHash, &v.RawStoragePath, &v.ParsedJSON, &v.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.DocumentVersion{}, ErrNotFound
		}
		return model.DocumentVersion{}, fmt.Errorf("storage: find version by url: %w", err)
	}
	return v, nil
}

// ListVersions returns all versions of a document ordered by version number.
func (db *DB) ListVersions(ctx context.Context, documentID uuid.UUID) ([]model.DocumentVersion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, document_id, version_number, published_at, source_url,
		        source_hash, raw_storage_path, parsed_json, created_at
		 FROM document_versions
		 WHERE document_id = $1
		 ORDER BY version_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("storage: list versions: %w", err)
	}
	defer rows.Close()

	var out []model.DocumentVersion
	for rows.Next() {
		var v model.DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.PublishedAt,
			&v.SourceURL, &v.SourceHash, &v.RawStoragePath, &v.ParsedJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CurrentVersionRef pairs a document with its current version's source
// coordinates for reconciliation sweeps.
type CurrentVersionRef struct {
	DocumentID uuid.UUID
	VersionID  uuid.UUID
	SourceURL  string
	SourceHash string
}

// ListCurrentVersions pages through documents' current versions ordered by
// document creation time, for reconciliation re-hashing.
func (db *DB) ListCurrentVersions(ctx context.Context, limit, offset int) ([]CurrentVersionRef, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT d.id, v.id, v.source_url, v.source_hash
		 FROM documents d
		 JOIN document_versions v ON v.id = d.current_version_id
		 ORDER BY d.created_at, d.id
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage: list current versions: %w", err)
	}
	defer rows.Close()

	var out []CurrentVersionRef
	for rows.Next() {
		var ref CurrentVersionRef
		if err := rows.Scan(&ref.DocumentID, &ref.VersionID, &ref.SourceURL, &ref.SourceHash); err != nil {
			return nil, fmt.Errorf("storage: scan current version: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// AddDocumentRelation inserts a typed edge between two versions after
// verifying the edge would not close a cycle within its relation type.
func (db *DB) AddDocumentRelation(ctx context.Context, parentVersionID, childVersionID uuid.UUID, relationType string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cycle bool
	err = tx.QueryRow(ctx,
		`WITH RECURSIVE reachable AS (
			SELECT child_version_id FROM document_relations
			WHERE parent_version_id = $2 AND relation_type = $3
			UNION
			SELECT dr.child_version_id FROM document_relations dr
			JOIN reachable r ON dr.parent_version_id = r.child_version_id
			WHERE dr.relation_type = $3
		 )
		 SELECT EXISTS (SELECT 1 FROM reachable WHERE child_version_id = $1)`,
		parentVersionID, childVersionID, relationType,
	).Scan(&cycle)
	if err != nil {
		return fmt.Errorf("storage: check document relation cycle: %w", err)
	}
	if cycle || parentVersionID == childVersionID {
		return fmt.Errorf("storage: document relation %s -> %s (%s): %w",
			parentVersionID, childVersionID, relationType, ErrIntegrity)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO document_relations (parent_version_id, child_version_id, relation_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		parentVersionID, childVersionID, relationType,
	); err != nil {
		return fmt.Errorf("storage: add document relation: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit document relation: %w", err)
	}
	return nil
}
