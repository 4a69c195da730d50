package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document is a legal artifact within a Case. CurrentVersionID is a
// back-reference into the document's own versions; it is represented by ID,
// never by object reference, to keep the mild cycle harmless.
type Document struct {
	ID               uuid.UUID  `json:"id"`
	CaseID           uuid.UUID  `json:"case_id"`
	Type             string     `json:"type"` // decision, ruling, ...
	CurrentVersionID *uuid.UUID `json:"current_version_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DocumentVersion is an immutable snapshot of a document's raw bytes and its
// parsed projection. (DocumentID, VersionNumber) is unique; SourceHash is the
// SHA-256 of the raw bytes and the canonical dedup key across re-fetches.
type DocumentVersion struct {
	ID             uuid.UUID  `json:"id"`
	DocumentID     uuid.UUID  `json:"document_id"`
	VersionNumber  int        `json:"version_number"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	SourceURL      string     `json:"source_url"`
	SourceHash     string     `json:"source_hash"`
	RawStoragePath string     `json:"raw_storage_path"`
	ParsedJSON     []byte     `json:"-"` // raw JSONB projection of the parsed record
	CreatedAt      time.Time  `json:"created_at"`
}

// SectionType values for DocumentSection.SectionType. Unclassified runs
// default to SectionText.
const (
	SectionFacts     = "FACTS"
	SectionClaims    = "CLAIMS"
	SectionArguments = "ARGUMENTS"
	SectionLawRefs   = "LAW_REFERENCES"
	SectionReasoning = "COURT_REASONING"
	SectionDecision  = "DECISION"
	SectionText      = "TEXT"
)

// DocumentSection is an ordered semantic block of a version's text.
// OrderIndex values are dense 0..N-1 per version.
type DocumentSection struct {
	ID                uuid.UUID `json:"id"`
	DocumentVersionID uuid.UUID `json:"document_version_id"`
	SectionType       string    `json:"section_type"`
	OrderIndex        int       `json:"order_index"`
	Text              string    `json:"text"`
	CreatedAt         time.Time `json:"created_at"`
}

// EmbeddingDimensions is the fixed dimensionality of all stored vectors.
const EmbeddingDimensions = 1536

// EmbeddingChunk is a token-bounded sub-slice of a section, the unit of
// vector embedding. Chunks are dense by ChunkIndex within their section.
type EmbeddingChunk struct {
	ID         uuid.UUID       `json:"id"`
	SectionID  uuid.UUID       `json:"section_id"`
	ChunkIndex int             `json:"chunk_index"`
	Text       string          `json:"text"`
	Vector     pgvector.Vector `json:"-"`
	TokenCount int             `json:"token_count"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Outcome results for DecisionOutcome.Result.
const (
	OutcomeWon     = "won"
	OutcomeLost    = "lost"
	OutcomePartial = "partial"
)

// DecisionOutcome is the per-party result on a version; one row per
// (version, party). Amounts are decimal(20,2) in the store.
type DecisionOutcome struct {
	DocumentVersionID uuid.UUID `json:"document_version_id"`
	PartyID           uuid.UUID `json:"party_id"`
	Result            string    `json:"result"`
	AmountAwarded     *float64  `json:"amount_awarded,omitempty"`
	Currency          *string   `json:"currency,omitempty"`
}

// DocumentRelation types. Relations must stay acyclic per type.
const (
	DocumentRelationAmends  = "amends"
	DocumentRelationCancels = "cancels"
	DocumentRelationRefers  = "refers"
)

// DocumentRelation is a typed edge between two document versions.
type DocumentRelation struct {
	ParentVersionID uuid.UUID `json:"parent_version_id"`
	ChildVersionID  uuid.UUID `json:"child_version_id"`
	RelationType    string    `json:"relation_type"`
	CreatedAt       time.Time `json:"created_at"`
}

// ParseRun records one parser execution against a version.
type ParseRun struct {
	ID                uuid.UUID `json:"id"`
	DocumentVersionID uuid.UUID `json:"document_version_id"`
	ParserVersion     string    `json:"parser_version"`
	ParsedAt          time.Time `json:"parsed_at"`
	Confidence        float64   `json:"confidence"`
}
