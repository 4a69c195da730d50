// Package model defines the court-registry domain entities shared by the
// storage layer, the parser, and the pipeline coordinator.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Court is an issuing institution. Soft-unique by (name, region).
type Court struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Region    *string   `json:"region,omitempty"`
	Level     *string   `json:"level,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Judge is a named judge belonging to a Court. The registry ties judges to
// courts, not to individual decisions.
type Judge struct {
	ID        uuid.UUID  `json:"id"`
	FullName  string     `json:"full_name"`
	CourtID   *uuid.UUID `json:"court_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CaseStatus values for Case.Status.
const (
	CaseStatusActive = "active"
	CaseStatusClosed = "closed"
)

// Case is a logical court proceeding, uniquely identified by its registry
// number (e.g. "123/456/2024").
type Case struct {
	ID             uuid.UUID  `json:"id"`
	RegistryNumber string     `json:"registry_number"`
	CourtID        *uuid.UUID `json:"court_id,omitempty"`
	Category       *string    `json:"category,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PartyType values for Party.Type.
const (
	PartyTypePerson  = "person"
	PartyTypeCompany = "company"
	PartyTypeState   = "state"
)

// Party is a named participant shared across cases.
// (NormalizedName, TaxID) is the deduplication key.
type Party struct {
	ID             uuid.UUID `json:"id"`
	Type           string    `json:"type"`
	NormalizedName string    `json:"normalized_name"`
	TaxID          *string   `json:"tax_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CaseParty links a Party to a Case in a given role.
// (CaseID, PartyID, Role) is the composite key.
type CaseParty struct {
	CaseID  uuid.UUID `json:"case_id"`
	PartyID uuid.UUID `json:"party_id"`
	Role    string    `json:"role"` // plaintiff, defendant, third_party, ...
}

// LawArticle is a canonical legal-norm reference. Code is a normalized
// "{corpus} {article}" string, e.g. "ЦКУ 625".
type LawArticle struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseRelation types. Relations must stay acyclic per type.
const (
	CaseRelationAppeal    = "appeal"
	CaseRelationCassation = "cassation"
	CaseRelationRetrial   = "retrial"
)

// CaseRelation is a typed edge between two cases.
type CaseRelation struct {
	ParentCaseID uuid.UUID `json:"parent_case_id"`
	ChildCaseID  uuid.UUID `json:"child_case_id"`
	RelationType string    `json:"relation_type"`
	CreatedAt    time.Time `json:"created_at"`
}
