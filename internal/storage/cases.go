package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opencourt/registrar/internal/model"
)

// UpsertCourt finds or creates a court by (name, region) and returns it.
func (db *DB) UpsertCourt(ctx context.Context, name string, region, level *string) (model.Court, error) {
	var c model.Court
	err := db.pool.QueryRow(ctx,
		`INSERT INTO courts (name, region, level)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name, region) DO UPDATE
		 SET level = COALESCE(EXCLUDED.level, courts.level), updated_at = now()
		 RETURNING id, name, region, level, created_at, updated_at`,
		name, region, level,
	).Scan(&c.ID, &c.Name, &c.Region, &c.Level, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Court{}, fmt.Errorf("storage: upsert court: %w", classify(err))
	}
	return c, nil
}

// UpsertJudge finds or creates a judge by (full_name, court_id).
func (db *DB) UpsertJudge(ctx context.Context, fullName string, courtID *uuid.UUID) (model.Judge, error) {
	var j model.Judge
	err := db.pool.QueryRow(ctx,
		`INSERT INTO judges (full_name, court_id)
		 VALUES ($1, $2)
		 ON CONFLICT (full_name, court_id) DO UPDATE SET updated_at = now()
		 RETURNING id, full_name, court_id, created_at, updated_at`,
		fullName, courtID,
	).Scan(&j.ID, &j.FullName, &j.CourtID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return model.Judge{}, fmt.Errorf("storage: upsert judge: %w", classify(err))
	}
	return j, nil
}

// UpsertCaseByRegistryNumber finds or creates the case for a registry
// number. Existing cases keep their fields; a missing court is backfilled.
func (db *DB) UpsertCaseByRegistryNumber(ctx context.Context, registryNumber string, courtID *uuid.UUID) (model.Case, error) {
	var c model.Case
	err := db.pool.QueryRow(ctx,
		`INSERT INTO cases (registry_number, court_id)
		 VALUES ($1, $2)
		 ON CONFLICT (registry_number) DO UPDATE
		 SET court_id = COALESCE(cases.court_id, EXCLUDED.court_id), updated_at = now()
		 RETURNING id, registry_number, court_id, category, opened_at, closed_at,
		           status, created_at, updated_at`,
		registryNumber, courtID,
	).Scan(&c.ID, &c.RegistryNumber, &c.CourtID, &c.Category, &c.OpenedAt,
		&c.ClosedAt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Case{}, fmt.Errorf("storage: upsert case: %w", classify(err))
	}
	return c, nil
}

// GetCaseByRegistryNumber returns the case for a registry number or
// ErrNotFound.
func (db *DB) GetCaseByRegistryNumber(ctx context.Context, registryNumber string) (model.Case, error) {
	var c model.Case
	err := db.pool.QueryRow(ctx,
		`SELECT id, registry_number, court_id, category, opened_at, closed_at,
		        status, created_at, updated_at
		 FROM cases WHERE registry_number = $1`, registryNumber,
	).Scan(&c.ID, &c.RegistryNumber, &c.CourtID, &c.Category, &c.OpenedAt,
		&c.ClosedAt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Case{}, ErrNotFound
		}
		return model.Case{}, fmt.Errorf("storage: get case: %w", err)
	}
	return c, nil
}

// UpsertParty finds or creates a party by (normalized_name, tax_id).
func (db *DB) UpsertParty(ctx context.Context, partyType, normalizedName string, taxID *string) (model.Party, error) {
	var p model.Party
	err := db.pool.QueryRow(ctx,
		`INSERT INTO parties (type, normalized_name, tax_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (normalized_name, tax_id) DO UPDATE SET updated_at = now()
		 RETURNING id, type, normalized_name, tax_id, created_at, updated_at`,
		partyType, normalizedName, taxID,
	).Scan(&p.ID, &p.Type, &p.NormalizedName, &p.TaxID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Party{}, fmt.Errorf("storage: upsert party: %w", classify(err))
	}
	return p, nil
}

// LinkCaseParty attaches a party to a case in a role. Idempotent.
func (db *DB) LinkCaseParty(ctx context.Context, caseID, partyID uuid.UUID, role string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO case_parties (case_id, party_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		caseID, partyID, role,
	)
	if err != nil {
		return fmt.Errorf("storage: link case party: %w", classify(err))
	}
	return nil
}

// ListCaseParties returns the party links for a case.
func (db *DB) ListCaseParties(ctx context.Context, caseID uuid.UUID) ([]model.CaseParty, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT case_id, party_id, role FROM case_parties WHERE case_id = $1`, caseID)
	if err != nil {
		return nil, fmt.Errorf("storage: list case parties: %w", err)
	}
	defer rows.Close()

	var out []model.CaseParty
	for rows.Next() {
		var cp model.CaseParty
		if err := rows.Scan(&cp.CaseID, &cp.PartyID, &cp.Role); err != nil {
			return nil, fmt.Errorf("storage: scan case party: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// UpsertLawArticle finds or creates a law article by its normalized code.
func (db *DB) UpsertLawArticle(ctx context.Context, code string, title *string) (model.LawArticle, error) {
	var a model.LawArticle
	err := db.pool.QueryRow(ctx,
		`INSERT INTO law_articles (code, title)
		 VALUES ($1, $2)
		 ON CONFLICT (code) DO UPDATE
		 SET title = COALESCE(EXCLUDED.title, law_articles.title), updated_at = now()
		 RETURNING id, code, title, created_at, updated_at`,
		code, title,
	).Scan(&a.ID, &a.Code, &a.Title, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.LawArticle{}, fmt.Errorf("storage: upsert law article: %w", classify(err))
	}
	return a, nil
}

// AddCaseRelation inserts a typed edge between two cases after verifying the
// edge would not close a cycle within its relation type.
func (db *DB) AddCaseRelation(ctx context.Context, parentID, childID uuid.UUID, relationType string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Walk existing edges of this type from the prospective child; reaching
	// the parent means the new edge closes a cycle.
	var cycle bool
	err = tx.QueryRow(ctx,
		`WITH RECURSIVE reachable AS (
			SELECT child_case_id FROM case_relations
			WHERE parent_case_id = $2 AND relation_type = $3
			UNION
			SELECT cr.child_case_id FROM case_relations cr
			JOIN reachable r ON cr.parent_case_id = r.child_case_id
			WHERE cr.relation_type = $3
		 )
		 SELECT EXISTS (SELECT 1 FROM reachable WHERE child_case_id = $1)`,
		parentID, childID, relationType,
	).Scan(&cycle)
	if err != nil {
		return fmt.Errorf("storage: check case relation cycle: %w", err)
	}
	if cycle || parentID == childID {
		return fmt.Errorf("storage: case relation %s -> %s (%s): %w",
			parentID, childID, relationType, ErrIntegrity)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO case_relations (parent_case_id, child_case_id, relation_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		parentID, childID, relationType,
	); err != nil {
		return fmt.Errorf("storage: add case relation: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit case relation: %w", err)
	}
	return nil
}
