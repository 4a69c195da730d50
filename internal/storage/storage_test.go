package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencourt/registrar/internal/model"
	"github.com/opencourt/registrar/internal/storage"
	"github.com/opencourt/registrar/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

// makeVector builds a deterministic unit-ish vector for search tests.
func makeVector(seed float32) pgvector.Vector {
	vals := make([]float32, model.EmbeddingDimensions)
	vals[0] = seed
	vals[1] = 1 - seed
	return pgvector.NewVector(vals)
}

func newCaseAndDocument(t *testing.T, registryNumber string) (model.Case, model.Document) {
	t.Helper()
	ctx := context.Background()
	c, err := testDB.UpsertCaseByRegistryNumber(ctx, registryNumber, nil)
	require.NoError(t, err)
	d, err := testDB.CreateDocument(ctx, c.ID, "decision")
	require.NoError(t, err)
	return c, d
}

func TestUpsertCaseIdempotent(t *testing.T) {
	ctx := context.Background()

	c1, err := testDB.UpsertCaseByRegistryNumber(ctx, "111/222/2024", nil)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStatusActive, c1.Status)

	court, err := testDB.UpsertCourt(ctx, "Шевченківський районний суд", nil, nil)
	require.NoError(t, err)

	c2, err := testDB.UpsertCaseByRegistryNumber(ctx, "111/222/2024", &court.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID, "same registry number must map to one case")
	require.NotNil(t, c2.CourtID)
	assert.Equal(t, court.ID, *c2.CourtID, "missing court is backfilled")
}

func TestUpsertCourtAndJudge(t *testing.T) {
	ctx := context.Background()

	region := "Київ"
	court1, err := testDB.UpsertCourt(ctx, "Апеляційний суд", &region, nil)
	require.NoError(t, err)
	court2, err := testDB.UpsertCourt(ctx, "Апеляційний суд", &region, nil)
	require.NoError(t, err)
	assert.Equal(t, court1.ID, court2.ID)

	j1, err := testDB.UpsertJudge(ctx, "Іванов І.І.", &court1.ID)
	require.NoError(t, err)
	j2, err := testDB.UpsertJudge(ctx, "Іванов І.І.", &court1.ID)
	require.NoError(t, err)
	assert.Equal(t, j1.ID, j2.ID)

	// The same name at no court is a distinct judge.
	j3, err := testDB.UpsertJudge(ctx, "Іванов І.І.", nil)
	require.NoError(t, err)
	assert.NotEqual(t, j1.ID, j3.ID)
}

func TestInsertVersionSequencesAndDedupes(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "333/444/2024")

	v1, created, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID:     doc.ID,
		SourceURL:      "https://reyestr.court.gov.ua/Review/1001",
		SourceHash:     "hash-a",
		RawStoragePath: "/data/1001/a.html",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, v1.VersionNumber)

	got, err := testDB.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVersionID)
	assert.Equal(t, v1.ID, *got.CurrentVersionID)

	// Same hash is a no-op returning the existing version.
	dup, created, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID:     doc.ID,
		SourceURL:      "https://reyestr.court.gov.ua/Review/1001",
		SourceHash:     "hash-a",
		RawStoragePath: "/data/1001/a2.html",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, v1.ID, dup.ID)

	// A new hash appends version 2 and advances the pointer.
	v2, created, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID:     doc.ID,
		SourceURL:      "https://reyestr.court.gov.ua/Review/1001",
		SourceHash:     "hash-b",
		RawStoragePath: "/data/1001/b.html",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, v2.VersionNumber)

	got, err = testDB.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, *got.CurrentVersionID)

	versions, err := testDB.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, 2, versions[1].VersionNumber)
}

func TestInsertVersionUnknownDocument(t *testing.T) {
	_, _, err := testDB.InsertVersion(context.Background(), storage.NewVersion{
		DocumentID: uuid.New(),
		SourceURL:  "https://reyestr.court.gov.ua/Review/404",
		SourceHash: "hash-x",
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindVersionBySourceURL(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "555/666/2024")

	url := "https://reyestr.court.gov.ua/Review/2001"
	_, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: url, SourceHash: "h1", RawStoragePath: "/d/1",
	})
	require.NoError(t, err)
	v2, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: url, SourceHash: "h2", RawStoragePath: "/d/2",
	})
	require.NoError(t, err)

	found, err := testDB.FindVersionBySourceURL(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, found.ID, "latest version wins")

	_, err = testDB.FindVersionBySourceURL(ctx, "https://reyestr.court.gov.ua/Review/none")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertSectionsAndChunks(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "777/888/2024")
	v, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/3001", SourceHash: "h3", RawStoragePath: "/d/3",
	})
	require.NoError(t, err)

	sections, err := testDB.InsertSectionsAndChunks(ctx, v.ID, []storage.NewSection{
		{SectionType: model.SectionFacts, OrderIndex: 0, Text: "встановив", Chunks: []storage.NewChunk{
			{ChunkIndex: 0, Text: "встановив", Vector: makeVector(0.1), TokenCount: 3},
		}},
		{SectionType: model.SectionDecision, OrderIndex: 1, Text: "вирішив", Chunks: []storage.NewChunk{
			{ChunkIndex: 0, Text: "вирішив", Vector: makeVector(0.9), TokenCount: 2},
		}},
	})
	require.NoError(t, err)
	require.Len(t, sections, 2)

	listed, err := testDB.ListSections(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, model.SectionFacts, listed[0].SectionType)
	assert.Equal(t, model.SectionDecision, listed[1].SectionType)

	chunks, err := testDB.ListChunks(ctx, listed[0].ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 3, chunks[0].TokenCount)
}

func TestInsertVersionWithSectionsIsAtomic(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "atomic/1/2025")

	v, created, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID:     doc.ID,
		SourceURL:      "https://r/3101",
		SourceHash:     "hash-atomic-1",
		RawStoragePath: "/d/31",
		Sections: []storage.NewSection{
			{SectionType: model.SectionFacts, OrderIndex: 0, Text: "встановив", Chunks: []storage.NewChunk{
				{ChunkIndex: 0, Text: "встановив", Vector: makeVector(0.3), TokenCount: 3},
			}},
		},
	})
	require.NoError(t, err)
	assert.True(t, created)

	listed, err := testDB.ListSections(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, model.SectionFacts, listed[0].SectionType)

	// A bad section batch takes the version row down with it: the URL
	// stays unknown and a later cycle can retry the whole document.
	_, _, err = testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID:     doc.ID,
		SourceURL:      "https://r/3102",
		SourceHash:     "hash-atomic-2",
		RawStoragePath: "/d/32",
		Sections: []storage.NewSection{
			{SectionType: model.SectionText, OrderIndex: 0, Text: "a"},
			{SectionType: model.SectionText, OrderIndex: 0, Text: "b"},
		},
	})
	require.ErrorIs(t, err, storage.ErrIntegrity)

	_, err = testDB.FindVersionBySourceURL(ctx, "https://r/3102")
	require.ErrorIs(t, err, storage.ErrNotFound, "failed insert must leave no version row")

	got, err := testDB.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVersionID)
	assert.Equal(t, v.ID, *got.CurrentVersionID, "current pointer stays on the last good version")
}

func TestInsertSectionsDuplicateOrderRollsBack(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "999/111/2024")
	v, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/3002", SourceHash: "h4", RawStoragePath: "/d/4",
	})
	require.NoError(t, err)

	_, err = testDB.InsertSectionsAndChunks(ctx, v.ID, []storage.NewSection{
		{SectionType: model.SectionText, OrderIndex: 0, Text: "a"},
		{SectionType: model.SectionText, OrderIndex: 0, Text: "b"},
	})
	require.ErrorIs(t, err, storage.ErrIntegrity)

	listed, err := testDB.ListSections(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, listed, "failed batch must leave no partial sections")
}

func TestVectorSearchBySectionType(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "222/333/2025")
	v, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/4001", SourceHash: "h5", RawStoragePath: "/d/5",
	})
	require.NoError(t, err)

	_, err = testDB.InsertSectionsAndChunks(ctx, v.ID, []storage.NewSection{
		{SectionType: model.SectionReasoning, OrderIndex: 0, Text: "мотиви", Chunks: []storage.NewChunk{
			{ChunkIndex: 0, Text: "мотиви", Vector: makeVector(0.2), TokenCount: 1},
		}},
		{SectionType: model.SectionDecision, OrderIndex: 1, Text: "ухвалив", Chunks: []storage.NewChunk{
			{ChunkIndex: 0, Text: "ухвалив", Vector: makeVector(0.8), TokenCount: 1},
		}},
	})
	require.NoError(t, err)

	sectionType := model.SectionDecision
	hits, err := testDB.VectorSearch(ctx, makeVector(0.8), &sectionType, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, model.SectionDecision, h.SectionType)
		assert.GreaterOrEqual(t, h.Similarity, 0.0)
		assert.LessOrEqual(t, h.Similarity, 1.0)
	}
	assert.Equal(t, "ухвалив", hits[0].Text)
	assert.Equal(t, doc.ID, hits[0].DocumentID)
}

func TestPartiesAndOutcomes(t *testing.T) {
	ctx := context.Background()
	c, doc := newCaseAndDocument(t, "444/555/2025")
	v, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/5001", SourceHash: "h6", RawStoragePath: "/d/6",
	})
	require.NoError(t, err)

	taxID := "12345678"
	p1, err := testDB.UpsertParty(ctx, model.PartyTypeCompany, "тов ромашка", &taxID)
	require.NoError(t, err)
	p2, err := testDB.UpsertParty(ctx, model.PartyTypeCompany, "тов ромашка", &taxID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)

	require.NoError(t, testDB.LinkCaseParty(ctx, c.ID, p1.ID, "plaintiff"))
	require.NoError(t, testDB.LinkCaseParty(ctx, c.ID, p1.ID, "plaintiff")) // idempotent

	parties, err := testDB.ListCaseParties(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, parties, 1)

	amount := 15000.50
	currency := "UAH"
	require.NoError(t, testDB.UpsertDecisionOutcome(ctx, model.DecisionOutcome{
		DocumentVersionID: v.ID,
		PartyID:           p1.ID,
		Result:            model.OutcomeWon,
		AmountAwarded:     &amount,
		Currency:          &currency,
	}))
	// Replacing the outcome for the same (version, party) is allowed.
	require.NoError(t, testDB.UpsertDecisionOutcome(ctx, model.DecisionOutcome{
		DocumentVersionID: v.ID,
		PartyID:           p1.ID,
		Result:            model.OutcomePartial,
	}))
}

func TestLawArticleLinks(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "666/777/2025")
	v, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/6001", SourceHash: "h7", RawStoragePath: "/d/7",
	})
	require.NoError(t, err)

	a1, err := testDB.UpsertLawArticle(ctx, "ЦКУ 625", nil)
	require.NoError(t, err)
	a2, err := testDB.UpsertLawArticle(ctx, "ЦКУ 625", nil)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)

	require.NoError(t, testDB.LinkVersionLawArticles(ctx, v.ID, []uuid.UUID{a1.ID}))
	require.NoError(t, testDB.LinkVersionLawArticles(ctx, v.ID, []uuid.UUID{a1.ID}))

	articles, err := testDB.ListVersionLawArticles(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "ЦКУ 625", articles[0].Code)
}

func TestCaseRelationCycleRejected(t *testing.T) {
	ctx := context.Background()
	a, err := testDB.UpsertCaseByRegistryNumber(ctx, "cyc/1/2025", nil)
	require.NoError(t, err)
	b, err := testDB.UpsertCaseByRegistryNumber(ctx, "cyc/2/2025", nil)
	require.NoError(t, err)
	c, err := testDB.UpsertCaseByRegistryNumber(ctx, "cyc/3/2025", nil)
	require.NoError(t, err)

	require.NoError(t, testDB.AddCaseRelation(ctx, a.ID, b.ID, model.CaseRelationAppeal))
	require.NoError(t, testDB.AddCaseRelation(ctx, b.ID, c.ID, model.CaseRelationAppeal))

	err = testDB.AddCaseRelation(ctx, c.ID, a.ID, model.CaseRelationAppeal)
	require.ErrorIs(t, err, storage.ErrIntegrity)

	err = testDB.AddCaseRelation(ctx, a.ID, a.ID, model.CaseRelationAppeal)
	require.ErrorIs(t, err, storage.ErrIntegrity)

	// A different relation type is an independent graph.
	require.NoError(t, testDB.AddCaseRelation(ctx, c.ID, a.ID, model.CaseRelationRetrial))
}

func TestDocumentRelationCycleRejected(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "rel/1/2025")
	v1, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/7001", SourceHash: "h8", RawStoragePath: "/d/8",
	})
	require.NoError(t, err)
	v2, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/7001", SourceHash: "h9", RawStoragePath: "/d/9",
	})
	require.NoError(t, err)

	require.NoError(t, testDB.AddDocumentRelation(ctx, v1.ID, v2.ID, model.DocumentRelationAmends))
	err = testDB.AddDocumentRelation(ctx, v2.ID, v1.ID, model.DocumentRelationAmends)
	require.ErrorIs(t, err, storage.ErrIntegrity)
}

func TestParseRunsAndParsedJSON(t *testing.T) {
	ctx := context.Background()
	_, doc := newCaseAndDocument(t, "run/1/2025")
	v, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
		DocumentID: doc.ID, SourceURL: "https://r/8001", SourceHash: "h10", RawStoragePath: "/d/10",
	})
	require.NoError(t, err)

	pr, err := testDB.RecordParseRun(ctx, v.ID, "regex-1.0.0", 0.7)
	require.NoError(t, err)
	assert.Equal(t, 0.7, pr.Confidence)
	assert.False(t, pr.ParsedAt.IsZero())

	require.NoError(t, testDB.UpdateVersionParsedJSON(ctx, v.ID, []byte(`{"court":"X суд"}`)))
	got, err := testDB.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"court":"X суд"}`, string(got.ParsedJSON))

	err = testDB.UpdateVersionParsedJSON(ctx, uuid.New(), []byte(`{}`))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListCurrentVersionsPages(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, doc := newCaseAndDocument(t, fmt.Sprintf("page/%d/2025", i))
		_, _, err := testDB.InsertVersion(ctx, storage.NewVersion{
			DocumentID:     doc.ID,
			SourceURL:      fmt.Sprintf("https://r/90%02d", i),
			SourceHash:     fmt.Sprintf("page-hash-%d", i),
			RawStoragePath: fmt.Sprintf("/d/p%d", i),
		})
		require.NoError(t, err)
	}

	page1, err := testDB.ListCurrentVersions(ctx, 2, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(page1), 2)
	require.NotEmpty(t, page1)
	assert.NotEmpty(t, page1[0].SourceURL)
	assert.NotEmpty(t, page1[0].SourceHash)
}
