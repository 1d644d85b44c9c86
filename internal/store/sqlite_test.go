package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_InsertArticle_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	st := articleState()
	// The fixture pins a Postgres row id for the known entity; SQLite starts
	// empty, so treat both entities as new here.
	st.ProcessedEntities[0].StoreID = nil

	require.NoError(t, s.InsertArticle(ctx, st, model.OutcomeDone))

	var status, decision string
	err := s.db.QueryRow(`SELECT status, decision FROM articles WHERE id = ?`, "unit-1").
		Scan(&status, &decision)
	require.NoError(t, err)
	assert.Equal(t, "done", status)
	assert.Equal(t, model.DecisionAccepted, decision)

	var factCount, entityLinks, quoteCount, figureCount, relCount int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM facts WHERE unit_id = ?`, "unit-1").Scan(&factCount))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM unit_entities WHERE unit_id = ?`, "unit-1").Scan(&entityLinks))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM quotes WHERE unit_id = ?`, "unit-1").Scan(&quoteCount))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM figures WHERE unit_id = ?`, "unit-1").Scan(&figureCount))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM relationships WHERE unit_id = ?`, "unit-1").Scan(&relCount))
	assert.Equal(t, 1, factCount)
	assert.Equal(t, 2, entityLinks)
	assert.Equal(t, 1, quoteCount)
	assert.Equal(t, 1, figureCount)
	assert.Equal(t, 1, relCount)
}

func TestSQLite_InsertArticle_EntityDedupeAcrossUnits(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := articleState()
	first.ProcessedEntities[0].StoreID = nil
	require.NoError(t, s.InsertArticle(ctx, first, model.OutcomeDone))

	second := articleState()
	second.Unit.ID = "unit-2"
	second.ProcessedEntities[0].StoreID = nil
	require.NoError(t, s.InsertArticle(ctx, second, model.OutcomeDone))

	// Same name+type upserts into the same durable entity row.
	var entityCount int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entities WHERE lower(name) = lower(?)`, "Maria Perez").Scan(&entityCount))
	assert.Equal(t, 1, entityCount)
}

func TestSQLite_InsertArticle_DuplicateUnitRollsBack(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	st := articleState()
	st.ProcessedEntities[0].StoreID = nil
	require.NoError(t, s.InsertArticle(ctx, st, model.OutcomeDone))

	var factsBefore int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&factsBefore))

	dup := articleState()
	dup.ProcessedEntities[0].StoreID = nil
	err := s.InsertArticle(ctx, dup, model.OutcomeDone)
	require.Error(t, err)

	// Nothing from the failed unit leaked in.
	var factsAfter int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&factsAfter))
	assert.Equal(t, factsBefore, factsAfter)
}

func TestSQLite_InsertFragment_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	st := &model.PipelineState{
		Unit: &model.ProcessingUnit{
			ID:   "unit-frag",
			Kind: model.UnitKindFragment,
			Fragment: &model.Fragment{
				DocumentID:     "doc-7",
				FragmentID:     "frag-2",
				Text:           "fragment text",
				Sequence:       2,
				TotalFragments: 5,
				IngestedAt:     "2026-08-30T11:00:00Z",
				Metadata:       map[string]string{"outlet": "La Nacion"},
			},
		},
		ProcessedFacts: []model.ProcessedFact{
			{
				ExtractedFact: model.ExtractedFact{TempID: 1, Description: "something happened", Type: "political"},
				Importance:    5, SystemImportance: 5,
			},
		},
	}
	require.NoError(t, s.InsertFragment(ctx, st))

	var docID string
	var seq int
	require.NoError(t, s.db.QueryRow(`SELECT document_id, sequence FROM document_fragments WHERE id = ?`, "unit-frag").
		Scan(&docID, &seq))
	assert.Equal(t, "doc-7", docID)
	assert.Equal(t, 2, seq)
}

func TestSQLite_FindSimilarEntity_CaseInsensitive(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	st := articleState()
	st.ProcessedEntities[0].StoreID = nil
	require.NoError(t, s.InsertArticle(ctx, st, model.OutcomeDone))

	id, found, err := s.FindSimilarEntity(ctx, "maria perez", "person")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Positive(t, id)

	_, found, err = s.FindSimilarEntity(ctx, "maria perez", "organization")
	require.NoError(t, err)
	assert.False(t, found, "type mismatch must not match")
}

func TestSQLite_ReadDailyTrends(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 30, 15, 30, 0, 0, time.UTC)

	trends, err := s.ReadDailyTrends(ctx, day)
	require.NoError(t, err)
	assert.Nil(t, trends, "absent trends read as nil without error")

	_, err = s.db.Exec(
		`INSERT INTO daily_trends (trend_date, hot_topics, hot_entities, active_threads) VALUES (?, ?, ?, ?)`,
		"2026-08-30", `["inflation"]`, `["Central Bank"]`, `["rate cycle"]`,
	)
	require.NoError(t, err)

	trends, err = s.ReadDailyTrends(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, trends)
	assert.Equal(t, []string{"inflation"}, trends.HotTopics)
	assert.Equal(t, []string{"Central Bank"}, trends.HotEntities)
}

func TestClassifySQLite_LockContentionIsTransient(t *testing.T) {
	err := classifySQLite(errors.New("database is locked (5) (SQLITE_BUSY)"), "sqlite: insert fact")
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, IsConstraint(err))

	err = classifySQLite(errors.New("database table is locked: facts (6) (SQLITE_LOCKED)"), "sqlite: insert fact")
	assert.True(t, resilience.IsTransient(err))
}

func TestClassifySQLite_ConstraintIsNotTransient(t *testing.T) {
	err := classifySQLite(errors.New("constraint failed: UNIQUE constraint failed: articles.id (1555)"), "sqlite: insert article")
	assert.True(t, IsConstraint(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestSQLite_InsertArticle_DuplicateIsConstraint(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	st := articleState()
	st.ProcessedEntities[0].StoreID = nil
	require.NoError(t, s.InsertArticle(ctx, st, model.OutcomeDone))

	dup := articleState()
	dup.ProcessedEntities[0].StoreID = nil
	err := s.InsertArticle(ctx, dup, model.OutcomeDone)
	require.Error(t, err)
	assert.True(t, IsConstraint(err), "duplicate unit is a data-shape failure, never retried")
}

func TestSQLite_RecordError(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.PersistentError{
		UnitID:         "unit-9",
		LastPhase:      model.PhaseNormalization,
		PartialPayload: []byte(`{"unit":{"id":"unit-9"}}`),
		Reason:         "store unavailable after retry",
	}
	require.NoError(t, s.RecordError(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	var reason, payload string
	require.NoError(t, s.db.QueryRow(`SELECT reason, partial_payload FROM processing_errors WHERE id = ?`, rec.ID).
		Scan(&reason, &payload))
	assert.Equal(t, "store unavailable after retry", reason)
	assert.Contains(t, payload, "unit-9")
}
