package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func articleState() *model.PipelineState {
	storeID := int64(42)
	return &model.PipelineState{
		Unit: &model.ProcessingUnit{
			ID:   "unit-1",
			Kind: model.UnitKindArticle,
			Article: &model.Article{
				Outlet:      "El Diario",
				Country:     "AR",
				OutletType:  "newspaper",
				Headline:    "Central bank raises rates",
				PublishedAt: "2026-08-30T10:00:00Z",
				BodyText:    "The central bank raised rates by 200 basis points.",
			},
		},
		Triage: &model.TriageResult{
			Relevant:  true,
			Decision:  model.DecisionAccepted,
			CleanText: "The central bank raised rates by 200 basis points.",
		},
		ProcessedFacts: []model.ProcessedFact{
			{
				ExtractedFact: model.ExtractedFact{
					TempID:      1,
					Description: "Central bank raised rates by 200bp",
					Type:        "economic",
				},
				Importance:       7,
				SystemImportance: 6,
			},
		},
		ProcessedEntities: []model.ProcessedEntity{
			{
				ExtractedEntity: model.ExtractedEntity{TempID: 2, Name: "Central Bank", Type: "organization"},
				StoreID:         &storeID,
			},
			{
				ExtractedEntity: model.ExtractedEntity{TempID: 3, Name: "Maria Perez", Type: "person"},
			},
		},
		Quotes: []model.Quote{
			{Text: "This was unavoidable", Speaker: "Maria Perez", EntityRefs: []int{3}, FactRefs: []int{1}},
		},
		Figures: []model.QuantitativeDatum{
			{Description: "rate increase", Value: 200, Unit: "basis points", FactRefs: []int{1}},
		},
		Relationships: []model.Relationship{
			{Kind: model.RelationFactEntity, FromTempID: 1, ToTempID: 2},
		},
	}
}

func TestPostgresStore_InsertArticle_CommitsWholeStructure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	st := articleState()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO articles`).
		WithArgs("unit-1", "El Diario", "AR", "newspaper", "Central bank raises rates",
			"2026-08-30T10:00:00Z", "", "", "done", model.DecisionAccepted,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Known entity is touched, new entity is upserted.
	mock.ExpectExec(`UPDATE entities SET last_seen`).
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO unit_entities`).
		WithArgs("unit-1", int64(42), 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO entities`).
		WithArgs("Maria Perez", "person", "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(99)))
	mock.ExpectExec(`INSERT INTO unit_entities`).
		WithArgs("unit-1", int64(99), 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO facts`).
		WithArgs(pgxmock.AnyArg(), "unit-1", 1, "Central bank raised rates by 200bp",
			"economic", "", "", "", false, 7, 6).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO quotes`).
		WithArgs(pgxmock.AnyArg(), "unit-1", "This was unavoidable", "Maria Perez",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO figures`).
		WithArgs(pgxmock.AnyArg(), "unit-1", "rate increase", float64(200), "basis points",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO relationships`).
		WithArgs(pgxmock.AnyArg(), "unit-1", "fact_entity", 1, 2, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.InsertArticle(context.Background(), st, model.OutcomeDone)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertArticle_RollsBackOnElementFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	st := articleState()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO articles`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE entities SET last_seen`).
		WithArgs(int64(42)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.InsertArticle(context.Background(), st, model.OutcomeDone)
	require.Error(t, err)
	assert.True(t, IsConstraint(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertArticle_DiscardedPersistsEmptyStructure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	st := articleState()
	st.Triage.Relevant = false
	st.Triage.Decision = model.DecisionRejected
	st.ProcessedFacts = nil
	st.ProcessedEntities = nil
	st.Quotes = nil
	st.Figures = nil
	st.Relationships = nil

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO articles`).
		WithArgs("unit-1", "El Diario", "AR", "newspaper", "Central bank raises rates",
			"2026-08-30T10:00:00Z", "", "", "discarded", model.DecisionRejected,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.InsertArticle(context.Background(), st, model.OutcomeDiscarded)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFragment(t *testing.T) {
	s, mock := newMockPostgresStore(t)
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
			},
		},
		ProcessedFacts: []model.ProcessedFact{
			{
				ExtractedFact: model.ExtractedFact{TempID: 1, Description: "something happened", Type: "political"},
				Importance:    5, SystemImportance: 5,
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO document_fragments`).
		WithArgs("unit-frag", "doc-7", "frag-2", 2, 5, "2026-08-30T11:00:00Z",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO facts`).
		WithArgs(pgxmock.AnyArg(), "unit-frag", 1, "something happened", "political",
			"", "", "", false, 5, 5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.InsertFragment(context.Background(), st)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindSimilarEntity_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM entities`).
		WithArgs("Central Bank", "organization").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, found, err := s.FindSimilarEntity(context.Background(), "Central Bank", "organization")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindSimilarEntity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM entities`).
		WithArgs("Nobody", "person").
		WillReturnError(pgx.ErrNoRows)

	id, found, err := s.FindSimilarEntity(context.Background(), "Nobody", "person")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReadDailyTrends_NoRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT trend_date, hot_topics, hot_entities, active_threads FROM daily_trends`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	trends, err := s.ReadDailyTrends(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, trends)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReadDailyTrends_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT trend_date, hot_topics, hot_entities, active_threads FROM daily_trends`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"trend_date", "hot_topics", "hot_entities", "active_threads"}).
			AddRow(day, []byte(`["inflation"]`), []byte(`["Central Bank"]`), []byte(`["rate cycle"]`)))

	trends, err := s.ReadDailyTrends(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, trends)
	assert.Equal(t, "2026-08-30", trends.Date)
	assert.Equal(t, []string{"inflation"}, trends.HotTopics)
	assert.Equal(t, []string{"Central Bank"}, trends.HotEntities)
	assert.Equal(t, []string{"rate cycle"}, trends.ActiveThreads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordError_FillsIDAndTimestamp(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO processing_errors`).
		WithArgs(pgxmock.AnyArg(), "unit-1", "persistence", pgxmock.AnyArg(),
			"store unavailable", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := &model.PersistentError{
		UnitID:         "unit-1",
		LastPhase:      model.PhasePersistence,
		PartialPayload: []byte(`{"unit":{}}`),
		Reason:         "store unavailable",
	}
	err := s.RecordError(context.Background(), rec)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyPg_ConnectionErrorsAreTransient(t *testing.T) {
	err := classifyPg(&pgconn.PgError{Code: "08006"}, "postgres: insert article")
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, IsConstraint(err))
}

func TestClassifyPg_ConstraintErrorsAreNotTransient(t *testing.T) {
	err := classifyPg(&pgconn.PgError{Code: "23503"}, "postgres: insert fact")
	assert.True(t, IsConstraint(err))
	assert.False(t, resilience.IsTransient(err))
}
