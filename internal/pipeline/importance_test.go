package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/scorer"
)

func normalizedState() *model.PipelineState {
	st, _ := extractedState(testArticleUnit())
	st.ProcessedEntities = []model.ProcessedEntity{
		{ExtractedEntity: st.Entities[0]},
		{ExtractedEntity: st.Entities[1]},
	}
	st.ProcessedFacts = []model.ProcessedFact{
		{ExtractedFact: st.Facts[0]},
		{ExtractedFact: st.Facts[1]},
	}
	return st
}

func enabledScorer() *scorer.Scorer {
	return scorer.NewWithWeights(&scorer.Weights{
		Bias:        4,
		TypeWeights: map[string]float64{"economic": 2},
		Preliminary: 0.2,
		HotEntity:   1,
	}, 5)
}

func TestImportancePhase_ScoresWithTrends(t *testing.T) {
	st := normalizedState()

	db := &mockStore{}
	db.On("ReadDailyTrends", mock.Anything, mock.Anything).Return(&model.DailyTrends{
		Date:        "2026-08-31",
		HotEntities: []string{"banco central"},
	}, nil)

	require.NoError(t, ImportancePhase(context.Background(), st, enabledScorer(), db, newTestTable()))

	for _, f := range st.ProcessedFacts {
		assert.GreaterOrEqual(t, f.Importance, 1)
		assert.LessOrEqual(t, f.Importance, 10)
		assert.Equal(t, f.PreliminaryImportance, f.SystemImportance)
	}
	assert.NotNil(t, st.Trends)
	assert.Empty(t, st.Degradations)
}

func TestImportancePhase_AbsentTrendsScoreIntrinsicOnly(t *testing.T) {
	st := normalizedState()

	db := &mockStore{}
	db.On("ReadDailyTrends", mock.Anything, mock.Anything).Return(nil, nil)

	require.NoError(t, ImportancePhase(context.Background(), st, enabledScorer(), db, newTestTable()))

	assert.Nil(t, st.Trends)
	for _, f := range st.ProcessedFacts {
		assert.GreaterOrEqual(t, f.Importance, 1)
	}
	assert.Empty(t, st.Degradations, "missing trends are normal, not a failure")
}

func TestImportancePhase_TrendReadFailureDefaultsEveryFact(t *testing.T) {
	st := normalizedState()

	db := &mockStore{}
	db.On("ReadDailyTrends", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	require.NoError(t, ImportancePhase(context.Background(), st, enabledScorer(), db, newTestTable()))

	for _, f := range st.ProcessedFacts {
		assert.Equal(t, 5, f.Importance)
		assert.Equal(t, f.PreliminaryImportance, f.SystemImportance)
	}
	assert.NotEmpty(t, st.Degradations)
}

func TestImportancePhase_DisabledScorerUsesDefault(t *testing.T) {
	st := normalizedState()
	disabled := scorer.Load("/nonexistent/weights.yaml", 5)

	db := &mockStore{}
	// A disabled scorer never touches the store.

	require.NoError(t, ImportancePhase(context.Background(), st, disabled, db, newTestTable()))

	for _, f := range st.ProcessedFacts {
		assert.Equal(t, 5, f.Importance)
		assert.Equal(t, f.PreliminaryImportance, f.SystemImportance)
	}
	db.AssertNotCalled(t, "ReadDailyTrends", mock.Anything, mock.Anything)
}
