package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensa-labs/newsgraph/internal/model"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "spanish", text: spanishBody, want: "es"},
		{name: "english", text: englishBody, want: "en"},
		{name: "too short", text: "hola mundo", wantErr: true},
		{name: "inconclusive", text: "a1 b2 c3 d4 e5 f6 g7 h8 i9 j10 k11 l12", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detectLanguage(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTriagePhase_AcceptsRelevantArticle(t *testing.T) {
	ai := &mockInvoker{}
	ai.onJSON(preprocessSystemPrompt, `{"clean_text": "texto limpio del artículo sobre la tasa"}`)
	ai.onJSON(relevanceSystemPrompt, `{"relevant": true, "justification": "monetary policy", "category": "economy", "keywords": ["tasa", "inflación"], "score": 0.93}`)

	st := model.NewState(testArticleUnit())
	require.NoError(t, TriagePhase(context.Background(), st, ai, newTestTable()))

	assert.True(t, st.Triage.Relevant)
	assert.Equal(t, model.DecisionAccepted, st.Triage.Decision)
	assert.Equal(t, "texto limpio del artículo sobre la tasa", st.Triage.CleanText)
	assert.Equal(t, "economy", st.Triage.Category)
	assert.Equal(t, "es", st.Triage.Language)
	assert.False(t, st.Triage.Translated, "default-language text is not translated")
	assert.Empty(t, st.Degradations)
	ai.AssertExpectations(t)
}

func TestTriagePhase_RejectsIrrelevantArticle(t *testing.T) {
	ai := &mockInvoker{}
	ai.onJSON(preprocessSystemPrompt, `{"clean_text": "resultados del partido de anoche"}`)
	ai.onJSON(relevanceSystemPrompt, `{"relevant": false, "justification": "sports coverage", "score": 0.05}`)

	st := model.NewState(testArticleUnit())
	require.NoError(t, TriagePhase(context.Background(), st, ai, newTestTable()))

	assert.False(t, st.Triage.Relevant)
	assert.Equal(t, model.DecisionRejected, st.Triage.Decision)
}

func TestTriagePhase_FragmentAlwaysAccepted(t *testing.T) {
	ai := &mockInvoker{}
	ai.onJSON(preprocessSystemPrompt, `{"clean_text": "texto limpio del fragmento"}`)
	// No relevance expectation: fragments must never be relevance-checked.

	st := model.NewState(testFragmentUnit())
	require.NoError(t, TriagePhase(context.Background(), st, ai, newTestTable()))

	assert.True(t, st.Triage.Relevant)
	assert.Equal(t, model.DecisionFragmentAlwaysAccepted, st.Triage.Decision)
	ai.AssertNotCalled(t, "InvokeJSON", context.Background(), "relevance", nil)
}

func TestTriagePhase_PreprocessFailureAcceptsRawText(t *testing.T) {
	ai := &mockInvoker{}
	ai.onJSONErr(preprocessSystemPrompt, errors.New("model timeout"))
	// The relevance check still runs, on the raw text, and its verdict
	// settles the final decision.
	ai.onJSON(relevanceSystemPrompt, `{"relevant": true, "score": 0.7}`)

	unit := testArticleUnit()
	st := model.NewState(unit)
	require.NoError(t, TriagePhase(context.Background(), st, ai, newTestTable()))

	assert.True(t, st.Triage.Relevant)
	assert.Equal(t, model.DecisionAccepted, st.Triage.Decision)
	assert.Equal(t, unit.Text(), st.Triage.CleanText, "raw text carries through")
	assert.NotEmpty(t, st.Degradations)
}

func TestTriagePhase_RelevanceFailureAcceptsByDefault(t *testing.T) {
	ai := &mockInvoker{}
	ai.onJSON(preprocessSystemPrompt, `{"clean_text": "texto limpio del artículo"}`)
	ai.onJSONErr(relevanceSystemPrompt, errors.New("model unavailable"))

	st := model.NewState(testArticleUnit())
	require.NoError(t, TriagePhase(context.Background(), st, ai, newTestTable()))

	assert.True(t, st.Triage.Relevant, "unknown relevance accepts by default")
	assert.Equal(t, model.DecisionFallbackModelError, st.Triage.Decision)
	assert.Equal(t, "texto limpio del artículo", st.Triage.CleanText, "clean text survives the fallback")
}

func TestTriagePhase_TranslatesNonDefaultLanguage(t *testing.T) {
	ai := &mockInvoker{}
	ai.onJSON(preprocessSystemPrompt, `{"clean_text": "clean english article text"}`)
	ai.onJSON(relevanceSystemPrompt, `{"relevant": true, "score": 0.8}`)
	ai.onJSON(translationSystemPromptFor("Spanish"), `{"translation": "texto del artículo traducido"}`)

	unit := testArticleUnit()
	unit.Article.BodyText = englishBody
	st := model.NewState(unit)
	require.NoError(t, TriagePhase(context.Background(), st, ai, newTestTable()))

	assert.Equal(t, "en", st.Triage.Language)
	assert.True(t, st.Triage.Translated)
	assert.Equal(t, "texto del artículo traducido", st.Triage.CleanText)
}

func TestTriagePhase_TranslationFailureKeepsOriginal(t *testing.T) {
	ai := &mockInvoker{}
	ai.onJSON(preprocessSystemPrompt, `{"clean_text": "clean english article text"}`)
	ai.onJSON(relevanceSystemPrompt, `{"relevant": true, "score": 0.8}`)
	ai.onJSONErr(translationSystemPromptFor("Spanish"), errors.New("model unavailable"))

	unit := testArticleUnit()
	unit.Article.BodyText = englishBody
	st := model.NewState(unit)
	require.NoError(t, TriagePhase(context.Background(), st, ai, newTestTable()))

	assert.False(t, st.Triage.Translated)
	assert.Equal(t, "clean english article text", st.Triage.CleanText)
	assert.Contains(t, st.Triage.Notes[len(st.Triage.Notes)-1], "untranslated")
}
