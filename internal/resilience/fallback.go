package resilience

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/model"
)

// FailureKind names the class of dependency failure inside a phase.
type FailureKind string

const (
	FailureLanguageDetection FailureKind = "language_detection"
	FailurePreprocess        FailureKind = "preprocess"
	FailureRelevance         FailureKind = "relevance"
	FailureTranslation       FailureKind = "translation"
	FailureModelCall         FailureKind = "model_call"
	FailureSimilarityLookup  FailureKind = "similarity_lookup"
	FailureRelationships     FailureKind = "relationships"
	FailureTrendData         FailureKind = "trend_data"
)

// PhaseFailure carries a classified dependency failure out of a phase so the
// wrapper can consult the fallback table.
type PhaseFailure struct {
	Phase model.Phase
	Kind  FailureKind
	Err   error
}

func (f *PhaseFailure) Error() string {
	return string(f.Phase) + "/" + string(f.Kind) + ": " + f.Err.Error()
}

func (f *PhaseFailure) Unwrap() error { return f.Err }

// FallbackFunc transforms the previous state into a degraded but usable
// state for the failed phase.
type FallbackFunc func(st *model.PipelineState)

type fallbackKey struct {
	phase model.Phase
	kind  FailureKind
}

// FallbackTable is the static policy mapping (phase, failure kind) to a
// degradation action. No phase failure aborts a unit; an unmatched failure
// falls through to the per-phase generic fallback.
type FallbackTable struct {
	// DefaultLanguage is assumed when language detection fails (BCP 47 tag).
	DefaultLanguage string
	// DefaultImportance is assigned when scoring inputs are unavailable.
	DefaultImportance int

	table map[fallbackKey]FallbackFunc
}

// NewFallbackTable builds the policy table with the configured defaults.
func NewFallbackTable(defaultLanguage string, defaultImportance int) *FallbackTable {
	t := &FallbackTable{
		DefaultLanguage:   defaultLanguage,
		DefaultImportance: defaultImportance,
	}
	t.table = map[fallbackKey]FallbackFunc{
		{model.PhaseTriage, FailureLanguageDetection}: t.assumeDefaultLanguage,
		{model.PhaseTriage, FailurePreprocess}:        t.acceptWithRawText,
		{model.PhaseTriage, FailureRelevance}:         t.acceptWithLastCleanText,
		{model.PhaseTriage, FailureTranslation}:       t.keepUntranslated,

		{model.PhaseExtraction, FailureModelCall}: t.synthesizeMinimalExtraction,

		{model.PhaseQuotesFigures, FailureModelCall}: t.emptyQuotesAndFigures,

		{model.PhaseNormalization, FailureSimilarityLookup}: t.allEntitiesNew,
		{model.PhaseNormalization, FailureRelationships}:    t.emptyRelationships,

		{model.PhaseImportance, FailureModelCall}: t.defaultImportance,
		{model.PhaseImportance, FailureTrendData}: t.defaultImportance,
	}
	return t
}

// Lookup returns the fallback action for (phase, kind), if one is defined.
func (t *FallbackTable) Lookup(phase model.Phase, kind FailureKind) (FallbackFunc, bool) {
	fb, ok := t.table[fallbackKey{phase, kind}]
	return fb, ok
}

// Apply runs the fallback for (phase, kind) against st, falling through to
// the generic per-phase fallback when no entry matches. It returns the name
// of the action applied for the phase report.
func (t *FallbackTable) Apply(st *model.PipelineState, phase model.Phase, kind FailureKind, cause error) string {
	zap.L().Warn("applying phase fallback",
		zap.String("unit_id", st.Unit.ID),
		zap.String("phase", string(phase)),
		zap.String("failure", string(kind)),
		zap.Error(cause),
	)
	name := "generic"
	if fb, ok := t.Lookup(phase, kind); ok {
		fb(st)
		name = string(kind)
	} else {
		t.Generic(phase)(st)
	}
	st.Degradations = append(st.Degradations, name)
	return name
}

// Generic returns the catch-all fallback for a phase: the minimal result
// that lets the pipeline continue.
func (t *FallbackTable) Generic(phase model.Phase) FallbackFunc {
	switch phase {
	case model.PhaseTriage:
		return t.acceptWithRawText
	case model.PhaseExtraction:
		return t.synthesizeMinimalExtraction
	case model.PhaseQuotesFigures:
		return t.emptyQuotesAndFigures
	case model.PhaseNormalization:
		return func(st *model.PipelineState) {
			t.allEntitiesNew(st)
			t.emptyRelationships(st)
		}
	case model.PhaseImportance:
		return t.defaultImportance
	default:
		return func(*model.PipelineState) {}
	}
}

func (t *FallbackTable) ensureTriage(st *model.PipelineState) *model.TriageResult {
	if st.Triage == nil {
		st.Triage = &model.TriageResult{}
	}
	return st.Triage
}

func (t *FallbackTable) assumeDefaultLanguage(st *model.PipelineState) {
	tr := t.ensureTriage(st)
	tr.Language = t.DefaultLanguage
	tr.Notes = append(tr.Notes, "language detection failed, assumed default locale")
}

func (t *FallbackTable) acceptWithRawText(st *model.PipelineState) {
	tr := t.ensureTriage(st)
	tr.Relevant = true
	tr.Decision = model.DecisionFallbackPreprocessError
	tr.CleanText = st.Unit.Text()
}

func (t *FallbackTable) acceptWithLastCleanText(st *model.PipelineState) {
	tr := t.ensureTriage(st)
	tr.Relevant = true
	tr.Decision = model.DecisionFallbackModelError
	if tr.CleanText == "" {
		tr.CleanText = st.Unit.Text()
	}
}

func (t *FallbackTable) keepUntranslated(st *model.PipelineState) {
	tr := t.ensureTriage(st)
	tr.Translated = false
	tr.Notes = append(tr.Notes, "translation failed, kept untranslated text")
}

// synthesizeMinimalExtraction fabricates one fact from the headline or first
// line so downstream phases and the atomic insert always have content.
// Entities already extracted are kept; a generic entity from the source is
// synthesized only when there are none.
func (t *FallbackTable) synthesizeMinimalExtraction(st *model.PipelineState) {
	desc := st.Unit.Headline()
	if desc == "" {
		desc = firstLine(st.CleanText())
	}
	st.Facts = []model.ExtractedFact{{
		Description:           desc,
		Type:                  "general",
		Country:               st.Unit.Country(),
		PreliminaryImportance: t.DefaultImportance,
	}}
	if len(st.Entities) == 0 {
		st.Entities = []model.ExtractedEntity{{
			Name: st.Unit.Source(),
			Type: "organization",
		}}
	}
}

func (t *FallbackTable) emptyQuotesAndFigures(st *model.PipelineState) {
	st.Quotes = []model.Quote{}
	st.Figures = []model.QuantitativeDatum{}
}

func (t *FallbackTable) allEntitiesNew(st *model.PipelineState) {
	st.ProcessedEntities = make([]model.ProcessedEntity, 0, len(st.Entities))
	for _, e := range st.Entities {
		st.ProcessedEntities = append(st.ProcessedEntities, model.ProcessedEntity{ExtractedEntity: e})
	}
	if len(st.ProcessedFacts) == 0 {
		st.ProcessedFacts = make([]model.ProcessedFact, 0, len(st.Facts))
		for _, f := range st.Facts {
			st.ProcessedFacts = append(st.ProcessedFacts, model.ProcessedFact{
				ExtractedFact: f,
				DateStart:     f.Date,
				DateEnd:       f.Date,
			})
		}
	}
}

func (t *FallbackTable) emptyRelationships(st *model.PipelineState) {
	st.Relationships = []model.Relationship{}
}

func (t *FallbackTable) defaultImportance(st *model.PipelineState) {
	if len(st.ProcessedFacts) == 0 {
		t.allEntitiesNew(st)
	}
	for i := range st.ProcessedFacts {
		st.ProcessedFacts[i].Importance = t.DefaultImportance
		st.ProcessedFacts[i].SystemImportance = st.ProcessedFacts[i].PreliminaryImportance
	}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		text = text[:idx]
	}
	if len(text) > 200 {
		cut := 200
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return strings.TrimSpace(text)
}
