package model

import "encoding/json"

// Phase identifies one of the ordered pipeline stages.
type Phase string

const (
	PhaseTriage        Phase = "triage"
	PhaseExtraction    Phase = "extraction"
	PhaseQuotesFigures Phase = "quotes_figures"
	PhaseNormalization Phase = "normalization"
	PhaseImportance    Phase = "importance"
	PhasePersistence   Phase = "persistence"
)

// Phases lists the processing stages in execution order, excluding
// persistence which the orchestrator handles itself.
func Phases() []Phase {
	return []Phase{PhaseTriage, PhaseExtraction, PhaseQuotesFigures, PhaseNormalization, PhaseImportance}
}

// PhaseStatus is the terminal status of one phase execution.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusDegraded PhaseStatus = "degraded"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseReport records the outcome of a single phase execution.
type PhaseReport struct {
	Phase      Phase       `json:"phase"`
	Status     PhaseStatus `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
	Fallback   string      `json:"fallback,omitempty"`
}

// PipelineState is the evolving per-run state handed from phase to phase.
// It is owned by exactly one orchestrator run and never shared.
type PipelineState struct {
	Unit *ProcessingUnit `json:"unit"`

	Triage *TriageResult `json:"triage,omitempty"`

	Facts    []ExtractedFact   `json:"facts,omitempty"`
	Entities []ExtractedEntity `json:"entities,omitempty"`

	Quotes  []Quote             `json:"quotes,omitempty"`
	Figures []QuantitativeDatum `json:"figures,omitempty"`

	ProcessedFacts    []ProcessedFact   `json:"processed_facts,omitempty"`
	ProcessedEntities []ProcessedEntity `json:"processed_entities,omitempty"`
	Relationships     []Relationship    `json:"relationships,omitempty"`

	Trends *DailyTrends `json:"trends,omitempty"`

	Reports []PhaseReport `json:"reports,omitempty"`

	// Degradations accumulates the names of fallback actions applied during
	// the run, in order. The orchestrator slices it per phase for reports.
	Degradations []string `json:"-"`
}

// NewState creates the initial state for one unit run.
func NewState(unit *ProcessingUnit) *PipelineState {
	return &PipelineState{Unit: unit}
}

// CleanText returns the triaged text when available, else the raw unit text.
func (st *PipelineState) CleanText() string {
	if st.Triage != nil && st.Triage.CleanText != "" {
		return st.Triage.CleanText
	}
	return st.Unit.Text()
}

// LastPhase returns the most recently recorded phase, or empty.
func (st *PipelineState) LastPhase() Phase {
	if len(st.Reports) == 0 {
		return ""
	}
	return st.Reports[len(st.Reports)-1].Phase
}

// Partial serializes the state for durable error recording. Serialization
// itself must not fail the error path, so a marshal error degrades to a
// minimal payload holding only the unit.
func (st *PipelineState) Partial() json.RawMessage {
	b, err := json.Marshal(st)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"unit": st.Unit})
	}
	return b
}
