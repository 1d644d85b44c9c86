package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/llm"
	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/refs"
	"github.com/prensa-labs/newsgraph/internal/resilience"
)

// ExtractionPhase pulls discrete facts and named entities out of the clean
// text and registers each under a run-scoped temporary id. A model failure
// degrades to a synthesized minimal extraction so the unit always carries at
// least one fact into persistence.
func ExtractionPhase(ctx context.Context, st *model.PipelineState, tracker *refs.Tracker, ai ModelInvoker, table *resilience.FallbackTable) error {
	var out struct {
		Facts []struct {
			Description           string `json:"description"`
			Type                  string `json:"type"`
			Country               string `json:"country"`
			Date                  string `json:"date"`
			IsFutureEvent         bool   `json:"is_future_event"`
			PreliminaryImportance int    `json:"preliminary_importance"`
		} `json:"facts"`
		Entities []struct {
			Name        string `json:"name"`
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"entities"`
	}

	err := ai.InvokeJSON(ctx, llm.Call{
		Phase:  model.PhaseExtraction,
		UnitID: st.Unit.ID,
		System: extractionSystemPrompt,
		Prompt: fmt.Sprintf(extractionUserPrompt, st.Unit.Source(), st.Unit.Headline(), st.CleanText()),
	}, &out)
	if err != nil {
		table.Apply(st, model.PhaseExtraction, resilience.FailureModelCall, err)
		registerExtracted(st, tracker)
		return nil
	}

	dropped := 0
	st.Facts = st.Facts[:0]
	for _, f := range out.Facts {
		if strings.TrimSpace(f.Description) == "" {
			dropped++
			continue
		}
		st.Facts = append(st.Facts, model.ExtractedFact{
			Description:           f.Description,
			Type:                  strings.ToLower(f.Type),
			Country:               strings.ToUpper(f.Country),
			Date:                  f.Date,
			IsFutureEvent:         f.IsFutureEvent,
			PreliminaryImportance: clampImportance(f.PreliminaryImportance, table.DefaultImportance),
		})
	}
	st.Entities = st.Entities[:0]
	for _, e := range out.Entities {
		if strings.TrimSpace(e.Name) == "" {
			dropped++
			continue
		}
		st.Entities = append(st.Entities, model.ExtractedEntity{
			Name:        strings.TrimSpace(e.Name),
			Type:        strings.ToLower(e.Type),
			Description: e.Description,
		})
	}
	if dropped > 0 {
		zap.L().Warn("extraction dropped incomplete elements",
			zap.String("unit_id", st.Unit.ID),
			zap.Int("dropped", dropped),
		)
	}

	// An empty extraction on accepted text is treated like a model failure:
	// the persisted unit must carry at least one fact.
	if len(st.Facts) == 0 {
		table.Apply(st, model.PhaseExtraction, resilience.FailureModelCall,
			fmt.Errorf("extraction returned no facts"))
	}

	registerExtracted(st, tracker)
	return nil
}

// registerExtracted issues temporary ids for every fact and entity that does
// not hold one yet. Fallback-synthesized elements arrive with a zero id.
func registerExtracted(st *model.PipelineState, tracker *refs.Tracker) {
	for i := range st.Facts {
		if st.Facts[i].TempID == 0 {
			st.Facts[i].TempID = tracker.Register(&st.Facts[i])
		}
	}
	for i := range st.Entities {
		if st.Entities[i].TempID == 0 {
			st.Entities[i].TempID = tracker.Register(&st.Entities[i])
		}
	}
}
