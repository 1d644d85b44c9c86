package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/llm"
	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/refs"
	"github.com/prensa-labs/newsgraph/internal/resilience"
	"github.com/prensa-labs/newsgraph/internal/store"
)

// NormalizationPhase reconciles extracted entities against the durable
// store, expands fact dates into ranges, and asks the model for
// relationships between the run's elements. A similarity-lookup failure
// degrades to treating every entity as new; a relationship failure degrades
// to no relationships. Both losses are repairable offline.
func NormalizationPhase(ctx context.Context, st *model.PipelineState, tracker *refs.Tracker, ai ModelInvoker, db store.Store, table *resilience.FallbackTable) error {
	st.ProcessedEntities = make([]model.ProcessedEntity, 0, len(st.Entities))
	for _, e := range st.Entities {
		pe := model.ProcessedEntity{ExtractedEntity: e}
		id, found, err := db.FindSimilarEntity(ctx, e.Name, e.Type)
		if err != nil {
			table.Apply(st, model.PhaseNormalization, resilience.FailureSimilarityLookup, err)
			break
		}
		if found {
			pe.StoreID = &id
		}
		st.ProcessedEntities = append(st.ProcessedEntities, pe)
	}

	st.ProcessedFacts = make([]model.ProcessedFact, 0, len(st.Facts))
	for _, f := range st.Facts {
		start, end := normalizeDateRange(f.Date)
		st.ProcessedFacts = append(st.ProcessedFacts, model.ProcessedFact{
			ExtractedFact: f,
			DateStart:     start,
			DateEnd:       end,
		})
	}

	var out struct {
		Relationships []struct {
			Kind       string `json:"kind"`
			FromTempID int    `json:"from_temp_id"`
			ToTempID   int    `json:"to_temp_id"`
			Type       string `json:"type"`
		} `json:"relationships"`
	}
	err := ai.InvokeJSON(ctx, llm.Call{
		Phase:  model.PhaseNormalization,
		UnitID: st.Unit.ID,
		System: relationshipsSystemPrompt,
		Prompt: fmt.Sprintf(relationshipsUserPrompt, factSummary(st.Facts), entitySummary(st.Entities)),
	}, &out)
	if err != nil {
		table.Apply(st, model.PhaseNormalization, resilience.FailureRelationships, err)
		return nil
	}

	invented := 0
	st.Relationships = st.Relationships[:0]
	for _, r := range out.Relationships {
		kind := model.RelationKind(strings.ToLower(r.Kind))
		switch kind {
		case model.RelationFactEntity, model.RelationFactFact,
			model.RelationEntityEntity, model.RelationContradiction:
		default:
			invented++
			continue
		}
		if !tracker.Known(r.FromTempID) || !tracker.Known(r.ToTempID) {
			invented++
			continue
		}
		st.Relationships = append(st.Relationships, model.Relationship{
			Kind:       kind,
			FromTempID: r.FromTempID,
			ToTempID:   r.ToTempID,
			Type:       r.Type,
		})
	}
	if invented > 0 {
		zap.L().Warn("dropped relationships with unknown references",
			zap.String("unit_id", st.Unit.ID),
			zap.Int("dropped", invented),
		)
	}
	return nil
}

// normalizeDateRange expands a partial date into an inclusive day range.
// "2026" covers the year, "2026-08" the month, "2026-08-30" a single day.
// An explicit "start/end" range passes through after normalizing each side.
// Unparseable input yields an empty range rather than an error.
func normalizeDateRange(date string) (string, string) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", ""
	}

	if from, to, ok := strings.Cut(date, "/"); ok {
		fromStart, _ := normalizeDateRange(from)
		_, toEnd := normalizeDateRange(to)
		if fromStart == "" || toEnd == "" {
			return "", ""
		}
		return fromStart, toEnd
	}

	switch len(date) {
	case 4: // YYYY
		t, err := time.Parse("2006", date)
		if err != nil {
			return "", ""
		}
		return t.Format("2006-01-02"), t.AddDate(1, 0, -1).Format("2006-01-02")
	case 7: // YYYY-MM
		t, err := time.Parse("2006-01", date)
		if err != nil {
			return "", ""
		}
		return t.Format("2006-01-02"), t.AddDate(0, 1, -1).Format("2006-01-02")
	case 10: // YYYY-MM-DD
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return "", ""
		}
		day := t.Format("2006-01-02")
		return day, day
	default:
		return "", ""
	}
}
