package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/resilience"
	"github.com/prensa-labs/newsgraph/internal/scorer"
	"github.com/prensa-labs/newsgraph/internal/store"
)

// ImportancePhase assigns the final 1-10 importance to each processed fact.
// The daily trend signals are read once per run; an absent row is normal and
// scores on intrinsic features only, while a read failure degrades every
// fact to the default importance.
func ImportancePhase(ctx context.Context, st *model.PipelineState, sc *scorer.Scorer, db store.Store, table *resilience.FallbackTable) error {
	if sc.Disabled() {
		for i := range st.ProcessedFacts {
			st.ProcessedFacts[i].Importance = sc.Default()
			st.ProcessedFacts[i].SystemImportance = st.ProcessedFacts[i].PreliminaryImportance
		}
		return nil
	}

	trends, err := db.ReadDailyTrends(ctx, time.Now().UTC())
	if err != nil {
		table.Apply(st, model.PhaseImportance, resilience.FailureTrendData, err)
		return nil
	}
	if trends == nil {
		zap.L().Debug("no daily trends for today, scoring on intrinsic features",
			zap.String("unit_id", st.Unit.ID))
	}
	st.Trends = trends

	for i := range st.ProcessedFacts {
		f := &st.ProcessedFacts[i]
		f.Importance = sc.Score(*f, st.ProcessedEntities, trends)
		f.SystemImportance = f.PreliminaryImportance
	}
	return nil
}
