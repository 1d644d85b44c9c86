package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/refs"
	"github.com/prensa-labs/newsgraph/internal/resilience"
)

// run bundles the per-unit machinery shared by the phase executions: the
// temporary-id tracker and the phase wrapper that turns any failure mode,
// panics included, into a degraded report instead of a lost unit.
type run struct {
	st      *model.PipelineState
	table   *resilience.FallbackTable
	tracker *refs.Tracker
}

func newRun(st *model.PipelineState, table *resilience.FallbackTable) *run {
	return &run{st: st, table: table, tracker: refs.NewTracker()}
}

// phase wraps fn with timing, panic recovery, and fallback accounting. A
// returned PhaseFailure consults the fallback table for its failure kind;
// any other error, and any panic, takes the phase's generic fallback.
func (r *run) phase(phase model.Phase, fn func(ctx context.Context) error) func(ctx context.Context) {
	return func(ctx context.Context) {
		start := time.Now()
		before := len(r.st.Degradations)

		err := func() (phaseErr error) {
			defer func() {
				if rec := recover(); rec != nil {
					phaseErr = fmt.Errorf("panic: %v", rec)
				}
			}()
			return fn(ctx)
		}()

		report := model.PhaseReport{
			Phase:      phase,
			Status:     model.PhaseStatusComplete,
			DurationMS: time.Since(start).Milliseconds(),
		}

		if err != nil {
			var pf *resilience.PhaseFailure
			if errors.As(err, &pf) {
				r.table.Apply(r.st, pf.Phase, pf.Kind, pf.Err)
			} else {
				r.table.Apply(r.st, phase, "", err)
			}
			report.Error = err.Error()
		}

		// Fallback-synthesized extraction elements arrive without temp ids;
		// issue them before later phases reference anything.
		if phase == model.PhaseExtraction {
			registerExtracted(r.st, r.tracker)
		}

		if applied := r.st.Degradations[before:]; len(applied) > 0 {
			report.Status = model.PhaseStatusDegraded
			report.Fallback = strings.Join(applied, ",")
			zap.L().Warn("phase degraded",
				zap.String("unit_id", r.st.Unit.ID),
				zap.String("phase", string(phase)),
				zap.String("fallback", report.Fallback),
				zap.Int64("duration_ms", report.DurationMS),
			)
		} else {
			zap.L().Debug("phase complete",
				zap.String("unit_id", r.st.Unit.ID),
				zap.String("phase", string(phase)),
				zap.Int64("duration_ms", report.DurationMS),
			)
		}

		r.st.Reports = append(r.st.Reports, report)
	}
}
