package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/resilience"
	"github.com/prensa-labs/newsgraph/internal/scorer"
	"github.com/prensa-labs/newsgraph/internal/store"
)

// Orchestrator runs the five phases plus persistence for one unit at a time.
// It is safe for concurrent use; all per-run state lives in the run itself.
type Orchestrator struct {
	store   store.Store
	ai      ModelInvoker
	scorer  *scorer.Scorer
	table   *resilience.FallbackTable
	metrics MetricsSink

	// storeRetryDelay separates the single persistence retry from the first
	// attempt. Overridden in tests.
	storeRetryDelay time.Duration
}

// NewOrchestrator wires the orchestrator's dependencies. A nil metrics sink
// is replaced with a no-op.
func NewOrchestrator(db store.Store, ai ModelInvoker, sc *scorer.Scorer, table *resilience.FallbackTable, metrics MetricsSink) *Orchestrator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Orchestrator{
		store:           db,
		ai:              ai,
		scorer:          sc,
		table:           table,
		metrics:         metrics,
		storeRetryDelay: time.Second,
	}
}

// Process drives one unit through the whole pipeline and returns exactly one
// outcome. No phase failure aborts the unit; even a persistence failure ends
// in a durable error record rather than silent loss.
func (o *Orchestrator) Process(ctx context.Context, unit *model.ProcessingUnit) (*model.PipelineOutcome, error) {
	if unit == nil {
		return nil, fmt.Errorf("pipeline: nil unit")
	}

	start := time.Now()
	runID := uuid.New().String()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("unit_id", unit.ID),
		zap.String("kind", string(unit.Kind)),
	)
	log.Info("processing unit")

	st := model.NewState(unit)
	run := newRun(st, o.table)

	run.phase(model.PhaseTriage, func(ctx context.Context) error {
		return TriagePhase(ctx, st, o.ai, o.table)
	})(ctx)

	// A triage-rejected article short-circuits extraction but is still
	// persisted, so the ingestion trail has no gaps. Fragments never reject.
	if unit.Kind == model.UnitKindArticle && st.Triage != nil && !st.Triage.Relevant {
		for _, phase := range []model.Phase{
			model.PhaseExtraction, model.PhaseQuotesFigures,
			model.PhaseNormalization, model.PhaseImportance,
		} {
			st.Reports = append(st.Reports, model.PhaseReport{Phase: phase, Status: model.PhaseStatusSkipped})
		}
		return o.finish(ctx, log, runID, st, model.OutcomeDiscarded, start)
	}

	run.phase(model.PhaseExtraction, func(ctx context.Context) error {
		return ExtractionPhase(ctx, st, run.tracker, o.ai, o.table)
	})(ctx)

	run.phase(model.PhaseQuotesFigures, func(ctx context.Context) error {
		return QuotesFiguresPhase(ctx, st, run.tracker, o.ai, o.table)
	})(ctx)

	run.phase(model.PhaseNormalization, func(ctx context.Context) error {
		return NormalizationPhase(ctx, st, run.tracker, o.ai, o.store, o.table)
	})(ctx)

	run.phase(model.PhaseImportance, func(ctx context.Context) error {
		return ImportancePhase(ctx, st, o.scorer, o.store, o.table)
	})(ctx)

	return o.finish(ctx, log, runID, st, model.OutcomeDone, start)
}

// finish persists the assembled state and builds the outcome. Persistence
// gets one retry for connection-class failures; after that the unit goes to
// the durable error record.
func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, runID string, st *model.PipelineState, status model.OutcomeStatus, start time.Time) (*model.PipelineOutcome, error) {
	persistStart := time.Now()
	report := model.PhaseReport{Phase: model.PhasePersistence, Status: model.PhaseStatusComplete}

	var fatal error
	err := resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts: 2,
		Delay:       o.storeRetryDelay,
		ShouldRetry: func(err error) bool {
			return resilience.IsTransient(err) && !store.IsConstraint(err)
		},
		OnRetry: resilience.RetryLogger("store", "insert unit"),
	}, func(ctx context.Context) error {
		if st.Unit.Kind == model.UnitKindFragment {
			return o.store.InsertFragment(ctx, st)
		}
		return o.store.InsertArticle(ctx, st, status)
	})

	if err != nil {
		log.Error("persistence failed, recording durable error", zap.Error(err))
		status = model.OutcomeErrorRecorded
		report.Status = model.PhaseStatusDegraded
		report.Error = err.Error()
		report.Fallback = "error_record"

		rec := &model.PersistentError{
			UnitID:         st.Unit.ID,
			LastPhase:      st.LastPhase(),
			PartialPayload: st.Partial(),
			Reason:         err.Error(),
		}
		if recErr := o.store.RecordError(ctx, rec); recErr != nil {
			// Both the insert and the error record failed. Nothing durable is
			// left, so the full payload goes to the log as the last resort,
			// and the double failure surfaces to the caller.
			log.Error("error record failed, dumping unit to log",
				zap.Error(recErr),
				zap.ByteString("partial_payload", rec.PartialPayload),
			)
			fatal = fmt.Errorf("pipeline: unit %s lost, insert and error record both failed: %w", st.Unit.ID, recErr)
		}
	}

	report.DurationMS = time.Since(persistStart).Milliseconds()
	st.Reports = append(st.Reports, report)

	outcome := &model.PipelineOutcome{
		RunID:    runID,
		UnitID:   st.Unit.ID,
		Kind:     st.Unit.Kind,
		Status:   status,
		State:    st,
		Duration: time.Since(start),
		Degraded: len(st.Degradations) > 0,
	}
	o.metrics.RecordOutcome(outcome)

	log.Info("unit processed",
		zap.String("status", string(status)),
		zap.Duration("duration", outcome.Duration),
		zap.Int("facts", len(st.ProcessedFacts)),
		zap.Int("entities", len(st.ProcessedEntities)),
		zap.Bool("degraded", outcome.Degraded),
	)
	return outcome, fatal
}
