// Package pipeline implements the five phase processors and the orchestrator
// that drives one processing unit from raw text to a persisted knowledge
// graph delta. Each phase transforms the shared PipelineState; dependency
// failures degrade through the resilience fallback table instead of aborting
// the unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/llm"
	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/refs"
)

// ModelInvoker is the slice of the model adapter the phases consume.
type ModelInvoker interface {
	Invoke(ctx context.Context, call llm.Call) (string, error)
	InvokeJSON(ctx context.Context, call llm.Call, out any) error
}

// MetricsSink receives one notification per finished unit. The worker pool's
// aggregate counters implement it.
type MetricsSink interface {
	RecordOutcome(outcome *model.PipelineOutcome)
}

// NopMetrics discards outcome notifications.
type NopMetrics struct{}

func (NopMetrics) RecordOutcome(*model.PipelineOutcome) {}

// clampImportance forces v into the 1-10 scale, substituting def for zero.
func clampImportance(v, def int) int {
	if v == 0 {
		v = def
	}
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// knownRefs filters ids down to those resolvable against this run's tracker.
// An id the model invented fails resolution and is dropped; losing one
// reference never fails the phase.
func knownRefs(tracker *refs.Tracker, ids []int) []int {
	var valid []int
	for _, id := range ids {
		if _, err := tracker.Resolve(id); err != nil {
			var unknown *refs.UnknownReferenceError
			if errors.As(err, &unknown) {
				zap.L().Debug("dropping unresolvable reference", zap.Int("temp_id", unknown.ID))
			}
			continue
		}
		valid = append(valid, id)
	}
	return valid
}

// factSummary renders the run's facts as a temp-id list for prompts.
func factSummary(facts []model.ExtractedFact) string {
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "[%d] %s\n", f.TempID, f.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// entitySummary renders the run's entities as a temp-id list for prompts.
func entitySummary(entities []model.ExtractedEntity) string {
	var b strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", e.TempID, e.Name, e.Type)
	}
	return strings.TrimRight(b.String(), "\n")
}
