package model

import (
	"encoding/json"
	"time"
)

// OutcomeStatus is the terminal status of one orchestrator run.
type OutcomeStatus string

const (
	// OutcomeDone means the assembled structure was persisted atomically.
	OutcomeDone OutcomeStatus = "done"
	// OutcomeDiscarded means triage rejected a full article; the rejection
	// itself is persisted so the unit is never silently lost.
	OutcomeDiscarded OutcomeStatus = "discarded"
	// OutcomeErrorRecorded means persistence failed and a durable error
	// record was written instead.
	OutcomeErrorRecorded OutcomeStatus = "error_recorded"
)

// PipelineOutcome is the final result of one orchestrator run. Exactly one
// outcome exists per unit that entered the queue.
type PipelineOutcome struct {
	RunID    string        `json:"run_id"`
	UnitID   string        `json:"unit_id"`
	Kind     UnitKind      `json:"kind"`
	Status   OutcomeStatus `json:"status"`
	State    *PipelineState `json:"state,omitempty"`
	Duration time.Duration `json:"duration"`
	Degraded bool          `json:"degraded"`
}

// PersistentError is the durable record written when a unit could not be
// fully processed and persisted. The original payload is recoverable from
// PartialPayload.
type PersistentError struct {
	ID             string          `json:"id"`
	UnitID         string          `json:"unit_id"`
	Timestamp      time.Time       `json:"timestamp"`
	LastPhase      Phase           `json:"last_phase"`
	PartialPayload json.RawMessage `json:"partial_payload"`
	Reason         string          `json:"reason"`
}
