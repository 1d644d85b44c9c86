// Package worker runs the bounded pool that pulls queued units through the
// orchestrator and aggregates the process-lifetime metrics the metrics
// endpoint reports.
package worker

import (
	"sync"
	"time"

	"github.com/prensa-labs/newsgraph/internal/model"
)

// MetricsSnapshot is a point-in-time view of the counters, shaped for the
// metrics endpoint.
type MetricsSnapshot struct {
	Received        int64 `json:"received"`
	Processed       int64 `json:"processed"`
	Done            int64 `json:"done"`
	Discarded       int64 `json:"discarded"`
	ErrorsRecorded  int64 `json:"errors_recorded"`
	Degraded        int64 `json:"degraded"`
	Rejected        int64 `json:"rejected_queue_full"`
	AvgDurationMS   int64 `json:"avg_duration_ms"`
	QueueDepth      int   `json:"queue_depth"`
	QueueCapacity   int   `json:"queue_capacity"`
	ActiveWorkers   int   `json:"active_workers"`
	UptimeSeconds   int64 `json:"uptime_seconds"`

	ByPhaseSuccess  map[string]int64 `json:"successes_by_phase,omitempty"`
	ByPhaseFallback map[string]int64 `json:"fallbacks_by_phase,omitempty"`
}

// Metrics aggregates counters across workers. Counters only grow for the
// life of the process; the snapshot is what external callers see.
type Metrics struct {
	mu sync.Mutex

	received       int64
	processed      int64
	done           int64
	discarded      int64
	errorsRecorded int64
	degraded       int64
	rejected       int64
	totalDuration  time.Duration
	successes      map[string]int64
	fallbacks      map[string]int64

	startedAt time.Time
}

// NewMetrics creates a zeroed counter set.
func NewMetrics() *Metrics {
	return &Metrics{
		successes: make(map[string]int64),
		fallbacks: make(map[string]int64),
		startedAt: time.Now(),
	}
}

// RecordReceived counts a unit accepted into the queue.
func (m *Metrics) RecordReceived() {
	m.mu.Lock()
	m.received++
	m.mu.Unlock()
}

// RecordRejected counts a unit turned away because the queue was full.
func (m *Metrics) RecordRejected() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}

// RecordOutcome folds one finished run into the counters. It implements the
// orchestrator's metrics sink.
func (m *Metrics) RecordOutcome(outcome *model.PipelineOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed++
	m.totalDuration += outcome.Duration
	switch outcome.Status {
	case model.OutcomeDone:
		m.done++
	case model.OutcomeDiscarded:
		m.discarded++
	case model.OutcomeErrorRecorded:
		m.errorsRecorded++
	}
	if outcome.Degraded {
		m.degraded++
	}
	if outcome.State != nil {
		for _, r := range outcome.State.Reports {
			if r.Status == model.PhaseStatusComplete {
				m.successes[string(r.Phase)]++
			}
			if r.Fallback != "" {
				m.fallbacks[string(r.Phase)]++
			}
		}
	}
}

// Snapshot copies the counters. Queue and worker gauges are filled in by the
// pool, which owns them.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Received:       m.received,
		Processed:      m.processed,
		Done:           m.done,
		Discarded:      m.discarded,
		ErrorsRecorded: m.errorsRecorded,
		Degraded:       m.degraded,
		Rejected:       m.rejected,
		UptimeSeconds:  int64(time.Since(m.startedAt).Seconds()),
	}
	if m.processed > 0 {
		snap.AvgDurationMS = m.totalDuration.Milliseconds() / m.processed
	}
	if len(m.successes) > 0 {
		snap.ByPhaseSuccess = make(map[string]int64, len(m.successes))
		for k, v := range m.successes {
			snap.ByPhaseSuccess[k] = v
		}
	}
	if len(m.fallbacks) > 0 {
		snap.ByPhaseFallback = make(map[string]int64, len(m.fallbacks))
		for k, v := range m.fallbacks {
			snap.ByPhaseFallback[k] = v
		}
	}
	return snap
}
