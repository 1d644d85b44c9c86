// Package store persists processed units. One remote procedure per unit kind
// commits the whole extracted structure atomically; a companion error table
// holds units that could not be fully processed.
package store

import (
	"context"
	"time"

	"github.com/prensa-labs/newsgraph/internal/model"
)

// Store is the persistence interface consumed by the orchestrator and the
// normalization/importance phases.
type Store interface {
	// InsertArticle atomically persists a processed article and all of its
	// extracted elements and relationships. status distinguishes a fully
	// processed article from a triage-discarded one.
	InsertArticle(ctx context.Context, st *model.PipelineState, status model.OutcomeStatus) error

	// InsertFragment atomically persists a processed document fragment under
	// its parent document id.
	InsertFragment(ctx context.Context, st *model.PipelineState) error

	// FindSimilarEntity looks up an existing durable entity by name and type.
	// The boolean reports whether a match was found.
	FindSimilarEntity(ctx context.Context, name, entityType string) (int64, bool, error)

	// ReadDailyTrends returns the contextual trend signals for date, or
	// (nil, nil) when no trends were computed for that day.
	ReadDailyTrends(ctx context.Context, date time.Time) (*model.DailyTrends, error)

	// RecordError durably records a unit that could not be persisted.
	RecordError(ctx context.Context, rec *model.PersistentError) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
