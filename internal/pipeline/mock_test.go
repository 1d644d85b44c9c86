package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/prensa-labs/newsgraph/internal/llm"
	"github.com/prensa-labs/newsgraph/internal/model"
)

// --- Model adapter mock ---

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Invoke(ctx context.Context, call llm.Call) (string, error) {
	args := m.Called(ctx, call)
	return args.String(0), args.Error(1)
}

func (m *mockInvoker) InvokeJSON(ctx context.Context, call llm.Call, out any) error {
	args := m.Called(ctx, call, out)
	return args.Error(0)
}

// onJSON arranges for an InvokeJSON call whose system prompt matches to
// unmarshal payload into the caller's out value.
func (m *mockInvoker) onJSON(system, payload string) *mock.Call {
	return m.On("InvokeJSON", mock.Anything, mock.MatchedBy(func(c llm.Call) bool {
		return c.System == system
	}), mock.Anything).Run(func(args mock.Arguments) {
		_ = json.Unmarshal([]byte(payload), args.Get(2))
	}).Return(nil)
}

// onJSONErr arranges for a matching InvokeJSON call to fail.
func (m *mockInvoker) onJSONErr(system string, err error) *mock.Call {
	return m.On("InvokeJSON", mock.Anything, mock.MatchedBy(func(c llm.Call) bool {
		return c.System == system
	}), mock.Anything).Return(err)
}

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertArticle(ctx context.Context, st *model.PipelineState, status model.OutcomeStatus) error {
	args := m.Called(ctx, st, status)
	return args.Error(0)
}

func (m *mockStore) InsertFragment(ctx context.Context, st *model.PipelineState) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}

func (m *mockStore) FindSimilarEntity(ctx context.Context, name, entityType string) (int64, bool, error) {
	args := m.Called(ctx, name, entityType)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockStore) ReadDailyTrends(ctx context.Context, date time.Time) (*model.DailyTrends, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DailyTrends), args.Error(1)
}

func (m *mockStore) RecordError(ctx context.Context, rec *model.PersistentError) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Metrics sink stub ---

type captureMetrics struct {
	outcomes []*model.PipelineOutcome
}

func (c *captureMetrics) RecordOutcome(o *model.PipelineOutcome) {
	c.outcomes = append(c.outcomes, o)
}
