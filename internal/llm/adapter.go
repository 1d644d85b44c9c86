// Package llm is the model adapter: it wraps the Anthropic client with
// per-call timeouts, fixed-delay retry, a circuit breaker, client-side rate
// limiting, and best-effort JSON repair of malformed responses.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/resilience"
	"github.com/prensa-labs/newsgraph/pkg/anthropic"
)

// Config tunes the adapter. Zero values fall back to the defaults below.
type Config struct {
	Model             string
	MaxTokens         int64
	Timeout           time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestsPerMinute int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3 // first try plus two retries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 120
	}
	return c
}

// Call describes one model invocation. Phase and UnitID are carried for
// traceability only.
type Call struct {
	Phase     model.Phase
	UnitID    string
	System    string
	Prompt    string
	MaxTokens int64
}

// Adapter is safe for concurrent use by multiple workers.
type Adapter struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewAdapter wraps client with the adapter's resilience policy.
func NewAdapter(client anthropic.Client, cfg Config) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute/10+1),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

// Invoke sends one prompt and returns the raw response text. Transient
// failures (connection errors, rate limits, 5xx, timeouts) are retried with
// a fixed delay; on exhaustion a ModelUnavailableError is returned.
func (a *Adapter) Invoke(ctx context.Context, call Call) (string, error) {
	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}

	req := anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: call.Prompt}},
	}
	if call.System != "" {
		req.System = anthropic.BuildCachedSystemBlocks(call.System)
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts: a.cfg.MaxAttempts,
		Delay:       a.cfg.RetryDelay,
		ShouldRetry: shouldRetry,
		OnRetry:     resilience.RetryLogger("anthropic", string(call.Phase)),
	}

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if waitErr := a.limiter.Wait(ctx); waitErr != nil {
			return nil, waitErr
		}

		callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		zap.L().Debug("model invocation",
			zap.String("phase", string(call.Phase)),
			zap.String("unit_id", call.UnitID),
			zap.String("model", a.cfg.Model),
		)

		return resilience.ExecuteVal(callCtx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return a.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return "", &ModelUnavailableError{Err: eris.Wrapf(err, "llm: invoke phase %s", call.Phase)}
	}

	resp.Usage.LogCost(a.cfg.Model, string(call.Phase))
	return resp.Text(), nil
}

// InvokeJSON sends one prompt and unmarshals the response into out. The raw
// text goes through a repair step first; if the repaired text still fails to
// parse, the prompt is re-invoked once before giving up with a
// MalformedResponseError. Model unavailability propagates unchanged.
func (a *Adapter) InvokeJSON(ctx context.Context, call Call, out any) error {
	text, err := a.Invoke(ctx, call)
	if err != nil {
		return err
	}

	parseErr := json.Unmarshal([]byte(RepairJSON(text)), out)
	if parseErr == nil {
		return nil
	}

	zap.L().Warn("malformed model response, re-invoking once",
		zap.String("phase", string(call.Phase)),
		zap.String("unit_id", call.UnitID),
		zap.Error(parseErr),
	)

	text, err = a.Invoke(ctx, call)
	if err != nil {
		return err
	}
	if parseErr = json.Unmarshal([]byte(RepairJSON(text)), out); parseErr != nil {
		return &MalformedResponseError{Raw: text, Err: parseErr}
	}
	return nil
}

// shouldRetry extends the default transient check with per-attempt timeouts,
// which surface as context.DeadlineExceeded from the attempt's own context.
func shouldRetry(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return resilience.IsTransient(err)
}
