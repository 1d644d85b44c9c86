package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/model"
)

// ErrQueueFull is returned by Enqueue when the bounded queue cannot take
// another unit. Callers surface it as backpressure, never by blocking.
var ErrQueueFull = errors.New("worker: queue full")

// ErrStopped is returned by Enqueue after Stop has begun.
var ErrStopped = errors.New("worker: pool stopped")

// Processor runs one unit end to end. The orchestrator implements it.
type Processor interface {
	Process(ctx context.Context, unit *model.ProcessingUnit) (*model.PipelineOutcome, error)
}

// Config sizes the pool. Zero values take the defaults below.
type Config struct {
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	return c
}

// Pool is a fixed set of workers pulling from a bounded queue. Admission is
// non-blocking: a full queue rejects immediately so the ingress can answer
// with backpressure instead of stalling.
type Pool struct {
	cfg       Config
	processor Processor
	metrics   *Metrics

	queue  chan *model.ProcessingUnit
	active atomic.Int32

	// admission guards stopped and the queue close together: Enqueue holds
	// the read lock across its check-and-send, so Stop cannot close the
	// channel between the two.
	admission sync.RWMutex
	stopped   bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool; Start must be called before Enqueue.
func NewPool(cfg Config, processor Processor, metrics *Metrics) *Pool {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Pool{
		cfg:       cfg,
		processor: processor,
		metrics:   metrics,
		queue:     make(chan *model.ProcessingUnit, cfg.QueueSize),
	}
}

// Start launches the workers. ctx cancellation stops in-flight processing.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	zap.L().Info("worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_capacity", p.cfg.QueueSize),
	)
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := zap.L().With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		case unit, ok := <-p.queue:
			if !ok {
				return
			}
			p.active.Add(1)
			if _, err := p.processor.Process(ctx, unit); err != nil {
				// Process only errors on contract violations; outcomes,
				// including failures, are already accounted by the sink.
				log.Error("unit processing aborted", zap.String("unit_id", unit.ID), zap.Error(err))
			}
			p.active.Add(-1)
		}
	}
}

// Enqueue admits a unit or fails fast. It never blocks the caller.
func (p *Pool) Enqueue(unit *model.ProcessingUnit) error {
	p.admission.RLock()
	defer p.admission.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- unit:
		p.metrics.RecordReceived()
		return nil
	default:
		p.metrics.RecordRejected()
		zap.L().Warn("queue full, rejecting unit",
			zap.String("unit_id", unit.ID),
			zap.Int("queue_capacity", p.cfg.QueueSize),
		)
		return ErrQueueFull
	}
}

// Stop closes admission and drains the queue: workers finish every unit
// already accepted before the pool shuts down. Use the context deadline to
// bound the drain.
func (p *Pool) Stop(ctx context.Context) error {
	p.admission.Lock()
	if p.stopped {
		p.admission.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.admission.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		zap.L().Info("worker pool drained")
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		return ctx.Err()
	}
}

// Depth is the number of queued, not yet started units.
func (p *Pool) Depth() int { return len(p.queue) }

// Capacity is the queue's configured bound.
func (p *Pool) Capacity() int { return p.cfg.QueueSize }

// ActiveWorkers is the number of workers currently processing a unit.
func (p *Pool) ActiveWorkers() int { return int(p.active.Load()) }

// Workers is the configured pool size.
func (p *Pool) Workers() int { return p.cfg.Workers }

// Metrics exposes the pool's counter set.
func (p *Pool) Metrics() *Metrics { return p.metrics }

// Snapshot merges counters with the pool's live gauges.
func (p *Pool) Snapshot() MetricsSnapshot {
	snap := p.metrics.Snapshot()
	snap.QueueDepth = p.Depth()
	snap.QueueCapacity = p.Capacity()
	snap.ActiveWorkers = p.ActiveWorkers()
	return snap
}
