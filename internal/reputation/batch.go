package reputation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/metrics"
)

// BatchProcessor is the write-coalescing recompute queue. Numbers are
// deduplicated into a pending set; the set flushes when it reaches maxSize
// or after a debounce delay from the first enqueue, whichever comes first.
// A single-flight guard keeps flushes from overlapping. The queue is
// in-memory only: pending entries are lost on restart, which only delays a
// refresh since recompute is idempotent.
type BatchProcessor struct {
	mu       sync.Mutex
	pending  map[string]time.Time
	timer    *time.Timer
	flushing bool

	recompute func(numbers []string)
	maxSize   int
	delay     time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
	stopped   bool
}

// NewBatchProcessor creates a batch processor. The recompute callback is
// bound later by the owning service.
func NewBatchProcessor(maxSize int, delay time.Duration, m *metrics.Metrics, logger *zap.Logger) *BatchProcessor {
	return &BatchProcessor{
		pending: make(map[string]time.Time),
		maxSize: maxSize,
		delay:   delay,
		metrics: m,
		logger:  logger,
	}
}

// Bind sets the flush target. Must be called before the first Enqueue.
func (p *BatchProcessor) Bind(recompute func(numbers []string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recompute = recompute
}

// Enqueue registers a number for background recompute. Non-blocking; a
// number already pending keeps its original enqueue time.
func (p *BatchProcessor) Enqueue(number string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.recompute == nil {
		return
	}
	if _, exists := p.pending[number]; !exists {
		p.pending[number] = time.Now()
	}

	if len(p.pending) >= p.maxSize {
		p.startFlushLocked()
		return
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(p.delay, p.flushOnTimer)
	}
}

func (p *BatchProcessor) flushOnTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	// The timer has fired; forget it so a later enqueue or flush completion
	// can schedule a fresh one.
	p.timer = nil
	p.startFlushLocked()
}

// startFlushLocked drains the pending set and hands it to a flush goroutine.
// Caller must hold the mutex.
func (p *BatchProcessor) startFlushLocked() {
	if p.flushing || len(p.pending) == 0 {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	numbers := make([]string, 0, len(p.pending))
	for number := range p.pending {
		numbers = append(numbers, number)
	}
	p.pending = make(map[string]time.Time)
	p.flushing = true

	go func() {
		start := time.Now()
		p.recompute(numbers)
		p.metrics.BatchFlush(len(numbers))
		p.logger.Debug("Flushed reputation batch queue",
			zap.Int("count", len(numbers)),
			zap.Duration("elapsed", time.Since(start)))

		p.mu.Lock()
		p.flushing = false
		// Entries queued during the flush wait for their own trigger; restart
		// the debounce so they are not stranded.
		if len(p.pending) > 0 && p.timer == nil && !p.stopped {
			p.timer = time.AfterFunc(p.delay, p.flushOnTimer)
		}
		p.mu.Unlock()
	}()
}

// Flush forces an immediate drain, for shutdown and tests.
func (p *BatchProcessor) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startFlushLocked()
}

// PendingCount reports how many numbers await recompute.
func (p *BatchProcessor) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stop drains the queue once and refuses further enqueues.
func (p *BatchProcessor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.startFlushLocked()
}
