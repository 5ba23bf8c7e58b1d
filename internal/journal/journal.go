// Package journal batches flash records into the synced store.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/resilience"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/store"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Appender persists a batch of records.
type Appender interface {
	AppendFlashes(ctx context.Context, records []store.FlashRecord) error
}

// Batcher accumulates flash records and flushes them in batches.
type Batcher struct {
	sink       Appender
	maxSize    int
	flushDelay time.Duration
	retry      resilience.RetryConfig
	mu         sync.Mutex
	items      []store.FlashRecord
	timer      *time.Timer
	stopped    bool
	wg         sync.WaitGroup
	onFlush    func(n int, err error)
}

// NewBatcher creates a flash batcher.
func NewBatcher(sink Appender, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Batcher{
		sink:       sink,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		retry:      resilience.StoreRetryConfig(),
		items:      make([]store.FlashRecord, 0, maxSize),
	}
}

// OnFlush registers a callback invoked after every flush attempt.
func (b *Batcher) OnFlush(fn func(n int, err error)) {
	b.mu.Lock()
	b.onFlush = fn
	b.mu.Unlock()
}

// Add queues a record. Records added after Stop are dropped.
func (b *Batcher) Add(r store.FlashRecord) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.items = append(b.items, r)
	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	// Start or reset timer for delayed flush
	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if len(b.items) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.items
	b.items = make([]store.FlashRecord, 0, b.maxSize)
	onFlush := b.onFlush

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, span := trace.StartSpan(context.Background(), "journal_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		log := trace.Logger(ctx)
		err := resilience.Retry(ctx, b.retry, func() error { return b.sink.AppendFlashes(ctx, items) })
		if err != nil {
			span.SetAttr("error", err.Error())
			log.Warn("flash journal write failed", "error", err, "count", len(items))
		} else {
			log.Debug("flash journal written", "count", len(items))
		}
		if onFlush != nil {
			onFlush(len(items), err)
		}
	}()
}

// Flush forces immediate flush of pending records.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Pending returns the number of queued records.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stop flushes remaining records and waits for in-flight writes.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}
