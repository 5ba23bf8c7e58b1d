// Package stats serializes cumulative counter updates through a single
// worker that writes the local tier first and the synced tier second.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/resilience"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/store"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Counter names.
const (
	VideosMonitored = "videosMonitored"
	WarningsIssued  = "warningsIssued"
	FlashesDetected = "flashesDetected"
)

// Key is the storage key of the counters in both tiers.
const Key = "flashguard:stats"

const queueSize = 256

// Counters are the cumulative session statistics.
type Counters struct {
	VideosMonitored int64 `json:"videosMonitored"`
	WarningsIssued  int64 `json:"warningsIssued"`
	FlashesDetected int64 `json:"flashesDetected"`
}

func (c *Counters) add(name string, delta int64) error {
	switch name {
	case VideosMonitored:
		c.VideosMonitored += delta
	case WarningsIssued:
		c.WarningsIssued += delta
	case FlashesDetected:
		c.FlashesDetected += delta
	default:
		return apperrors.Newf(apperrors.StatUnknown, "unknown stat %q", name).WithMetadata("stat", name)
	}
	return nil
}

type opKind int

const (
	opApply opKind = iota
	opSnapshot
	opReset
)

type request struct {
	ctx   context.Context
	op    opKind
	name  string
	delta int64
	reply chan result
}

type result struct {
	counters Counters
	err      error
}

// Listener observes every committed counter state.
type Listener func(Counters)

// Aggregator owns the counters. All reads and writes go through its queue.
type Aggregator struct {
	primary   store.Store
	secondary store.Store
	breaker   *resilience.Breaker
	retry     resilience.RetryConfig

	reqs     chan request
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	listeners []Listener
}

// New creates an aggregator over the two tiers. secondary may be nil.
func New(primary, secondary store.Store) *Aggregator {
	return &Aggregator{
		primary:   primary,
		secondary: secondary,
		breaker:   resilience.New(resilience.StoreConfig("stats-synced")),
		retry:     resilience.StoreRetryConfig(),
		reqs:      make(chan request, queueSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// OnCommit registers l to be called from the worker after each write.
func (a *Aggregator) OnCommit(l Listener) {
	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.mu.Unlock()
}

// Start runs the worker until ctx is cancelled or Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	go a.run(ctx)
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case req := <-a.reqs:
			req.reply <- a.handle(req)
		}
	}
}

// Stop halts the worker. Queued requests not yet taken fail with Unavailable.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	<-a.done
}

func (a *Aggregator) submit(ctx context.Context, req request) (Counters, error) {
	req.ctx = ctx
	req.reply = make(chan result, 1)
	select {
	case a.reqs <- req:
	case <-ctx.Done():
		return Counters{}, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "stats request not queued")
	case <-a.done:
		return Counters{}, apperrors.New(apperrors.Unavailable, "stats aggregator stopped")
	}
	select {
	case res := <-req.reply:
		return res.counters, res.err
	case <-ctx.Done():
		return Counters{}, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "stats request abandoned")
	case <-a.done:
		return Counters{}, apperrors.New(apperrors.Unavailable, "stats aggregator stopped")
	}
}

// Apply adds delta to the named counter and returns the committed state.
func (a *Aggregator) Apply(ctx context.Context, name string, delta int64) (Counters, error) {
	var probe Counters
	if err := probe.add(name, 0); err != nil {
		return Counters{}, err
	}
	return a.submit(ctx, request{op: opApply, name: name, delta: delta})
}

// Notify applies an update without waiting. Failures are logged.
func (a *Aggregator) Notify(ctx context.Context, name string, delta int64) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := a.Apply(ctx, name, delta); err != nil {
			trace.Logger(ctx).Warn("stats update lost", "stat", name, "delta", delta, "error", err)
		}
	}()
}

// Snapshot returns the current counters.
func (a *Aggregator) Snapshot(ctx context.Context) (Counters, error) {
	return a.submit(ctx, request{op: opSnapshot})
}

// Reset zeroes all counters in both tiers.
func (a *Aggregator) Reset(ctx context.Context) (Counters, error) {
	return a.submit(ctx, request{op: opReset})
}

// Degraded reports whether the synced tier is currently bypassed.
func (a *Aggregator) Degraded() bool { return a.breaker.Degraded() }

func (a *Aggregator) handle(req request) result {
	ctx, span := trace.StartSpan(req.ctx, "stats.apply")
	defer span.End()
	span.SetAttr("stat", req.name)

	current, err := a.read(ctx)
	if err != nil {
		return result{err: err}
	}

	switch req.op {
	case opSnapshot:
		return result{counters: current}
	case opReset:
		current = Counters{}
	case opApply:
		if err := current.add(req.name, req.delta); err != nil {
			return result{err: err}
		}
	}

	if err := a.write(ctx, current); err != nil {
		return result{err: err}
	}
	a.mu.RLock()
	for _, l := range a.listeners {
		l(current)
	}
	a.mu.RUnlock()
	return result{counters: current}
}

// read prefers the primary tier and falls back to the secondary.
func (a *Aggregator) read(ctx context.Context) (Counters, error) {
	raw, ok, err := a.get(ctx, a.primary)
	if err != nil {
		return Counters{}, apperrors.Wrap(err, apperrors.StoreReadFailed, "read stats").WithMetadata("tier", store.TierLocal)
	}
	if !ok && a.secondary != nil && a.breaker.Allow() == nil {
		raw, ok, err = a.get(ctx, a.secondary)
		if err != nil {
			a.breaker.Failure()
			trace.Logger(ctx).Warn("synced stats unreadable", "error", err)
		} else {
			a.breaker.Success()
		}
	}

	var c Counters
	if ok {
		if err := json.Unmarshal(raw, &c); err != nil {
			return Counters{}, apperrors.Wrap(err, apperrors.StoreReadFailed, "decode stats")
		}
	}
	return c, nil
}

func (a *Aggregator) get(ctx context.Context, s store.Store) ([]byte, bool, error) {
	var (
		raw []byte
		ok  bool
	)
	err := resilience.Retry(ctx, a.retry, func() error {
		var err error
		raw, ok, err = s.Get(ctx, Key)
		return storeErr(err, apperrors.StoreReadFailed)
	})
	return raw, ok, err
}

// write commits to the primary tier, then the secondary. A secondary
// failure is logged and never undoes the primary write.
func (a *Aggregator) write(ctx context.Context, c Counters) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	if err := a.set(ctx, a.primary, raw); err != nil {
		return apperrors.Wrap(err, apperrors.StoreWriteFailed, "write stats").WithMetadata("tier", store.TierLocal)
	}
	if a.secondary == nil {
		return nil
	}

	err = a.breaker.Execute(func() error { return a.set(ctx, a.secondary, raw) })
	if err != nil {
		trace.Logger(ctx).Warn("synced stats write failed", "error", err, "degraded", a.breaker.Degraded())
	}
	return nil
}

func (a *Aggregator) set(ctx context.Context, s store.Store, raw []byte) error {
	return resilience.Retry(ctx, a.retry, func() error {
		return storeErr(s.Set(ctx, Key, raw), apperrors.StoreWriteFailed)
	})
}

// storeErr tags plain store errors so Retry treats them as transient.
func storeErr(err error, code apperrors.Code) error {
	if err == nil || apperrors.CodeOf(err) != apperrors.Unknown {
		return err
	}
	return apperrors.Wrap(err, code, "store")
}
