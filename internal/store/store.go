// Package store provides the key-value persistence tiers: a fast local tier
// held in memory and a synced tier backed by SQLite. Both notify watchers of
// every change.
package store

import (
	"context"
	"sync"
)

// Tier names.
const (
	TierLocal  = "local"
	TierSynced = "synced"
)

// Change describes a single write. Value is nil when Deleted is set.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Store is a key-value persistence tier.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Watch(fn func(Change)) (cancel func())
}

// watchers fans changes out to registered callbacks.
type watchers struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Change)
}

func (w *watchers) add(fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func(Change))
	}
	id := w.next
	w.next++
	w.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.fns, id)
			w.mu.Unlock()
		})
	}
}

func (w *watchers) notify(c Change) {
	w.mu.RLock()
	fns := make([]func(Change), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
