// Package session deduplicates monitored and warned videos across a
// browsing session. Membership is persisted in the local store tier.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/store"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/syncx"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Storage keys.
const (
	MonitoredKey = "flashguard:session:monitored"
	WarnedKey    = "flashguard:session:warned"
)

// Registry holds the two sets. Checks wait until Load has run.
type Registry struct {
	store  store.Store
	loaded *syncx.Gate

	mu        sync.Mutex
	monitored map[string]struct{}
	warned    map[string]struct{}
}

// New creates a registry over s. Call Load before use.
func New(s store.Store) *Registry {
	return &Registry{
		store:     s,
		loaded:    syncx.NewGate(),
		monitored: make(map[string]struct{}),
		warned:    make(map[string]struct{}),
	}
}

// Load reads persisted membership. The registry opens for use even when
// the read fails, starting from empty sets.
func (r *Registry) Load(ctx context.Context) error {
	defer r.loaded.Open()

	monitored, err := r.read(ctx, MonitoredKey)
	if err != nil {
		trace.Logger(ctx).Warn("session registry load failed", "key", MonitoredKey, "error", err)
		return err
	}
	warned, err := r.read(ctx, WarnedKey)
	if err != nil {
		trace.Logger(ctx).Warn("session registry load failed", "key", WarnedKey, "error", err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range monitored {
		r.monitored[id] = struct{}{}
	}
	for _, id := range warned {
		r.warned[id] = struct{}{}
	}
	return nil
}

func (r *Registry) read(ctx context.Context, key string) ([]string, error) {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.StoreReadFailed, "read session set").WithMetadata("key", key)
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, apperrors.Wrap(err, apperrors.StoreReadFailed, "decode session set").WithMetadata("key", key)
	}
	return ids, nil
}

// Loaded reports whether Load has completed.
func (r *Registry) Loaded() bool { return r.loaded.IsOpen() }

// RegisterIfNew adds id to the monitored set. It returns true only when id
// was absent and the new set has been persisted.
func (r *Registry) RegisterIfNew(ctx context.Context, id string) (bool, error) {
	return r.addIfNew(ctx, MonitoredKey, id)
}

// MarkWarned adds id to the warned set with the same protocol.
func (r *Registry) MarkWarned(ctx context.Context, id string) (bool, error) {
	return r.addIfNew(ctx, WarnedKey, id)
}

// setFor returns the set stored under key. Callers hold r.mu.
func (r *Registry) setFor(key string) map[string]struct{} {
	if key == WarnedKey {
		return r.warned
	}
	return r.monitored
}

func (r *Registry) addIfNew(ctx context.Context, key, id string) (bool, error) {
	if id == "" {
		return false, apperrors.New(apperrors.InvalidArgument, "empty video id")
	}
	if err := r.loaded.Wait(ctx); err != nil {
		return false, apperrors.Wrap(err, apperrors.Cancelled, "registry not loaded")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.setFor(key)
	if _, ok := set[id]; ok {
		return false, nil
	}
	set[id] = struct{}{}
	if err := r.persist(ctx, key, set); err != nil {
		delete(set, id)
		return false, err
	}
	return true, nil
}

func (r *Registry) persist(ctx context.Context, key string, set map[string]struct{}) error {
	raw, err := json.Marshal(sorted(set))
	if err != nil {
		return fmt.Errorf("encode session set: %w", err)
	}
	if err := r.store.Set(ctx, key, raw); err != nil {
		return apperrors.Wrap(err, apperrors.StoreWriteFailed, "persist session set").WithMetadata("key", key)
	}
	return nil
}

// Clear empties both sets and removes their persisted form.
func (r *Registry) Clear(ctx context.Context) error {
	if err := r.loaded.Wait(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.Cancelled, "registry not loaded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.monitored)
	clear(r.warned)
	for _, key := range []string{MonitoredKey, WarnedKey} {
		if err := r.store.Delete(ctx, key); err != nil {
			return apperrors.Wrap(err, apperrors.StoreWriteFailed, "clear session set").WithMetadata("key", key)
		}
	}
	return nil
}

// Monitored returns the monitored ids in sorted order.
func (r *Registry) Monitored() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sorted(r.monitored)
}

// Warned returns the warned ids in sorted order.
func (r *Registry) Warned() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sorted(r.warned)
}

func sorted(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
