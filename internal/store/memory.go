package store

import (
	"bytes"
	"context"
	"sync"
)

// Memory is the local tier. It lives as long as the process.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	watchers
}

// NewMemory creates an empty local tier.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set stores value under key.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := bytes.Clone(value)
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()

	m.notify(Change{Key: key, Value: bytes.Clone(v)})
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()

	if existed {
		m.notify(Change{Key: key, Deleted: true})
	}
	return nil
}

// Watch registers fn for every change.
func (m *Memory) Watch(fn func(Change)) func() { return m.add(fn) }
