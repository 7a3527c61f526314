package store

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is a process-local Store used by tests.
type Memory struct {
	// writeMu is held across a write and its notification so subscribers
	// see changes in write order.
	writeMu sync.Mutex

	mu   sync.RWMutex
	data map[string]json.RawMessage
	subs subscribers
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]json.RawMessage)}
}

// Get returns the requested keys. With no keys it returns everything.
func (m *Memory) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pick(m.data, keys), nil
}

func (m *Memory) Set(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	change, err := encodeValues(values)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	for k, v := range change {
		m.data[k] = v
	}
	m.mu.Unlock()

	m.subs.notify(change)
	return nil
}

func (m *Memory) Subscribe(fn func(Change)) func() {
	return m.subs.add(fn)
}
