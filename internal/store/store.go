package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Change carries the new values of every key touched by one Set call.
type Change map[string]json.RawMessage

// Store is a persistent key-value store with change notifications.
// Values are JSON documents; Get returns only the keys that are present.
// Subscribers are called synchronously in write order and must not call Set.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, values map[string]any) error
	Subscribe(fn func(Change)) (cancel func())
}

// Decode unmarshals values[key] into out. It reports false when the key is absent.
func Decode(values map[string]json.RawMessage, key string, out any) (bool, error) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// subscribers fans a Change out to registered callbacks.
type subscribers struct {
	mu     sync.RWMutex
	fns    map[int64]func(Change)
	nextID atomic.Int64
}

func (s *subscribers) add(fn func(Change)) func() {
	id := s.nextID.Add(1)
	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[int64]func(Change))
	}
	s.fns[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) notify(change Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(change)
	}
}

func encodeValues(values map[string]any) (Change, error) {
	change := make(Change, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("store: encode %s: %w", key, err)
		}
		change[key] = data
	}
	return change, nil
}

func pick(data map[string]json.RawMessage, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		for k, v := range data {
			out[k] = append(json.RawMessage(nil), v...)
		}
		return out
	}
	for _, k := range keys {
		if v, ok := data[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}
