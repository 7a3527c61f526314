package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store persisted as a single JSON document. Every Set rewrites
// the whole document through a temp file and rename.
type File struct {
	path string

	// writeMu is held across a write and its notification so subscribers
	// see changes in write order.
	writeMu sync.Mutex

	mu   sync.RWMutex
	data map[string]json.RawMessage
	subs subscribers
}

// OpenFile loads path if it exists and ensures its directory exists.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: mkdir %s: %w", filepath.Dir(path), err)
	}

	f := &File{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("file store: read: %w", err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("file store: unmarshal %s: %w", path, err)
	}
	slog.Debug("file store loaded", "path", path, "keys", len(f.data))
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.data, keys), nil
}

func (f *File) Set(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	change, err := encodeValues(values)
	if err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.Lock()
	next := make(map[string]json.RawMessage, len(f.data)+len(change))
	for k, v := range f.data {
		next[k] = v
	}
	for k, v := range change {
		next[k] = v
	}
	if err := f.writeLocked(next); err != nil {
		f.mu.Unlock()
		return err
	}
	f.data = next
	f.mu.Unlock()

	f.subs.notify(change)
	return nil
}

func (f *File) Subscribe(fn func(Change)) func() {
	return f.subs.add(fn)
}

func (f *File) writeLocked(data map[string]json.RawMessage) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("file store: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}
