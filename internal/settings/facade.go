package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/pinguard/internal/store"
	"github.com/dgnsrekt/pinguard/internal/stream"
)

// isoMillis matches the browser's Date.toISOString output.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Entry is one debug log record as persisted under KeyDebugLogs.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
}

// Publisher receives live debug records.
type Publisher interface {
	Publish(evt stream.Event)
}

// Mirror receives a copy of every persisted debug record.
type Mirror interface {
	Write(record any) error
}

type Option func(*Facade)

func WithPublisher(p Publisher) Option { return func(f *Facade) { f.publisher = p } }

func WithMirror(m Mirror) Option { return func(f *Facade) { f.mirror = m } }

func WithClock(now func() time.Time) Option { return func(f *Facade) { f.now = now } }

// Facade is the read/write surface over Settings and the debug log, and the
// debug sink used by the guard session.
type Facade struct {
	store     store.Store
	publisher Publisher
	mirror    Mirror
	now       func() time.Time

	// logMu serialises read-modify-write of the debug log.
	logMu sync.Mutex

	cacheMu sync.RWMutex
	cached  Settings

	unsubscribe func()
}

// NewFacade loads current settings and keeps them cached, following every
// write to the store.
func NewFacade(ctx context.Context, s store.Store, opts ...Option) (*Facade, error) {
	f := &Facade{store: s, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}

	cur, err := Load(ctx, s)
	if err != nil {
		return nil, err
	}
	f.cached = cur
	f.unsubscribe = s.Subscribe(f.onStoreChange)
	return f, nil
}

func (f *Facade) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
}

func (f *Facade) onStoreChange(change store.Change) {
	_, debug := change[KeyDebugMode]
	_, behavior := change[KeyLinkBehavior]
	if !debug && !behavior {
		return
	}
	f.cacheMu.Lock()
	f.cached = apply(f.cached, change)
	cur := f.cached
	f.cacheMu.Unlock()
	slog.Info("settings changed", "debug_mode", cur.DebugMode, "link_behavior", cur.LinkBehavior)
}

// Current returns the cached settings without touching the store.
func (f *Facade) Current() Settings {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	return f.cached
}

// Settings reads settings from the store.
func (f *Facade) Settings(ctx context.Context) (Settings, error) {
	return Load(ctx, f.store)
}

// Update writes the fields set in p and returns the resulting settings.
func (f *Facade) Update(ctx context.Context, p Patch) (Settings, error) {
	values := make(map[string]any, 2)
	if p.DebugMode != nil {
		values[KeyDebugMode] = *p.DebugMode
	}
	if p.LinkBehavior != nil {
		if !p.LinkBehavior.Valid() {
			return Settings{}, fmt.Errorf("invalid link behavior %q", *p.LinkBehavior)
		}
		values[KeyLinkBehavior] = string(*p.LinkBehavior)
	}
	if len(values) > 0 {
		if err := f.store.Set(ctx, values); err != nil {
			return Settings{}, fmt.Errorf("update settings: %w", err)
		}
	}
	return f.Settings(ctx)
}

// Log appends a record when debug mode is on. It never fails the caller.
func (f *Facade) Log(ctx context.Context, msg string, data any) {
	slog.Debug(msg, "data", data)
	if !f.Current().DebugMode {
		return
	}

	entry := Entry{
		Timestamp: f.now().UTC().Format(isoMillis),
		Message:   msg,
		Data:      data,
	}

	f.logMu.Lock()
	err := f.appendLocked(ctx, entry)
	f.logMu.Unlock()
	if err != nil {
		slog.Warn("debug log append failed", "message", msg, "error", err)
		return
	}

	if f.publisher != nil {
		if payload, err := json.Marshal(entry); err == nil {
			f.publisher.Publish(stream.Event{Feed: stream.FeedDebug, Payload: string(payload)})
		}
	}
	if f.mirror != nil {
		if err := f.mirror.Write(entry); err != nil {
			slog.Debug("debug log mirror write failed", "error", err)
		}
	}
}

func (f *Facade) appendLocked(ctx context.Context, entry Entry) error {
	entries, err := f.entries(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return f.store.Set(ctx, map[string]any{KeyDebugLogs: entries})
}

// Entries returns the persisted debug log in append order.
func (f *Facade) Entries(ctx context.Context) ([]Entry, error) {
	f.logMu.Lock()
	defer f.logMu.Unlock()
	return f.entries(ctx)
}

func (f *Facade) entries(ctx context.Context) ([]Entry, error) {
	values, err := f.store.Get(ctx, KeyDebugLogs)
	if err != nil {
		return nil, fmt.Errorf("read debug log: %w", err)
	}
	var entries []Entry
	if _, err := store.Decode(values, KeyDebugLogs, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Clear empties the debug log.
func (f *Facade) Clear(ctx context.Context) error {
	f.logMu.Lock()
	defer f.logMu.Unlock()
	if err := f.store.Set(ctx, map[string]any{KeyDebugLogs: []Entry{}}); err != nil {
		return fmt.Errorf("clear debug log: %w", err)
	}
	return nil
}

// Export renders the debug log as a downloadable text blob and suggests a
// file name for it.
func (f *Facade) Export(ctx context.Context) ([]byte, string, error) {
	entries, err := f.Entries(ctx)
	if err != nil {
		return nil, "", err
	}
	filename := "pinguard-debug-" + f.now().UTC().Format("20060102-150405") + ".txt"
	return FormatEntries(entries), filename, nil
}

// FormatEntries writes one block per entry: "<timestamp> <message>" and the
// data as indented JSON, blocks separated by a blank line.
func FormatEntries(entries []Entry) []byte {
	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(e.Timestamp)
		buf.WriteByte(' ')
		buf.WriteString(e.Message)
		buf.WriteByte('\n')
		if e.Data == nil {
			continue
		}
		data, err := json.MarshalIndent(e.Data, "  ", "  ")
		if err != nil {
			fmt.Fprintf(&buf, "  <unencodable data: %v>\n", err)
			continue
		}
		buf.WriteString("  ")
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
