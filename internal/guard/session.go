package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/pinguard/internal/store"
	"github.com/dgnsrekt/pinguard/internal/stream"
	"github.com/google/uuid"
)

// KeyPinnedTabs holds the persisted registry snapshot.
const KeyPinnedTabs = "pinnedTabs"

// PinnedEntry is one registry row. It is persisted as a [tabId, url] pair.
type PinnedEntry struct {
	TabID int    `json:"tab_id"`
	URL   string `json:"url"`
}

type pinnedPair PinnedEntry

func (p pinnedPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.TabID, p.URL})
}

func (p *pinnedPair) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &p.TabID); err != nil {
		return fmt.Errorf("pinned tab id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.URL); err != nil {
		return fmt.Errorf("pinned tab url: %w", err)
	}
	return nil
}

type lockState uint8

const (
	lockIdle lockState = iota
	lockHeld
)

// attempt records the last diversion made for a tab.
type attempt struct {
	at          time.Time
	originalURL string
}

// Session owns all guard state for one browser: the registry of pinned tabs,
// per-tab navigation locks and last diversion attempts.
type Session struct {
	id      string
	host    Host
	store   store.Store
	prefs   Preferences
	debug   DebugSink
	pub     Publisher
	matcher DomainMatcher
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	pinned   map[int]string
	locks    map[int]lockState
	attempts map[int]attempt

	// persistMu orders snapshot writes so the last write is the newest map.
	persistMu sync.Mutex
}

type Option func(*Session)

func WithDebugSink(d DebugSink) Option { return func(s *Session) { s.debug = d } }

func WithPublisher(p Publisher) Option { return func(s *Session) { s.pub = p } }

func WithDomainMatcher(m DomainMatcher) Option { return func(s *Session) { s.matcher = m } }

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithSleeper replaces the fixed delays used during diversion.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Session) { s.sleep = fn }
}

func NewSession(host Host, st store.Store, prefs Preferences, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		host:     host,
		store:    st,
		prefs:    prefs,
		debug:    nopSink{},
		matcher:  LastTwoLabels,
		now:      time.Now,
		sleep:    sleepCtx,
		pinned:   make(map[int]string),
		locks:    make(map[int]lockState),
		attempts: make(map[int]attempt),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID identifies this session in logs and status output.
func (s *Session) ID() string { return s.id }

// Start rebuilds the registry from the live host. The persisted snapshot is
// read only for diagnostics.
func (s *Session) Start(ctx context.Context) error {
	if prev, err := s.PersistedEntries(ctx); err != nil {
		slog.Warn("guard persisted registry unreadable", "session_id", s.id, "error", err)
	} else {
		slog.Info("guard session starting", "session_id", s.id, "persisted_pinned", len(prev))
	}
	return s.Initialize(ctx)
}

// Initialize replaces the registry with the host's current pinned tabs.
// It is idempotent.
func (s *Session) Initialize(ctx context.Context) error {
	tabs, err := s.host.PinnedTabs(ctx)
	if err != nil {
		return fmt.Errorf("query pinned tabs: %w", err)
	}

	next := make(map[int]string, len(tabs))
	for _, t := range tabs {
		if !t.Pinned || IsBlankURL(t.URL) {
			continue
		}
		next[t.ID] = t.URL
	}

	s.mu.Lock()
	s.pinned = next
	s.mu.Unlock()

	s.debug.Log(ctx, "Registry initialized", map[string]any{"pinned_tabs": len(next)})
	return s.persist(ctx)
}

// OnPinStateChanged tracks pin/unpin notifications.
func (s *Session) OnPinStateChanged(ctx context.Context, tabID int, pinned bool, url string) error {
	s.mu.Lock()
	switch {
	case pinned && !IsBlankURL(url):
		s.pinned[tabID] = url
	case !pinned:
		delete(s.pinned, tabID)
	default:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.debug.Log(ctx, "Pin state changed", map[string]any{"tab_id": tabID, "pinned": pinned, "url": url})
	return s.persist(ctx)
}

// OnURLChanged follows a pinned tab to its new URL. A change that arrives
// inside the echo window of a diversion and is not the diverted tab's
// original URL is the diverted load itself and is not adopted.
func (s *Session) OnURLChanged(ctx context.Context, tabID int, url string) error {
	if IsBlankURL(url) {
		return nil
	}

	s.mu.Lock()
	cur, ok := s.pinned[tabID]
	if !ok || cur == url {
		s.mu.Unlock()
		return nil
	}
	if a, found := s.attempts[tabID]; found && s.now().Sub(a.at) < echoWindow && url != a.originalURL {
		s.mu.Unlock()
		s.debug.Log(ctx, "Ignored URL change during diversion", map[string]any{"tab_id": tabID, "url": url})
		return nil
	}
	s.pinned[tabID] = url
	s.mu.Unlock()

	s.debug.Log(ctx, "Pinned tab URL updated", map[string]any{"tab_id": tabID, "url": url})
	return s.persist(ctx)
}

// OnTabClosed forgets everything known about the tab.
func (s *Session) OnTabClosed(ctx context.Context, tabID int) error {
	s.mu.Lock()
	_, wasPinned := s.pinned[tabID]
	delete(s.pinned, tabID)
	delete(s.locks, tabID)
	delete(s.attempts, tabID)
	s.mu.Unlock()

	if wasPinned {
		s.debug.Log(ctx, "Pinned tab closed", map[string]any{"tab_id": tabID})
	}
	return s.persist(ctx)
}

// Entries returns the registry sorted by tab id.
func (s *Session) Entries() []PinnedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entriesLocked()
}

func (s *Session) entriesLocked() []PinnedEntry {
	out := make([]PinnedEntry, 0, len(s.pinned))
	for id, u := range s.pinned {
		out = append(out, PinnedEntry{TabID: id, URL: u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// CanonicalURL returns the URL a pinned tab is held on.
func (s *Session) CanonicalURL(tabID int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.pinned[tabID]
	return u, ok
}

// PersistedEntries reads the registry snapshot from the store.
func (s *Session) PersistedEntries(ctx context.Context) ([]PinnedEntry, error) {
	values, err := s.store.Get(ctx, KeyPinnedTabs)
	if err != nil {
		return nil, err
	}
	var pairs []pinnedPair
	if _, err := store.Decode(values, KeyPinnedTabs, &pairs); err != nil {
		return nil, err
	}
	out := make([]PinnedEntry, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, PinnedEntry(p))
	}
	return out, nil
}

// persist writes the whole registry. Memory is never rolled back on failure.
func (s *Session) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	entries := s.entriesLocked()
	s.mu.Unlock()

	pairs := make([]pinnedPair, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, pinnedPair(e))
	}
	if err := s.store.Set(ctx, map[string]any{KeyPinnedTabs: pairs}); err != nil {
		slog.Error("guard registry persist failed", "session_id", s.id, "error", err)
		return fmt.Errorf("persist pinned tabs: %w", err)
	}

	if s.pub != nil {
		if payload, err := json.Marshal(entries); err == nil {
			s.pub.Publish(stream.Event{Feed: stream.FeedRegistry, Payload: string(payload)})
		}
	}
	return nil
}

// tryLock moves the tab from Idle to Locked. The returned release is safe to
// call more than once.
func (s *Session) tryLock(tabID int) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[tabID] == lockHeld {
		return nil, false
	}
	s.locks[tabID] = lockHeld

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, tabID)
			s.mu.Unlock()
		})
	}, true
}

// Locked reports whether an interception is in flight for the tab.
func (s *Session) Locked(tabID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[tabID] == lockHeld
}

// LockCount returns the number of tabs with an interception in flight.
func (s *Session) LockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.locks {
		if st == lockHeld {
			n++
		}
	}
	return n
}

func (s *Session) hasAttempt(tabID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attempts[tabID]
	return ok
}
