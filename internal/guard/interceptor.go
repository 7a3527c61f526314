package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// echoWindow bounds how long after a diversion the corrective load back
	// to the original URL is recognised as our own.
	echoWindow  = 1000 * time.Millisecond
	settleDelay = 100 * time.Millisecond
	retryDelay  = 250 * time.Millisecond
)

// Outcome is the result of one OnBeforeNavigate call.
type Outcome int

const (
	Skipped Outcome = iota
	Ignored
	Echo
	Allowed
	Diverted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Ignored:
		return "ignored"
	case Echo:
		return "echo"
	case Allowed:
		return "allowed"
	case Diverted:
		return "diverted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OnBeforeNavigate decides whether a pending navigation of a pinned tab is
// diverted into a new tab. It never returns an error; failures are logged and
// reported as Failed. The tab's lock is always released on return.
func (s *Session) OnBeforeNavigate(ctx context.Context, ev NavigationEvent) (out Outcome) {
	release, ok := s.tryLock(ev.TabID)
	if !ok {
		return Skipped
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("guard interception panic", "session_id", s.id, "tab_id", ev.TabID, "url", ev.URL, "panic", r)
			s.debug.Log(ctx, "Interception error", map[string]any{"tab_id": ev.TabID, "url": ev.URL, "error": fmt.Sprint(r)})
			out = Failed
		}
	}()

	if ev.FrameID != 0 {
		return Ignored
	}
	canonical, ok := s.CanonicalURL(ev.TabID)
	if !ok {
		return Ignored
	}

	tab, err := s.host.GetTab(ctx, ev.TabID)
	if err != nil {
		if errors.Is(err, ErrTabNotFound) {
			return Ignored
		}
		s.logFailure(ctx, ev, "get tab", err)
		return Failed
	}
	if !tab.Pinned || IsBlankURL(tab.URL) {
		return Ignored
	}

	if s.isEcho(ev.TabID, ev.URL) {
		s.debug.Log(ctx, "Allowed corrective navigation", map[string]any{"tab_id": ev.TabID, "url": ev.URL})
		return Echo
	}

	behavior := s.prefs.Current().LinkBehavior
	if !ShouldOpenInNewTab(canonical, ev.URL, behavior, s.matcher) {
		return Allowed
	}

	if err := s.divert(ctx, tab, canonical, ev.URL); err != nil {
		s.logFailure(ctx, ev, "divert", err)
		return Failed
	}
	return Diverted
}

func (s *Session) isEcho(tabID int, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[tabID]
	return ok && s.now().Sub(a.at) < echoWindow && url == a.originalURL
}

// divert opens target in a new tab next to the pinned one and puts the pinned
// tab back on canonical. Once started it runs to completion.
func (s *Session) divert(ctx context.Context, tab Tab, canonical, target string) error {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	s.attempts[tab.ID] = attempt{at: s.now(), originalURL: canonical}
	s.mu.Unlock()

	created, err := s.host.CreateTab(ctx, target, tab.Index+1)
	if err != nil {
		return fmt.Errorf("create tab: %w", err)
	}
	s.debug.Log(ctx, "Diverted navigation to new tab", map[string]any{
		"tab_id":     tab.ID,
		"new_tab_id": created.ID,
		"index":      tab.Index + 1,
		"url":        target,
		"pinned_url": canonical,
	})

	_ = s.sleep(ctx, settleDelay)
	if s.restore(ctx, tab.ID, canonical) {
		return nil
	}

	_ = s.sleep(ctx, retryDelay)
	if s.restore(ctx, tab.ID, canonical) {
		s.debug.Log(ctx, "Pinned tab restored on retry", map[string]any{"tab_id": tab.ID, "url": canonical})
		return nil
	}

	slog.Warn("guard pinned tab not restored", "session_id", s.id, "tab_id", tab.ID, "url", canonical)
	s.debug.Log(ctx, "Pinned tab restore failed", map[string]any{"tab_id": tab.ID, "url": canonical})
	return nil
}

// restore issues one corrective update and reports whether the tab now shows
// canonical.
func (s *Session) restore(ctx context.Context, tabID int, canonical string) bool {
	if _, err := s.host.UpdateTab(ctx, tabID, canonical, true); err != nil {
		slog.Debug("guard corrective update failed", "session_id", s.id, "tab_id", tabID, "error", err)
		return false
	}
	got, err := s.host.GetTab(ctx, tabID)
	if err != nil {
		slog.Debug("guard corrective verify failed", "session_id", s.id, "tab_id", tabID, "error", err)
		return false
	}
	return got.URL == canonical
}

func (s *Session) logFailure(ctx context.Context, ev NavigationEvent, step string, err error) {
	slog.Error("guard interception failed", "session_id", s.id, "tab_id", ev.TabID, "url", ev.URL, "step", step, "error", err)
	s.debug.Log(ctx, "Interception error", map[string]any{"tab_id": ev.TabID, "url": ev.URL, "step": step, "error": err.Error()})
}
