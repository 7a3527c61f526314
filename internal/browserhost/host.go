// Package browserhost implements guard.Host over the Chrome DevTools Protocol.
// CDP has no notion of pinned tabs, so the host keeps its own pin set fed by
// Pin/Unpin calls and auto-pin URL rules.
package browserhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/netutil"
)

const eventQueueSize = 1024

// Handler receives translated browser events. guard.Session implements it.
type Handler interface {
	CanonicalURL(tabID int) (string, bool)
	OnPinStateChanged(ctx context.Context, tabID int, pinned bool, url string) error
	OnURLChanged(ctx context.Context, tabID int, url string) error
	OnTabClosed(ctx context.Context, tabID int) error
	OnBeforeNavigate(ctx context.Context, ev guard.NavigationEvent) guard.Outcome
}

type Option func(*Host)

func WithAutoPin(a *AutoPin) Option { return func(h *Host) { h.autopin = a } }

// Host manages CDP connections to the browser and its page targets.
type Host struct {
	cdpURL  string
	autopin *AutoPin
	tabs    *tabTable

	// The chromedp contexts are never cancelled: cancelling a chromedp
	// context closes its target, which would close the user's tab. The
	// connection goes away with the process.
	allocCtx   context.Context
	browserCtx context.Context
	rootTarget target.ID

	attachedMu sync.Mutex
	attached   map[target.ID]*tabConn

	newTabContext func(tid target.ID) (context.Context, context.CancelFunc)
	enablePage    func(ctx context.Context) error

	handler Handler
	runCtx  context.Context
	stop    context.CancelFunc
	queue   chan func(ctx context.Context)
	wg      sync.WaitGroup
}

type tabConn struct {
	ctx context.Context
	// release is nil for the root connection.
	release context.CancelFunc
}

func New(cdpURL string, opts ...Option) *Host {
	h := &Host{
		cdpURL:   cdpURL,
		tabs:     newTabTable(),
		attached: make(map[target.ID]*tabConn),
		queue:    make(chan func(ctx context.Context), eventQueueSize),
	}
	h.newTabContext = func(tid target.ID) (context.Context, context.CancelFunc) {
		return chromedp.NewContext(h.browserCtx, chromedp.WithTargetID(tid))
	}
	h.enablePage = func(ctx context.Context) error {
		return chromedp.Run(ctx, page.Enable())
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect opens the browser connection on an existing page and records every
// open page. Auto-pin rules are applied to pages found here once Listen is
// called.
func (h *Host) Connect(ctx context.Context) error {
	slog.Info("Connecting to Chromium", "url", h.cdpURL)

	pages, err := netutil.ListPages(ctx, h.cdpURL)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}

	var opts []chromedp.ContextOption
	if root, ok := rootPage(pages); ok {
		h.rootTarget = root
		opts = append(opts, chromedp.WithTargetID(root))
	} else {
		slog.Warn("Browser has no open pages, opening a blank page for the connection")
	}

	h.allocCtx, _ = chromedp.NewRemoteAllocator(context.Background(), h.cdpURL)
	h.browserCtx, _ = chromedp.NewContext(h.allocCtx, opts...)

	if err := chromedp.Run(h.browserCtx); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	if h.rootTarget == "" {
		if c := chromedp.FromContext(h.browserCtx); c != nil && c.Target != nil {
			h.rootTarget = c.Target.TargetID
		}
	}

	targets, err := chromedp.Targets(h.browserCtx)
	if err != nil {
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}

	pageCount := 0
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		h.tabs.upsert(t.TargetID, t.URL)
		pageCount++
	}
	slog.Info("Found browser pages", "count", pageCount, "targets", len(targets))
	return ctx.Err()
}

// Listen attaches to every known page and starts delivering events to
// handler. Initial auto-pin matches are reported before Listen returns.
func (h *Host) Listen(ctx context.Context, handler Handler) error {
	if h.browserCtx == nil {
		return errors.New("browserhost: not connected")
	}
	h.handler = handler
	h.runCtx, h.stop = context.WithCancel(context.WithoutCancel(ctx))

	h.wg.Add(1)
	go h.dispatch()

	chromedp.ListenBrowser(h.browserCtx, h.onBrowserEvent)

	for _, t := range h.tabs.tabs() {
		e, ok := h.tabs.lookup(t.ID)
		if !ok {
			continue
		}
		if err := h.attach(e.target); err != nil {
			slog.Warn("Failed to attach to tab", "tab_id", t.ID, "target_id", e.target, "error", err)
		}
		h.applyAutoPin(ctx, t.ID, t.URL)
	}
	return nil
}

// rootPage picks the page the browser connection attaches to.
func rootPage(pages []netutil.PageTarget) (target.ID, bool) {
	for _, p := range pages {
		if p.Type == "page" && p.ID != "" {
			return target.ID(p.ID), true
		}
	}
	return "", false
}

func (h *Host) running() bool {
	return h.runCtx != nil && h.runCtx.Err() == nil
}

func (h *Host) dispatch() {
	defer h.wg.Done()
	for {
		select {
		case <-h.runCtx.Done():
			return
		case fn := <-h.queue:
			fn(h.runCtx)
		}
	}
}

// enqueue preserves the order of lifecycle events without blocking the CDP
// reader.
func (h *Host) enqueue(fn func(ctx context.Context)) {
	select {
	case h.queue <- fn:
	default:
		slog.Warn("browserhost event queue full, dropping event")
	}
}

func (h *Host) onBrowserEvent(ev any) {
	if !h.running() {
		return
	}
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		info := e.TargetInfo
		if info == nil || info.Type != "page" {
			return
		}
		id, created := h.tabs.upsert(info.TargetID, info.URL)
		if !created {
			return
		}
		slog.Debug("Tab created", "tab_id", id, "target_id", info.TargetID, "url", truncateURL(info.URL))
		h.enqueue(func(ctx context.Context) {
			if err := h.attach(info.TargetID); err != nil {
				slog.Warn("Failed to attach to tab", "tab_id", id, "error", err)
			}
			h.applyAutoPin(ctx, id, info.URL)
		})

	case *target.EventTargetInfoChanged:
		info := e.TargetInfo
		if info == nil || info.Type != "page" {
			return
		}
		id, created := h.tabs.upsert(info.TargetID, info.URL)
		h.enqueue(func(ctx context.Context) {
			if created {
				if err := h.attach(info.TargetID); err != nil {
					slog.Warn("Failed to attach to tab", "tab_id", id, "error", err)
				}
			}
			entry, ok := h.tabs.lookup(id)
			if !ok {
				return
			}
			if entry.pinned {
				h.reportPinnedURL(ctx, id, info.URL)
				return
			}
			h.applyAutoPin(ctx, id, info.URL)
		})

	case *target.EventTargetDestroyed:
		entry, ok := h.tabs.remove(e.TargetID)
		if !ok {
			return
		}
		h.releaseDestroyed(e.TargetID)
		h.enqueue(func(ctx context.Context) {
			if err := h.handler.OnTabClosed(ctx, entry.id); err != nil {
				slog.Warn("Tab close not persisted", "tab_id", entry.id, "error", err)
			}
		})
	}
}

// reportPinnedURL reports a pinned tab's new URL. A tab pinned while blank
// is not in the registry yet, so it is reported as pinned instead.
func (h *Host) reportPinnedURL(ctx context.Context, id int, u string) {
	var err error
	if _, known := h.handler.CanonicalURL(id); known {
		err = h.handler.OnURLChanged(ctx, id, u)
	} else {
		err = h.handler.OnPinStateChanged(ctx, id, true, u)
	}
	if err != nil {
		slog.Warn("URL change not persisted", "tab_id", id, "error", err)
	}
}

func (h *Host) applyAutoPin(ctx context.Context, id int, u string) {
	pattern, ok := h.autopin.Match(u)
	if !ok {
		return
	}
	if _, err := h.setPinned(ctx, id, true); err != nil {
		slog.Warn("Auto-pin failed", "tab_id", id, "error", err)
		return
	}
	slog.Info("Auto-pinned tab", "tab_id", id, "pattern", pattern, "url", truncateURL(u))
}

// attach opens a session on the page over the shared browser connection so
// its navigation events can be observed. The root page reuses the browser
// context. A failed attach leaves the context in place, since cancelling it
// would close the tab.
func (h *Host) attach(tid target.ID) error {
	h.attachedMu.Lock()
	if _, ok := h.attached[tid]; ok {
		h.attachedMu.Unlock()
		return nil
	}
	conn := &tabConn{ctx: h.browserCtx}
	if tid != h.rootTarget {
		conn.ctx, conn.release = h.newTabContext(tid)
	}
	h.attached[tid] = conn
	h.attachedMu.Unlock()

	if err := h.enablePage(conn.ctx); err != nil {
		h.attachedMu.Lock()
		delete(h.attached, tid)
		h.attachedMu.Unlock()
		return fmt.Errorf("failed to enable page domain: %w", err)
	}
	chromedp.ListenTarget(conn.ctx, h.navigationHandler(tid))
	return nil
}

// releaseDestroyed drops the connection of a target the browser already
// destroyed. Only then is cancelling its context safe.
func (h *Host) releaseDestroyed(tid target.ID) {
	h.attachedMu.Lock()
	conn, ok := h.attached[tid]
	delete(h.attached, tid)
	h.attachedMu.Unlock()
	if ok && conn.release != nil {
		conn.release()
	}
}

func (h *Host) navigationHandler(tid target.ID) func(ev any) {
	return func(ev any) {
		e, ok := ev.(*page.EventFrameRequestedNavigation)
		if !ok || !h.running() {
			return
		}
		nav, ok := h.navigationEvent(tid, e)
		if !ok {
			return
		}
		go func() {
			out := h.handler.OnBeforeNavigate(h.runCtx, nav)
			slog.Debug("Navigation handled", "tab_id", nav.TabID, "frame_id", nav.FrameID, "url", truncateURL(nav.URL), "outcome", out.String())
		}()
	}
}

// navigationEvent translates a requested navigation that will replace the
// tab's current document. Navigations the browser routes elsewhere (new tab,
// new window, download) never reach the guard.
func (h *Host) navigationEvent(tid target.ID, e *page.EventFrameRequestedNavigation) (guard.NavigationEvent, bool) {
	if e.Disposition != page.ClientNavigationDispositionCurrentTab || !navigable(e.URL) {
		return guard.NavigationEvent{}, false
	}
	entry, ok := h.tabs.lookupTarget(tid)
	if !ok {
		return guard.NavigationEvent{}, false
	}
	return guard.NavigationEvent{TabID: entry.id, FrameID: frameNumber(tid, e.FrameID), URL: e.URL}, true
}

func (h *Host) browserExecutor(ctx context.Context) (context.Context, error) {
	if h.browserCtx == nil {
		return nil, errors.New("browserhost: not connected")
	}
	c := chromedp.FromContext(h.browserCtx)
	if c == nil || c.Browser == nil {
		return nil, errors.New("browserhost: browser not allocated")
	}
	return cdp.WithExecutor(ctx, c.Browser), nil
}

func (h *Host) tabFromEntry(e tabEntry) guard.Tab {
	return guard.Tab{ID: e.id, URL: e.url, Pinned: e.pinned, Index: h.tabs.index(e.id)}
}

// PinnedTabs returns the tabs in the pin set.
func (h *Host) PinnedTabs(ctx context.Context) ([]guard.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []guard.Tab
	for _, t := range h.tabs.tabs() {
		if t.Pinned {
			out = append(out, t)
		}
	}
	return out, nil
}

// Tabs returns every open page.
func (h *Host) Tabs(ctx context.Context) ([]guard.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.tabs.tabs(), nil
}

// GetTab fetches the live URL of a tab from the browser.
func (h *Host) GetTab(ctx context.Context, id int) (guard.Tab, error) {
	e, ok := h.tabs.lookup(id)
	if !ok {
		return guard.Tab{}, guard.ErrTabNotFound
	}
	execCtx, err := h.browserExecutor(ctx)
	if err != nil {
		return guard.Tab{}, err
	}
	info, err := target.GetTargetInfo().WithTargetID(e.target).Do(execCtx)
	if err != nil {
		if _, still := h.tabs.lookup(id); !still {
			return guard.Tab{}, guard.ErrTabNotFound
		}
		return guard.Tab{}, fmt.Errorf("get target info %s: %w", e.target, err)
	}
	h.tabs.upsert(e.target, info.URL)
	e.url = info.URL
	return h.tabFromEntry(e), nil
}

// CreateTab opens url in a new page. CDP cannot place a page at a tab strip
// position, so index is only reported in logs.
func (h *Host) CreateTab(ctx context.Context, u string, index int) (guard.Tab, error) {
	execCtx, err := h.browserExecutor(ctx)
	if err != nil {
		return guard.Tab{}, err
	}
	tid, err := target.CreateTarget(u).Do(execCtx)
	if err != nil {
		return guard.Tab{}, fmt.Errorf("create target: %w", err)
	}
	id, _ := h.tabs.upsert(tid, u)
	slog.Info("Opened tab", "tab_id", id, "target_id", tid, "requested_index", index, "url", truncateURL(u))
	e, _ := h.tabs.lookup(id)
	return h.tabFromEntry(e), nil
}

// UpdateTab navigates the tab's main frame. With replaceHistory the current
// history entry is replaced instead of a new one being pushed.
func (h *Host) UpdateTab(ctx context.Context, id int, u string, replaceHistory bool) (guard.Tab, error) {
	e, ok := h.tabs.lookup(id)
	if !ok {
		return guard.Tab{}, guard.ErrTabNotFound
	}
	h.attachedMu.Lock()
	conn, ok := h.attached[e.target]
	h.attachedMu.Unlock()
	if !ok {
		return guard.Tab{}, fmt.Errorf("tab %d not attached", id)
	}
	c := chromedp.FromContext(conn.ctx)
	if c == nil || c.Target == nil {
		return guard.Tab{}, fmt.Errorf("tab %d not attached", id)
	}

	js, err := navigationScript(u, replaceHistory)
	if err != nil {
		return guard.Tab{}, err
	}
	_, exc, err := runtime.Evaluate(js).Do(cdp.WithExecutor(ctx, c.Target))
	if err != nil {
		return guard.Tab{}, fmt.Errorf("navigate tab %d: %w", id, err)
	}
	if exc != nil {
		return guard.Tab{}, fmt.Errorf("navigate tab %d: %w", id, exc)
	}
	return h.tabFromEntry(e), nil
}

func navigationScript(u string, replaceHistory bool) (string, error) {
	quoted, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	if replaceHistory {
		return fmt.Sprintf("location.replace(%s)", quoted), nil
	}
	return fmt.Sprintf("location.assign(%s)", quoted), nil
}

// Pin adds the tab to the pin set and reports it to the handler.
func (h *Host) Pin(ctx context.Context, id int) (guard.Tab, error) {
	return h.setPinned(ctx, id, true)
}

// Unpin removes the tab from the pin set and reports it to the handler.
func (h *Host) Unpin(ctx context.Context, id int) (guard.Tab, error) {
	return h.setPinned(ctx, id, false)
}

func (h *Host) setPinned(ctx context.Context, id int, pinned bool) (guard.Tab, error) {
	e, changed, ok := h.tabs.setPinned(id, pinned)
	if !ok {
		return guard.Tab{}, guard.ErrTabNotFound
	}
	tab := h.tabFromEntry(e)
	if !changed || h.handler == nil {
		return tab, nil
	}
	if err := h.handler.OnPinStateChanged(ctx, id, pinned, e.url); err != nil {
		return tab, err
	}
	return tab, nil
}

// TabCount returns the number of open pages.
func (h *Host) TabCount() int { return h.tabs.count() }

// Close stops event delivery. Attached sessions and the browser connection
// are left to end with the process, so no tab is closed.
func (h *Host) Close() {
	if h.stop != nil {
		h.stop()
		h.wg.Wait()
	}

	h.attachedMu.Lock()
	n := len(h.attached)
	h.attached = make(map[target.ID]*tabConn)
	h.attachedMu.Unlock()

	slog.Info("CDP host closed", "attached_tabs", n)
}

func truncateURL(u string) string {
	if len(u) > 120 {
		return u[:120] + "..."
	}
	return u
}
