package browserhost

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/settings"
	"github.com/dgnsrekt/pinguard/internal/store"
)

type pinCall struct {
	id     int
	pinned bool
	url    string
}

type recordingHandler struct {
	mu    sync.Mutex
	pins  []pinCall
	urls  []string
	known map[int]string
	err   error
}

func (r *recordingHandler) CanonicalURL(id int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.known[id]
	return u, ok
}

func (r *recordingHandler) OnPinStateChanged(_ context.Context, id int, pinned bool, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins = append(r.pins, pinCall{id: id, pinned: pinned, url: url})
	return r.err
}

func (r *recordingHandler) OnURLChanged(_ context.Context, _ int, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return nil
}

func (r *recordingHandler) OnTabClosed(context.Context, int) error { return nil }

func (r *recordingHandler) OnBeforeNavigate(context.Context, guard.NavigationEvent) guard.Outcome {
	return guard.Ignored
}

func TestTabTableAssignsStableIDs(t *testing.T) {
	tt := newTabTable()
	a, created := tt.upsert("AAA", "https://a.example.com/")
	if !created || a != 1 {
		t.Fatalf("upsert(AAA) = %d, %v; want 1, true", a, created)
	}
	b, _ := tt.upsert("BBB", "https://b.example.com/")
	again, created := tt.upsert("AAA", "https://a.example.com/next")
	if created || again != a {
		t.Fatalf("upsert(AAA) again = %d, %v; want %d, false", again, created, a)
	}

	if _, ok := tt.remove("AAA"); !ok {
		t.Fatal("remove(AAA) = false")
	}
	c, _ := tt.upsert("CCC", "https://c.example.com/")
	if c == a || c == b {
		t.Fatalf("upsert(CCC) reused id %d", c)
	}

	want := []guard.Tab{
		{ID: b, URL: "https://b.example.com/", Index: 0},
		{ID: c, URL: "https://c.example.com/", Index: 1},
	}
	if got := tt.tabs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("tabs() = %+v; want %+v", got, want)
	}
	if got := tt.index(c); got != 1 {
		t.Fatalf("index(%d) = %d; want 1", c, got)
	}
	if got := tt.index(a); got != -1 {
		t.Fatalf("index(removed) = %d; want -1", got)
	}
}

func TestFrameNumber(t *testing.T) {
	tid := target.ID("E3B0C44298FC1C149AFBF4C8996FB924")
	if got := frameNumber(tid, cdp.FrameID(tid)); got != 0 {
		t.Fatalf("frameNumber(main) = %d; want 0", got)
	}
	if got := frameNumber(tid, "4F1D2A"); got == 0 {
		t.Fatal("frameNumber(subframe) = 0; want non-zero")
	}
}

func TestNavigable(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/":      true,
		"HTTP://example.com/":       true,
		"chrome://settings":         false,
		"about:blank":               false,
		"javascript:void(0)":        false,
		"file:///etc/hosts":         false,
		"data:text/html,<p>hi</p>": false,
	}
	for u, want := range tests {
		if got := navigable(u); got != want {
			t.Errorf("navigable(%q) = %v; want %v", u, got, want)
		}
	}
}

func TestNavigationScript(t *testing.T) {
	got, err := navigationScript(`https://example.com/?q="x"`, true)
	if err != nil {
		t.Fatalf("navigationScript() = %v", err)
	}
	if want := `location.replace("https://example.com/?q=\"x\"")`; got != want {
		t.Fatalf("navigationScript(replace) = %s; want %s", got, want)
	}
	got, _ = navigationScript("https://example.com/", false)
	if want := `location.assign("https://example.com/")`; got != want {
		t.Fatalf("navigationScript(assign) = %s; want %s", got, want)
	}
}

func TestAutoPin(t *testing.T) {
	a, err := NewAutoPin([]string{"https://mail.example.com/**", "https://*.calendar.example.org/*"})
	if err != nil {
		t.Fatalf("NewAutoPin() = %v", err)
	}
	tests := map[string]bool{
		"https://mail.example.com/inbox/1":         true,
		"https://team.calendar.example.org/week":   true,
		"https://team.calendar.example.org/week/2": false,
		"https://shop.other.com/":                  false,
	}
	for u, want := range tests {
		if _, got := a.Match(u); got != want {
			t.Errorf("Match(%q) = %v; want %v", u, got, want)
		}
	}

	if _, err := NewAutoPin([]string{"https://[a-"}); err == nil {
		t.Fatal("NewAutoPin(invalid) = nil; want error")
	}

	var none *AutoPin
	if _, ok := none.Match("https://example.com/"); ok {
		t.Fatal("nil AutoPin matched")
	}
}

func TestPinReportsChangesOnce(t *testing.T) {
	ctx := context.Background()
	h := New("ws://127.0.0.1:9222")
	rec := &recordingHandler{}
	h.handler = rec
	id, _ := h.tabs.upsert("AAA", "https://mail.example.com/inbox")

	tab, err := h.Pin(ctx, id)
	if err != nil {
		t.Fatalf("Pin() = %v", err)
	}
	if !tab.Pinned || tab.Index != 0 {
		t.Fatalf("Pin() = %+v; want pinned at index 0", tab)
	}
	if _, err := h.Pin(ctx, id); err != nil {
		t.Fatalf("Pin() again = %v", err)
	}
	if _, err := h.Unpin(ctx, id); err != nil {
		t.Fatalf("Unpin() = %v", err)
	}

	want := []pinCall{
		{id: id, pinned: true, url: "https://mail.example.com/inbox"},
		{id: id, pinned: false, url: "https://mail.example.com/inbox"},
	}
	if !reflect.DeepEqual(rec.pins, want) {
		t.Fatalf("handler pins = %+v; want %+v", rec.pins, want)
	}

	pinned, err := h.PinnedTabs(ctx)
	if err != nil || len(pinned) != 0 {
		t.Fatalf("PinnedTabs() = %+v, %v; want none", pinned, err)
	}
}

func TestPinUnknownTab(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	if _, err := h.Pin(context.Background(), 42); !errors.Is(err, guard.ErrTabNotFound) {
		t.Fatalf("Pin(42) = %v; want ErrTabNotFound", err)
	}
	if _, err := h.GetTab(context.Background(), 42); !errors.Is(err, guard.ErrTabNotFound) {
		t.Fatalf("GetTab(42) = %v; want ErrTabNotFound", err)
	}
	if _, err := h.UpdateTab(context.Background(), 42, "https://example.com/", true); !errors.Is(err, guard.ErrTabNotFound) {
		t.Fatalf("UpdateTab(42) = %v; want ErrTabNotFound", err)
	}
}

func TestApplyAutoPin(t *testing.T) {
	a, err := NewAutoPin([]string{"https://mail.example.com/**"})
	if err != nil {
		t.Fatalf("NewAutoPin() = %v", err)
	}
	h := New("ws://127.0.0.1:9222", WithAutoPin(a))
	rec := &recordingHandler{}
	h.handler = rec
	mail, _ := h.tabs.upsert("AAA", "https://mail.example.com/inbox")
	shop, _ := h.tabs.upsert("BBB", "https://shop.other.com/")

	h.applyAutoPin(context.Background(), mail, "https://mail.example.com/inbox")
	h.applyAutoPin(context.Background(), shop, "https://shop.other.com/")

	pinned, _ := h.PinnedTabs(context.Background())
	if len(pinned) != 1 || pinned[0].ID != mail {
		t.Fatalf("PinnedTabs() = %+v; want only tab %d", pinned, mail)
	}
}

func TestListenRequiresConnect(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	if err := h.Listen(context.Background(), &recordingHandler{}); err == nil {
		t.Fatal("Listen() before Connect = nil; want error")
	}
}

type fixedPrefs settings.Settings

func (p fixedPrefs) Current() settings.Settings { return settings.Settings(p) }

type cancelCounter struct {
	mu sync.Mutex
	n  int
}

func (c *cancelCounter) cancel() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *cancelCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// listening starts the host's run context without a browser connection.
func listening(t *testing.T, h *Host, handler Handler) {
	t.Helper()
	h.handler = handler
	h.runCtx, h.stop = context.WithCancel(context.Background())
	t.Cleanup(h.stop)
}

// drain runs the lifecycle work queued so far.
func drain(h *Host) {
	for {
		select {
		case fn := <-h.queue:
			fn(h.runCtx)
		default:
			return
		}
	}
}

func TestCloseLeavesTabsOpen(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	listening(t, h, &recordingHandler{})
	var released cancelCounter
	h.attached["AAA"] = &tabConn{ctx: context.Background(), release: released.cancel}
	h.attached["BBB"] = &tabConn{ctx: context.Background(), release: released.cancel}
	h.attached["ROOT"] = &tabConn{ctx: context.Background()}

	h.Close()

	if got := released.count(); got != 0 {
		t.Fatalf("Close() cancelled %d tab contexts; want 0", got)
	}
	if h.running() {
		t.Fatal("running() after Close() = true; want false")
	}
	if len(h.attached) != 0 {
		t.Fatalf("attached after Close() = %d; want 0", len(h.attached))
	}
}

func TestAttachFailureLeavesTabOpen(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	var released cancelCounter
	h.newTabContext = func(target.ID) (context.Context, context.CancelFunc) {
		return context.Background(), released.cancel
	}
	h.enablePage = func(context.Context) error { return errors.New("target crashed") }

	if err := h.attach("AAA"); err == nil {
		t.Fatal("attach() = nil; want error")
	}
	if got := released.count(); got != 0 {
		t.Fatalf("attach() failure cancelled %d contexts; want 0", got)
	}
	if _, ok := h.attached["AAA"]; ok {
		t.Fatal("failed attach left AAA in the attached set")
	}
}

func TestAttachReusesRootConnection(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	h.browserCtx = context.Background()
	h.rootTarget = "ROOT"
	h.newTabContext = func(target.ID) (context.Context, context.CancelFunc) {
		t.Fatal("newTabContext() called for the root page")
		return nil, nil
	}
	h.enablePage = func(context.Context) error { return errors.New("stop before listening") }

	_ = h.attach("ROOT")
}

func TestDestroyedTargetReleasesOnlyItsOwnContext(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	listening(t, h, &recordingHandler{})
	var released cancelCounter
	h.rootTarget = "ROOT"
	h.tabs.upsert("ROOT", "https://a.example.com/")
	h.tabs.upsert("BBB", "https://b.example.com/")
	h.attached["ROOT"] = &tabConn{ctx: context.Background()}
	h.attached["BBB"] = &tabConn{ctx: context.Background(), release: released.cancel}

	h.onBrowserEvent(&target.EventTargetDestroyed{TargetID: "BBB"})
	if got := released.count(); got != 1 {
		t.Fatalf("released after BBB destroyed = %d; want 1", got)
	}
	h.onBrowserEvent(&target.EventTargetDestroyed{TargetID: "ROOT"})
	if got := released.count(); got != 1 {
		t.Fatalf("released after ROOT destroyed = %d; want 1", got)
	}
	drain(h)
}

func TestNavigationEventForwardsCurrentTabOnly(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	id, _ := h.tabs.upsert("AAA", "https://mail.example.com/inbox")

	tests := []struct {
		disposition page.ClientNavigationDisposition
		url         string
		want        bool
	}{
		{page.ClientNavigationDispositionCurrentTab, "https://shop.other.com/", true},
		{page.ClientNavigationDispositionNewTab, "https://shop.other.com/", false},
		{page.ClientNavigationDispositionNewWindow, "https://shop.other.com/", false},
		{page.ClientNavigationDispositionDownload, "https://shop.other.com/file.zip", false},
		{page.ClientNavigationDispositionCurrentTab, "chrome://settings", false},
	}
	for _, tt := range tests {
		e := &page.EventFrameRequestedNavigation{FrameID: "AAA", URL: tt.url, Disposition: tt.disposition}
		nav, ok := h.navigationEvent("AAA", e)
		if ok != tt.want {
			t.Errorf("navigationEvent(%s, %s) ok = %v; want %v", tt.disposition, tt.url, ok, tt.want)
			continue
		}
		if ok && (nav.TabID != id || nav.FrameID != 0 || nav.URL != tt.url) {
			t.Errorf("navigationEvent(%s) = %+v; want tab %d main frame", tt.disposition, nav, id)
		}
	}

	e := &page.EventFrameRequestedNavigation{FrameID: "ZZZ", URL: "https://shop.other.com/", Disposition: page.ClientNavigationDispositionCurrentTab}
	if _, ok := h.navigationEvent("ZZZ", e); ok {
		t.Error("navigationEvent(unknown target) ok = true; want false")
	}
}

func TestNavigationHandlerStopsAfterClose(t *testing.T) {
	h := New("ws://127.0.0.1:9222")
	navs := make(chan guard.NavigationEvent, 1)
	listening(t, h, navRecorder(navs))
	h.tabs.upsert("AAA", "https://mail.example.com/inbox")
	h.Close()

	h.navigationHandler("AAA")(&page.EventFrameRequestedNavigation{
		FrameID:     "AAA",
		URL:         "https://shop.other.com/",
		Disposition: page.ClientNavigationDispositionCurrentTab,
	})
	select {
	case nav := <-navs:
		t.Fatalf("navigation forwarded after Close(): %+v", nav)
	default:
	}
}

type navRecorder chan guard.NavigationEvent

func (navRecorder) CanonicalURL(int) (string, bool)                          { return "", false }
func (navRecorder) OnPinStateChanged(context.Context, int, bool, string) error { return nil }
func (navRecorder) OnURLChanged(context.Context, int, string) error           { return nil }
func (navRecorder) OnTabClosed(context.Context, int) error                    { return nil }
func (n navRecorder) OnBeforeNavigate(_ context.Context, nav guard.NavigationEvent) guard.Outcome {
	n <- nav
	return guard.Ignored
}

func TestPinnedBlankTabRegistersOnFirstURL(t *testing.T) {
	ctx := context.Background()
	h := New("ws://127.0.0.1:9222")
	rec := &recordingHandler{known: map[int]string{}}
	listening(t, h, rec)
	id, _ := h.tabs.upsert("AAA", "about:blank")
	if _, err := h.Pin(ctx, id); err != nil {
		t.Fatalf("Pin() = %v", err)
	}

	h.onBrowserEvent(&target.EventTargetInfoChanged{TargetInfo: &target.Info{
		TargetID: "AAA", Type: "page", URL: "https://mail.example.com/inbox",
	}})
	drain(h)

	want := []pinCall{
		{id: id, pinned: true, url: "about:blank"},
		{id: id, pinned: true, url: "https://mail.example.com/inbox"},
	}
	if !reflect.DeepEqual(rec.pins, want) {
		t.Fatalf("handler pins = %+v; want %+v", rec.pins, want)
	}
	if len(rec.urls) != 0 {
		t.Fatalf("handler URL changes = %v; want none", rec.urls)
	}

	rec.known[id] = "https://mail.example.com/inbox"
	h.onBrowserEvent(&target.EventTargetInfoChanged{TargetInfo: &target.Info{
		TargetID: "AAA", Type: "page", URL: "https://mail.example.com/inbox/2",
	}})
	drain(h)
	if want := []string{"https://mail.example.com/inbox/2"}; !reflect.DeepEqual(rec.urls, want) {
		t.Fatalf("handler URL changes = %v; want %v", rec.urls, want)
	}
}

func TestPinnedBlankTabJoinsSessionRegistry(t *testing.T) {
	ctx := context.Background()
	h := New("ws://127.0.0.1:9222")
	session := guard.NewSession(h, store.NewMemory(), fixedPrefs{LinkBehavior: settings.DifferentDomains})
	listening(t, h, session)
	id, _ := h.tabs.upsert("AAA", "about:blank")
	if _, err := h.Pin(ctx, id); err != nil {
		t.Fatalf("Pin() = %v", err)
	}
	if _, ok := session.CanonicalURL(id); ok {
		t.Fatal("blank pinned tab registered before navigating")
	}

	h.onBrowserEvent(&target.EventTargetInfoChanged{TargetInfo: &target.Info{
		TargetID: "AAA", Type: "page", URL: "https://mail.example.com/inbox",
	}})
	drain(h)

	if got, ok := session.CanonicalURL(id); !ok || got != "https://mail.example.com/inbox" {
		t.Fatalf("CanonicalURL(%d) = %q, %v; want inbox, true", id, got, ok)
	}
}
