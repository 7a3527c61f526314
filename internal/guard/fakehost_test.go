package guard

import (
	"context"
	"sort"
	"sync"

	"github.com/dgnsrekt/pinguard/internal/settings"
)

type createCall struct {
	url   string
	index int
}

type updateCall struct {
	id      int
	url     string
	replace bool
}

// fakeHost is an in-memory Host. UpdateTab applies immediately unless
// ignoreUpdates is set.
type fakeHost struct {
	mu            sync.Mutex
	tabs          map[int]Tab
	nextID        int
	creates       []createCall
	updates       []updateCall
	ignoreUpdates int
	getErr        error
	createErr     error
	onGet         func()
}

func newFakeHost(tabs ...Tab) *fakeHost {
	h := &fakeHost{tabs: make(map[int]Tab), nextID: 100}
	for _, t := range tabs {
		h.tabs[t.ID] = t
	}
	return h
}

func (h *fakeHost) PinnedTabs(context.Context) ([]Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Tab
	for _, t := range h.tabs {
		if t.Pinned {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *fakeHost) GetTab(_ context.Context, id int) (Tab, error) {
	if h.onGet != nil {
		h.onGet()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.getErr != nil {
		return Tab{}, h.getErr
	}
	t, ok := h.tabs[id]
	if !ok {
		return Tab{}, ErrTabNotFound
	}
	return t, nil
}

func (h *fakeHost) CreateTab(_ context.Context, url string, index int) (Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return Tab{}, h.createErr
	}
	h.creates = append(h.creates, createCall{url: url, index: index})
	h.nextID++
	t := Tab{ID: h.nextID, URL: url, Index: index}
	h.tabs[t.ID] = t
	return t, nil
}

func (h *fakeHost) UpdateTab(_ context.Context, id int, url string, replace bool) (Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, updateCall{id: id, url: url, replace: replace})
	t, ok := h.tabs[id]
	if !ok {
		return Tab{}, ErrTabNotFound
	}
	if h.ignoreUpdates > 0 {
		h.ignoreUpdates--
		return t, nil
	}
	t.URL = url
	h.tabs[id] = t
	return t, nil
}

func (h *fakeHost) setURL(id int, url string) {
	h.mu.Lock()
	t := h.tabs[id]
	t.URL = url
	h.tabs[id] = t
	h.mu.Unlock()
}

func (h *fakeHost) createCalls() []createCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]createCall(nil), h.creates...)
}

func (h *fakeHost) updateCalls() []updateCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]updateCall(nil), h.updates...)
}

type staticPrefs settings.Settings

func (p staticPrefs) Current() settings.Settings { return settings.Settings(p) }

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSink) Log(_ context.Context, msg string, _ any) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
}

func (r *recordingSink) has(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m == msg {
			return true
		}
	}
	return false
}
