package browserhost

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/pinguard/internal/guard"
)

// subFrameID is reported for every frame other than the tab's main frame.
const subFrameID = 1

type tabEntry struct {
	id     int
	target target.ID
	url    string
	pinned bool
	seq    int
}

// tabTable maps CDP target ids to stable integer tab ids for the life of the
// process. Index is the position among live tabs in discovery order.
type tabTable struct {
	mu       sync.RWMutex
	nextID   int
	nextSeq  int
	byTarget map[target.ID]*tabEntry
	byID     map[int]*tabEntry
}

func newTabTable() *tabTable {
	return &tabTable{
		byTarget: make(map[target.ID]*tabEntry),
		byID:     make(map[int]*tabEntry),
	}
}

// upsert records the target's URL and reports whether the target is new.
func (t *tabTable) upsert(tid target.ID, u string) (id int, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byTarget[tid]; ok {
		e.url = u
		return e.id, false
	}
	t.nextID++
	t.nextSeq++
	e := &tabEntry{id: t.nextID, target: tid, url: u, seq: t.nextSeq}
	t.byTarget[tid] = e
	t.byID[e.id] = e
	return e.id, true
}

func (t *tabTable) lookup(id int) (tabEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byID[id]
	if !ok {
		return tabEntry{}, false
	}
	return *e, true
}

func (t *tabTable) lookupTarget(tid target.ID) (tabEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byTarget[tid]
	if !ok {
		return tabEntry{}, false
	}
	return *e, true
}

// setPinned reports the entry and whether the pin state actually changed.
func (t *tabTable) setPinned(id int, pinned bool) (tabEntry, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok {
		return tabEntry{}, false, false
	}
	changed := e.pinned != pinned
	e.pinned = pinned
	return *e, changed, true
}

func (t *tabTable) remove(tid target.ID) (tabEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byTarget[tid]
	if !ok {
		return tabEntry{}, false
	}
	delete(t.byTarget, tid)
	delete(t.byID, e.id)
	return *e, true
}

func (t *tabTable) sortedLocked() []*tabEntry {
	out := make([]*tabEntry, 0, len(t.byID))
	for _, e := range t.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// tabs returns every live tab with its index.
func (t *tabTable) tabs() []guard.Tab {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := t.sortedLocked()
	out := make([]guard.Tab, 0, len(entries))
	for i, e := range entries {
		out = append(out, guard.Tab{ID: e.id, URL: e.url, Pinned: e.pinned, Index: i})
	}
	return out
}

func (t *tabTable) index(id int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, e := range t.sortedLocked() {
		if e.id == id {
			return i
		}
	}
	return -1
}

func (t *tabTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// frameNumber maps a CDP frame id to the event's frame number. The main frame
// of a page shares its id with the target.
func frameNumber(tid target.ID, frame cdp.FrameID) int {
	if string(frame) == string(tid) {
		return 0
	}
	return subFrameID
}

// navigable reports whether pre-navigation events for u are delivered.
func navigable(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
