// Package guard keeps pinned tabs on their canonical page. A Session tracks
// which tabs are pinned and diverts navigations out of them into new tabs.
package guard

import (
	"context"
	"errors"

	"github.com/dgnsrekt/pinguard/internal/settings"
	"github.com/dgnsrekt/pinguard/internal/stream"
)

// ErrTabNotFound is returned by a Host when the tab no longer exists.
var ErrTabNotFound = errors.New("tab not found")

// Tab is the host's view of one browser tab.
type Tab struct {
	ID     int    `json:"id"`
	URL    string `json:"url"`
	Pinned bool   `json:"pinned"`
	Index  int    `json:"index"`
}

// NavigationEvent is a pre-navigation notification. FrameID 0 is the
// top-level frame.
type NavigationEvent struct {
	TabID   int
	FrameID int
	URL     string
}

// Host is the browser the session guards. Implementations may be eventually
// consistent: UpdateTab can return before the tab reports the new URL.
type Host interface {
	PinnedTabs(ctx context.Context) ([]Tab, error)
	GetTab(ctx context.Context, id int) (Tab, error)
	CreateTab(ctx context.Context, url string, index int) (Tab, error)
	UpdateTab(ctx context.Context, id int, url string, replaceHistory bool) (Tab, error)
}

// Preferences provides the current user settings.
type Preferences interface {
	Current() settings.Settings
}

// DebugSink records diagnostic messages. settings.Facade implements it.
type DebugSink interface {
	Log(ctx context.Context, msg string, data any)
}

// Publisher receives registry snapshots for live diagnostics.
type Publisher interface {
	Publish(evt stream.Event)
}

type nopSink struct{}

func (nopSink) Log(context.Context, string, any) {}
