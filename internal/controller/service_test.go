package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/settings"
	"github.com/dgnsrekt/pinguard/internal/store"
)

type stubHost struct {
	tabs   []guard.Tab
	pinErr error
	pinned []int
}

func (h *stubHost) Tabs(context.Context) ([]guard.Tab, error) { return h.tabs, nil }

func (h *stubHost) Pin(_ context.Context, id int) (guard.Tab, error) {
	if h.pinErr != nil {
		return guard.Tab{}, h.pinErr
	}
	h.pinned = append(h.pinned, id)
	return guard.Tab{ID: id, Pinned: true}, nil
}

func (h *stubHost) Unpin(_ context.Context, id int) (guard.Tab, error) {
	if h.pinErr != nil {
		return guard.Tab{}, h.pinErr
	}
	return guard.Tab{ID: id}, nil
}

type stubRegistry struct {
	entries []guard.PinnedEntry
	initErr error
	inits   int
}

func (r *stubRegistry) ID() string                    { return "session-1" }
func (r *stubRegistry) Entries() []guard.PinnedEntry { return r.entries }
func (r *stubRegistry) LockCount() int                { return 0 }

func (r *stubRegistry) Initialize(context.Context) error {
	r.inits++
	return r.initErr
}

type stubStream struct{}

func (stubStream) ClientCount() int { return 2 }
func (stubStream) Dropped() int64   { return 5 }

func newTestService(t *testing.T, host *stubHost, reg *stubRegistry) *Service {
	t.Helper()
	facade, err := settings.NewFacade(context.Background(), store.NewMemory(),
		settings.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("NewFacade() = %v", err)
	}
	t.Cleanup(facade.Close)
	return NewService(host, reg, facade, stubStream{})
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil; want %s", code)
	}
	var got *CodedError
	if !errors.As(err, &got) {
		t.Fatalf("error type = %T; want *CodedError", err)
	}
	if got.Code != code {
		t.Fatalf("code = %q; want %q", got.Code, code)
	}
}

func TestUpdateSettingsValidatesLinkBehavior(t *testing.T) {
	s := newTestService(t, &stubHost{}, &stubRegistry{})
	bad := "sometimes"
	_, err := s.UpdateSettings(context.Background(), nil, &bad)
	requireCode(t, err, CodeValidation)
}

func TestUpdateSettings(t *testing.T) {
	s := newTestService(t, &stubHost{}, &stubRegistry{})
	debug := true
	behavior := " all-links "
	got, err := s.UpdateSettings(context.Background(), &debug, &behavior)
	if err != nil {
		t.Fatalf("UpdateSettings() = %v", err)
	}
	if !got.DebugMode || got.LinkBehavior != settings.AllLinks {
		t.Fatalf("UpdateSettings() = %+v", got)
	}
}

func TestPinTabValidatesID(t *testing.T) {
	s := newTestService(t, &stubHost{}, &stubRegistry{})
	_, err := s.PinTab(context.Background(), 0)
	requireCode(t, err, CodeValidation)
}

func TestPinTabMapsHostErrors(t *testing.T) {
	host := &stubHost{pinErr: guard.ErrTabNotFound}
	s := newTestService(t, host, &stubRegistry{})
	_, err := s.PinTab(context.Background(), 9)
	requireCode(t, err, CodeTabNotFound)

	host.pinErr = errors.New("websocket closed")
	_, err = s.UnpinTab(context.Background(), 9)
	requireCode(t, err, CodeHostUnavailable)
}

func TestResync(t *testing.T) {
	reg := &stubRegistry{entries: []guard.PinnedEntry{{TabID: 7, URL: "https://mail.example.com/inbox"}}}
	s := newTestService(t, &stubHost{}, reg)

	got, err := s.Resync(context.Background())
	if err != nil {
		t.Fatalf("Resync() = %v", err)
	}
	if reg.inits != 1 || len(got) != 1 {
		t.Fatalf("Resync() = %+v after %d inits", got, reg.inits)
	}

	reg.initErr = errors.New("cdp gone")
	_, err = s.Resync(context.Background())
	requireCode(t, err, CodeHostUnavailable)
}

func TestStatus(t *testing.T) {
	host := &stubHost{tabs: []guard.Tab{{ID: 1}, {ID: 2}, {ID: 3}}}
	reg := &stubRegistry{entries: []guard.PinnedEntry{{TabID: 1, URL: "https://a.example.com/"}}}
	s := newTestService(t, host, reg)

	st, err := s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() = %v", err)
	}
	if st.SessionID != "session-1" || st.Tabs != 3 || st.PinnedTabs != 1 || st.StreamClients != 2 || st.StreamDropped != 5 {
		t.Fatalf("Status() = %+v", st)
	}
	if st.Settings != settings.Defaults() {
		t.Fatalf("Status().Settings = %+v; want defaults", st.Settings)
	}
}

func TestExportDebugLogs(t *testing.T) {
	s := newTestService(t, &stubHost{}, &stubRegistry{})
	data, name, err := s.ExportDebugLogs(context.Background())
	if err != nil {
		t.Fatalf("ExportDebugLogs() = %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("ExportDebugLogs() data = %q; want empty", data)
	}
	if name != "pinguard-debug-20260102-030405.txt" {
		t.Fatalf("ExportDebugLogs() name = %q", name)
	}
}
