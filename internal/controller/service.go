package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/settings"
)

// TabHost is the browser side of the service.
type TabHost interface {
	Tabs(ctx context.Context) ([]guard.Tab, error)
	Pin(ctx context.Context, id int) (guard.Tab, error)
	Unpin(ctx context.Context, id int) (guard.Tab, error)
}

// Registry is the guard session as seen by the API.
type Registry interface {
	ID() string
	Entries() []guard.PinnedEntry
	Initialize(ctx context.Context) error
	LockCount() int
}

// Preferences is the settings and debug log facade.
type Preferences interface {
	Settings(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, p settings.Patch) (settings.Settings, error)
	Entries(ctx context.Context) ([]settings.Entry, error)
	Clear(ctx context.Context) error
	Export(ctx context.Context) ([]byte, string, error)
}

// StreamStats reports diagnostic stream usage.
type StreamStats interface {
	ClientCount() int
	Dropped() int64
}

// Status summarises the running daemon.
type Status struct {
	SessionID     string            `json:"session_id"`
	Tabs          int               `json:"tabs"`
	PinnedTabs    int               `json:"pinned_tabs"`
	InFlight      int               `json:"in_flight"`
	Settings      settings.Settings `json:"settings"`
	StreamClients int               `json:"stream_clients"`
	StreamDropped int64             `json:"stream_dropped"`
}

// Service wraps the pinguard operations exposed over HTTP.
type Service struct {
	host   TabHost
	reg    Registry
	prefs  Preferences
	stream StreamStats
}

func NewService(host TabHost, reg Registry, prefs Preferences, stream StreamStats) *Service {
	return &Service{host: host, reg: reg, prefs: prefs, stream: stream}
}

func (s *Service) requireTabID(id int) error {
	if id <= 0 {
		return &CodedError{Code: CodeValidation, Message: "tab_id must be positive"}
	}
	return nil
}

// hostError classifies errors coming back from the browser.
func hostError(op string, id int, err error) error {
	if errors.Is(err, guard.ErrTabNotFound) {
		return newError(CodeTabNotFound, fmt.Sprintf("tab %d not found", id), err)
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	return newError(CodeHostUnavailable, op+" failed", err)
}

func (s *Service) GetSettings(ctx context.Context) (settings.Settings, error) {
	cur, err := s.prefs.Settings(ctx)
	if err != nil {
		return settings.Settings{}, newError(CodeStoreFailure, "read settings", err)
	}
	return cur, nil
}

// UpdateSettings applies a partial update; nil fields are left unchanged.
func (s *Service) UpdateSettings(ctx context.Context, debugMode *bool, linkBehavior *string) (settings.Settings, error) {
	var patch settings.Patch
	patch.DebugMode = debugMode
	if linkBehavior != nil {
		b, err := settings.ParseLinkBehavior(strings.TrimSpace(*linkBehavior))
		if err != nil {
			return settings.Settings{}, newError(CodeValidation, err.Error(), nil)
		}
		patch.LinkBehavior = &b
	}
	cur, err := s.prefs.Update(ctx, patch)
	if err != nil {
		return settings.Settings{}, newError(CodeStoreFailure, "update settings", err)
	}
	return cur, nil
}

func (s *Service) DebugLogs(ctx context.Context) ([]settings.Entry, error) {
	entries, err := s.prefs.Entries(ctx)
	if err != nil {
		return nil, newError(CodeStoreFailure, "read debug log", err)
	}
	return entries, nil
}

func (s *Service) ClearDebugLogs(ctx context.Context) error {
	if err := s.prefs.Clear(ctx); err != nil {
		return newError(CodeStoreFailure, "clear debug log", err)
	}
	return nil
}

func (s *Service) ExportDebugLogs(ctx context.Context) ([]byte, string, error) {
	data, name, err := s.prefs.Export(ctx)
	if err != nil {
		return nil, "", newError(CodeStoreFailure, "export debug log", err)
	}
	return data, name, nil
}

func (s *Service) PinnedTabs(context.Context) []guard.PinnedEntry {
	return s.reg.Entries()
}

func (s *Service) Tabs(ctx context.Context) ([]guard.Tab, error) {
	tabs, err := s.host.Tabs(ctx)
	if err != nil {
		return nil, newError(CodeHostUnavailable, "list tabs failed", err)
	}
	return tabs, nil
}

func (s *Service) PinTab(ctx context.Context, id int) (guard.Tab, error) {
	if err := s.requireTabID(id); err != nil {
		return guard.Tab{}, err
	}
	tab, err := s.host.Pin(ctx, id)
	if err != nil {
		return guard.Tab{}, hostError("pin tab", id, err)
	}
	return tab, nil
}

func (s *Service) UnpinTab(ctx context.Context, id int) (guard.Tab, error) {
	if err := s.requireTabID(id); err != nil {
		return guard.Tab{}, err
	}
	tab, err := s.host.Unpin(ctx, id)
	if err != nil {
		return guard.Tab{}, hostError("unpin tab", id, err)
	}
	return tab, nil
}

// Resync rebuilds the registry from the browser's current pinned tabs.
func (s *Service) Resync(ctx context.Context) ([]guard.PinnedEntry, error) {
	if err := s.reg.Initialize(ctx); err != nil {
		return nil, newError(CodeHostUnavailable, "resync registry failed", err)
	}
	return s.reg.Entries(), nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	cur, err := s.GetSettings(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		SessionID:  s.reg.ID(),
		PinnedTabs: len(s.reg.Entries()),
		InFlight:   s.reg.LockCount(),
		Settings:   cur,
	}
	if tabs, err := s.host.Tabs(ctx); err == nil {
		st.Tabs = len(tabs)
	}
	if s.stream != nil {
		st.StreamClients = s.stream.ClientCount()
		st.StreamDropped = s.stream.Dropped()
	}
	return st, nil
}
