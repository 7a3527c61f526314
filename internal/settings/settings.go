// Package settings exposes the persisted user settings and the debug log.
package settings

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/pinguard/internal/store"
)

// Store keys. They match the persisted layout read by external settings UIs.
const (
	KeyDebugMode    = "debugMode"
	KeyLinkBehavior = "linkBehavior"
	KeyDebugLogs    = "debugLogs"
)

// LinkBehavior selects which navigations out of a pinned tab are diverted.
type LinkBehavior string

const (
	DifferentDomains LinkBehavior = "different-domains"
	AllLinks         LinkBehavior = "all-links"
)

func (b LinkBehavior) Valid() bool {
	return b == DifferentDomains || b == AllLinks
}

// ParseLinkBehavior accepts the two persisted values.
func ParseLinkBehavior(s string) (LinkBehavior, error) {
	b := LinkBehavior(s)
	if !b.Valid() {
		return "", fmt.Errorf("invalid link behavior %q (want %q or %q)", s, DifferentDomains, AllLinks)
	}
	return b, nil
}

type Settings struct {
	DebugMode    bool         `json:"debug_mode"`
	LinkBehavior LinkBehavior `json:"link_behavior"`
}

func Defaults() Settings {
	return Settings{DebugMode: false, LinkBehavior: DifferentDomains}
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	DebugMode    *bool
	LinkBehavior *LinkBehavior
}

// Load reads settings from s, filling defaults for missing or unknown values.
func Load(ctx context.Context, s store.Store) (Settings, error) {
	values, err := s.Get(ctx, KeyDebugMode, KeyLinkBehavior)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return apply(Defaults(), values), nil
}

func apply(cur Settings, values store.Change) Settings {
	var debug bool
	if ok, err := store.Decode(values, KeyDebugMode, &debug); err == nil && ok {
		cur.DebugMode = debug
	}
	var behavior string
	if ok, err := store.Decode(values, KeyLinkBehavior, &behavior); err == nil && ok {
		if b := LinkBehavior(behavior); b.Valid() {
			cur.LinkBehavior = b
		}
	}
	return cur
}
