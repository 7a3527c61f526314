package browserhost

import (
	"fmt"

	"github.com/gobwas/glob"
)

// AutoPin pins tabs whose URL matches any of its glob patterns.
type AutoPin struct {
	patterns []string
	globs    []glob.Glob
}

// NewAutoPin compiles patterns with '/' as separator, so "*" stays inside one
// path segment and "**" crosses them.
func NewAutoPin(patterns []string) (*AutoPin, error) {
	a := &AutoPin{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("autopin pattern %q: %w", p, err)
		}
		a.patterns = append(a.patterns, p)
		a.globs = append(a.globs, g)
	}
	return a, nil
}

// Match returns the first matching pattern.
func (a *AutoPin) Match(u string) (string, bool) {
	if a == nil {
		return "", false
	}
	for i, g := range a.globs {
		if g.Match(u) {
			return a.patterns[i], true
		}
	}
	return "", false
}

func (a *AutoPin) Len() int {
	if a == nil {
		return 0
	}
	return len(a.globs)
}
