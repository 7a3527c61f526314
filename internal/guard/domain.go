package guard

import (
	"net"
	"net/url"
	"strings"

	"github.com/dgnsrekt/pinguard/internal/settings"
	"golang.org/x/net/publicsuffix"
)

// privilegedSchemes never share a domain with anything.
var privilegedSchemes = map[string]bool{
	"about":            true,
	"chrome":           true,
	"chrome-extension": true,
	"edge":             true,
	"devtools":         true,
}

// DomainMatcher reduces a hostname to the part compared across navigations.
type DomainMatcher func(host string) string

// LastTwoLabels approximates the registrable domain as the last two
// dot-separated labels. It misreads multi-part suffixes such as co.uk.
func LastTwoLabels(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// PublicSuffix uses the public suffix list, falling back to LastTwoLabels
// for hosts the list cannot handle (IP literals, single labels).
func PublicSuffix(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return LastTwoLabels(host)
	}
	return domain
}

// MatcherByName maps a config value to a matcher.
func MatcherByName(name string) (DomainMatcher, bool) {
	switch name {
	case "", "last-two-labels":
		return LastTwoLabels, true
	case "public-suffix":
		return PublicSuffix, true
	default:
		return nil, false
	}
}

// IsBlankURL reports whether u is the blank placeholder of a fresh tab.
func IsBlankURL(u string) bool {
	u = strings.TrimSpace(u)
	return u == "" || u == "about:blank"
}

// ShouldOpenInNewTab decides whether a navigation from current to next
// leaves the pinned page. Identical URLs (reloads) never do.
func ShouldOpenInNewTab(current, next string, behavior settings.LinkBehavior, match DomainMatcher) bool {
	if current == next {
		return false
	}
	if behavior == settings.AllLinks {
		return true
	}
	return IsDifferentDomain(current, next, match)
}

// IsDifferentDomain compares the matched domains of two URLs. Unparseable and
// privileged-scheme URLs count as different.
func IsDifferentDomain(a, b string, match DomainMatcher) bool {
	if match == nil {
		match = LastTwoLabels
	}
	ua, err := url.Parse(a)
	if err != nil {
		return true
	}
	ub, err := url.Parse(b)
	if err != nil {
		return true
	}
	// Relative references are not navigable URLs.
	if ua.Scheme == "" || ub.Scheme == "" {
		return true
	}
	if privilegedSchemes[strings.ToLower(ua.Scheme)] || privilegedSchemes[strings.ToLower(ub.Scheme)] {
		return true
	}
	return match(ua.Hostname()) != match(ub.Hostname())
}
