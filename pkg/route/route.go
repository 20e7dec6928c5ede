// Package route decides which caching strategy handles a request.
package route

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

type Strategy int

const (
	// PassThrough requests go to the network untouched.
	PassThrough Strategy = iota
	NetworkFirst
	CacheFirst
	StaleWhileRevalidate
)

func (s Strategy) String() string {
	switch s {
	case PassThrough:
		return "pass-through"
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	}
	return "unknown"
}

// Role is the logical partition a strategy reads and writes.
type Role int

const (
	Static Role = iota
	Dynamic
	Learning
)

func (r Role) String() string {
	switch r {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case Learning:
		return "learning"
	}
	return "unknown"
}

// Roles lists every partition role.
var Roles = []Role{Static, Dynamic, Learning}

type Decision struct {
	Strategy  Strategy
	Partition Role
}

var staticExtensions = map[string]struct{}{
	".js":    {},
	".css":   {},
	".png":   {},
	".jpg":   {},
	".jpeg":  {},
	".svg":   {},
	".woff":  {},
	".woff2": {},
}

// Classify maps a request to a strategy. The first matching rule wins:
// non-GET and cross-origin requests pass through, `/api/` is network-first,
// learning content and static assets are cache-first, anything else is
// stale-while-revalidate.
func Classify(method string, u *url.URL, scope *url.URL) Decision {
	if method != http.MethodGet {
		return Decision{Strategy: PassThrough}
	}
	if !SameOrigin(u, scope) {
		return Decision{Strategy: PassThrough}
	}
	p := u.Path
	switch {
	case strings.HasPrefix(p, "/api/"):
		return Decision{Strategy: NetworkFirst, Partition: Dynamic}
	case strings.Contains(p, "/learning/") || strings.Contains(p, "/modules/"):
		return Decision{Strategy: CacheFirst, Partition: Learning}
	case IsStaticAsset(p):
		return Decision{Strategy: CacheFirst, Partition: Static}
	}
	return Decision{Strategy: StaleWhileRevalidate, Partition: Dynamic}
}

// IsStaticAsset reports whether the path ends in one of the static asset extensions.
func IsStaticAsset(p string) bool {
	_, ok := staticExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// SameOrigin compares scheme, host and port, treating default ports as implicit.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		port(a) == port(b)
}

func port(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// Names holds the versioned partition names, e.g. `static-v2`.
type Names struct {
	Static   string
	Dynamic  string
	Learning string
}

func NewNames(version string) Names {
	return Names{
		Static:   "static-" + version,
		Dynamic:  "dynamic-" + version,
		Learning: "learning-" + version,
	}
}

func (n Names) For(r Role) string {
	switch r {
	case Static:
		return n.Static
	case Learning:
		return n.Learning
	}
	return n.Dynamic
}

// All returns the current names, which is also the allow-list for sweeps.
func (n Names) All() []string {
	return []string{n.Static, n.Dynamic, n.Learning}
}
