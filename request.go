package offlinecache

import (
	"net/http"
	"path"
	"strings"

	"github.com/munnerz/goautoneg"
)

// isNavigation reports whether the request loads a document into a browsing context.
// Browsers say so in Sec-Fetch-Mode; older clients are recognised by preferring HTML.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return r.Method == http.MethodGet && prefersHTML(r.Header.Get("Accept"))
}

// prefersHTML reports whether text/html is among the media ranges with the highest quality.
// Wildcards do not count.
func prefersHTML(accept string) bool {
	clauses := goautoneg.ParseAccept(accept)
	best := 0.0
	for _, c := range clauses {
		if c.Q > best {
			best = c.Q
		}
	}
	if best <= 0 {
		return false
	}
	for _, c := range clauses {
		if c.Q == best && strings.EqualFold(c.Type, "text") && strings.EqualFold(c.SubType, "html") {
			return true
		}
	}
	return false
}

// destination returns the request destination (script, style, image...).
func destination(r *http.Request) string {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest
	}
	switch strings.ToLower(path.Ext(r.URL.Path)) {
	case ".js", ".mjs":
		return "script"
	case ".css":
		return "style"
	case ".png", ".jpg", ".jpeg", ".svg", ".gif", ".webp", ".ico":
		return "image"
	case ".woff", ".woff2":
		return "font"
	}
	return ""
}

// isSubresource reports whether a failed load is a missing resource rather than a timed out request.
func isSubresource(r *http.Request) bool {
	switch destination(r) {
	case "script", "style", "image":
		return true
	}
	return false
}
