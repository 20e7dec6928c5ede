package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
)

const methodSeparator = ":"

// CacheKeyer derives partition keys from requests.
// A key is the request method and the absolute request URL (without fragment),
// e.g. `GET:https://app.example/api/lessons?page=2`.
type CacheKeyer struct {
	// Origin the worker controls. Relative request URLs are resolved against it.
	Scope *url.URL
}

func NewCacheKeyer(scope *url.URL) CacheKeyer {
	return CacheKeyer{Scope: scope}
}

// Key returns the cache key for the request.
func (c CacheKeyer) Key(r *http.Request) string {
	return r.Method + methodSeparator + c.AbsoluteURL(r).String()
}

// AbsoluteURL returns the full URL of the request.
// Server-side requests only carry the request URI, in which case the scope supplies
// scheme and host.
func (c CacheKeyer) AbsoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	switch {
	case u.Host != "":
	case c.Scope != nil:
		u.Scheme = c.Scope.Scheme
		u.Host = c.Scope.Host
	default:
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return &u
}

// Resolve resolves a possibly relative reference against the scope.
func (c CacheKeyer) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if c.Scope != nil {
		u = c.Scope.ResolveReference(u)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("cannot resolve %q to an absolute URL", ref)
	}
	u.Fragment = ""
	return u, nil
}
