package http

import (
	"net/http"
	"net/url"
	"strings"
)

// originHost returns the "host[:port]" portion of an origin URL.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOrigin reports whether host matches a pattern such as "*.campus.edu" or
// "localhost:*". A lone "*" matches everything.
func matchOrigin(pattern, host string) bool {
	if pattern == "*" || pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	if strings.HasSuffix(pattern, ":*") {
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}

// OriginAllowed builds the CORS origin predicate from the allowlist.
func OriginAllowed(patterns []string) func(origin string) bool {
	return func(origin string) bool {
		host := originHost(origin)
		for _, p := range patterns {
			if matchOrigin(p, host) {
				return true
			}
		}
		return false
	}
}

// CheckOrigin applies the allowlist to websocket upgrades. Requests without an Origin
// header come from non-browser clients and are let through.
func CheckOrigin(patterns []string) func(*http.Request) bool {
	allowed := OriginAllowed(patterns)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed(origin)
	}
}
