// Package clientip extracts and canonicalizes the originating client
// address from proxy headers.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// ipv4MappedPrefix is the IPv4-in-IPv6 literal prefix.
const ipv4MappedPrefix = "::ffff:"

// Normalize reduces a raw client address candidate to a single best-effort
// textual IP. The input may contain a comma-separated forwarded-for chain,
// an IPv4-mapped IPv6 literal, or the IPv6 loopback form. Returns "" when
// nothing resolvable remains.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	// First entry of a forwarded-for chain is the original client.
	if idx := strings.Index(raw, ","); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSpace(raw)

	if raw == "::1" {
		return "127.0.0.1"
	}

	raw = strings.TrimPrefix(raw, ipv4MappedPrefix)

	return raw
}

// FromRequest resolves the client IP from proxy headers, falling back to
// the connection's remote address. Header precedence follows what CDNs and
// reverse proxies set: CF-Connecting-IP, X-Real-IP, X-Forwarded-For.
func FromRequest(r *http.Request) string {
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return Normalize(cf)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return Normalize(real)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return Normalize(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return Normalize(r.RemoteAddr)
	}
	return Normalize(host)
}
