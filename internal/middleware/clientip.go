package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const (
	// HeaderXForwardedFor is the header name for forwarded client IP.
	HeaderXForwardedFor = "X-Forwarded-For"
	// HeaderXRealIP is the header name for real client IP.
	HeaderXRealIP = "X-Real-IP"
)

// ClientIP returns a middleware that extracts the client IP address and stores it in context.
// If trustProxy is true, X-Forwarded-For and X-Real-IP are honoured, but only
// for connections from trustedProxies when that list is non-empty. Entries may
// be single addresses or CIDR prefixes; unparsable entries are ignored.
func ClientIP(trustProxy bool, trustedProxies []string) Middleware {
	trusted := parseTrusted(trustedProxies)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := extractClientIP(r, trustProxy, trusted)
			ctx := context.WithValue(r.Context(), ClientIPKey, clientIP)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseTrusted(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	return out
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// extractClientIP extracts the client IP from the request.
func extractClientIP(r *http.Request, trustProxy bool, trusted []netip.Prefix) string {
	remoteIP := extractIPFromAddr(r.RemoteAddr)

	if !trustProxy {
		return remoteIP
	}
	if len(trusted) > 0 && !isTrusted(remoteIP, trusted) {
		return remoteIP
	}

	// The first X-Forwarded-For entry is the original client.
	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := normalizeIP(first); ok {
			return ip
		}
	}

	if ip, ok := normalizeIP(r.Header.Get(HeaderXRealIP)); ok {
		return ip
	}

	return remoteIP
}

// normalizeIP parses s as an IP address and returns its canonical form.
func normalizeIP(s string) (string, bool) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return a.Unmap().String(), true
}

// extractIPFromAddr extracts the IP address from an address string (host:port or just host).
func extractIPFromAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// clientIPFor returns the IP stored by ClientIP, or the connection address.
func clientIPFor(r *http.Request) string {
	if ip := GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return extractIPFromAddr(r.RemoteAddr)
}
