// Package clientip resolves the originating address of an HTTP request.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// RemoteAddr is the pseudo-source naming the raw connection address.
const RemoteAddr = "remote_addr"

// Resolver walks an ordered list of address sources and returns the first valid IP.
type Resolver struct {
	sources []string
}

// New returns a Resolver consulting sources in order. Header names are
// case-insensitive; RemoteAddr may appear anywhere in the list.
func New(sources []string) *Resolver {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.EqualFold(s, RemoteAddr) {
			out = append(out, RemoteAddr)
			continue
		}
		out = append(out, http.CanonicalHeaderKey(s))
	}
	return &Resolver{sources: out}
}

// Resolve returns the client address of r, or event.NullAddress when no source validates.
func (res *Resolver) Resolve(r *http.Request) string {
	for _, src := range res.sources {
		var raw string
		if src == RemoteAddr {
			raw = r.RemoteAddr
		} else {
			raw = r.Header.Get(src)
		}
		if raw == "" {
			continue
		}
		if addr, ok := parse(src, raw); ok {
			return addr
		}
	}
	return event.NullAddress
}

func parse(src, raw string) (string, bool) {
	first := strings.TrimSpace(strings.Split(raw, ",")[0])
	if src == "Forwarded" {
		first = forwardedFor(first)
	}
	return Parse(first)
}

// Parse validates a single address token, accepting bare IPs, host:port
// pairs and bracketed IPv6 literals.
func Parse(s string) (string, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" {
		return "", false
	}
	if ip, err := netip.ParseAddr(s); err == nil {
		return ip.Unmap().String(), true
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		if ip, err := netip.ParseAddr(host); err == nil {
			return ip.Unmap().String(), true
		}
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if ip, err := netip.ParseAddr(s[1 : len(s)-1]); err == nil {
			return ip.String(), true
		}
	}
	return "", false
}

// forwardedFor extracts the for= parameter of an RFC 7239 element.
func forwardedFor(element string) string {
	for _, pair := range strings.Split(element, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && strings.EqualFold(k, "for") {
			return v
		}
	}
	return element
}

// Live resolves with whatever source list sources currently returns, so a
// config reload applies from the next request on. The underlying Resolver is
// rebuilt only when the list changes.
type Live struct {
	sources func() []string

	mu   sync.Mutex
	last []string
	res  *Resolver
}

// NewLive returns a Live resolver reading its source list from sources.
func NewLive(sources func() []string) *Live {
	return &Live{sources: sources}
}

// Resolve implements the same contract as Resolver.Resolve.
func (l *Live) Resolve(r *http.Request) string {
	return l.current().Resolve(r)
}

func (l *Live) current() *Resolver {
	srcs := l.sources()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.res == nil || !slices.Equal(srcs, l.last) {
		l.res = New(srcs)
		l.last = slices.Clone(srcs)
	}
	return l.res
}
