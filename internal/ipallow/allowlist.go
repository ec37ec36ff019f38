package ipallow

import (
	"fmt"
	"net/netip"
	"strings"
)

// Allowlist validates client addresses against a fixed set of exact
// addresses and CIDR ranges. Patterns are parsed once at construction:
// a malformed pattern is a configuration error, never a silently-skipped
// (or silently-matching) entry at check time.
type Allowlist struct {
	exact    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// New parses the configured patterns. An empty pattern list yields an open
// allowlist: IP restriction is an opt-in control.
func New(patterns []string) (*Allowlist, error) {
	al := &Allowlist{
		exact: make(map[netip.Addr]struct{}),
	}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty allowlist pattern")
		}

		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR pattern %q: %w", p, err)
			}
			al.prefixes = append(al.prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("invalid address pattern %q: %w", p, err)
		}
		al.exact[addr.Unmap()] = struct{}{}
	}

	return al, nil
}

// Empty reports whether no patterns are configured.
func (al *Allowlist) Empty() bool {
	return len(al.exact) == 0 && len(al.prefixes) == 0
}

// Allows reports whether ip matches any configured pattern. An unparseable
// client address never matches.
func (al *Allowlist) Allows(ip string) bool {
	if al.Empty() {
		return true
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	if _, ok := al.exact[addr]; ok {
		return true
	}
	for _, prefix := range al.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
