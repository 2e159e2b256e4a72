package kvstore

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ScopeForHost maps a hostname to the storage scope its entries live under.
//
// Multi-level hostnames collapse to their registrable parent domain (with a
// leading dot) so sibling subdomains observe the same store. Bare hosts,
// single-label names and literal IPs scope host-exact: there is no parent
// domain to share through.
func ScopeForHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}

	parent, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Unlisted or malformed suffix: no safe shared parent, stay exact.
		return host
	}
	return "." + parent
}
