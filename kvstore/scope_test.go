package kvstore

import "testing"

func TestScopeForHost(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"two-level host", "example.com", ".example.com"},
		{"subdomain", "a.example.com", ".example.com"},
		{"sibling subdomains collapse", "b.example.com", ".example.com"},
		{"deep subdomain", "x.y.example.com", ".example.com"},
		{"multi-part public suffix", "shop.example.co.uk", ".example.co.uk"},
		{"host with port", "a.example.com:8443", ".example.com"},
		{"localhost", "localhost", "localhost"},
		{"single label", "intranet", "intranet"},
		{"ipv4 literal", "192.168.1.10", "192.168.1.10"},
		{"ipv4 with port", "192.168.1.10:3000", "192.168.1.10"},
		{"ipv6 literal with port", "[::1]:8080", "::1"},
		{"trailing dot", "a.example.com.", ".example.com"},
		{"uppercase normalized", "A.Example.COM", ".example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopeForHost(tt.host); got != tt.want {
				t.Errorf("ScopeForHost(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestHostExactScopesDoNotShare(t *testing.T) {
	prim := NewMemoryPrimitive()
	local := New(prim, "localhost")
	ip := New(prim, "127.0.0.1")

	local.Set("k", "local-value")
	if v, ok := ip.Get("k"); ok {
		t.Errorf("literal-IP store observed localhost write: %q", v)
	}
}
