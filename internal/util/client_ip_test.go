package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPHonorsOnlyTrustedPeers(t *testing.T) {
	edge, err := NewTrustedProxies([]string{"10.1.0.0/16", "192.0.2.7"})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}

	tests := []struct {
		name    string
		trusted *TrustedProxies
		peer    string
		xff     string
		realIP  string
		want    string
	}{
		{name: "untrusted peer spoofing headers", trusted: edge, peer: "203.0.113.50:41000", xff: "1.1.1.1", realIP: "2.2.2.2", want: "203.0.113.50"},
		{name: "nil allowlist", trusted: nil, peer: "10.1.4.4:80", xff: "1.1.1.1", want: "10.1.4.4"},
		{name: "single load balancer", trusted: edge, peer: "10.1.0.9:5000", xff: "198.51.100.23", want: "198.51.100.23"},
		{name: "spoofed leftmost entry", trusted: edge, peer: "10.1.0.9:5000", xff: "6.6.6.6, 198.51.100.23, 192.0.2.7", want: "198.51.100.23"},
		{name: "garbage entries skipped", trusted: edge, peer: "10.1.0.9:5000", xff: "unknown, 198.51.100.23", want: "198.51.100.23"},
		{name: "x-real-ip fallback", trusted: edge, peer: "192.0.2.7:443", realIP: "198.51.100.99", want: "198.51.100.99"},
		{name: "trusted peer without headers", trusted: edge, peer: "10.1.2.3:8080", want: "10.1.2.3"},
		{name: "ipv4-mapped peer", trusted: edge, peer: "[::ffff:10.1.0.9]:5000", xff: "198.51.100.5", want: "198.51.100.5"},
		{name: "entire chain internal", trusted: edge, peer: "10.1.0.9:5000", xff: "10.1.3.3, 192.0.2.7", want: "10.1.3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/posts/addContent", nil)
			req.RemoteAddr = tt.peer
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(req, tt.trusted); got != tt.want {
				t.Fatalf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTrustedProxiesParsing(t *testing.T) {
	if tp, err := NewTrustedProxies([]string{"", "  "}); err != nil || tp != nil {
		t.Fatalf("blank entries should yield nil allowlist, got %v, %v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatalf("expected bad prefix to fail")
	}
	if _, err := NewTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Fatalf("expected hostname to fail")
	}
	tp, err := NewTrustedProxies([]string{" 2001:db8::/32 "})
	if err != nil {
		t.Fatalf("ipv6 prefix: %v", err)
	}
	req := httptest.NewRequest("GET", "/posts/feed", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	req.Header.Set("X-Forwarded-For", "2001:db9::5")
	if got := ClientIP(req, tp); got != "2001:db9::5" {
		t.Fatalf("ClientIP over ipv6 proxy = %q", got)
	}
}
