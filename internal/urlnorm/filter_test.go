package urlnorm

import "testing"

func TestHostBlocklist(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		bl := newHostBlocklist([]string{"example.org"})
		if bl == nil {
			t.Fatalf("expected blocklist to be created")
		}
		if !bl.Blocked("example.org") {
			t.Fatalf("expected example.org to be blocked")
		}
		if bl.Blocked("sub.example.org") {
			t.Fatalf("did not expect subdomains to match exact entry")
		}
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		bl := newHostBlocklist([]string{"*.tracker.net", ".cdn.io"})
		if bl == nil {
			t.Fatalf("expected blocklist to be created")
		}
		cases := []struct {
			host    string
			blocked bool
		}{
			{"tracker.net", true},
			{"a.tracker.net", true},
			{"deep.sub.tracker.net", true},
			{"cdn.io", true},
			{"static.cdn.io", true},
			{"example.com", false},
			{"nottracker.net", false},
		}
		for _, tc := range cases {
			if got := bl.Blocked(tc.host); got != tc.blocked {
				t.Fatalf("host %q blocked=%v, want %v", tc.host, got, tc.blocked)
			}
		}
	})

	t.Run("case and whitespace folded", func(t *testing.T) {
		bl := newHostBlocklist([]string{" Example.ORG "})
		if !bl.Blocked("EXAMPLE.org") {
			t.Fatalf("expected case-insensitive match")
		}
	})

	t.Run("empty patterns yield nil", func(t *testing.T) {
		if bl := newHostBlocklist([]string{"", "   "}); bl != nil {
			t.Fatalf("expected nil blocklist for empty patterns")
		}
	})

	t.Run("nil blocklist never blocks", func(t *testing.T) {
		var bl *hostBlocklist
		if bl.Blocked("anything") {
			t.Fatalf("nil blocklist should never block")
		}
	})
}
