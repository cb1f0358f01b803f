// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"
)

// TestClockNowUTC ensures timestamps are UTC so job records compare cleanly
// across stores.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockNowMonotonic checks successive timestamps are non-decreasing,
// which job updatedAt handling relies on.
func TestClockNowMonotonic(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	second := clk.Now()
	if second.Before(first) {
		t.Fatalf("expected second call %v to be >= first %v", second, first)
	}
}
