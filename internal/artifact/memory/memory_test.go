package memory

import (
	"context"
	"testing"
)

func TestPutCopiesData(t *testing.T) {
	t.Parallel()

	store := New()
	payload := []byte("content")
	uri, err := store.Put(context.Background(), "job/report.json", "application/json", payload)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if uri != "memory://job/report.json" {
		t.Fatalf("unexpected uri %s", uri)
	}

	payload[0] = 'C'
	stored, ok := store.Get("job/report.json")
	if !ok {
		t.Fatal("expected stored artifact")
	}
	if string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one artifact, got %d", store.Len())
	}
}

func TestPutRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	store := New()
	if _, err := store.Put(context.Background(), "", "", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := New()
	if _, ok := store.Get("nope"); ok {
		t.Fatal("expected missing artifact")
	}
}
