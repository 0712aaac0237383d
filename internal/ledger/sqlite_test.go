package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/containerd/errdefs"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAddThenContains(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	found, err := l.Contains(ctx, "abc")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if found {
		t.Fatal("fresh ledger should not contain abc")
	}

	if err := l.Add(ctx, "abc"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	found, err = l.Contains(ctx, "abc")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if !found {
		t.Fatal("ledger should contain abc after Add")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.Add(ctx, "abc"); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := l.Add(ctx, "abc"); err != nil {
		t.Fatalf("second Add failed: %v", err)
	}

	found, err := l.Contains(ctx, "abc")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if !found {
		t.Fatal("ledger should still contain abc")
	}
}

func TestConcurrentAddsOfDifferentIDs(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- l.Add(ctx, fmt.Sprintf("ticket-%d", i))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Add failed: %v", err)
		}
	}

	for i := 0; i < n; i++ {
		found, err := l.Contains(ctx, fmt.Sprintf("ticket-%d", i))
		if err != nil {
			t.Fatalf("Contains failed: %v", err)
		}
		if !found {
			t.Errorf("ticket-%d missing from ledger", i)
		}
	}
}

func TestContainsAfterCloseIsUnavailable(t *testing.T) {
	t.Parallel()

	l, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err = l.Contains(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error reading a closed ledger")
	}
	if !errdefs.IsUnavailable(err) {
		t.Errorf("expected Unavailable classification, got %v", err)
	}
}
