package socket

import (
	"testing"
	"time"
)

func TestAckTrackerConfirmations(t *testing.T) {
	now := time.Now()
	tr := newAckTracker()
	tr.track(10, now)

	count, start, ok := tr.progress(10)
	if !ok || count != 0 || !start.Equal(now) {
		t.Fatalf("fresh entry: count=%d start=%v ok=%v", count, start, ok)
	}

	tr.confirm(10, 0xAAAA)
	tr.confirm(10, 0xBBBB)
	// Duplicate acks from one peer never double-count.
	tr.confirm(10, 0xAAAA)

	if count, _, _ := tr.progress(10); count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestAckTrackerIgnoresUntracked(t *testing.T) {
	tr := newAckTracker()
	tr.confirm(99, 0x1234) // no-op

	if _, _, ok := tr.progress(99); ok {
		t.Fatal("confirm must not create entries")
	}
}

func TestAckTrackerDropAndClear(t *testing.T) {
	now := time.Now()
	tr := newAckTracker()
	tr.track(1, now)
	tr.track(2, now)

	tr.drop(1)
	if _, _, ok := tr.progress(1); ok {
		t.Fatal("dropped entry still tracked")
	}

	tr.clear()
	if _, _, ok := tr.progress(2); ok {
		t.Fatal("cleared entry still tracked")
	}
}

// TestAckTrackerRetrack verifies that a wrapped id starts a clean slate.
func TestAckTrackerRetrack(t *testing.T) {
	t0 := time.Now()
	tr := newAckTracker()

	tr.track(5, t0)
	tr.confirm(5, 0xCAFE)

	t1 := t0.Add(time.Second)
	tr.track(5, t1)

	count, start, ok := tr.progress(5)
	if !ok || count != 0 || !start.Equal(t1) {
		t.Fatalf("retracked entry kept stale state: count=%d start=%v", count, start)
	}
}
