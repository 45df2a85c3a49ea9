package sessions

import (
	"context"
	"testing"
	"time"
)

func TestTrackerRegisterUnregister(t *testing.T) {
	tr := NewTracker()
	unregister := tr.Register("call-1", func() {})
	if got := tr.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	unregister()
	unregister() // idempotent
	if got := tr.Count(); got != 0 {
		t.Fatalf("Count = %d, want 0", got)
	}
}

func TestTrackerCancelAll(t *testing.T) {
	tr := NewTracker()
	canceled := make(chan string, 2)
	u1 := tr.Register("call-1", func() { canceled <- "call-1" })
	u2 := tr.Register("call-2", func() { canceled <- "call-2" })

	if got := tr.CancelAll(); got != 2 {
		t.Fatalf("CancelAll = %d, want 2", got)
	}
	if len(canceled) != 2 {
		t.Fatalf("cancel funcs invoked %d times", len(canceled))
	}

	// Cancel does not unregister; the call does that as it ends.
	u1()
	u2()
	if got := tr.Count(); got != 0 {
		t.Fatalf("Count = %d, want 0", got)
	}
}

func TestTrackerReplaceSameID(t *testing.T) {
	tr := NewTracker()
	tr.Register("call-1", func() {})
	u2 := tr.Register("call-1", func() {})
	if got := tr.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	u2()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !tr.Wait(ctx) {
		t.Fatal("Wait did not drain after replacement")
	}
}

func TestTrackerWait(t *testing.T) {
	tr := NewTracker()
	unregister := tr.Register("call-1", func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatal("Wait returned true with a live call")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		unregister()
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if !tr.Wait(ctx2) {
		t.Fatal("Wait did not observe the drain")
	}
}
