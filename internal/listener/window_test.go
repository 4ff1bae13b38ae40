package listener_test

import (
	"testing"

	"github.com/peerloop/marketplace/internal/listener"
)

func TestWindowTracker_NextRangeWithLookback(t *testing.T) {
	w := listener.NewWindowTracker(3)
	w.Reset(100)

	rng, ok := w.NextRange(105)
	if !ok {
		t.Fatal("expected a range for head 105")
	}
	if rng.From != 98 || rng.To != 105 {
		t.Fatalf("expected [98, 105], got [%d, %d]", rng.From, rng.To)
	}

	w.Commit(105)
	if w.LastProcessed() != 105 {
		t.Fatalf("expected lastProcessed 105, got %d", w.LastProcessed())
	}
}

func TestWindowTracker_NoRangeWhenHeadNotAdvanced(t *testing.T) {
	w := listener.NewWindowTracker(2)
	w.Reset(50)

	if _, ok := w.NextRange(50); ok {
		t.Error("head equal to lastProcessed should produce no range")
	}
	if _, ok := w.NextRange(49); ok {
		t.Error("head behind lastProcessed should produce no range")
	}
	if w.LastProcessed() != 50 {
		t.Fatalf("lastProcessed changed without a commit: %d", w.LastProcessed())
	}
}

func TestWindowTracker_ClampsToGenesis(t *testing.T) {
	w := listener.NewWindowTracker(10)
	w.Reset(0)

	rng, ok := w.NextRange(3)
	if !ok {
		t.Fatal("expected a range")
	}
	if rng.From != 0 || rng.To != 3 {
		t.Fatalf("expected [0, 3], got [%d, %d]", rng.From, rng.To)
	}
}

func TestWindowTracker_InitBaselinesBelowHead(t *testing.T) {
	w := listener.NewWindowTracker(2)

	w.Init(42)
	if w.LastProcessed() != 41 {
		t.Fatalf("expected lastProcessed 41, got %d", w.LastProcessed())
	}

	w.Init(0)
	if w.LastProcessed() != 0 {
		t.Fatalf("Init(0) should saturate at 0, got %d", w.LastProcessed())
	}
}
