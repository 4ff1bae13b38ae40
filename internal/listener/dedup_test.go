package listener_test

import (
	"fmt"
	"testing"

	"github.com/peerloop/marketplace/internal/listener"
)

func id(tx string, index uint) listener.EventID {
	return listener.EventID{TxHash: tx, LogIndex: index}
}

func TestDedupeCache_AdmitOnce(t *testing.T) {
	c := listener.NewDedupeCache(10)

	if !c.Admit(id("0xaa", 0)) {
		t.Fatal("first sight should be admitted")
	}
	if c.Admit(id("0xaa", 0)) {
		t.Fatal("second sight should be dropped")
	}
	if !c.Admit(id("0xaa", 1)) {
		t.Fatal("same tx with a different log index is a distinct event")
	}
}

func TestDedupeCache_EvictsOldestFirst(t *testing.T) {
	c := listener.NewDedupeCache(2)

	c.Admit(id("0xa", 0))
	c.Admit(id("0xb", 0))
	c.Admit(id("0xc", 0)) // evicts 0xa

	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
	if !c.Admit(id("0xa", 0)) {
		t.Fatal("evicted entry should be admitted again")
	}
	// Re-admitting 0xa evicted 0xb; 0xc is still remembered.
	if c.Admit(id("0xc", 0)) {
		t.Fatal("0xc should still be remembered")
	}
	if !c.Admit(id("0xb", 0)) {
		t.Fatal("0xb should have been evicted by the re-admit of 0xa")
	}
}

func TestDedupeCache_BoundedByCapacity(t *testing.T) {
	const capacity = 10
	c := listener.NewDedupeCache(capacity)

	for i := 0; i < 15; i++ {
		c.Admit(id(fmt.Sprintf("0x%02d", i), 0))
	}
	if c.Len() != capacity {
		t.Fatalf("expected len %d after overflow, got %d", capacity, c.Len())
	}

	// The five oldest were evicted and admit again; the rest are remembered.
	for i := 0; i < 5; i++ {
		if !c.Admit(id(fmt.Sprintf("0x%02d", i), 0)) {
			t.Errorf("entry %d should have been evicted", i)
		}
	}
	if c.Admit(id("0x14", 0)) {
		t.Error("newest entry should still be remembered")
	}
}

func TestDedupeCache_ZeroCapacityRemembersNothing(t *testing.T) {
	c := listener.NewDedupeCache(0)

	for i := 0; i < 3; i++ {
		if !c.Admit(id("0xaa", 0)) {
			t.Fatal("zero-capacity cache should admit everything")
		}
	}
	if c.Len() != 0 {
		t.Fatalf("zero-capacity cache should hold nothing, got %d", c.Len())
	}
}

func TestDedupeCache_CapacityOne(t *testing.T) {
	c := listener.NewDedupeCache(1)

	if !c.Admit(id("0xa", 0)) {
		t.Fatal("first admit failed")
	}
	if c.Admit(id("0xa", 0)) {
		t.Fatal("duplicate admitted")
	}
	if !c.Admit(id("0xb", 0)) {
		t.Fatal("second id should be admitted")
	}
	if !c.Admit(id("0xa", 0)) {
		t.Fatal("0xa should have been evicted")
	}
}
