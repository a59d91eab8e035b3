package kvcache

import "testing"

func TestContiguous_AllocateRespectsMaxBatch(t *testing.T) {
	c := NewContiguous(2, 100)
	if _, ok := c.Allocate("r1", 10, nil); !ok {
		t.Fatal("first allocation should succeed")
	}
	if _, ok := c.Allocate("r2", 10, nil); !ok {
		t.Fatal("second allocation should succeed")
	}
	if _, ok := c.Allocate("r3", 10, nil); ok {
		t.Fatal("third allocation should be rejected: maxBatch is 2")
	}
}

func TestContiguous_AllocateRejectsOverlongPrompt(t *testing.T) {
	c := NewContiguous(4, 50)
	if _, ok := c.Allocate("r1", 51, nil); ok {
		t.Fatal("expected rejection: prompt exceeds max_seq_len")
	}
}

func TestContiguous_AllocateRejectsCachedBlocks(t *testing.T) {
	c := NewContiguous(4, 50)
	if _, ok := c.Allocate("r1", 10, []int{0}); ok {
		t.Fatal("contiguous mode has no prefix sharing and must reject cached blocks")
	}
}

func TestContiguous_AppendAdvancesAndCapsAtMaxSeqLen(t *testing.T) {
	c := NewContiguous(1, 2)
	c.Allocate("r1", 1, nil)
	if !c.Append("r1") {
		t.Fatal("append within capacity should succeed")
	}
	if c.Append("r1") {
		t.Fatal("append beyond max_seq_len should fail")
	}
}

func TestContiguous_ReleaseFreesRowForReuse(t *testing.T) {
	c := NewContiguous(1, 10)
	c.Allocate("r1", 5, nil)
	if c.FreeBlocks() != 0 {
		t.Fatalf("expected 0 free rows while r1 is live, got %d", c.FreeBlocks())
	}
	c.Release("r1")
	if c.FreeBlocks() != 1 {
		t.Fatalf("expected 1 free row after release, got %d", c.FreeBlocks())
	}
	if _, ok := c.Allocate("r2", 5, nil); !ok {
		t.Fatal("released row should be available for a new sequence")
	}
}

func TestContiguous_ForkAlwaysFails(t *testing.T) {
	c := NewContiguous(2, 10)
	c.Allocate("r1", 5, nil)
	if _, ok := c.Fork("r1", 3); ok {
		t.Fatal("contiguous mode cannot share rows between sequences")
	}
}

func TestContiguous_BlockIDsEmptyForUnknownSequence(t *testing.T) {
	c := NewContiguous(2, 10)
	if ids := c.BlockIDs("nonexistent"); ids != nil {
		t.Fatalf("expected nil block ids for an unallocated sequence, got %v", ids)
	}
}
