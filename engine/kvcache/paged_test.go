package kvcache

import "testing"

func TestPaged_Allocate_PartialBlockFill_AdvancesByActualTokenCount(t *testing.T) {
	// GIVEN a paged store with block size 4 and a brand new sequence
	p := NewPaged(10, 4)

	// WHEN allocating a 6-token prompt
	ids, ok := p.Allocate("r1", 6, nil)
	if !ok {
		t.Fatal("allocation should succeed")
	}

	// THEN it needs ceil(6/4)=2 blocks, and free count drops by 2
	if len(ids) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(ids))
	}
	if p.FreeBlocks() != 8 {
		t.Fatalf("expected 8 free blocks, got %d", p.FreeBlocks())
	}
}

func TestPaged_Allocate_InsufficientFreeBlocks_Fails(t *testing.T) {
	p := NewPaged(2, 4)
	_, ok := p.Allocate("r1", 100, nil)
	if ok {
		t.Fatal("expected allocation to fail when free blocks are insufficient")
	}
	if p.FreeBlocks() != 2 {
		t.Fatalf("a failed allocation must not mutate free count, got %d", p.FreeBlocks())
	}
}

func TestPaged_Append_CrossesBlockBoundary(t *testing.T) {
	p := NewPaged(4, 2)
	ids, ok := p.Allocate("r1", 2, nil) // exactly fills one block
	if !ok || len(ids) != 1 {
		t.Fatalf("setup allocation failed: %v %v", ids, ok)
	}
	if !p.Append("r1") {
		t.Fatal("append should allocate a new block when the last one is full")
	}
	if len(p.BlockIDs("r1")) != 2 {
		t.Fatalf("expected 2 blocks after crossing boundary, got %d", len(p.BlockIDs("r1")))
	}
}

func TestPaged_Append_NoFreeBlocks_FailsWithoutPartialMutation(t *testing.T) {
	p := NewPaged(1, 2)
	if _, ok := p.Allocate("r1", 2, nil); !ok {
		t.Fatal("setup allocation failed")
	}
	if p.Append("r1") {
		t.Fatal("expected append to fail: no free blocks left")
	}
}

func TestPaged_Release_ReturnsBlockTableInOriginalOrder(t *testing.T) {
	p := NewPaged(4, 2)
	ids, _ := p.Allocate("r1", 4, nil)
	if len(ids) != 2 {
		t.Fatalf("setup: expected 2 blocks, got %d", len(ids))
	}
	released := p.Release("r1")
	if len(released) != 2 || released[0] != ids[0] || released[1] != ids[1] {
		t.Fatalf("Release should return the full block table in original order, got %v", released)
	}
	if p.FreeBlocks() != 4 {
		t.Fatalf("expected all 4 blocks free after release, got %d", p.FreeBlocks())
	}
}

func TestPaged_SharedBlockNotFreedWhileOtherSequenceReferencesIt(t *testing.T) {
	// GIVEN two sequences sharing a cached prefix block (simulating a
	// PrefixCache hand-off: both pass the same cachedBlocks id)
	p := NewPaged(4, 2)
	ids, _ := p.Allocate("r1", 2, nil)
	shared := ids[0]
	if _, ok := p.Allocate("r2", 2, []int{shared}); !ok {
		t.Fatal("second allocation sharing the cached block should succeed")
	}
	if p.blocks[shared].RefCount != 2 {
		t.Fatalf("expected refcount 2 on shared block, got %d", p.blocks[shared].RefCount)
	}

	// WHEN r1 releases
	p.Release("r1")

	// THEN the shared block is still in use (refcount 1), not returned to
	// the free pool, because r2 still references it.
	if p.blocks[shared].RefCount != 1 {
		t.Fatalf("expected refcount 1 after one release, got %d", p.blocks[shared].RefCount)
	}
	if p.FreeBlocks() != 3 {
		t.Fatalf("shared block must not be free while referenced, got %d free", p.FreeBlocks())
	}
}

func TestPaged_Fork_SharesFullBlocksAndCopiesTail(t *testing.T) {
	p := NewPaged(6, 2)
	parentIDs, ok := p.Allocate("parent", 5, nil) // 2 full blocks + 1 partial (1 token)
	if !ok || len(parentIDs) != 3 {
		t.Fatalf("setup: expected 3 blocks, got %v ok=%v", parentIDs, ok)
	}

	childIDs, ok := p.Fork("parent", 5)
	if !ok {
		t.Fatal("fork should succeed with a free block available for copy-on-write")
	}
	if len(childIDs) != 3 {
		t.Fatalf("expected child to share 2 full blocks plus 1 COW tail, got %d ids", len(childIDs))
	}
	if childIDs[0] != parentIDs[0] || childIDs[1] != parentIDs[1] {
		t.Fatalf("child should share the two full parent blocks, got %v vs parent %v", childIDs, parentIDs)
	}
	if childIDs[2] == parentIDs[2] {
		t.Fatal("child's trailing partial block must be copy-on-write, not shared")
	}
	if p.blocks[parentIDs[0]].RefCount != 2 {
		t.Fatalf("expected shared block refcount 2, got %d", p.blocks[parentIDs[0]].RefCount)
	}
}

func TestPaged_Fork_ParentNotModifiedWhenCOWBlockUnavailable(t *testing.T) {
	p := NewPaged(3, 2) // exactly enough for the parent's 2 full + 1 partial block, no spare
	parentIDs, ok := p.Allocate("parent", 5, nil)
	if !ok || len(parentIDs) != 3 {
		t.Fatalf("setup failed: %v %v", parentIDs, ok)
	}
	_, ok = p.Fork("parent", 5)
	if ok {
		t.Fatal("fork should fail: no free block for copy-on-write of the trailing partial block")
	}
	if p.blocks[parentIDs[0]].RefCount != 1 {
		t.Fatalf("failed fork must not leave a dangling refcount bump, got %d", p.blocks[parentIDs[0]].RefCount)
	}
}

func TestPaged_BlocksNeeded_AccountsForCachedPrefix(t *testing.T) {
	p := NewPaged(10, 4)
	if n := p.BlocksNeeded(10, 8); n != 1 {
		t.Fatalf("expected 1 block needed for the 2 uncached tokens, got %d", n)
	}
	if n := p.BlocksNeeded(8, 8); n != 0 {
		t.Fatalf("expected 0 blocks needed when fully cached, got %d", n)
	}
}
