package kvcache

import "testing"

func TestBlock_Full(t *testing.T) {
	b := &Block{Filled: 3}
	if b.Full(4) {
		t.Fatal("block with 3/4 slots filled should not report full")
	}
	b.Filled = 4
	if !b.Full(4) {
		t.Fatal("block with 4/4 slots filled should report full")
	}
}

func TestFreeList_PushPopOrder(t *testing.T) {
	var fl freeList
	a, b, c := &Block{ID: 1}, &Block{ID: 2}, &Block{ID: 3}
	fl.pushBack(a)
	fl.pushBack(b)
	fl.pushBack(c)
	if fl.len() != 3 {
		t.Fatalf("expected length 3, got %d", fl.len())
	}

	if got := fl.popFront(); got != a {
		t.Fatalf("expected FIFO order, got block %d", got.ID)
	}
	if got := fl.popFront(); got != b {
		t.Fatalf("expected block 2 next, got block %d", got.ID)
	}
	if fl.len() != 1 {
		t.Fatalf("expected length 1 after two pops, got %d", fl.len())
	}
}

func TestFreeList_RemoveMiddle(t *testing.T) {
	var fl freeList
	a, b, c := &Block{ID: 1}, &Block{ID: 2}, &Block{ID: 3}
	fl.pushBack(a)
	fl.pushBack(b)
	fl.pushBack(c)

	fl.remove(b)
	if fl.len() != 2 {
		t.Fatalf("expected length 2 after removing middle element, got %d", fl.len())
	}
	if got := fl.popFront(); got != a {
		t.Fatalf("expected a first, got %d", got.ID)
	}
	if got := fl.popFront(); got != c {
		t.Fatalf("expected c after removing b, got %d", got.ID)
	}
}

func TestFreeList_PopEmpty(t *testing.T) {
	var fl freeList
	if got := fl.popFront(); got != nil {
		t.Fatalf("popping an empty list should return nil, got %v", got)
	}
}
