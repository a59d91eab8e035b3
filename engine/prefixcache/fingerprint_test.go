package prefixcache

import "testing"

func TestFingerprints_OnlyFullBlocksHashed(t *testing.T) {
	fps := Fingerprints("m1", []int{1, 2, 3, 4, 5}, 2)
	if len(fps) != 2 {
		t.Fatalf("expected 2 full blocks out of 5 tokens at block size 2, got %d", len(fps))
	}
}

func TestFingerprints_DifferentModelsDoNotCollide(t *testing.T) {
	a := Fingerprints("model-a", []int{1, 2, 3, 4}, 2)
	b := Fingerprints("model-b", []int{1, 2, 3, 4}, 2)
	if a[0] == b[0] {
		t.Fatal("identical token prefixes under different models must not fingerprint identically")
	}
}

func TestFingerprints_ChainedDependencyOnPriorBlock(t *testing.T) {
	a := Fingerprints("m1", []int{1, 2, 3, 4}, 2)
	b := Fingerprints("m1", []int{9, 9, 3, 4}, 2)
	if a[1] == b[1] {
		t.Fatal("block 2's fingerprint must depend on block 1's content, not just its own tokens")
	}
}

func TestFingerprints_IdenticalPrefixesMatch(t *testing.T) {
	a := Fingerprints("m1", []int{1, 2, 3, 4}, 2)
	b := Fingerprints("m1", []int{1, 2, 3, 4, 5, 6}, 2)
	if a[0] != b[0] || a[1] != b[1] {
		t.Fatal("identical leading blocks under the same model must fingerprint identically")
	}
}

func TestFingerprints_EmptyWhenNoFullBlock(t *testing.T) {
	fps := Fingerprints("m1", []int{1}, 4)
	if len(fps) != 0 {
		t.Fatalf("expected no fingerprints for a prompt shorter than one block, got %d", len(fps))
	}
}
