package prefixcache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies one full, block-aligned prefix of a token sequence
// for a given model. Each fingerprint chains the previous block's
// fingerprint into its input, so two sequences can only match at block i if
// every block before it also matched — the same chained-hash construction
// matrixinfer-ai-kthena's prefix-cache scorer uses for pod affinity, applied
// here to KV block reuse instead of request routing.
type Fingerprint uint64

// Fingerprints computes one chained fingerprint per full block_size chunk
// of tokens. A trailing partial block (len(tokens) % blockSize != 0) is
// never fingerprinted: its content is not yet fixed, so it cannot be
// matched or shared until a later Append completes it.
func Fingerprints(modelID string, tokens []int, blockSize int) []Fingerprint {
	if blockSize <= 0 {
		return nil
	}
	fullBlocks := len(tokens) / blockSize
	if fullBlocks == 0 {
		return nil
	}

	out := make([]Fingerprint, fullBlocks)
	var prev uint64
	buf := make([]byte, 8+blockSize*8)
	for i := 0; i < fullBlocks; i++ {
		chunk := tokens[i*blockSize : (i+1)*blockSize]
		b := buf[:0]
		if i == 0 {
			b = appendModelSeed(b, modelID)
		} else {
			b = binary.LittleEndian.AppendUint64(b, prev)
		}
		for _, tok := range chunk {
			b = binary.LittleEndian.AppendUint64(b, uint64(int64(tok)))
		}
		h := xxhash.Sum64(b)
		out[i] = Fingerprint(h)
		prev = h
	}
	return out
}

// appendModelSeed mixes the model id into the first block's hash input so
// two different models never collide on an identical token prefix.
func appendModelSeed(b []byte, modelID string) []byte {
	seed := xxhash.Sum64String(modelID)
	return binary.LittleEndian.AppendUint64(b, seed)
}
