package pipeline

import (
	"context"
	"fmt"
)

// Mock is a deterministic fake transformer: each row's logits are a pure
// function of its last input token id and position, with no real tensor
// math. It exists so the engine loop, greedy determinism, and speculative-
// decoding acceptance can be exercised by tests and the replay CLI without
// a real model backend (SPEC_FULL.md "Mock Pipeline").
type Mock struct {
	VocabSize int
	// Drift perturbs the predicted-next-token formula; a draft pipeline
	// configured with a different Drift than its target disagrees with it
	// just often enough to exercise speculative rejection and resampling.
	Drift int
	Caps  Capabilities
}

// NewMock returns a Mock with sensible defaults for a small test vocab.
func NewMock(vocabSize int) *Mock {
	return &Mock{
		VocabSize: vocabSize,
		Caps: Capabilities{
			SupportsPagedAttn:          true,
			SupportsContinuousBatching: true,
			SupportsSpeculativeVerify:  true,
			MaxModelLen:                4096,
			Dtype:                      "f32",
			DeviceSet:                  []string{"cpu:0"},
			HiddenSize:                 64,
			NLayers:                    2,
			EOSTokenID:                 1,
		},
	}
}

func (m *Mock) Capabilities() Capabilities { return m.Caps }

func (m *Mock) PrepareInputs(batch Batch) (DeviceInputs, error) {
	return DeviceInputs{Payload: batch}, nil
}

func (m *Mock) KVCacheShape() KVShape {
	return KVShape{NLayers: m.Caps.NLayers, BlockSize: 16, NumKVHeads: 4, HeadDim: 16}
}

func (m *Mock) DeviceSynchronize(ctx context.Context) error { return nil }

// Forward computes one logits row per input row: a sharp peak at a
// deterministic "predicted token" derived from the row's last token id and
// final position, so greedy decoding always converges on the same
// sequence for the same prompt and so two Mock instances with different
// Drift values predictably disagree.
func (m *Mock) Forward(ctx context.Context, in DeviceInputs) (Logits, error) {
	batch, ok := in.Payload.(Batch)
	if !ok {
		return Logits{}, &PipelineError{Fatal: true, Msg: fmt.Sprintf("mock: unexpected payload type %T", in.Payload)}
	}
	out := Logits{Rows: make([][]float32, len(batch.Rows))}
	for i, row := range batch.Rows {
		if len(row.Tokens) == 0 {
			return Logits{}, &PipelineError{SeqID: row.SeqID, Msg: "mock: row has no tokens"}
		}
		last := row.Tokens[len(row.Tokens)-1]
		pos := 0
		if len(row.Positions) > 0 {
			pos = row.Positions[len(row.Positions)-1]
		}
		if len(row.VerifyTokens) > 0 {
			verify := make([][]float32, 0, len(row.VerifyTokens)+1)
			verify = append(verify, m.peakedLogits(m.predict(last, pos)))
			for j, tok := range row.VerifyTokens {
				verify = append(verify, m.peakedLogits(m.predict(tok, pos+1+j)))
			}
			if out.Verify == nil {
				out.Verify = make([][][]float32, len(batch.Rows))
			}
			out.Verify[i] = verify
			out.Rows[i] = verify[len(verify)-1]
			continue
		}
		predicted := m.predict(last, pos)
		out.Rows[i] = m.peakedLogits(predicted)
	}
	return out, nil
}

func (m *Mock) predict(lastToken, position int) int {
	v := (lastToken*31 + position*17 + m.Drift*7) % m.VocabSize
	if v < 0 {
		v += m.VocabSize
	}
	return v
}

// peakedLogits returns a row where `predicted` dominates by a wide margin,
// so greedy decoding is unambiguous and a temperature>0 sample still
// overwhelmingly favors it.
func (m *Mock) peakedLogits(predicted int) []float32 {
	row := make([]float32, m.VocabSize)
	for i := range row {
		d := i - predicted
		if d < 0 {
			d = -d
		}
		row[i] = -float32(d)
	}
	row[predicted] = 10
	return row
}
