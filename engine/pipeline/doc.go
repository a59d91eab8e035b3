// Package pipeline defines the Pipeline contract (C6): the abstract
// forward pass a concrete model implementation must satisfy so the Engine
// can treat prompt prefill and decode steps uniformly, regardless of
// architecture or backend (spec.md §4.6). The actual tensor/model forward
// pass is out of scope for this repository (spec.md §1) — everything here
// is interface plus a deterministic Mock used by tests and the replay CLI.
//
// # Reading Guide
//
//   - pipeline.go: Capabilities, Batch/Row, DeviceInputs, Logits, the
//     Pipeline interface, and PipelineError's fatal/per-sequence split
//   - mock.go: Mock, a fake transformer whose logits are a deterministic
//     function of the last token id and position, for testing the engine
//     loop and speculative-decoding arbitration without a real backend
package pipeline
