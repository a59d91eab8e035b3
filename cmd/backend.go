package cmd

import (
	"fmt"

	"github.com/inferno-serve/inferno/engine"
	"github.com/inferno-serve/inferno/engine/pipeline"
	"github.com/inferno-serve/inferno/engineconfig"
)

// NewUnsupportedBackendError reports a pipeline.backend value this binary
// doesn't know how to construct. A binary embedding a real model backend
// builds its own pipeline.Pipeline and never reaches this path.
func NewUnsupportedBackendError(backend string) error {
	return fmt.Errorf("cmd: unsupported pipeline backend %q (this binary only wires \"mock\")", backend)
}

// buildMockPipeline constructs the target pipeline this binary knows how to
// wire.
func buildMockPipeline(cfg engineconfig.PipelineConfig) (*pipeline.Mock, error) {
	if cfg.Backend != "mock" {
		return nil, NewUnsupportedBackendError(cfg.Backend)
	}
	pipe := pipeline.NewMock(cfg.VocabSize)
	pipe.Drift = cfg.Drift
	return pipe, nil
}

// registerDraftPipelines wires every configured draft pipeline into eng's
// registry so requests may select one via SamplingParams.Speculative. Mock
// drafts share the target's vocabulary; a nonzero drift makes them disagree
// with the target often enough to exercise rejection and resampling.
func registerDraftPipelines(eng *engine.Engine, cfg engineconfig.PipelineConfig) error {
	for id, d := range cfg.Drafts {
		if d.Backend != "mock" {
			return NewUnsupportedBackendError(d.Backend)
		}
		dm := pipeline.NewMock(cfg.VocabSize)
		dm.Drift = d.Drift
		eng.RegisterDraftPipeline(id, dm)
	}
	return nil
}
