package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferno-serve/inferno/engine"
	"github.com/inferno-serve/inferno/engine/sampler"
	"github.com/inferno-serve/inferno/engineconfig"
)

var (
	replayConfigPath string
	replayTracePath  string
)

// traceRecord is one line of the replay trace, descended from the
// teacher's workload-generation ethos (sim/workload/replay.go) but scoped
// to what the core engine actually consumes: prompt tokens and sampling
// params, not a full protocol-layer request.
type traceRecord struct {
	PromptTokens []int    `json:"prompt_tokens"`
	MaxNewTokens uint32   `json:"max_new_tokens"`
	Temperature  float32  `json:"temperature"`
	Seed         *uint64  `json:"seed"`
	StopStrings  []string `json:"stop_strings"`

	// DraftPipelineID/SpeculativeK, when set, request speculative decoding
	// against a draft named in the config's pipeline.drafts section.
	DraftPipelineID string `json:"draft_pipeline_id"`
	SpeculativeK    uint32 `json:"speculative_k"`
}

// replayCmd feeds a recorded request trace through an in-process Engine
// wired to the mock Pipeline, for local behavioral testing without a real
// model backend (SPEC_FULL.md "Replay CLI").
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Submit a JSONL trace of prompts to an in-process engine with the mock pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := engineconfig.Load(replayConfigPath)
		if err != nil {
			return err
		}
		store, prefix, policy, ecfg, err := cfg.Build()
		if err != nil {
			return err
		}
		pipe, err := buildMockPipeline(cfg.Pipeline)
		if err != nil {
			return err
		}

		metrics := engine.NewMetrics()
		reg := prometheus.NewRegistry()
		for _, c := range metrics.Collectors() {
			if err := reg.Register(c); err != nil {
				return err
			}
		}

		eng := engine.NewEngine(ecfg, store, prefix, policy, pipe, metrics, newTokenIDDetokenizer)
		if err := registerDraftPipelines(eng, cfg.Pipeline); err != nil {
			return err
		}

		records, err := readTrace(replayTracePath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var wg sync.WaitGroup
		for i, rec := range records {
			sink := make(chan engine.Chunk, 64)
			params := sampler.Params{
				Temperature: rec.Temperature,
				Seed:        rec.Seed,
			}
			if rec.DraftPipelineID != "" {
				params.Speculative = &sampler.SpeculativeParams{
					DraftPipelineID: rec.DraftPipelineID,
					K:               rec.SpeculativeK,
				}
			}
			req := &engine.Request{
				ID:           fmt.Sprintf("replay-%d", i),
				Kind:         engine.Completion,
				PromptTokens: rec.PromptTokens,
				Sampling:     params,
				Stop: engine.StopParams{
					MaxNewTokens: rec.MaxNewTokens,
					StopStrings:  rec.StopStrings,
				},
				ModelID: cfg.ModelID,
				Sink:    sink,
				Cancel:  make(chan struct{}),
			}
			if err := eng.Submit(req); err != nil {
				return fmt.Errorf("replay: submit %s: %w", req.ID, err)
			}
			wg.Add(1)
			go drainReplaySink(req.ID, sink, &wg)
		}

		done := make(chan error, 1)
		go func() { done <- eng.Run(ctx) }()

		wg.Wait()
		cancel()
		if err := <-done; err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func drainReplaySink(id string, sink chan engine.Chunk, wg *sync.WaitGroup) {
	defer wg.Done()
	for c := range sink {
		switch c.Kind {
		case engine.ChunkDone:
			logrus.Infof("%s: done reason=%s prompt_tokens=%d completion_tokens=%d prefix_cache_hit_tokens=%d",
				id, c.Reason, c.Usage.PromptTokens, c.Usage.CompletionTokens, c.Usage.PrefixCacheHitTokens)
		case engine.ChunkError:
			logrus.Warnf("%s: error kind=%s msg=%s", id, c.ErrKind, c.ErrMsg)
		}
	}
}

func readTrace(path string) ([]traceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open trace %s: %w", path, err)
	}
	defer f.Close()

	var records []traceRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec traceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("replay: parse trace line: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: read trace %s: %w", path, err)
	}
	return records, nil
}

func init() {
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "engineconfig/defaults.yaml", "Path to replica YAML config")
	replayCmd.Flags().StringVar(&replayTracePath, "trace", "", "Path to a JSONL trace of prompt records")
	replayCmd.MarkFlagRequired("trace")
}
