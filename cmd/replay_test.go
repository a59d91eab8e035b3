package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTrace(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplayCmd_DrivesMockPipelineToCompletion(t *testing.T) {
	replayConfigPath = "../engineconfig/defaults.yaml"
	replayTracePath = writeTrace(t,
		`{"prompt_tokens":[1,2,3],"max_new_tokens":4,"temperature":0}`,
		`{"prompt_tokens":[4,5],"max_new_tokens":2,"temperature":0}`,
	)
	require.NoError(t, replayCmd.RunE(replayCmd, nil))
}

func TestReplayCmd_SpeculativeTraceCompletes(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := "model_id: m1\n" +
		"intake_burst: 8\n" +
		"kv_cache:\n  variant: paged\n  total_blocks: 64\n  block_size: 16\n" +
		"prefix_cache:\n  evictable_capacity: 32\n" +
		"scheduler:\n  policy: paged\n  max_num_seqs: 8\n  max_model_len: 512\n" +
		"pipeline:\n  backend: mock\n  vocab_size: 1000\n" +
		"  drafts:\n    draft-small:\n      backend: mock\n      drift: 3\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	replayConfigPath = cfgPath
	replayTracePath = writeTrace(t,
		`{"prompt_tokens":[1,2,3],"max_new_tokens":4,"temperature":0,"draft_pipeline_id":"draft-small","speculative_k":2}`,
	)
	require.NoError(t, replayCmd.RunE(replayCmd, nil))
}

func TestReadTrace_RejectsMalformedLine(t *testing.T) {
	path := writeTrace(t, `not json`)
	_, err := readTrace(path)
	require.Error(t, err)
}

func TestReadTrace_SkipsBlankLines(t *testing.T) {
	path := writeTrace(t, `{"prompt_tokens":[1],"max_new_tokens":1}`, "", `{"prompt_tokens":[2],"max_new_tokens":1}`)
	records, err := readTrace(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
