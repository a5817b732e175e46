package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "docweave:ingestion", cfg.Queue.Key)
	assert.Equal(t, time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Worker.PopTimeout)
	assert.Equal(t, 800, cfg.Chunking.Parent.Size)
	assert.Equal(t, 100, cfg.Chunking.Parent.Overlap)
	assert.Equal(t, 300, cfg.Chunking.Child.Size)
	assert.Equal(t, 50, cfg.Chunking.Child.Overlap)
	assert.Equal(t, 0.4, cfg.Guardrail.Threshold)
	assert.Equal(t, 5, cfg.Guardrail.MinAnswerLength)
	assert.True(t, cfg.Guardrail.FailOpen)
	assert.Equal(t, DefaultRefusalPhrase, cfg.Guardrail.RefusalPhrase)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
	assert.Equal(t, []string{".pdf"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
worker:
  poll_interval: 500ms
  concurrency: 3
guardrail:
  fail_open: false
  threshold: 0.55
queue:
  reliable: true
embedding:
  timeout: 5s
llm:
  timeout: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.False(t, cfg.Guardrail.FailOpen)
	assert.Equal(t, 0.55, cfg.Guardrail.Threshold)
	assert.True(t, cfg.Queue.Reliable)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
