package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "categorize_jobs", cfg.RabbitQueue)
	assert.Equal(t, "pNInz6obpgDQGcFmaJgB", cfg.ElevenLabsVoiceID)
	assert.Equal(t, 20*time.Second, cfg.NarrationTimeout)
	assert.True(t, cfg.SessionTokens)
	assert.False(t, cfg.CategorizeAsync)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", " KV ")
	t.Setenv("AI_PROVIDER", "Anthropic")
	t.Setenv("CATEGORIZE_ASYNC", "true")
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("NARRATION_TIMEOUT", "5s")

	cfg := Load()

	assert.Equal(t, "kv", cfg.StoreBackend)
	assert.Equal(t, "anthropic", cfg.AIProvider)
	assert.True(t, cfg.CategorizeAsync)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
	assert.Equal(t, 5*time.Second, cfg.NarrationTimeout)
}
