package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ARTIFACT_DIR", "GRAPH_WORKERS", "TOP_K", "AI_ADAPTER", "RABBITMQ_HOST", "AWS_BUCKET", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
	t.Setenv("ARTIFACT_DIR", "/tmp/island")

	cfg := Load()
	assert.Equal(t, "/tmp/island", cfg.ArtifactDir)
	assert.Equal(t, 4, cfg.GraphWorkers)
	assert.False(t, cfg.RabbitMQ.Enabled())
	assert.False(t, cfg.S3.Enabled())
	assert.False(t, cfg.LogJSON)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRAPH_WORKERS", "8")
	t.Setenv("TOP_K", "3")
	t.Setenv("AI_ADAPTER", "Ollama")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("RABBITMQ_USER", "guest")
	t.Setenv("RABBITMQ_PASSWORD", "secret")
	t.Setenv("RABBITMQ_HOST", "mq")
	t.Setenv("RABBITMQ_PORT", "5673")

	cfg := Load()
	assert.Equal(t, 8, cfg.GraphWorkers)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, "ollama", cfg.AI.Adapter)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "amqp://guest:secret@mq:5673/", cfg.RabbitMQ.URL())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := Config{ArtifactDir: "a", GraphWorkers: 1}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"NoArtifactDir", func(c *Config) { c.ArtifactDir = "" }},
		{"NoWorkers", func(c *Config) { c.GraphWorkers = 0 }},
		{"NegativeTopK", func(c *Config) { c.TopK = -1 }},
		{"UnknownAdapter", func(c *Config) { c.AI.Adapter = "gemini" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
