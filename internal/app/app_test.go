package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bobmatnyc/the-island-sub004/internal/config"
	"github.com/bobmatnyc/the-island-sub004/pkg/classify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClassifier(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.AIConfig
		wantClient bool
		wantErr    bool
	}{
		{name: "procedural only", cfg: config.AIConfig{}},
		{name: "openai", cfg: config.AIConfig{Adapter: "openai", Model: "gpt-4o-mini", Key: "sk-test"}, wantClient: true},
		{name: "ollama", cfg: config.AIConfig{Adapter: "ollama", Model: "llama3", URL: "http://localhost:11434"}, wantClient: true},
		{name: "bad ollama url", cfg: config.AIConfig{Adapter: "ollama", URL: "://nope"}, wantErr: true},
		{name: "unknown", cfg: config.AIConfig{Adapter: "bard"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, client, err := NewClassifier(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, &classify.Tiered{}, c)
			assert.Equal(t, tt.wantClient, client != nil)
		})
	}
}

func TestOpenLocalOnly(t *testing.T) {
	cfg := config.Config{
		ArtifactDir:  filepath.Join(t.TempDir(), "artifacts"),
		CorpusPath:   "mentions.jsonl",
		CurationPath: "curation.yaml",
		GraphWorkers: 3,
		TopK:         10,
		Retain:       4,
	}
	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Rebuilder)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Channel)
	assert.Nil(t, a.Backup)
	assert.Nil(t, a.AI)
	a.LogAIMetrics()

	assert.Equal(t, "mentions.jsonl", a.Inputs().CorpusPath)
	opts := a.Options(nil)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, 10, opts.TopK)
	assert.NotNil(t, opts.Classifier)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), config.Config{ArtifactDir: t.TempDir()})
	assert.Error(t, err)
}
