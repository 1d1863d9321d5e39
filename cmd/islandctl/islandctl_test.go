package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/pkg/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpus = `{"surface_text":"Je        Je Epstein","source_document_id":"flight-1"}
{"surface_text":"Ghislaine Maxwell","source_document_id":"flight-1"}
{"surface_text":"NPA","source_document_id":"flight-1","context":{"type_hint":"location"}}
{"surface_text":"Jeffrey Epstein","source_document_id":"flight-2"}
{"surface_text":"Ghislaine Maxwell","source_document_id":"flight-2"}
{"surface_text":"JEFFREY EPSTEIN","source_document_id":"flight-3"}
`

const rules = `rules:
  - name: je
    stage: expand
    action: expand_abbreviation
    match: [Je]
    replacement: Jeffrey
`

type env struct {
	dir   string
	flags []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "RABBITMQ_HOST", "AWS_BUCKET", "AI_ADAPTER", "SNAPSHOT_TIME", "GRAPH_WORKERS"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mentions.jsonl"), []byte(corpus), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(rules), 0o644))
	return &env{
		dir: dir,
		flags: []string{
			"--artifact-dir", filepath.Join(dir, "artifacts"),
			"--corpus", filepath.Join(dir, "mentions.jsonl"),
			"--curation", filepath.Join(dir, "curation.yaml"),
			"--rules", filepath.Join(dir, "rules.yaml"),
			"--workers", "2",
		},
	}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, e.flags...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestRebuildAndSearch(t *testing.T) {
	e := newEnv(t)

	var report pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(t, "rebuild", "--json", "--quiet")), &report))
	assert.NotEmpty(t, report.Version)
	assert.Equal(t, 6, report.Manifest.Counts["mentions"])
	assert.Equal(t, 3, report.Manifest.Counts["entities"])

	var res query.SearchResult
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(t, "search", "epstein", "--json")), &res))
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "jeffrey-epstein", res.Entities[0].ID)

	out := e.mustRun(t, "search", "--type", "location")
	assert.Contains(t, out, "npa")
	assert.Contains(t, out, "1 of 1")
}

func TestResolveExplain(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "rebuild", "--quiet")

	out := e.mustRun(t, "resolve", "--explain", "Je        Je Epstein")
	assert.True(t, strings.HasPrefix(out, "jeffrey-epstein\t"), out)
	assert.Contains(t, out, "normalized:")
	assert.Contains(t, out, "resolved by:")

	var v struct {
		Entity struct {
			ID string `json:"id"`
		} `json:"entity"`
		Trace map[string]any `json:"trace"`
	}
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(t, "resolve", "--json", "JEFFREY EPSTEIN")), &v))
	assert.Equal(t, "jeffrey-epstein", v.Entity.ID)
	assert.Nil(t, v.Trace)
}

func TestResolveWithoutSnapshot(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "resolve", "Ghislaine Maxwell")
	assert.True(t, strings.HasPrefix(out, "ghislaine-maxwell\t"), out)
}

func TestCurateExcludeThenRollback(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "rebuild", "--quiet")

	out := e.mustRun(t, "curate", "exclude", "--name", "NPA", "--type", "location", "--reason", "not a place")
	assert.Contains(t, out, "Recorded submission")

	// the current snapshot is untouched until the next rebuild
	assert.Contains(t, e.mustRun(t, "search", "--type", "location"), "1 of 1")

	e.mustRun(t, "rebuild", "--quiet")
	assert.Contains(t, e.mustRun(t, "search", "--type", "location"), "0 of 0")

	out = e.mustRun(t, "versions")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	e.mustRun(t, "rollback")
	assert.Contains(t, e.mustRun(t, "search", "--type", "location"), "1 of 1")
}

func TestCurateAlias(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "curate", "alias", "--variant", "gm", "--canonical", "Ghislaine Maxwell", "--type", "person")

	b, err := os.ReadFile(filepath.Join(e.dir, "curation.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "Ghislaine Maxwell")
	assert.Contains(t, string(b), "curated")

	_, err = e.run(t, "curate", "alias", "--variant", "gm")
	assert.Error(t, err)
}

func TestCommandsNeedingIntegrations(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "migrate")
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = e.run(t, "backup", "list")
	assert.ErrorContains(t, err, "AWS_BUCKET")

	_, err = e.run(t, "rollback")
	assert.Error(t, err)
}

func TestRootCommandFlags(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"artifact-dir", "corpus", "events", "curation", "rules", "workers", "json"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"rebuild", "rollback", "versions", "resolve", "search", "curate", "migrate", "backup"})
}
