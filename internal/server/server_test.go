package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/internal/queue"
	mid "github.com/bobmatnyc/the-island-sub004/internal/server/middleware"
	"github.com/bobmatnyc/the-island-sub004/pkg/store/file"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpus = `{"surface_text":"Jeffrey Epstein","source_document_id":"flight-1"}
{"surface_text":"Ghislaine Maxwell","source_document_id":"flight-1"}
{"surface_text":"Palm Beach","source_document_id":"flight-1","context":{"type_hint":"location"}}
{"surface_text":"JEFFREY EPSTEIN","source_document_id":"flight-2"}
{"surface_text":"Ghislaine Maxwell","source_document_id":"flight-2"}
`

const jwtSecret = "test-secret"

type fixture struct {
	store     *file.FileStore
	snapshots *SnapshotHolder
	app       *mid.App
	inputs    pipeline.Inputs
	rebuilder *pipeline.Rebuilder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "mentions.jsonl")
	require.NoError(t, os.WriteFile(corpusPath, []byte(corpus), 0o644))

	fs, err := file.NewFileStore(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)

	f := &fixture{
		store:     fs,
		inputs:    pipeline.Inputs{CorpusPath: corpusPath, CurationPath: filepath.Join(dir, "curation.yaml")},
		rebuilder: pipeline.NewRebuilder(fs),
	}
	_, err = f.rebuilder.Run(context.Background(), f.inputs, f.options())
	require.NoError(t, err)

	f.snapshots, err = NewSnapshotHolder(context.Background(), fs)
	require.NoError(t, err)

	f.app = &mid.App{
		Snapshots:    f.snapshots,
		CurationPath: f.inputs.CurationPath,
		Rebuild: func(ctx context.Context) (pipeline.Report, error) {
			report, err := f.rebuilder.Run(ctx, f.inputs, f.options())
			if err != nil {
				return report, err
			}
			_, err = f.snapshots.Reload(ctx)
			return report, err
		},
	}
	return f
}

func (f *fixture) options() pipeline.Options {
	return pipeline.Options{Workers: 2, SnapshotTime: "2024-06-01T00:00:00Z"}
}

func (f *fixture) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	New(f.app).ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func hmacKeyFunc(*jwt.Token) (any, error) { return []byte(jwtSecret), nil }

func entityIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	var ids []string
	for _, e := range body["entities"].([]any) {
		ids = append(ids, e.(map[string]any)["id"].(string))
	}
	return ids
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSearchEntities(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/entities?q=epstein", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, []string{"jeffrey-epstein"}, entityIDs(t, body))
	assert.Equal(t, f.snapshots.Current().Version(), body["version"])

	rec = f.do(t, http.MethodGet, "/api/entities?type=location", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"palm-beach"}, entityIDs(t, decode(t, rec)))

	rec = f.do(t, http.MethodGet, "/api/entities?sort=connection_count&desc=true&limit=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["entities"], 1)

	rec = f.do(t, http.MethodGet, "/api/entities?sort=shoe_size", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/entities?offset=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEntitiesTrace(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/entities?q=maxwell&trace=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	trace := decode(t, rec)["trace"].(map[string]any)
	assert.Equal(t, []any{"ghislaine-maxwell"}, trace["returned_entity_ids"])

	rec = f.do(t, http.MethodGet, "/api/entities?q=maxwell", "", "")
	assert.NotContains(t, decode(t, rec), "trace")
}

func TestGetEntity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/entities/Jeffrey%20Epstein", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "jeffrey-epstein", decode(t, rec)["id"])

	rec = f.do(t, http.MethodGet, "/api/entities/palm-beach", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "location", decode(t, rec)["entity_type"])

	rec = f.do(t, http.MethodGet, "/api/entities/nobody", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetGraph(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/graph?type=person", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["nodes"], 2)
	assert.Len(t, body["edges"], 1)
	assert.Equal(t, f.snapshots.Current().Version(), rec.Header().Get("X-Snapshot-Version"))

	rec = f.do(t, http.MethodGet, "/api/graph?dedup=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["nodes"], 3)

	rec = f.do(t, http.MethodGet, "/api/graph?max_nodes=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/graph?type=planet", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["entity_count"])
}

func TestAuth(t *testing.T) {
	f := newFixture(t)
	f.app.MasterAPIKey = "master-key"
	f.app.KeyFunc = hmacKeyFunc

	curator := signToken(t, jwt.MapClaims{"id": float64(42), "permissions": []any{mid.PermissionCurate}}, jwtSecret)
	reader := signToken(t, jwt.MapClaims{"id": "7"}, jwtSecret)
	forged := signToken(t, jwt.MapClaims{"id": "7", "role": "admin"}, "wrong-secret")
	noID := signToken(t, jwt.MapClaims{"role": "user"}, jwtSecret)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/stats", "", "", http.StatusUnauthorized},
		{"master key", http.MethodGet, "/api/stats", "", "master-key", http.StatusOK},
		{"reader jwt", http.MethodGet, "/api/stats", "", reader, http.StatusOK},
		{"forged jwt", http.MethodGet, "/api/stats", "", forged, http.StatusUnauthorized},
		{"jwt without id", http.MethodGet, "/api/stats", "", noID, http.StatusUnauthorized},
		{"reader cannot rebuild", http.MethodPost, "/api/rebuild", "", reader, http.StatusForbidden},
		{"curator cannot rebuild", http.MethodPost, "/api/rebuild", "", curator, http.StatusForbidden},
		{"curator curates", http.MethodPost, "/api/curation/aliases", `{"aliases":[{"variant":"j epstein","canonical":"Jeffrey Epstein"}]}`, curator, http.StatusCreated},
		{"master rebuilds", http.MethodPost, "/api/rebuild", "", "master-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body, tt.token)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAnonymousIsReadOnly(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/stats", "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/rebuild", "", "").Code)
}

func TestCurationExclusionWithRebuild(t *testing.T) {
	f := newFixture(t)
	f.app.MasterAPIKey = "master-key"
	before := f.snapshots.Current().Version()

	rec := f.do(t, http.MethodPost, "/api/curation/exclusions",
		`{"exclusions":[{"name":"Palm Beach","entity_type":"location","reason":"not an entity"}],"rebuild":true}`, "master-key")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["submission_id"])

	assert.NotEqual(t, before, f.snapshots.Current().Version())
	rec = f.do(t, http.MethodGet, "/api/entities?type=location", "", "master-key")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total"])
}

func TestCurationRejectsInvalidBody(t *testing.T) {
	f := newFixture(t)
	f.app.MasterAPIKey = "master-key"

	tests := []struct {
		target string
		body   string
	}{
		{"/api/curation/aliases", `{"aliases":[{"variant":"j epstein"}]}`},
		{"/api/curation/aliases", `{"aliases":[]}`},
		{"/api/curation/aliases", `{"aliases":[{"variant":"a","canonical":"b","entity_type":"planet"}]}`},
		{"/api/curation/exclusions", `{"exclusions":[{"reason":"no target"}]}`},
		{"/api/curation/exclusions", `{"exclusions":[{"name":"NPA"}]}`},
		{"/api/curation/exclusions", `not json`},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodPost, tt.target, tt.body, "master-key")
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.body)
	}
}

type fakeChannel struct {
	published map[string][][]byte
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
	return amqp091.Queue{Name: name}, nil
}

func (c *fakeChannel) Publish(_, key string, _, _ bool, msg amqp091.Publishing) error {
	if c.published == nil {
		c.published = map[string][][]byte{}
	}
	c.published[key] = append(c.published[key], msg.Body)
	return nil
}

func TestWritesGoThroughQueue(t *testing.T) {
	f := newFixture(t)
	f.app.MasterAPIKey = "master-key"
	ch := &fakeChannel{}
	f.app.Queue = ch

	rec := f.do(t, http.MethodPost, "/api/rebuild", "", "master-key")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["request_id"])
	assert.Len(t, ch.published[queue.RebuildQueue], 1)

	rec = f.do(t, http.MethodPost, "/api/curation/exclusions", `{"exclusions":[{"name":"NPA","reason":"noise"}]}`, "master-key")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, ch.published[queue.CurationQueue], 1)

	var msg queue.CurationMsg
	require.NoError(t, json.Unmarshal(ch.published[queue.CurationQueue][0], &msg))
	assert.Equal(t, "NPA", msg.Curation.Exclusions[0].Name)
	assert.False(t, msg.Rebuild)
}

func TestRebuildUnavailable(t *testing.T) {
	f := newFixture(t)
	f.app.MasterAPIKey = "master-key"
	f.app.Rebuild = nil
	rec := f.do(t, http.MethodPost, "/api/rebuild", "", "master-key")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotHolderReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	swapped, err := f.snapshots.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, swapped)

	report, err := f.rebuilder.Run(ctx, f.inputs, f.options())
	require.NoError(t, err)

	swapped, err = f.snapshots.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, report.Version, f.snapshots.Current().Version())
}

func TestSnapshotHolderEmptyStore(t *testing.T) {
	fs, err := file.NewFileStore(t.TempDir())
	require.NoError(t, err)

	h, err := NewSnapshotHolder(context.Background(), fs)
	require.NoError(t, err)
	assert.Equal(t, "", h.Current().Version())

	swapped, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestSnapshotHolderWatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.snapshots.Watch(ctx, f.store.Root()) }()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	report, err := f.rebuilder.Run(ctx, f.inputs, f.options())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.snapshots.Current().Version() == report.Version
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
