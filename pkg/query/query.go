// Package query serves a committed snapshot: entity lookup, full-text
// search and filtered graph views. A Snapshot is immutable after Load and
// safe for any number of concurrent readers.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"github.com/blevesearch/bleve/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultGraphCacheSize bounds the number of cached graph responses.
const DefaultGraphCacheSize = 128

// QueryClient is the read API over one snapshot.
type QueryClient interface {
	Version() string
	GetEntity(ctx context.Context, key string) (common.CanonicalEntity, error)
	SearchEntities(ctx context.Context, req SearchRequest, opts ...QueryOption) (SearchResult, error)
	GetGraph(ctx context.Context, filter GraphFilter, opts ...QueryOption) (*common.Graph, error)
	Stats() Stats
}

type queryOptions struct {
	tracer Tracer
}

// QueryOption is a functional option for a single query.
type QueryOption func(*queryOptions)

// WithTracer records what the query matched and returned.
func WithTracer(t Tracer) QueryOption {
	return func(o *queryOptions) {
		o.tracer = t
	}
}

func applyOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Snapshot is an in-memory, read-only view of one committed snapshot.
type Snapshot struct {
	version  string
	entities []common.CanonicalEntity
	graph    *common.Graph

	byID   map[string]int
	byGUID map[string]int
	byName map[string][]int

	index bleve.Index
	cache *lru.Cache[string, *common.Graph]
}

var _ QueryClient = (*Snapshot)(nil)

type entityDoc struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
	Type    string   `json:"type"`
}

// NewSnapshot indexes entities and graph. Entities are re-sorted by id; the
// caller's slices are not retained.
func NewSnapshot(version string, entities []common.CanonicalEntity, graph *common.Graph) (*Snapshot, error) {
	if graph == nil {
		graph = &common.Graph{Nodes: []common.GraphNode{}, Edges: []common.GraphEdge{}}
	}
	s := &Snapshot{
		version:  version,
		entities: append([]common.CanonicalEntity(nil), entities...),
		graph:    graph,
		byID:     make(map[string]int, len(entities)),
		byGUID:   make(map[string]int, len(entities)),
		byName:   make(map[string][]int),
	}
	sort.Slice(s.entities, func(i, j int) bool { return s.entities[i].ID < s.entities[j].ID })

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	batch := index.NewBatch()
	for i, e := range s.entities {
		s.byID[e.ID] = i
		s.byGUID[e.GUID] = i
		for _, name := range append([]string{e.CanonicalName}, e.Aliases...) {
			key := normalize.Key(name)
			if n := len(s.byName[key]); n == 0 || s.byName[key][n-1] != i {
				s.byName[key] = append(s.byName[key], i)
			}
		}
		if err := batch.Index(e.ID, entityDoc{Name: e.CanonicalName, Aliases: e.Aliases, Type: string(e.EntityType)}); err != nil {
			return nil, fmt.Errorf("failed to index %s: %w", e.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to build search index: %w", err)
	}
	s.index = index

	cache, err := lru.New[string, *common.Graph](DefaultGraphCacheSize)
	if err != nil {
		return nil, err
	}
	s.cache = cache

	logger.Info("[Query] Snapshot loaded", "version", version, "entities", len(s.entities), "edges", len(graph.Edges))
	return s, nil
}

// Load reads the current snapshot of an artifact store.
func Load(ctx context.Context, artifacts store.ArtifactStore) (*Snapshot, error) {
	version, err := artifacts.Current(ctx)
	if err != nil {
		return nil, err
	}

	var entities []common.CanonicalEntity
	if err := readJSON(ctx, artifacts, version, store.FileEntities, &entities); err != nil {
		return nil, err
	}
	var graph common.Graph
	if err := readJSON(ctx, artifacts, version, store.FileGraph, &graph); err != nil {
		return nil, err
	}
	return NewSnapshot(version, entities, &graph)
}

// LoadOrEmpty is Load, but a store without any snapshot yields an empty
// snapshot instead of an error.
func LoadOrEmpty(ctx context.Context, artifacts store.ArtifactStore) (*Snapshot, error) {
	s, err := Load(ctx, artifacts)
	if errors.Is(err, store.ErrNoSnapshot) {
		logger.Warn("[Query] No snapshot committed yet, serving an empty one")
		return NewSnapshot("", nil, nil)
	}
	return s, err
}

func readJSON(ctx context.Context, artifacts store.ArtifactStore, version, name string, out any) error {
	b, err := artifacts.ReadFile(ctx, version, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// Close releases the search index. The snapshot must not be used after.
func (s *Snapshot) Close() error {
	s.cache.Purge()
	return s.index.Close()
}

func (s *Snapshot) Version() string { return s.version }

// GetEntity finds an entity by id, guid, canonical name or alias. Names are
// matched case-insensitively; when several entities share a name the one
// with the smallest id wins.
func (s *Snapshot) GetEntity(ctx context.Context, key string) (common.CanonicalEntity, error) {
	key = strings.TrimSpace(key)
	if i, ok := s.byID[key]; ok {
		return s.entities[i], nil
	}
	if i, ok := s.byGUID[strings.ToLower(key)]; ok {
		return s.entities[i], nil
	}
	if idx := s.byName[normalize.Key(key)]; len(idx) > 0 {
		return s.entities[idx[0]], nil
	}
	return common.CanonicalEntity{}, fmt.Errorf("%w: entity %q", common.ErrNotFound, key)
}

// Stats summarizes the snapshot.
type Stats struct {
	Version       string              `json:"version"`
	EntityCount   int                 `json:"entity_count"`
	LowConfidence int                 `json:"low_confidence"`
	Graph         common.GraphSummary `json:"graph"`
}

func (s *Snapshot) Stats() Stats {
	st := Stats{Version: s.version, EntityCount: len(s.entities), Graph: s.graph.Summary}
	for _, e := range s.entities {
		if e.ConfidenceFlag == common.ConfidenceLow {
			st.LowConfidence++
		}
	}
	return st
}
