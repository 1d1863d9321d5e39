package query

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventMatchedEntityIDs   TraceEventKind = "matched_entity_ids"
	TraceEventReturnedEntityIDs  TraceEventKind = "returned_entity_ids"
	TraceEventQueriedEntityTypes TraceEventKind = "queried_entity_types"
	TraceEventCache              TraceEventKind = "cache"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	EntityIDs   []string
	EntityTypes []string
	CacheHit    bool
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordMatchedEntityIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventMatchedEntityIDs, EntityIDs: ids})
}

func RecordReturnedEntityIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventReturnedEntityIDs, EntityIDs: ids})
}

func RecordQueriedEntityTypes(t Tracer, types ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventQueriedEntityTypes, EntityTypes: types})
}

func RecordCache(t Tracer, hit bool) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventCache, CacheHit: hit})
}

// QueryTrace collects what a query matched and returned.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	matched     map[string]struct{}
	returned    map[string]struct{}
	entityTypes map[string]struct{}
	cacheHits   int
	cacheMisses int
}

type QueryTraceSnapshot struct {
	MatchedEntityIDs   []string `json:"matched_entity_ids"`
	ReturnedEntityIDs  []string `json:"returned_entity_ids"`
	QueriedEntityTypes []string `json:"queried_entity_types"`
	CacheHits          int      `json:"cache_hits"`
	CacheMisses        int      `json:"cache_misses"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		matched:     make(map[string]struct{}),
		returned:    make(map[string]struct{}),
		entityTypes: make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventMatchedEntityIDs:
		addAll(t.matched, event.EntityIDs)
	case TraceEventReturnedEntityIDs:
		addAll(t.returned, event.EntityIDs)
	case TraceEventQueriedEntityTypes:
		addAll(t.entityTypes, event.EntityTypes)
	case TraceEventCache:
		if event.CacheHit {
			t.cacheHits++
		} else {
			t.cacheMisses++
		}
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return QueryTraceSnapshot{
		MatchedEntityIDs:   sortedSet(t.matched),
		ReturnedEntityIDs:  sortedSet(t.returned),
		QueriedEntityTypes: sortedSet(t.entityTypes),
		CacheHits:          t.cacheHits,
		CacheMisses:        t.cacheMisses,
	}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
