package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/graph"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
)

// GraphFilter selects a view of the snapshot graph.
type GraphFilter struct {
	MinConnections int                 `json:"min_connections" query:"min_connections" validate:"min=0"`
	MaxNodes       int                 `json:"max_nodes" query:"max_nodes" validate:"min=0"`
	Types          []common.EntityType `json:"types" query:"type"`
	Dedup          bool                `json:"dedup" query:"dedup"`
}

func (f GraphFilter) cacheKey() string {
	types := make([]string, len(f.Types))
	for i, t := range f.Types {
		types[i] = string(t)
	}
	sort.Strings(types)
	return fmt.Sprintf("min=%d|max=%d|types=%s|dedup=%t", f.MinConnections, f.MaxNodes, strings.Join(types, ","), f.Dedup)
}

func (f GraphFilter) empty() bool {
	return f.MinConnections <= 0 && f.MaxNodes <= 0 && len(f.Types) == 0
}

// GetGraph returns a filtered view of the snapshot graph. Responses are
// cached per filter and shared between callers; they must not be modified.
//
// With Dedup set, nodes whose names still normalize to the same key (and
// share a type) are merged on the fly, names that still carry an artifact
// are shown normalized, and node analytics are recomputed on the merged
// view. The snapshot itself is never changed, and when there is nothing to
// merge or rename the response equals the one without Dedup.
func (s *Snapshot) GetGraph(ctx context.Context, filter GraphFilter, opts ...QueryOption) (*common.Graph, error) {
	o := applyOptions(opts)
	if filter.MinConnections < 0 || filter.MaxNodes < 0 {
		return nil, fmt.Errorf("%w: negative graph filter", common.ErrMalformedInput)
	}
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown entity type %q", common.ErrMalformedInput, t)
		}
		RecordQueriedEntityTypes(o.tracer, string(t))
	}

	key := filter.cacheKey()
	if g, ok := s.cache.Get(key); ok {
		RecordCache(o.tracer, true)
		return g, nil
	}
	RecordCache(o.tracer, false)

	nodes, edges := s.graph.Nodes, s.graph.Edges
	merged := false
	if filter.Dedup {
		nodes, edges, merged = dedup(nodes, edges, s.graph.Summary.TopK)
	}

	var out *common.Graph
	if !merged && filter.empty() {
		out = s.graph
	} else {
		nodes, edges = applyFilter(nodes, edges, filter)
		out = &common.Graph{Nodes: nodes, Edges: edges, Summary: graph.Summarize(nodes, edges)}
		out.Summary.TopK = s.graph.Summary.TopK
	}

	ids := make([]string, len(out.Nodes))
	for i, n := range out.Nodes {
		ids[i] = n.ID
	}
	RecordReturnedEntityIDs(o.tracer, ids...)

	s.cache.Add(key, out)
	return out, nil
}

func applyFilter(nodes []common.GraphNode, edges []common.GraphEdge, f GraphFilter) ([]common.GraphNode, []common.GraphEdge) {
	types := make(map[common.EntityType]struct{}, len(f.Types))
	for _, t := range f.Types {
		types[t] = struct{}{}
	}

	kept := make([]common.GraphNode, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := types[n.EntityType]; len(types) > 0 && !ok {
			continue
		}
		if n.ConnectionCount < f.MinConnections {
			continue
		}
		kept = append(kept, n)
	}

	if f.MaxNodes > 0 && len(kept) > f.MaxNodes {
		ranked := append([]common.GraphNode(nil), kept...)
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].ConnectionCount != ranked[j].ConnectionCount {
				return ranked[i].ConnectionCount > ranked[j].ConnectionCount
			}
			return ranked[i].ID < ranked[j].ID
		})
		kept = ranked[:f.MaxNodes]
		sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	}

	in := make(map[string]struct{}, len(kept))
	for _, n := range kept {
		in[n.ID] = struct{}{}
	}
	keptEdges := make([]common.GraphEdge, 0, len(edges))
	for _, e := range edges {
		_, s := in[e.SourceID]
		_, t := in[e.TargetID]
		if s && t {
			keptEdges = append(keptEdges, e)
		}
	}
	return kept, keptEdges
}

// dedup merges nodes that share a type and a normalized name key. The
// survivor of a group is the node with the most connections, then the
// smallest id. Edges are re-pointed at survivors and merged; edges that
// collapse onto one node are dropped. Remaining names are shown normalized,
// and every node's analytics are recomputed so no connection refers to an
// absorbed node.
func dedup(nodes []common.GraphNode, edges []common.GraphEdge, topK int) ([]common.GraphNode, []common.GraphEdge, bool) {
	type groupKey struct {
		name string
		typ  common.EntityType
	}
	groups := make(map[groupKey][]int)
	renamed := false
	for i, n := range nodes {
		display := normalize.Normalize(n.CanonicalName)
		if display != n.CanonicalName {
			renamed = true
		}
		k := groupKey{normalize.Key(display), n.EntityType}
		groups[k] = append(groups[k], i)
	}

	survivor := make(map[string]string)
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		best := members[0]
		for _, m := range members[1:] {
			if nodes[m].ConnectionCount > nodes[best].ConnectionCount ||
				(nodes[m].ConnectionCount == nodes[best].ConnectionCount && nodes[m].ID < nodes[best].ID) {
				best = m
			}
		}
		for _, m := range members {
			if m != best {
				survivor[nodes[m].ID] = nodes[best].ID
			}
		}
	}
	if len(survivor) == 0 && !renamed {
		return nodes, edges, false
	}

	resolve := func(id string) string {
		if to, ok := survivor[id]; ok {
			return to
		}
		return id
	}

	type pair struct{ s, t string }
	weights := make(map[pair]*common.GraphEdge)
	for _, e := range edges {
		s, t := resolve(e.SourceID), resolve(e.TargetID)
		if s == t {
			continue
		}
		if s > t {
			s, t = t, s
		}
		acc, ok := weights[pair{s, t}]
		if !ok {
			acc = &common.GraphEdge{SourceID: s, TargetID: t, Provenance: common.EdgeProvenance{Kind: e.Provenance.Kind}}
			weights[pair{s, t}] = acc
		}
		acc.Weight += e.Weight
		acc.Provenance.EventIDs = append(acc.Provenance.EventIDs, e.Provenance.EventIDs...)
	}
	outEdges := make([]common.GraphEdge, 0, len(weights))
	for _, e := range weights {
		sort.Strings(e.Provenance.EventIDs)
		e.Provenance.EventIDs = compact(e.Provenance.EventIDs)
		// merged nodes may have shared an event; weight counts distinct events
		if len(e.Provenance.EventIDs) > 0 {
			e.Weight = len(e.Provenance.EventIDs)
		}
		outEdges = append(outEdges, *e)
	}
	sort.Slice(outEdges, func(i, j int) bool {
		if outEdges[i].SourceID != outEdges[j].SourceID {
			return outEdges[i].SourceID < outEdges[j].SourceID
		}
		return outEdges[i].TargetID < outEdges[j].TargetID
	})

	absorbed := make(map[string][]common.GraphNode)
	for _, n := range nodes {
		if to, ok := survivor[n.ID]; ok {
			absorbed[to] = append(absorbed[to], n)
		}
	}
	outNodes := make([]common.GraphNode, 0, len(nodes)-len(survivor))
	for _, n := range nodes {
		if _, gone := survivor[n.ID]; gone {
			continue
		}
		others := absorbed[n.ID]
		if display := normalize.Normalize(n.CanonicalName); display != n.CanonicalName || len(others) > 0 {
			n.Aliases = mergeAliases(n, display, others)
			n.CanonicalName = display
		}
		if len(others) > 0 {
			n.Sources = mergeSources(n, others)
		}
		outNodes = append(outNodes, n)
	}
	return graph.Reanalyze(outNodes, outEdges, topK), outEdges, true
}

// mergeAliases collects the aliases of n and others, plus every name other
// than display.
func mergeAliases(n common.GraphNode, display string, others []common.GraphNode) []string {
	set := map[string]struct{}{n.CanonicalName: {}}
	for _, a := range n.Aliases {
		set[a] = struct{}{}
	}
	for _, o := range others {
		set[o.CanonicalName] = struct{}{}
		for _, a := range o.Aliases {
			set[a] = struct{}{}
		}
	}
	delete(set, display)
	return sortedSet(set)
}

func mergeSources(n common.GraphNode, others []common.GraphNode) []string {
	set := make(map[string]struct{})
	for _, s := range n.Sources {
		set[s] = struct{}{}
	}
	for _, o := range others {
		for _, s := range o.Sources {
			set[s] = struct{}{}
		}
	}
	return sortedSet(set)
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
