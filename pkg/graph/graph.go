// Package graph turns the finalized entity registry and its co-occurrence
// events into a weighted undirected graph and computes its analytics. Every
// build is a full recomputation.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
)

// Build builds the graph. Nodes are the entities that take part in at least
// one event; events may only reference entity ids, anything else is ignored.
// The returned nodes carry their ConnectionCount; the input slice is not
// modified.
func (g *GraphClient) Build(ctx context.Context, entities []common.CanonicalEntity, events []common.Event) (*common.Graph, error) {
	byID := make(map[string]common.CanonicalEntity, len(entities))
	valid := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
		valid[e.ID] = struct{}{}
	}

	participating := make(map[string]struct{})
	for _, ev := range events {
		for _, p := range ev.Participants {
			if _, ok := valid[p]; ok {
				participating[p] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(participating))
	for id := range participating {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	edges, err := g.BuildEdges(ctx, events, participating)
	if err != nil {
		return nil, fmt.Errorf("failed to build edges: %w", err)
	}

	nodes := make([]common.GraphNode, len(ids))
	for i, id := range ids {
		nodes[i] = common.GraphNode{CanonicalEntity: byID[id]}
	}
	if len(edges) > 0 {
		logger.Info("[Graph] Computing betweenness", "nodes", len(ids), "edges", len(edges))
	}
	nodes = analyze(nodes, edges, g.topK, g.progressEvery)

	graph := &common.Graph{
		Nodes:   nodes,
		Edges:   edges,
		Summary: Summarize(nodes, edges),
	}
	graph.Summary.TopK = g.topK
	logger.Info("[Graph] Graph built",
		"nodes", graph.Summary.NodeCount,
		"edges", graph.Summary.EdgeCount,
		"components", graph.Summary.ComponentCount,
	)
	return graph, nil
}

// Reanalyze recomputes the node analytics of a derived graph: connection
// counts, centralities, components and top connections. Nodes must be sorted
// by id and edges may only join them. The input slices are not modified.
func Reanalyze(nodes []common.GraphNode, edges []common.GraphEdge, topK int) []common.GraphNode {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return analyze(nodes, edges, topK, 0)
}

func analyze(nodes []common.GraphNode, edges []common.GraphEdge, topK, progressEvery int) []common.GraphNode {
	ids := make([]string, len(nodes))
	names := make(map[string]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		names[n.ID] = n.CanonicalName
	}

	idx := newIndex(ids, edges)
	degree := idx.degreeCentrality()
	between := make([]float64, len(ids))
	if len(edges) > 0 {
		between = idx.betweenness(progressEvery)
	}

	compID := make([]int, len(ids))
	compSize := make([]int, len(ids))
	for c, members := range idx.components() {
		for _, m := range members {
			compID[m], compSize[m] = c, len(members)
		}
	}

	out := make([]common.GraphNode, len(nodes))
	for i, n := range nodes {
		n.ConnectionCount = len(idx.adj[i])
		n.DegreeCentrality = degree[i]
		n.BetweennessCentrality = between[i]
		n.ComponentID = compID[i]
		n.ComponentSize = compSize[i]
		n.TopConnections = idx.topConnections(i, topK, names)
		out[i] = n
	}
	return out
}
