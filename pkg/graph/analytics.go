package graph

import (
	"sort"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"
)

// index is the dense form of a graph used by the analytics: node i is
// ids[i], ids are sorted, and every adjacency list is sorted ascending.
type index struct {
	ids    []string
	pos    map[string]int
	adj    [][]int
	weight []map[int]int
}

func newIndex(ids []string, edges []common.GraphEdge) *index {
	idx := &index{
		ids:    ids,
		pos:    make(map[string]int, len(ids)),
		adj:    make([][]int, len(ids)),
		weight: make([]map[int]int, len(ids)),
	}
	for i, id := range ids {
		idx.pos[id] = i
		idx.weight[i] = make(map[int]int)
	}
	for _, e := range edges {
		s, t := idx.pos[e.SourceID], idx.pos[e.TargetID]
		idx.adj[s] = append(idx.adj[s], t)
		idx.adj[t] = append(idx.adj[t], s)
		idx.weight[s][t] = e.Weight
		idx.weight[t][s] = e.Weight
	}
	for i := range idx.adj {
		sort.Ints(idx.adj[i])
	}
	return idx
}

func (idx *index) degreeCentrality() []float64 {
	n := len(idx.ids)
	out := make([]float64, n)
	if n <= 1 {
		return out
	}
	for i := range idx.adj {
		out[i] = float64(len(idx.adj[i])) / float64(n-1)
	}
	return out
}

// betweenness is Brandes' algorithm over the unweighted graph. Sources are
// visited in index order so the floating point sums are reproducible. The
// result is normalized by 2/((n-1)(n-2)) over unordered pairs.
func (idx *index) betweenness(progressEvery int) []float64 {
	n := len(idx.ids)
	cb := make([]float64, n)
	if n <= 2 {
		return cb
	}

	sigma := make([]float64, n)
	delta := make([]float64, n)
	dist := make([]int, n)
	preds := make([][]int, n)
	stack := make([]int, 0, n)
	queue := make([]int, 0, n)

	for s := range n {
		for i := range n {
			sigma[i], delta[i], dist[i] = 0, 0, -1
			preds[i] = preds[i][:0]
		}
		sigma[s], dist[s] = 1, 0
		stack = stack[:0]
		queue = append(queue[:0], s)

		for head := 0; head < len(queue); head++ {
			v := queue[head]
			stack = append(stack, v)
			for _, w := range idx.adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}

		if done := s + 1; progressEvery > 0 && done%progressEvery == 0 && done < n {
			logger.Info("[Graph] Betweenness progress", "sources", done, "total", n)
		}
	}

	// every unordered pair was counted from both ends
	scale := 1 / float64((n-1)*(n-2))
	for i := range cb {
		cb[i] *= scale
	}
	return cb
}

// components returns the connected components ordered by size descending,
// then by smallest member. Members are sorted.
func (idx *index) components() [][]int {
	g := simple.NewUndirectedGraph()
	for i := range idx.ids {
		g.AddNode(simple.Node(int64(i)))
	}
	for s, neighbours := range idx.adj {
		for _, t := range neighbours {
			if s < t {
				g.SetEdge(simple.Edge{F: simple.Node(int64(s)), T: simple.Node(int64(t))})
			}
		}
	}

	raw := topo.ConnectedComponents(g)
	comps := make([][]int, 0, len(raw))
	for _, c := range raw {
		members := make([]int, 0, len(c))
		for _, node := range c {
			members = append(members, int(node.ID()))
		}
		sort.Ints(members)
		comps = append(comps, members)
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}

// topConnections returns the k strongest neighbours of node i by weight
// descending, canonical name ascending, id ascending.
func (idx *index) topConnections(i, k int, names map[string]string) []common.Connection {
	out := make([]common.Connection, 0, len(idx.adj[i]))
	for _, j := range idx.adj[i] {
		id := idx.ids[j]
		out = append(out, common.Connection{ID: id, CanonicalName: names[id], Weight: idx.weight[i][j]})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Weight != out[b].Weight {
			return out[a].Weight > out[b].Weight
		}
		if out[a].CanonicalName != out[b].CanonicalName {
			return out[a].CanonicalName < out[b].CanonicalName
		}
		return out[a].ID < out[b].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Summarize computes the aggregate statistics of a built graph.
func Summarize(nodes []common.GraphNode, edges []common.GraphEdge) common.GraphSummary {
	summary := common.GraphSummary{
		NodeCount:  len(nodes),
		EdgeCount:  len(edges),
		TypeCounts: make(map[string]int),
	}
	for _, e := range edges {
		summary.TotalWeight += e.Weight
	}
	n := float64(len(nodes))
	if len(nodes) > 1 {
		summary.Density = 2 * float64(len(edges)) / (n * (n - 1))
	}

	degrees := make([]float64, 0, len(nodes))
	components := make(map[int]int)
	for _, node := range nodes {
		summary.TypeCounts[string(node.EntityType)]++
		degrees = append(degrees, float64(node.ConnectionCount))
		summary.MaxDegree = max(summary.MaxDegree, node.ConnectionCount)
		components[node.ComponentID] = node.ComponentSize
	}
	if len(degrees) > 0 {
		summary.MeanDegree = stat.Mean(degrees, nil)
	}
	summary.ComponentCount = len(components)
	for _, size := range components {
		summary.LargestComponentSize = max(summary.LargestComponentSize, size)
	}
	return summary
}
