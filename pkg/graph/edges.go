package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ProvenanceCoOccurrence is the provenance kind of every built edge.
const ProvenanceCoOccurrence = "co-occurrence"

type pair struct{ source, target string }

type pairAcc struct {
	weight int
	events []string
}

// mergeEvents unions the participants of events that share an id and keeps
// only valid ids. The result is sorted by event id and every participant
// list is sorted and free of duplicates. Events left with fewer than two
// participants are dropped.
func mergeEvents(events []common.Event, valid map[string]struct{}) []common.Event {
	byID := make(map[string]map[string]struct{})
	for _, ev := range events {
		id := strings.TrimSpace(ev.ID)
		if id == "" {
			continue
		}
		members, ok := byID[id]
		if !ok {
			members = make(map[string]struct{})
			byID[id] = members
		}
		for _, p := range ev.Participants {
			if _, ok := valid[p]; ok {
				members[p] = struct{}{}
			}
		}
	}

	out := make([]common.Event, 0, len(byID))
	for id, members := range byID {
		if len(members) < 2 {
			continue
		}
		participants := make([]string, 0, len(members))
		for p := range members {
			participants = append(participants, p)
		}
		sort.Strings(participants)
		out = append(out, common.Event{ID: id, Participants: participants})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BuildEdges aggregates every unordered pair of distinct valid participants
// per event into weighted edges. Weight is the number of distinct events the
// pair shares. Edges are sorted by (source, target) and source < target.
func (g *GraphClient) BuildEdges(ctx context.Context, events []common.Event, valid map[string]struct{}) ([]common.GraphEdge, error) {
	merged := mergeEvents(events, valid)
	if len(merged) == 0 {
		return []common.GraphEdge{}, nil
	}

	parts := partition(merged, g.workers)
	partials := make([]map[pair]*pairAcc, len(parts))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, part := range parts {
		eg.Go(func() error {
			local := make(map[pair]*pairAcc)
			for _, ev := range part {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				default:
				}
				for a := 0; a < len(ev.Participants); a++ {
					for b := a + 1; b < len(ev.Participants); b++ {
						key := pair{ev.Participants[a], ev.Participants[b]}
						acc, ok := local[key]
						if !ok {
							acc = &pairAcc{}
							local[key] = acc
						}
						acc.weight++
						acc.events = append(acc.events, ev.ID)
					}
				}
			}
			partials[i] = local
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// partitions are contiguous runs of id-sorted events, so appending in
	// partition order keeps every event list sorted
	total := make(map[pair]*pairAcc)
	for _, local := range partials {
		for key, acc := range local {
			dst, ok := total[key]
			if !ok {
				total[key] = acc
				continue
			}
			dst.weight += acc.weight
			dst.events = append(dst.events, acc.events...)
		}
	}

	edges := make([]common.GraphEdge, 0, len(total))
	for key, acc := range total {
		edges = append(edges, common.GraphEdge{
			SourceID: key.source,
			TargetID: key.target,
			Weight:   acc.weight,
			Provenance: common.EdgeProvenance{
				Kind:     ProvenanceCoOccurrence,
				EventIDs: acc.events,
			},
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		return edges[i].TargetID < edges[j].TargetID
	})

	logger.Debug("[Graph] Edges built", "events", len(merged), "edges", len(edges), "partitions", len(parts))
	return edges, nil
}

func partition(events []common.Event, n int) [][]common.Event {
	if n < 1 {
		n = 1
	}
	size := (len(events) + n - 1) / n
	parts := make([][]common.Event, 0, n)
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		parts = append(parts, events[start:end])
	}
	return parts
}
