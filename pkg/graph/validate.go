package graph

import (
	"fmt"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
)

const maxReportedProblems = 10

// Validate checks the structural invariants of a built graph against the
// registry it was built from. Any violation is a logic defect and returns
// an error wrapping common.ErrRebuildIntegrity.
func Validate(g *common.Graph, entities []common.CanonicalEntity) error {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	ids := make(map[string]struct{}, len(entities))
	guids := make(map[string]string, len(entities))
	for _, e := range entities {
		if _, dup := ids[e.ID]; dup {
			report("duplicate entity id %q", e.ID)
		}
		ids[e.ID] = struct{}{}
		if other, dup := guids[e.GUID]; dup {
			report("entities %q and %q share guid %s", other, e.ID, e.GUID)
		}
		guids[e.GUID] = e.ID
	}

	if g == nil {
		if len(problems) == 0 {
			return nil
		}
		return integrityError(problems)
	}

	nodes := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup {
			report("duplicate node %q", n.ID)
		}
		if _, ok := ids[n.ID]; !ok {
			report("node %q is not a registry entity", n.ID)
		}
		nodes[n.ID] = 0
	}

	pairs := make(map[pair]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		switch {
		case e.SourceID == e.TargetID:
			report("self-loop on %q", e.SourceID)
			continue
		case e.SourceID > e.TargetID:
			report("edge %q-%q is not ordered", e.SourceID, e.TargetID)
		}
		if e.Weight < 1 {
			report("edge %q-%q has weight %d", e.SourceID, e.TargetID, e.Weight)
		}
		key := pair{min(e.SourceID, e.TargetID), max(e.SourceID, e.TargetID)}
		if _, dup := pairs[key]; dup {
			report("duplicate edge %q-%q", key.source, key.target)
		}
		pairs[key] = struct{}{}

		for _, end := range []string{e.SourceID, e.TargetID} {
			if _, ok := nodes[end]; !ok {
				report("edge endpoint %q is not a node", end)
				continue
			}
			nodes[end]++
		}
	}

	for _, n := range g.Nodes {
		if nodes[n.ID] != n.ConnectionCount {
			report("node %q has connection_count %d but %d incident edges", n.ID, n.ConnectionCount, nodes[n.ID])
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return integrityError(problems)
}

func integrityError(problems []string) error {
	shown := problems
	if len(shown) > maxReportedProblems {
		shown = shown[:maxReportedProblems]
	}
	msg := strings.Join(shown, "; ")
	if extra := len(problems) - len(shown); extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return fmt.Errorf("%w: %s", common.ErrRebuildIntegrity, msg)
}
