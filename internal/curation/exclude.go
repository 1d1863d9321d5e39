package curation

import (
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
)

// ExclusionRecord is one entity removed by the exclusion pass.
type ExclusionRecord struct {
	EntityID      string            `json:"entity_id"`
	GUID          string            `json:"guid"`
	CanonicalName string            `json:"canonical_name"`
	EntityType    common.EntityType `json:"entity_type"`
	FlightCount   int               `json:"flight_count"`
	Rule          int               `json:"rule"`
	Reason        string            `json:"reason"`
	SubmissionID  string            `json:"submission_id,omitempty"`
}

// ExclusionLog is the exclusions.log.json artifact.
type ExclusionLog struct {
	Excluded []ExclusionRecord `json:"excluded"`
	// Unmatched lists exclusions that matched no entity in this rebuild.
	Unmatched []Exclusion `json:"unmatched"`
}

func (x Exclusion) matches(e common.CanonicalEntity) bool {
	if x.EntityType != "" && x.EntityType != e.EntityType {
		return false
	}
	if x.ID != "" {
		return x.ID == e.ID
	}
	key := nameKey(x.Name)
	if nameKey(e.CanonicalName) == key {
		return true
	}
	for _, a := range e.Aliases {
		if nameKey(a) == key {
			return true
		}
	}
	return false
}

func nameKey(s string) string {
	return normalize.Key(normalize.Normalize(s))
}

// Apply removes every entity matched by an exclusion and drops it from
// event participant lists. Each removal is logged and recorded; the first
// matching exclusion is the recorded rule. Input slices are not modified.
func Apply(entities []common.CanonicalEntity, events []common.Event, exclusions []Exclusion) ([]common.CanonicalEntity, []common.Event, ExclusionLog) {
	log := ExclusionLog{Excluded: []ExclusionRecord{}, Unmatched: []Exclusion{}}
	if len(exclusions) == 0 {
		return entities, events, log
	}

	used := make([]bool, len(exclusions))
	removed := make(map[string]struct{})
	kept := make([]common.CanonicalEntity, 0, len(entities))
	for _, e := range entities {
		rule := -1
		for i, x := range exclusions {
			if x.matches(e) {
				used[i] = true
				if rule < 0 {
					rule = i
				}
			}
		}
		if rule < 0 {
			kept = append(kept, e)
			continue
		}
		x := exclusions[rule]
		removed[e.ID] = struct{}{}
		log.Excluded = append(log.Excluded, ExclusionRecord{
			EntityID:      e.ID,
			GUID:          e.GUID,
			CanonicalName: e.CanonicalName,
			EntityType:    e.EntityType,
			FlightCount:   e.FlightCount,
			Rule:          rule,
			Reason:        x.Reason,
			SubmissionID:  x.SubmissionID,
		})
		logger.Info("[Curation] Entity excluded", "id", e.ID, "name", e.CanonicalName, "type", e.EntityType, "reason", x.Reason)
	}
	for i, x := range exclusions {
		if !used[i] {
			log.Unmatched = append(log.Unmatched, x)
			logger.Warn("[Curation] Exclusion matched nothing", "rule", i, "id", x.ID, "name", x.Name)
		}
	}
	if len(removed) == 0 {
		return entities, events, log
	}

	keptEvents := make([]common.Event, len(events))
	for i, ev := range events {
		participants := make([]string, 0, len(ev.Participants))
		for _, p := range ev.Participants {
			if _, gone := removed[p]; !gone {
				participants = append(participants, p)
			}
		}
		ev.Participants = participants
		keptEvents[i] = ev
	}
	return kept, keptEvents, log
}
