package classify

import (
	"context"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
)

var (
	personRoles = []string{
		"passenger", "pilot", "co-pilot", "copilot", "crew", "guest", "attendant",
		"flight attendant", "nanny", "assistant", "witness", "victim", "defendant",
		"plaintiff", "employee", "butler", "chef", "masseuse", "driver", "deponent",
	}
	descriptionVocabulary = map[common.EntityType][]string{
		common.EntityPerson: {
			"he", "she", "his", "her", "born", "businessman", "businesswoman", "socialite",
			"attorney", "lawyer", "model", "scientist", "actor", "actress", "politician",
			"prince", "president", "senator", "governor", "professor",
		},
		common.EntityOrganization: {
			"company", "firm", "foundation", "charity", "agency", "corporation", "bank",
			"nonprofit", "publisher", "fund", "trust",
		},
		common.EntityLocation: {
			"island", "residence", "property", "estate", "mansion", "ranch", "apartment",
			"airport", "city", "town", "street", "address",
		},
	}
)

// ContextHeuristic classifies from the structured mention context: an
// explicit type hint, a role on the event, or a free-text description.
type ContextHeuristic struct {
	roles map[string]struct{}
	vocab map[string]common.EntityType
}

// NewContextHeuristic returns the heuristic with the built-in vocabulary.
func NewContextHeuristic() *ContextHeuristic {
	h := &ContextHeuristic{
		roles: toSet(personRoles, strings.ToLower),
		vocab: make(map[string]common.EntityType),
	}
	for _, t := range common.EntityTypes {
		for _, w := range descriptionVocabulary[t] {
			h.vocab[w] = t
		}
	}
	return h
}

func (h *ContextHeuristic) Name() string { return "context" }

// Classify implements Classifier. Without context it abstains.
func (h *ContextHeuristic) Classify(_ context.Context, _ string, mctx *common.MentionContext) (Result, error) {
	if mctx == nil {
		return Result{}, nil
	}
	if t, ok := common.ParseEntityType(mctx.TypeHint); ok {
		return Result{Type: t, Confidence: 0.95, Tier: h.Name(), Conclusive: true}, nil
	}
	if role := strings.ToLower(strings.TrimSpace(mctx.Role)); role != "" {
		if _, ok := h.roles[role]; ok {
			return Result{Type: common.EntityPerson, Confidence: 0.9, Tier: h.Name(), Conclusive: true}, nil
		}
	}

	if mctx.Description == "" {
		return Result{}, nil
	}
	votes := make(map[common.EntityType]int)
	for _, tok := range Tokens(mctx.Description) {
		if t, ok := h.vocab[strings.ToLower(tok)]; ok {
			votes[t]++
		}
	}
	best, bestVotes, tie := common.EntityType(""), 0, false
	for _, t := range common.EntityTypes {
		switch {
		case votes[t] > bestVotes:
			best, bestVotes, tie = t, votes[t], false
		case votes[t] == bestVotes && bestVotes > 0:
			tie = true
		}
	}
	if bestVotes == 0 || tie {
		return Result{}, nil
	}
	return Result{Type: best, Confidence: 0.75, Tier: h.Name(), Conclusive: true}, nil
}
