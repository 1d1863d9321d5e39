// Package classify decides whether a canonical name denotes a person, an
// organization or a location. Classifiers are tried in tiers; the first
// conclusive answer wins and the chain never fails.
package classify

import (
	"context"
	"fmt"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
)

// Result is a classification decision.
type Result struct {
	Type       common.EntityType `json:"type"`
	Confidence float64           `json:"confidence"`
	// Tier names the classifier that produced the result.
	Tier string `json:"tier"`
	// Conclusive is false when the classifier has no opinion.
	Conclusive bool `json:"conclusive"`
}

// Flag maps the result onto the entity confidence flag.
func (r Result) Flag() common.ConfidenceFlag {
	if r.Conclusive {
		return common.ConfidenceHigh
	}
	return common.ConfidenceLow
}

// Classifier is one classification capability.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, name string, mctx *common.MentionContext) (Result, error)
}

// Func adapts a function to the Classifier interface.
type Func struct {
	Label string
	Fn    func(ctx context.Context, name string, mctx *common.MentionContext) (Result, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Classify(ctx context.Context, name string, mctx *common.MentionContext) (Result, error) {
	return f.Fn(ctx, name, mctx)
}

// FallbackTier names the default decision taken when every tier abstains.
const FallbackTier = "fallback"

// Tiered runs classifiers in order. Nil tiers are skipped, so an absent
// external capability can be passed as nil.
type Tiered struct {
	tiers []Classifier
}

// NewTiered builds a chain from the given tiers.
func NewTiered(tiers ...Classifier) *Tiered {
	t := &Tiered{}
	for _, c := range tiers {
		if c != nil {
			t.tiers = append(t.tiers, c)
		}
	}
	return t
}

// Default is the procedural chain: context heuristic, then keywords.
func Default() *Tiered {
	return NewTiered(NewContextHeuristic(), NewKeywords())
}

// Name implements Classifier.
func (t *Tiered) Name() string { return "tiered" }

// Classify returns the first conclusive result. Errors and panics in a tier
// are logged and count as abstentions. When every tier abstains the result
// is person with Conclusive=false; the error then wraps
// common.ErrAmbiguousClassification so callers can route it to review.
func (t *Tiered) Classify(ctx context.Context, name string, mctx *common.MentionContext) (Result, error) {
	for _, c := range t.tiers {
		res, err := safeClassify(ctx, c, name, mctx)
		if err != nil {
			logger.Warn("[Classify] Tier failed, falling through", "tier", c.Name(), "name", name, "err", err)
			continue
		}
		if res.Conclusive && res.Type.Valid() {
			if res.Tier == "" {
				res.Tier = c.Name()
			}
			return res, nil
		}
	}
	return Result{Type: common.EntityPerson, Tier: FallbackTier},
		fmt.Errorf("%w: %q", common.ErrAmbiguousClassification, name)
}

func safeClassify(ctx context.Context, c Classifier, name string, mctx *common.MentionContext) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier %s panicked: %v", c.Name(), r)
		}
	}()
	return c.Classify(ctx, name, mctx)
}
