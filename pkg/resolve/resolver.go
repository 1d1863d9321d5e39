// Package resolve assigns every mention a canonical identity. A Resolver is
// built once per rebuild around an injected, read-only mapping store.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/classify"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/mapping"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
)

// Step names which stage of the resolution order produced the canonical name.
type Step string

const (
	StepMapping   Step = "mapping"
	StepOCR       Step = "ocr-recheck"
	StepExpansion Step = "expansion"
	StepIdentity  Step = "identity"
)

// Trace explains one resolution.
type Trace struct {
	Input      string               `json:"input"`
	Normalized string               `json:"normalized"`
	Canonical  string               `json:"canonical"`
	ResolvedBy Step                 `json:"resolved_by"`
	Mapping    *common.AliasMapping `json:"mapping,omitempty"`
	Rules      []string             `json:"rules,omitempty"`
	// Curated is true when a curated mapping decided the canonical name.
	Curated        bool                  `json:"curated"`
	TypeSource     string                `json:"type_source"`
	Classification *classify.Result      `json:"classification,omitempty"`
	Type           common.EntityType     `json:"type"`
	Flag           common.ConfidenceFlag `json:"confidence_flag"`
}

// Options configures New. Zero values select the defaults: an empty mapping
// store, the built-in rules and the procedural classifier chain.
type Options struct {
	Store      *mapping.Store
	Rules      normalize.RuleTable
	Classifier classify.Classifier
}

// Resolver is safe for concurrent use; it holds no mutable state.
type Resolver struct {
	store      *mapping.Store
	norm       *normalize.Normalizer
	expander   *normalize.Expander
	classifier classify.Classifier
}

// New builds a Resolver.
func New(opts Options) *Resolver {
	if opts.Store == nil {
		opts.Store = mapping.Empty()
	}
	if len(opts.Rules.Rules) == 0 {
		opts.Rules = normalize.DefaultRules()
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.Default()
	}
	return &Resolver{
		store:      opts.Store,
		norm:       normalize.New(opts.Rules),
		expander:   normalize.NewExpander(opts.Rules),
		classifier: opts.Classifier,
	}
}

// Normalizer returns the normalizer the resolver applies to raw mentions.
func (r *Resolver) Normalizer() *normalize.Normalizer { return r.norm }

// Store returns the injected mapping store.
func (r *Resolver) Store() *mapping.Store { return r.store }

// ResolveMention validates and normalizes a raw mention, then resolves it.
// The whitespace-collapsed surface form is looked up first so OCR artifacts
// recorded by the mapping build still hit.
func (r *Resolver) ResolveMention(ctx context.Context, m common.RawMention) (*common.CanonicalEntity, Trace, error) {
	if strings.TrimSpace(m.SurfaceText) == "" || strings.TrimSpace(m.SourceDocumentID) == "" {
		return nil, Trace{}, fmt.Errorf("%w: mention needs surface_text and source_document_id", common.ErrMalformedInput)
	}
	raw := strings.Join(strings.Fields(m.SurfaceText), " ")

	var (
		entity *common.CanonicalEntity
		tr     Trace
	)
	if e, ok := r.store.Lookup(raw); ok && e.Provenance == common.ProvenanceOCRDetected {
		entity, tr = r.resolve(ctx, r.norm.Normalize(raw), m.Context, &e)
	} else {
		entity, tr = r.Resolve(ctx, r.norm.Normalize(raw), m.Context)
	}
	tr.Input = m.SurfaceText
	entity.Aliases = []string{raw}
	entity.Sources = []string{strings.TrimSpace(m.SourceDocumentID)}
	return entity, tr, nil
}

// Resolve maps a normalized name to its canonical entity. The order is
// fixed: mapping hit, OCR re-check, expansion rules with a second lookup,
// type decision, identity fallback. It never fails.
func (r *Resolver) Resolve(ctx context.Context, normalized string, mctx *common.MentionContext) (*common.CanonicalEntity, Trace) {
	return r.resolve(ctx, normalized, mctx, nil)
}

func (r *Resolver) resolve(ctx context.Context, normalized string, mctx *common.MentionContext, pre *common.AliasMapping) (*common.CanonicalEntity, Trace) {
	tr := Trace{Input: normalized, Normalized: normalized, Canonical: normalized, ResolvedBy: StepIdentity}

	// 1. mapping store
	hit, ok := pre, pre != nil
	if !ok {
		if e, found := r.store.Lookup(normalized); found {
			hit, ok = &e, true
		}
	}
	if ok {
		tr.apply(hit, StepMapping)
	}

	// 2. residual OCR duplicates in the mapped name
	if ok {
		if fixed := r.norm.Normalize(tr.Canonical); fixed != tr.Canonical {
			tr.Canonical = fixed
			tr.ResolvedBy = StepOCR
			if e, found := r.store.Lookup(fixed); found {
				tr.apply(&e, StepOCR)
			}
		}
	}

	// 3. titles, abbreviations, name order; then a second lookup
	if !ok {
		expanded, applied := r.expander.Expand(normalized, r.store.Known)
		if len(applied) > 0 {
			tr.Rules = applied
			tr.Canonical = expanded
			tr.ResolvedBy = StepExpansion
			if e, found := r.store.Lookup(expanded); found {
				tr.apply(&e, StepExpansion)
			}
		}
	}

	// 4. type
	r.decideType(ctx, &tr, mctx)

	// 5. identity fallback is the zero state of tr
	if tr.ResolvedBy == StepIdentity {
		logger.Debug("[Resolver] Identity fallback", "name", normalized, "type", tr.Type)
	}

	entity := &common.CanonicalEntity{
		ID:             Slug(tr.Canonical),
		GUID:           GUID(tr.Canonical, tr.Type),
		CanonicalName:  tr.Canonical,
		EntityType:     tr.Type,
		ConfidenceFlag: tr.Flag,
	}
	return entity, tr
}

func (tr *Trace) apply(e *common.AliasMapping, step Step) {
	cp := *e
	tr.Mapping = &cp
	tr.Canonical = e.Canonical
	tr.ResolvedBy = step
	tr.Curated = e.Provenance == common.ProvenanceCurated
}

func (r *Resolver) decideType(ctx context.Context, tr *Trace, mctx *common.MentionContext) {
	if tr.Mapping != nil && tr.Mapping.EntityType.Valid() {
		tr.Type, tr.Flag, tr.TypeSource = tr.Mapping.EntityType, common.ConfidenceHigh, "mapping"
		return
	}
	if e, ok := r.store.Lookup(tr.Canonical); ok && e.EntityType.Valid() {
		tr.Type, tr.Flag, tr.TypeSource = e.EntityType, common.ConfidenceHigh, "mapping"
		return
	}

	res, err := r.classifier.Classify(ctx, tr.Canonical, mctx)
	if err != nil && !errors.Is(err, common.ErrAmbiguousClassification) {
		logger.Warn("[Resolver] Classifier failed, using procedural fallback", "name", tr.Canonical, "err", err)
		res, err = classify.Default().Classify(ctx, tr.Canonical, mctx)
	}
	if !res.Type.Valid() {
		res.Type = common.EntityPerson
		res.Conclusive = false
	}
	if err != nil {
		res.Conclusive = false
	}
	tr.Classification = &res
	tr.Type = res.Type
	tr.Flag = res.Flag()
	tr.TypeSource = res.Tier
}
