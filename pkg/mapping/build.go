package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
)

// DefaultMinArtifactFrequency is how often a duplicated-token surface form
// must occur before it is recorded as an OCR artifact.
const DefaultMinArtifactFrequency = 2

// maxHops bounds chain flattening; deeper chains are treated as cycles.
const maxHops = 16

// BuildOptions configures an offline mapping build.
type BuildOptions struct {
	Rules                normalize.RuleTable
	MinArtifactFrequency int
	// SnapshotTime stamps derived entries. It comes from the corpus
	// snapshot, never the wall clock, so rebuilds stay byte-identical.
	SnapshotTime string
}

// BuildReport summarizes a build.
type BuildReport struct {
	Curated      int
	OCRDetected  int
	Abbreviation int
	Dropped      []string
}

// Build regenerates the whole mapping table from the corpus and the curated
// alias list. Curated entries win every conflict. The result is single hop.
func Build(mentions []common.RawMention, curated []common.AliasMapping, opts BuildOptions) (*Store, BuildReport, error) {
	if len(opts.Rules.Rules) == 0 {
		opts.Rules = normalize.DefaultRules()
	}
	if opts.MinArtifactFrequency <= 0 {
		opts.MinArtifactFrequency = DefaultMinArtifactFrequency
	}
	norm := normalize.New(opts.Rules)
	expander := normalize.NewExpander(opts.Rules)

	var report BuildReport
	entries := make(map[string]common.AliasMapping)

	curatedEntries := make(map[string]common.AliasMapping, len(curated))
	curatedKnown := make(map[string]struct{}, 2*len(curated))
	for _, c := range curated {
		variant := norm.Normalize(c.Variant)
		canonical := strings.Join(strings.Fields(c.Canonical), " ")
		if variant == "" || canonical == "" {
			return nil, report, fmt.Errorf("%w: curated alias %+v", common.ErrMalformedInput, c)
		}
		key := normalize.Key(variant)
		if prev, ok := curatedEntries[key]; ok && prev.Canonical != canonical {
			return nil, report, fmt.Errorf("curated aliases disagree on %q: %q vs %q", variant, prev.Canonical, canonical)
		}
		curatedEntries[key] = common.AliasMapping{
			Variant:    variant,
			Canonical:  canonical,
			Provenance: common.ProvenanceCurated,
			EntityType: c.EntityType,
			Timestamp:  firstNonEmpty(c.Timestamp, opts.SnapshotTime),
		}
		curatedKnown[key] = struct{}{}
		curatedKnown[normalize.Key(canonical)] = struct{}{}
	}
	known := func(name string) bool {
		_, ok := curatedKnown[normalize.Key(name)]
		return ok
	}

	// OCR duplicate-token artifacts, keyed by the whitespace-collapsed
	// surface form the mention arrived with.
	artifactCount := make(map[string]int)
	artifactForm := make(map[string]string)
	normalized := make(map[string]string)
	for _, m := range mentions {
		ws := strings.Join(strings.Fields(m.SurfaceText), " ")
		if ws == "" {
			continue
		}
		n := norm.Normalize(ws)
		nkey := normalize.Key(n)
		if prev, ok := normalized[nkey]; !ok || n < prev {
			normalized[nkey] = n
		}
		if !normalize.HasDuplicateLeadingToken(ws) {
			continue
		}
		key := normalize.Key(ws)
		artifactCount[key]++
		if prev, ok := artifactForm[key]; !ok || ws < prev {
			artifactForm[key] = ws
		}
	}
	for key, count := range artifactCount {
		if count < opts.MinArtifactFrequency {
			continue
		}
		form := artifactForm[key]
		entries[key] = common.AliasMapping{
			Variant:    form,
			Canonical:  norm.Normalize(form),
			Provenance: common.ProvenanceOCRDetected,
			Timestamp:  opts.SnapshotTime,
		}
		report.OCRDetected++
	}

	// Abbreviation and title expansions observed in the corpus.
	for key, n := range normalized {
		expanded, applied := expander.Expand(n, known)
		if len(applied) == 0 || normalize.Key(expanded) == key {
			continue
		}
		entries[key] = common.AliasMapping{
			Variant:    n,
			Canonical:  expanded,
			Provenance: common.ProvenanceAbbreviation,
			Timestamp:  opts.SnapshotTime,
		}
		report.Abbreviation++
	}

	for key, c := range curatedEntries {
		entries[key] = c
		report.Curated++
	}

	flat, dropped, err := flatten(entries)
	if err != nil {
		return nil, report, err
	}
	report.Dropped = dropped
	for _, d := range dropped {
		logger.Warn("[Mapping] Dropped derived mapping", "variant", d)
	}

	store, err := NewStore(flat)
	if err != nil {
		return nil, report, err
	}
	logger.Info("[Mapping] Store built",
		"entries", store.Len(),
		"curated", report.Curated,
		"ocr_detected", report.OCRDetected,
		"abbreviation", report.Abbreviation,
	)
	return store, report, nil
}

// flatten rewrites every entry to point at the end of its chain. Curated
// cycles are an error; derived entries caught in a cycle are dropped.
func flatten(entries map[string]common.AliasMapping) ([]common.AliasMapping, []string, error) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dropped []string
	out := make([]common.AliasMapping, 0, len(entries))
	for _, key := range keys {
		e := entries[key]
		target := e.Canonical
		entityType := e.EntityType
		seen := map[string]struct{}{key: {}}
		cycle := false
		for range maxHops {
			tkey := normalize.Key(target)
			next, ok := entries[tkey]
			if !ok || normalize.Key(next.Canonical) == tkey {
				if ok && entityType == "" {
					entityType = next.EntityType
				}
				break
			}
			if _, loop := seen[tkey]; loop {
				cycle = true
				break
			}
			seen[tkey] = struct{}{}
			target = next.Canonical
			if entityType == "" {
				entityType = next.EntityType
			}
		}
		if cycle || len(seen) > maxHops {
			if e.Provenance == common.ProvenanceCurated {
				return nil, nil, fmt.Errorf("%w: curated alias cycle through %q", ErrChain, e.Variant)
			}
			dropped = append(dropped, e.Variant)
			continue
		}
		if normalize.Key(target) == key && e.EntityType == "" {
			// identity mapping without a type override carries no information
			continue
		}
		e.Canonical = target
		e.EntityType = entityType
		out = append(out, e)
	}
	return out, dropped, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
