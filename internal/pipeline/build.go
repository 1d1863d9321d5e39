// Package pipeline runs a full rebuild: corpus in, committed snapshot out.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/curation"
	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/classify"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/graph"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/mapping"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
	"github.com/bobmatnyc/the-island-sub004/pkg/resolve"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"golang.org/x/sync/errgroup"
)

const resolveChunkSize = 1000

// Inputs names the files a rebuild reads. Only CorpusPath is required.
type Inputs struct {
	CorpusPath   string `json:"corpus"`
	EventsPath   string `json:"events,omitempty"`
	CurationPath string `json:"curation,omitempty"`
	RulesPath    string `json:"rules,omitempty"`
}

// Options tunes a rebuild. Zero values select the defaults.
type Options struct {
	Workers              int
	TopK                 int
	ProgressEvery        int
	MinArtifactFrequency int
	// SnapshotTime stamps derived mapping entries. Empty means the latest
	// mention date in the corpus, or no stamp when no date parses.
	SnapshotTime string
	Classifier   classify.Classifier
	Progress     util.ProgressFunc
}

// Counts summarizes the input side of a rebuild.
type Counts struct {
	Mentions int `json:"mentions"`
	Skipped  int `json:"skipped"`
	Events   int `json:"events"`
}

// Artifacts is everything a rebuild produces before it is committed.
type Artifacts struct {
	Mappings      *mapping.Store
	MappingReport mapping.BuildReport
	Entities      []common.CanonicalEntity
	Graph         *common.Graph
	Review        []ReviewItem
	Exclusions    curation.ExclusionLog
	Counts        Counts
	SnapshotTime  string
}

// Build runs every stage up to, but not including, the commit. It is a pure
// function of the input files and options: the same inputs give
// byte-identical artifacts.
func Build(ctx context.Context, in Inputs, opts Options) (*Artifacts, error) {
	start := time.Now()
	if opts.Workers <= 0 {
		opts.Workers = graph.DefaultWorkers
	}

	// loading
	opts.Progress.Report(util.StageLoading, 0, 0)
	rules, err := LoadRules(in.RulesPath)
	if err != nil {
		return nil, err
	}
	cur, err := curation.Load(in.CurationPath)
	if err != nil {
		return nil, err
	}
	mentions, skipped, err := LoadMentions(in.CorpusPath)
	if err != nil {
		return nil, err
	}
	eventMentions, eventSkipped, err := LoadEventMentions(in.EventsPath)
	if err != nil {
		return nil, err
	}
	mentions = append(mentions, eventMentions...)
	counts := Counts{Mentions: len(mentions), Skipped: skipped + eventSkipped}

	snapshotTime := opts.SnapshotTime
	if snapshotTime == "" {
		snapshotTime = latestMentionDate(mentions)
	}
	logger.Info("[Rebuild] Inputs loaded", "mentions", counts.Mentions, "skipped", counts.Skipped,
		"curated_aliases", len(cur.Aliases), "exclusions", len(cur.Exclusions))

	// mapping store
	opts.Progress.Report(util.StageMapping, 0, 0)
	mappings, mappingReport, err := mapping.Build(mentions, cur.Aliases, mapping.BuildOptions{
		Rules:                rules,
		MinArtifactFrequency: opts.MinArtifactFrequency,
		SnapshotTime:         snapshotTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build mapping store: %w", err)
	}

	// resolution
	resolver := resolve.New(resolve.Options{Store: mappings, Rules: rules, Classifier: opts.Classifier})
	registry := resolve.NewRegistry()
	malformed, err := resolveAll(ctx, resolver, registry, mentions, opts)
	if err != nil {
		return nil, err
	}
	counts.Skipped += malformed
	result := registry.Finalize()

	// curation exclusion pass
	entities, events, exclusions := curation.Apply(result.Entities, result.Events, cur.Exclusions)
	counts.Events = len(events)

	// graph and analytics
	opts.Progress.Report(util.StageGraph, 0, 0)
	client := graph.NewGraphClient(graph.NewGraphClientParams{
		Workers:       opts.Workers,
		TopK:          opts.TopK,
		ProgressEvery: opts.ProgressEvery,
	})
	g, err := client.Build(ctx, entities, events)
	if err != nil {
		return nil, err
	}
	connections := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		connections[n.ID] = n.ConnectionCount
	}
	for i := range entities {
		entities[i].ConnectionCount = connections[entities[i].ID]
	}
	if err := graph.Validate(g, entities); err != nil {
		logger.Error("[Rebuild] Integrity check failed, snapshot will not be written", "err", err)
		return nil, err
	}

	review := reviewItems(entities)
	logger.Info("[Rebuild] Artifacts built",
		"entities", len(entities),
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"mappings", mappings.Len(),
		"review", len(review),
		"excluded", len(exclusions.Excluded),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return &Artifacts{
		Mappings:      mappings,
		MappingReport: mappingReport,
		Entities:      entities,
		Graph:         g,
		Review:        review,
		Exclusions:    exclusions,
		Counts:        counts,
		SnapshotTime:  snapshotTime,
	}, nil
}

// resolveAll resolves mentions in chunks on a bounded number of goroutines.
// The registry makes the result independent of the order of Add calls.
func resolveAll(ctx context.Context, resolver *resolve.Resolver, registry *resolve.Registry, mentions []common.RawMention, opts Options) (int, error) {
	total := len(mentions)
	opts.Progress.Report(util.StageResolving, 0, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var done, malformed atomic.Int64
	_ = store.ChunkRange(total, resolveChunkSize, func(start, end int) error {
		chunk := mentions[start:end]
		g.Go(func() error {
			for _, m := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				entity, trace, err := resolver.ResolveMention(gctx, m)
				if errors.Is(err, common.ErrMalformedInput) {
					malformed.Add(1)
					logger.Warn("[Rebuild] Skipping malformed mention", "document", m.SourceDocumentID, "err", err)
					continue
				}
				if err != nil {
					return err
				}
				registry.Add(entity, trace, m.EventKey(), m.Context)
			}
			opts.Progress.Report(util.StageResolving, int(done.Add(int64(len(chunk)))), total)
			return nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("resolution failed: %w", err)
	}
	logger.Debug("[Rebuild] Mentions resolved", "mentions", total, "records", registry.Len())
	return int(malformed.Load()), nil
}

// LoadRules extends the built-in rule table with the rules at path.
func LoadRules(path string) (normalize.RuleTable, error) {
	rules := normalize.DefaultRules()
	if path == "" {
		return rules, nil
	}
	custom, err := normalize.LoadRules(path)
	if err != nil {
		return normalize.RuleTable{}, err
	}
	return rules.Merge(custom), nil
}

var mentionDateLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly, "01/02/2006"}

// latestMentionDate returns the latest parseable mention date in UTC
// RFC 3339, or "" when none parses.
func latestMentionDate(mentions []common.RawMention) string {
	var latest time.Time
	for _, m := range mentions {
		if m.Context == nil || m.Context.Date == "" {
			continue
		}
		for _, layout := range mentionDateLayouts {
			if at, err := time.Parse(layout, strings.TrimSpace(m.Context.Date)); err == nil {
				if at.After(latest) {
					latest = at
				}
				break
			}
		}
	}
	if latest.IsZero() {
		return ""
	}
	return latest.UTC().Format(time.RFC3339)
}

// Files encodes the artifacts, without the manifest.
func (a *Artifacts) Files() (map[string][]byte, error) {
	var tsv bytes.Buffer
	if err := mapping.Encode(&tsv, a.Mappings.Entries()); err != nil {
		return nil, fmt.Errorf("failed to encode mappings: %w", err)
	}
	files := map[string][]byte{store.FileMappings: tsv.Bytes()}

	for name, v := range map[string]any{
		store.FileEntities:   a.Entities,
		store.FileGraph:      a.Graph,
		store.FileReview:     a.Review,
		store.FileExclusions: a.Exclusions,
	} {
		b, err := encodeJSON(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		files[name] = b
	}
	return files, nil
}

// CountsByArtifact feeds the manifest.
func (a *Artifacts) CountsByArtifact() map[string]int {
	return map[string]int{
		"mentions":          a.Counts.Mentions,
		"skipped":           a.Counts.Skipped,
		"events":            a.Counts.Events,
		"entities":          len(a.Entities),
		"nodes":             len(a.Graph.Nodes),
		"edges":             len(a.Graph.Edges),
		"mappings":          a.Mappings.Len(),
		"mappings_curated":  a.MappingReport.Curated,
		"mappings_ocr":      a.MappingReport.OCRDetected,
		"mappings_expanded": a.MappingReport.Abbreviation,
		"review":            len(a.Review),
		"excluded":          len(a.Exclusions.Excluded),
	}
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
