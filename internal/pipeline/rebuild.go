package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/leaselock"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"
)

const publishRetries = 3

// Rebuilder commits rebuilds into an artifact store and mirrors them to the
// optional publisher and review sink.
type Rebuilder struct {
	artifacts store.ArtifactStore
	publisher store.Publisher
	reviews   ReviewSink
	lease     *leaselock.Client
	leaseKey  string
	now       func() time.Time
}

type RebuilderOption func(*Rebuilder)

// WithPublisher mirrors every committed snapshot into a database.
func WithPublisher(p store.Publisher) RebuilderOption {
	return func(r *Rebuilder) { r.publisher = p }
}

// WithReviewSink publishes the review queue after commit.
func WithReviewSink(s ReviewSink) RebuilderOption {
	return func(r *Rebuilder) { r.reviews = s }
}

// WithLease serializes rebuilds across hosts through a Postgres lease, on
// top of the store's local lock.
func WithLease(c *leaselock.Client, key string) RebuilderOption {
	return func(r *Rebuilder) {
		r.lease = c
		r.leaseKey = key
	}
}

// WithClock replaces the wall clock used for snapshot versions.
func WithClock(now func() time.Time) RebuilderOption {
	return func(r *Rebuilder) { r.now = now }
}

func NewRebuilder(artifacts store.ArtifactStore, opts ...RebuilderOption) *Rebuilder {
	r := &Rebuilder{artifacts: artifacts, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report describes a committed rebuild.
type Report struct {
	Version   string         `json:"version"`
	RunID     string         `json:"run_id"`
	Manifest  store.Manifest `json:"manifest"`
	Published bool           `json:"published"`
	Duration  time.Duration  `json:"duration"`
}

// Run rebuilds every artifact from in and commits them as a new snapshot.
// On any error before the commit the current snapshot stays untouched.
// Publishing and review publication happen after the commit; their
// failures are logged and do not undo it.
func (r *Rebuilder) Run(ctx context.Context, in Inputs, opts Options) (Report, error) {
	start := r.now()
	runID, err := util.NewRunID()
	if err != nil {
		return Report{}, err
	}
	logger.Info("[Rebuild] Starting", "run_id", runID, "corpus", in.CorpusPath)

	var report Report
	run := func(ctx context.Context) error {
		release, err := r.artifacts.Lock(ctx)
		if err != nil {
			return err
		}
		defer release()

		report, err = r.build(ctx, runID, start, in, opts)
		return err
	}

	if r.lease != nil {
		err = r.lease.WithLease(ctx, r.leaseKey, leaselock.Options{
			TTL:         10 * time.Minute,
			RenewEvery:  4 * time.Minute,
			Wait:        true,
			TokenPrefix: "rebuild/" + runID + "/",
		}, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		logger.Error("[Rebuild] Rebuild failed, current snapshot kept", "run_id", runID, "err", err)
		return Report{}, err
	}

	report.Duration = r.now().Sub(start)
	opts.Progress.Report(util.StageCompleted, 0, 0)
	logger.Info("[Rebuild] Completed", "run_id", runID, "version", report.Version, "published", report.Published,
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

func (r *Rebuilder) build(ctx context.Context, runID string, start time.Time, in Inputs, opts Options) (Report, error) {
	art, err := Build(ctx, in, opts)
	if err != nil {
		return Report{}, err
	}
	files, err := art.Files()
	if err != nil {
		return Report{}, err
	}

	version := util.SnapshotVersion(start, runID)
	manifest := store.Manifest{
		Version:   version,
		RunID:     runID,
		CreatedAt: start.UTC().Format(time.RFC3339),
		Digests:   store.Digests(files),
		Counts:    art.CountsByArtifact(),
		Inputs: map[string]string{
			"corpus":        in.CorpusPath,
			"events":        in.EventsPath,
			"curation":      in.CurationPath,
			"rules":         in.RulesPath,
			"snapshot_time": art.SnapshotTime,
		},
	}
	b, err := encodeJSON(manifest)
	if err != nil {
		return Report{}, fmt.Errorf("failed to encode manifest: %w", err)
	}
	files[store.FileManifest] = b

	opts.Progress.Report(util.StageCommit, 0, 1)
	if err := r.artifacts.Commit(ctx, version, files); err != nil {
		return Report{}, err
	}
	opts.Progress.Report(util.StageCommit, 1, 1)

	report := Report{Version: version, RunID: runID, Manifest: manifest}
	if r.publisher != nil {
		err := util.RetryErrWithContext(ctx, publishRetries, func(ctx context.Context) error {
			return r.publisher.Publish(ctx, version, art.Entities, art.Graph)
		})
		if err != nil {
			logger.Error("[Rebuild] Publishing to database failed", "version", version, "err", err)
		} else {
			report.Published = true
		}
	}
	if r.reviews != nil && len(art.Review) > 0 {
		if err := r.reviews.PublishReview(ctx, version, art.Review); err != nil {
			logger.Warn("[Rebuild] Publishing review queue failed", "version", version, "err", err)
		}
	}
	return report, nil
}
