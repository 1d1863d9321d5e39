// Package store persists rebuild artifacts. A rebuild writes a complete
// snapshot that becomes visible to readers in one atomic step; readers only
// ever see whole snapshots.
package store

import (
	"context"
	"errors"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
)

// Artifact file names inside a snapshot.
const (
	FileMappings   = "mappings.tsv"
	FileEntities   = "entities.json"
	FileGraph      = "graph.json"
	FileReview     = "review.json"
	FileExclusions = "exclusions.log.json"
	FileManifest   = "manifest.json"
)

var (
	ErrLocked     = errors.New("artifact store is locked by another rebuild")
	ErrNoSnapshot = errors.New("no snapshot committed")
	ErrNoPrevious = errors.New("no previous snapshot to roll back to")
)

// ArtifactStore holds versioned snapshots of the rebuild artifacts.
//
// Lock must be held around Commit; it guarantees a single writer per store.
// An empty version in ReadFile means the current snapshot.
type ArtifactStore interface {
	Lock(ctx context.Context) (release func(), err error)
	Commit(ctx context.Context, version string, files map[string][]byte) error
	Current(ctx context.Context) (string, error)
	ReadFile(ctx context.Context, version, name string) ([]byte, error)
	Versions(ctx context.Context) ([]string, error)
	Rollback(ctx context.Context) (string, error)
}

// Backup receives the snapshot that is about to be replaced.
type Backup interface {
	Backup(ctx context.Context, version string, files map[string][]byte) error
}

// Publisher mirrors a committed snapshot into a query database.
type Publisher interface {
	Publish(ctx context.Context, version string, entities []common.CanonicalEntity, graph *common.Graph) error
}

// Manifest describes one committed snapshot. It is the only artifact that
// differs between two rebuilds of the same inputs.
type Manifest struct {
	Version   string            `json:"version"`
	RunID     string            `json:"run_id"`
	CreatedAt string            `json:"created_at"`
	Digests   map[string]string `json:"digests"`
	Counts    map[string]int    `json:"counts"`
	Inputs    map[string]string `json:"inputs,omitempty"`
}
