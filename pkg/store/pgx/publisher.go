package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

const (
	// DefaultKeep is the number of published versions kept in the database.
	DefaultKeep = 2

	copyChunkSize = 5000
)

// GraphDBPublisher mirrors committed snapshots into PostgreSQL. Every
// version is written in a single transaction with COPY and then flagged as
// current, so database readers switch versions atomically too.
type GraphDBPublisher struct {
	conn   pgxIConn
	keep   int
	dbLock sync.Mutex
}

type GraphDBPublisherOption func(*GraphDBPublisher)

// WithKeep keeps the n most recent versions; older ones are deleted.
func WithKeep(n int) GraphDBPublisherOption {
	return func(p *GraphDBPublisher) {
		if n > 0 {
			p.keep = n
		}
	}
}

// NewGraphDBPublisherWithConnection creates a publisher on an existing
// connection or pool.
func NewGraphDBPublisherWithConnection(conn pgxIConn, opts ...GraphDBPublisherOption) *GraphDBPublisher {
	p := &GraphDBPublisher{conn: conn, keep: DefaultKeep}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p
}

var (
	entityColumns = []string{"version", "id", "guid", "canonical_name", "entity_type", "aliases", "sources",
		"flight_count", "connection_count", "confidence_flag", "metadata"}
	nodeColumns = []string{"version", "id", "degree_centrality", "betweenness_centrality", "component_id", "component_size"}
	edgeColumns = []string{"version", "source_id", "target_id", "weight", "event_ids"}
)

// Publish writes one snapshot version and makes it current.
func (p *GraphDBPublisher) Publish(ctx context.Context, version string, entities []common.CanonicalEntity, graph *common.Graph) error {
	if graph == nil {
		graph = &common.Graph{}
	}
	p.dbLock.Lock()
	defer p.dbLock.Unlock()

	logger.Debug("[Publish] Writing snapshot", "version", version, "entities", len(entities), "edges", len(graph.Edges))

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteSnapshotSQL, version); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx, insertSnapshotSQL, version, len(graph.Nodes), len(graph.Edges)); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	eRows, err := entityRows(version, entities)
	if err != nil {
		return err
	}
	copies := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"entities", entityColumns, eRows},
		{"graph_nodes", nodeColumns, nodeRows(version, graph.Nodes)},
		{"graph_edges", edgeColumns, edgeRows(version, graph.Edges)},
	}
	for _, c := range copies {
		if len(c.rows) == 0 {
			continue
		}
		err := store.ChunkRange(len(c.rows), copyChunkSize, func(start, end int) error {
			n, err := tx.CopyFrom(ctx, pgxv5.Identifier{c.table}, c.columns, pgxv5.CopyFromRows(c.rows[start:end]))
			if err != nil {
				return err
			}
			if int(n) != end-start {
				return fmt.Errorf("copied %d of %d rows", n, end-start)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w", c.table, err)
		}
	}

	if _, err := tx.Exec(ctx, clearCurrentSQL); err != nil {
		return fmt.Errorf("failed to clear current snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx, setCurrentSQL, version); err != nil {
		return fmt.Errorf("failed to set current snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx, pruneSQL, p.keep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("[Publish] Snapshot published", "version", version)
	return nil
}

func entityRows(version string, entities []common.CanonicalEntity) ([][]any, error) {
	rows := make([][]any, 0, len(entities))
	for _, e := range entities {
		var metadata []byte
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to encode metadata of %s: %w", e.ID, err)
			}
			metadata = b
		}
		rows = append(rows, []any{
			version, e.ID, e.GUID, util.SanitizePostgresText(e.CanonicalName), string(e.EntityType),
			sanitize(store.DedupeStrings(e.Aliases)), sanitize(store.DedupeStrings(e.Sources)),
			int32(e.FlightCount), int32(e.ConnectionCount), string(e.ConfidenceFlag), metadata,
		})
	}
	return rows, nil
}

// sanitize strips NUL bytes and invalid UTF-8 that OCR output carries and
// Postgres TEXT rejects.
func sanitize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = util.SanitizePostgresText(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nodeRows(version string, nodes []common.GraphNode) [][]any {
	rows := make([][]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []any{
			version, n.ID, n.DegreeCentrality, n.BetweennessCentrality,
			int32(n.ComponentID), int32(n.ComponentSize),
		})
	}
	return rows
}

func edgeRows(version string, edges []common.GraphEdge) [][]any {
	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, []any{version, e.SourceID, e.TargetID, int32(e.Weight), nonNil(e.Provenance.EventIDs)})
	}
	return rows
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const insertSnapshotSQL = `
INSERT INTO snapshots (version, node_count, edge_count)
VALUES ($1, $2, $3);
`

const deleteSnapshotSQL = `
DELETE FROM snapshots WHERE version = $1;
`

const clearCurrentSQL = `
UPDATE snapshots SET is_current = false WHERE is_current;
`

const setCurrentSQL = `
UPDATE snapshots SET is_current = true WHERE version = $1;
`

const pruneSQL = `
DELETE FROM snapshots
WHERE NOT is_current
  AND version NOT IN (
    SELECT version FROM snapshots ORDER BY published_at DESC, version DESC LIMIT $1
  );
`
