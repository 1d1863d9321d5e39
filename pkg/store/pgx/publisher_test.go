package pgx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx records statements and copied rows. Methods the publisher does not
// use panic through the embedded nil interface.
type fakeTx struct {
	pgxv5.Tx
	execs      []string
	copied     map[string][][]any
	failCopy   string
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, strings.TrimSpace(sql))
	return pgconn.CommandTag{}, nil
}

func (tx *fakeTx) CopyFrom(_ context.Context, table pgxv5.Identifier, _ []string, src pgxv5.CopyFromSource) (int64, error) {
	name := table[0]
	if name == tx.failCopy {
		return 0, errors.New("copy failed")
	}
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		tx.copied[name] = append(tx.copied[name], values)
		n++
	}
	return n, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeConn struct{ tx *fakeTx }

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Begin(context.Context) (pgxv5.Tx, error) { return c.tx, nil }

func testGraph() ([]common.CanonicalEntity, *common.Graph) {
	entities := []common.CanonicalEntity{
		{ID: "a", GUID: "g-a", CanonicalName: "Alice", EntityType: common.EntityPerson, Aliases: []string{"ALICE", "ALICE"},
			ConfidenceFlag: common.ConfidenceHigh, Metadata: map[string]string{"type_source": "mapping"}},
		{ID: "b", GUID: "g-b", CanonicalName: "Bo\x00b", Sources: []string{"\x00", "doc-1"}, EntityType: common.EntityPerson, ConfidenceFlag: common.ConfidenceLow},
	}
	graph := &common.Graph{
		Nodes: []common.GraphNode{
			{CanonicalEntity: entities[0], DegreeCentrality: 1},
			{CanonicalEntity: entities[1], DegreeCentrality: 1},
		},
		Edges: []common.GraphEdge{{SourceID: "a", TargetID: "b", Weight: 3}},
	}
	return entities, graph
}

func TestPublish(t *testing.T) {
	tx := &fakeTx{copied: make(map[string][][]any)}
	p := NewGraphDBPublisherWithConnection(&fakeConn{tx: tx})

	entities, graph := testGraph()
	require.NoError(t, p.Publish(context.Background(), "v1", entities, graph))

	assert.True(t, tx.committed)
	assert.Len(t, tx.copied["entities"], 2)
	assert.Len(t, tx.copied["graph_nodes"], 2)
	require.Len(t, tx.copied["graph_edges"], 1)

	alice := tx.copied["entities"][0]
	assert.Equal(t, []string{"ALICE"}, alice[5])
	assert.Equal(t, []string{}, alice[6])
	assert.JSONEq(t, `{"type_source":"mapping"}`, string(alice[10].([]byte)))
	bob := tx.copied["entities"][1]
	assert.Equal(t, "Bob", bob[3])
	assert.Equal(t, []string{"doc-1"}, bob[6])
	assert.Nil(t, bob[10])

	edge := tx.copied["graph_edges"][0]
	assert.Equal(t, []any{"v1", "a", "b", int32(3), []string{}}, edge)

	require.Len(t, tx.execs, 5)
	assert.Contains(t, tx.execs[0], "DELETE FROM snapshots WHERE version")
	assert.Contains(t, tx.execs[3], "SET is_current = true")
}

func TestPublishRollsBackOnCopyFailure(t *testing.T) {
	tx := &fakeTx{copied: make(map[string][][]any), failCopy: "graph_edges"}
	p := NewGraphDBPublisherWithConnection(&fakeConn{tx: tx})

	entities, graph := testGraph()
	err := p.Publish(context.Background(), "v1", entities, graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph_edges")
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestPublishEmptyGraph(t *testing.T) {
	tx := &fakeTx{copied: make(map[string][][]any)}
	p := NewGraphDBPublisherWithConnection(&fakeConn{tx: tx}, WithKeep(3))

	require.NoError(t, p.Publish(context.Background(), "v1", nil, nil))
	assert.Empty(t, tx.copied)
	assert.True(t, tx.committed)
}
