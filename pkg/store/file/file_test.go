package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackup struct {
	versions []string
	files    []map[string][]byte
	err      error
}

func (b *recordingBackup) Backup(_ context.Context, version string, files map[string][]byte) error {
	if b.err != nil {
		return b.err
	}
	b.versions = append(b.versions, version)
	b.files = append(b.files, files)
	return nil
}

func TestCommitAndRead(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Current(ctx)
	assert.ErrorIs(t, err, store.ErrNoSnapshot)

	require.NoError(t, s.Commit(ctx, "v1", map[string][]byte{store.FileEntities: []byte(`[]`)}))
	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", cur)

	b, err := s.ReadFile(ctx, "", store.FileEntities)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	_, err = s.ReadFile(ctx, "", store.FileGraph)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// readers going through the link see the snapshot contents
	b, err = os.ReadFile(filepath.Join(s.CurrentDir(), store.FileEntities))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	assert.Error(t, s.Commit(ctx, "v1", nil))
	assert.Error(t, s.Commit(ctx, "../escape", nil))
}

func TestCommitBacksUpPrevious(t *testing.T) {
	ctx := context.Background()
	backup := &recordingBackup{}
	s, err := NewFileStore(t.TempDir(), WithBackup(backup))
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, "v1", map[string][]byte{"a.json": []byte("one")}))
	assert.Empty(t, backup.versions)
	require.NoError(t, s.Commit(ctx, "v2", map[string][]byte{"a.json": []byte("two")}))
	assert.Equal(t, []string{"v1"}, backup.versions)
	assert.Equal(t, "one", string(backup.files[0]["a.json"]))
}

func TestFailedCommitKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	backup := &recordingBackup{}
	s, err := NewFileStore(t.TempDir(), WithBackup(backup))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, "v1", map[string][]byte{"a.json": []byte("one")}))

	backup.err = errors.New("bucket unavailable")
	require.Error(t, s.Commit(ctx, "v2", map[string][]byte{"a.json": []byte("two")}))

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", cur)
	versions, err := s.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, versions)
	pending, err := os.ReadDir(filepath.Join(s.Root(), pendingDir))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, "v1", map[string][]byte{"a.json": []byte("one")}))
	_, err = s.Rollback(ctx)
	assert.ErrorIs(t, err, store.ErrNoPrevious)

	require.NoError(t, s.Commit(ctx, "v2", map[string][]byte{"a.json": []byte("two")}))
	prev, err := s.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", prev)

	b, err := s.ReadFile(ctx, "", "a.json")
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
}

func TestPruneKeepsRetained(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir(), WithRetain(3))
	require.NoError(t, err)
	for i := range 6 {
		require.NoError(t, s.Commit(ctx, fmt.Sprintf("v%d", i), map[string][]byte{"a": {byte(i)}}))
	}
	versions, err := s.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v3", "v4", "v5"}, versions)
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	release, err := s.Lock(ctx)
	require.NoError(t, err)
	_, err = s.Lock(ctx)
	assert.ErrorIs(t, err, store.ErrLocked)

	release()
	release2, err := s.Lock(ctx)
	require.NoError(t, err)
	release2()
}
