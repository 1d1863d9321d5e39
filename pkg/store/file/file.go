// Package file implements the artifact store on a local directory:
//
//	<root>/snapshots/<version>/   committed snapshots
//	<root>/pending/<version>/     snapshot being written
//	<root>/current                symlink to the live snapshot
//	<root>/.lock                  single writer lock
//
// A commit renames the pending directory into snapshots/ and then replaces
// the current symlink with rename(2), so a reader resolving current sees
// either the old or the new snapshot, never a mix.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"
)

const (
	snapshotsDir = "snapshots"
	pendingDir   = "pending"
	currentLink  = "current"
	lockFile     = ".lock"

	DefaultRetain = 5
)

// FileStore is a store.ArtifactStore on the local file system.
type FileStore struct {
	root   string
	retain int
	backup store.Backup
}

type FileStoreOption func(*FileStore)

// WithRetain keeps at most n committed snapshots. The current and the
// previous snapshot are always kept.
func WithRetain(n int) FileStoreOption {
	return func(s *FileStore) {
		s.retain = n
	}
}

// WithBackup hands the outgoing snapshot to b before every commit.
func WithBackup(b store.Backup) FileStoreOption {
	return func(s *FileStore) {
		s.backup = b
	}
}

// NewFileStore creates the directory layout under root if needed.
func NewFileStore(root string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{root: root, retain: DefaultRetain}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.retain < 2 {
		s.retain = 2
	}
	for _, dir := range []string{snapshotsDir, pendingDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact dir: %w", err)
		}
	}
	return s, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// CurrentDir is the path readers resolve; it follows the current symlink.
func (s *FileStore) CurrentDir() string { return filepath.Join(s.root, currentLink) }

// Lock takes the single writer lock. It fails with store.ErrLocked when
// another process holds it.
func (s *FileStore) Lock(ctx context.Context) (func(), error) {
	path := filepath.Join(s.root, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			owner, _ := os.ReadFile(path)
			return nil, fmt.Errorf("%w (held by pid %s)", store.ErrLocked, owner)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("[Store] Failed to remove lock file", "path", path, "err", err)
		}
	}, nil
}

// Commit writes files as snapshot version and makes it current. On any
// error the pending directory is removed and current is left untouched.
func (s *FileStore) Commit(ctx context.Context, version string, files map[string][]byte) (err error) {
	if version == "" || filepath.Base(version) != version {
		return fmt.Errorf("invalid snapshot version %q", version)
	}
	final := filepath.Join(s.root, snapshotsDir, version)
	if _, statErr := os.Stat(final); statErr == nil {
		return fmt.Errorf("snapshot %q already exists", version)
	}

	pending := filepath.Join(s.root, pendingDir, version)
	if err := os.MkdirAll(pending, 0o755); err != nil {
		return fmt.Errorf("failed to create pending snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(pending)
		}
	}()

	for _, name := range store.SortedNames(files) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileSync(filepath.Join(pending, name), files[name]); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if s.backup != nil {
		if prev, prevErr := s.Current(ctx); prevErr == nil {
			prevFiles, readErr := s.readAll(prev)
			if readErr != nil {
				return fmt.Errorf("failed to read snapshot %s for backup: %w", prev, readErr)
			}
			if err := s.backup.Backup(ctx, prev, prevFiles); err != nil {
				return fmt.Errorf("failed to back up snapshot %s: %w", prev, err)
			}
		}
	}

	if err := os.Rename(pending, final); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	if err := s.point(version); err != nil {
		_ = os.RemoveAll(final)
		return err
	}

	logger.Info("[Store] Snapshot committed", "version", version, "files", len(files))
	s.prune()
	return nil
}

// point atomically re-targets the current symlink.
func (s *FileStore) point(version string) error {
	tmp := filepath.Join(s.root, currentLink+".tmp")
	_ = os.Remove(tmp)
	if err := os.Symlink(filepath.Join(snapshotsDir, version), tmp); err != nil {
		return fmt.Errorf("failed to create current link: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.root, currentLink)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to swap current link: %w", err)
	}
	return nil
}

// Current returns the version the current link points at.
func (s *FileStore) Current(ctx context.Context) (string, error) {
	target, err := os.Readlink(filepath.Join(s.root, currentLink))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", store.ErrNoSnapshot
		}
		return "", fmt.Errorf("failed to read current link: %w", err)
	}
	return filepath.Base(target), nil
}

// ReadFile reads one artifact. An empty version reads from current.
func (s *FileStore) ReadFile(ctx context.Context, version, name string) ([]byte, error) {
	if version == "" {
		v, err := s.Current(ctx)
		if err != nil {
			return nil, err
		}
		version = v
	}
	b, err := os.ReadFile(filepath.Join(s.root, snapshotsDir, version, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", common.ErrNotFound, version, name)
		}
		return nil, err
	}
	return b, nil
}

// Versions lists committed snapshots, oldest first.
func (s *FileStore) Versions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, snapshotsDir))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Rollback points current at the snapshot committed before it and returns
// that version. The rolled-back snapshot stays on disk.
func (s *FileStore) Rollback(ctx context.Context) (string, error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	versions, err := s.Versions(ctx)
	if err != nil {
		return "", err
	}
	i := sort.SearchStrings(versions, cur)
	if i == 0 || i >= len(versions) || versions[i] != cur {
		return "", store.ErrNoPrevious
	}
	prev := versions[i-1]
	if err := s.point(prev); err != nil {
		return "", err
	}
	logger.Info("[Store] Rolled back", "from", cur, "to", prev)
	return prev, nil
}

func (s *FileStore) readAll(version string) (map[string][]byte, error) {
	dir := filepath.Join(s.root, snapshotsDir, version)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files[e.Name()] = b
	}
	return files, nil
}

// prune removes the oldest snapshots beyond the retention limit and stale
// pending directories. Failures are logged only.
func (s *FileStore) prune() {
	versions, err := s.Versions(context.Background())
	if err != nil {
		return
	}
	cur, _ := s.Current(context.Background())
	for len(versions) > s.retain {
		victim := versions[0]
		versions = versions[1:]
		if victim == cur {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, snapshotsDir, victim)); err != nil {
			logger.Warn("[Store] Failed to prune snapshot", "version", victim, "err", err)
		}
	}

	pending, err := os.ReadDir(filepath.Join(s.root, pendingDir))
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, e := range pending {
		info, err := e.Info()
		if err == nil && info.ModTime().Before(cutoff) {
			_ = os.RemoveAll(filepath.Join(s.root, pendingDir, e.Name()))
		}
	}
}

func writeFileSync(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
