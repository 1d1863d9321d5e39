package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/query"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"github.com/fsnotify/fsnotify"
)

const (
	currentLink    = "current"
	reloadDebounce = 250 * time.Millisecond
	// retired snapshots stay open this long for requests still using them
	retireAfter = 30 * time.Second
)

// SnapshotHolder serves one snapshot at a time and swaps it atomically
// when the store's current snapshot changes.
type SnapshotHolder struct {
	artifacts store.ArtifactStore
	current   atomic.Pointer[query.Snapshot]
	mu        sync.Mutex
}

// NewSnapshotHolder loads the current snapshot, or an empty one when none
// has been committed yet.
func NewSnapshotHolder(ctx context.Context, artifacts store.ArtifactStore) (*SnapshotHolder, error) {
	s, err := query.LoadOrEmpty(ctx, artifacts)
	if err != nil {
		return nil, err
	}
	h := &SnapshotHolder{artifacts: artifacts}
	h.current.Store(s)
	return h, nil
}

func (h *SnapshotHolder) Current() query.QueryClient {
	return h.current.Load()
}

// Reload loads the store's current snapshot if it differs from the served
// one. It reports whether the snapshot was swapped.
func (h *SnapshotHolder) Reload(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	version, err := h.artifacts.Current(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	old := h.current.Load()
	if old.Version() == version {
		return false, nil
	}

	s, err := query.Load(ctx, h.artifacts)
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot %s: %w", version, err)
	}
	h.current.Store(s)
	time.AfterFunc(retireAfter, func() { _ = old.Close() })

	logger.Info("[Server] Snapshot swapped", "from", old.Version(), "to", s.Version())
	return true, nil
}

// Watch reloads whenever the current link in dir is replaced, until ctx is
// done.
func (h *SnapshotHolder) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != currentLink || !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if _, err := h.Reload(ctx); err != nil {
					logger.Error("[Server] Snapshot reload failed, keeping the served one", "err", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[Server] Snapshot watcher error", "err", err)
		}
	}
}
