package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDB emulates app_locks for the three statements the client issues.
type memDB struct {
	mu        sync.Mutex
	owners    map[string]string
	renewFail bool
}

type row struct {
	key string
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.key
	return nil
}

func (db *memDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	switch {
	case strings.Contains(sql, "INSERT INTO app_locks"):
		if owner, ok := db.owners[key]; ok && owner != token {
			return row{err: pgx.ErrNoRows}
		}
		db.owners[key] = token
		return row{key: key}
	case strings.Contains(sql, "UPDATE app_locks"):
		if db.renewFail || db.owners[key] != token {
			return row{err: pgx.ErrNoRows}
		}
		return row{key: key}
	}
	return row{err: errors.New("unexpected query")}
}

func (db *memDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if db.owners[key] == token {
		delete(db.owners, key)
	}
	return pgconn.CommandTag{}, nil
}

func TestAcquireIsExclusive(t *testing.T) {
	db := &memDB{owners: make(map[string]string)}
	c := New(db)
	key := RebuildKey("/data/artifacts")

	lease, err := c.Acquire(context.Background(), key, Options{TokenPrefix: "host-a-"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(lease.Token, "host-a-"))

	_, err = c.Acquire(context.Background(), key, Options{})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, lease.Release(context.Background()))
	again, err := c.Acquire(context.Background(), key, Options{})
	require.NoError(t, err)
	require.NoError(t, again.Release(context.Background()))
}

func TestWithLeaseRunsAndReleases(t *testing.T) {
	db := &memDB{owners: make(map[string]string)}
	c := New(db)

	ran := false
	err := c.WithLease(context.Background(), "k", Options{}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, db.owners)

	want := errors.New("rebuild failed")
	err = c.WithLease(context.Background(), "k", Options{}, func(ctx context.Context) error { return want })
	assert.ErrorIs(t, err, want)
	assert.Empty(t, db.owners)
}

func TestLostLeaseCancelsContext(t *testing.T) {
	db := &memDB{owners: make(map[string]string), renewFail: true}
	c := New(db)

	err := c.WithLease(context.Background(), "k", Options{TTL: 20 * time.Millisecond, RenewEvery: 5 * time.Millisecond},
		func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
	assert.ErrorIs(t, err, ErrLost)
}

func TestWaitHonoursContext(t *testing.T) {
	db := &memDB{owners: map[string]string{"k": "someone-else"}}
	c := New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
