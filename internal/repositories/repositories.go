// package repositories provides the persistence layer for the orchestrator state.
//
// State is one JSON document kept under a single key of a [KV] port. [SQLiteKV] is the
// production implementation; [MemoryKV] backs tests.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// KV is a keyed blob store.
type KV interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set creates or replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Update passes the value under key to fn and stores what fn returns. No other writer of the
	// same store, in this process or another, runs between the read and the write. When fn fails
	// nothing is written and its error is returned unchanged.
	Update(ctx context.Context, key string, fn func(value []byte, ok bool) ([]byte, error)) error
}

// SQLiteKV implements [KV] on the kv_store table.
type SQLiteKV struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteKV creates a new [SQLiteKV] with the given database connection
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db, now: time.Now}
}

// Get retrieves the value stored under key
func (r *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

const upsertQuery = `
	INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

// Set upserts value under key
func (r *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	if _, err := r.db.ExecContext(ctx, upsertQuery, key, value, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Update runs the read-modify-write of key inside a BEGIN IMMEDIATE transaction on one connection.
//
// The write lock is taken before the read, so a second process opening the same file waits for the
// commit (up to the driver's busy timeout) instead of overwriting it.
func (r *SQLiteKV) Update(ctx context.Context, key string, fn func(value []byte, ok bool) ([]byte, error)) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to lock key %s: %w", key, err)
	}
	committed := false
	defer func() {
		if !committed {
			conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	var value []byte
	ok := true
	err = conn.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ok = false
	case err != nil:
		return fmt.Errorf("failed to read key %s: %w", key, err)
	}

	next, err := fn(value, ok)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, upsertQuery, key, next, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit key %s: %w", key, err)
	}
	committed = true
	return nil
}

// Keys lists stored keys in sorted order.
func (r *SQLiteKV) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key FROM kv_store ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MemoryKV implements [KV] in memory. Values are copied on the way in and out.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = slices.Clone(value)
	m.sets++
	return nil
}

// Update applies fn under the map lock.
func (m *MemoryKV) Update(_ context.Context, key string, fn func(value []byte, ok bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	next, err := fn(slices.Clone(v), ok)
	if err != nil {
		return err
	}
	m.data[key] = slices.Clone(next)
	m.sets++
	return nil
}

// Keys lists stored keys in sorted order.
func (m *MemoryKV) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.data)), nil
}

// Writes returns how many values were stored through Set or Update.
func (m *MemoryKV) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}
