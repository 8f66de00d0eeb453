// Package sqlitetier implements the durable tier on a single-file sqlite
// database, the systems-side stand-in for origin-wide browser storage: it
// survives restarts, is shared by every document, and is quota-constrained.
package sqlitetier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chordpad/draftstore/tier"
)

// Store is a durable tier.Store. A single Store is meant to be shared by
// every session of the installation.
type Store struct {
	db       *sql.DB
	capacity int64
	now      func() time.Time
}

// Open opens (or creates) the draft database at path with the given byte
// capacity.
func Open(path string, capacity int64) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open draft database: %w", err)
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS drafts (
			key TEXT PRIMARY KEY,
			body BLOB NOT NULL,
			size INTEGER NOT NULL,
			saved_at INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL
		)`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init draft schema: %w", err)
	}
	return &Store{db: db, capacity: capacity, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM drafts WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tier.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read draft %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE drafts SET last_accessed = ? WHERE key = ?`, s.now().UnixNano(), key,
	); err != nil {
		return nil, fmt.Errorf("touch draft %q: %w", key, err)
	}
	return body, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write draft %q: %w", key, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var used int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM drafts WHERE key != ?`, key,
	).Scan(&used); err != nil {
		return fmt.Errorf("write draft %q: %w", key, err)
	}
	if used+int64(len(value)) > s.capacity {
		return tier.ErrQuotaExceeded
	}

	nowNanos := s.now().UnixNano()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drafts (key, body, size, saved_at, last_accessed)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			size = excluded.size,
			saved_at = excluded.saved_at,
			last_accessed = excluded.last_accessed`,
		key, value, int64(len(value)), nowNanos, nowNanos,
	); err != nil {
		return fmt.Errorf("write draft %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write draft %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete draft %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM drafts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Usage(ctx context.Context) (int64, int64, error) {
	var used int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM drafts`,
	).Scan(&used); err != nil {
		return 0, 0, fmt.Errorf("tier usage: %w", err)
	}
	return used, s.capacity, nil
}

func (s *Store) Entries(ctx context.Context) ([]tier.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, size, last_accessed FROM drafts ORDER BY last_accessed ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list draft entries: %w", err)
	}
	defer rows.Close()

	var entries []tier.Entry
	for rows.Next() {
		var (
			e     tier.Entry
			nanos int64
		)
		if err := rows.Scan(&e.Key, &e.SizeBytes, &nanos); err != nil {
			return nil, fmt.Errorf("list draft entries: %w", err)
		}
		e.LastAccessed = time.Unix(0, nanos)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ tier.Store = (*Store)(nil)
