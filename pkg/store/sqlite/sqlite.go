// Package sqlite stores objects in a single SQLite table.
//
// Each row holds one object: its class, ID, timestamps and the encoded
// fields as JSON text. Batch inserts run in one transaction; a failing row
// is reported on its own and does not roll back its siblings.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/matzehuels/deepsave/pkg/store"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed [store.Store].
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//   - a single connection, since SQLite has one writer
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, class string, doc store.Document) (store.Record, error) {
	return insert(ctx, s.db, class, doc)
}

// CreateMany implements [store.Store].
func (s *Store) CreateMany(ctx context.Context, class string, docs []store.Document) ([]store.Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	results := make([]store.Result, len(docs))
	for i, doc := range docs {
		rec, err := insert(ctx, tx, class, doc)
		results[i] = store.Result{Record: rec, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return results, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, class string, doc store.Document) (store.Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshal %s: %w", class, err)
	}
	now := store.Now()
	rec := store.Record{Class: class, ID: store.NewObjectID(), CreatedAt: now, UpdatedAt: now, Data: doc}

	_, err = db.ExecContext(ctx,
		`INSERT INTO objects (class, id, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?)`,
		class, rec.ID, now.Format(timeLayout), now.Format(timeLayout), string(data))
	if err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// Update implements [store.Store].
func (s *Store) Update(ctx context.Context, class, id string, doc store.Document) (store.Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshal %s: %w", class, err)
	}
	now := store.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET data = ?, updated_at = ? WHERE class = ? AND id = ?`,
		string(data), now.Format(timeLayout), class, id)
	if err != nil {
		return store.Record{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.Record{}, store.ErrNotFound
	}
	return s.Get(ctx, class, id)
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, class, id string) (store.Record, error) {
	var created, updated, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at, data FROM objects WHERE class = ? AND id = ?`,
		class, id).Scan(&created, &updated, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}

	rec := store.Record{Class: class, ID: id}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return store.Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return store.Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return store.Record{}, fmt.Errorf("unmarshal %s/%s: %w", class, id, err)
	}
	return rec, nil
}

// Count returns the number of stored objects of class.
func (s *Store) Count(ctx context.Context, class string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE class = ?`, class).Scan(&n)
	return n, err
}

// Close implements [store.Store].
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
