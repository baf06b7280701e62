package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteDocumentStore persists the corpus in a single SQLite database.
// Metadata is stored as a JSON column; the corpus is append-mostly and
// read-shared by concurrent searches, so WAL mode is enabled.
type SQLiteDocumentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id       TEXT PRIMARY KEY,
	content  TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
`

// NewSQLiteDocumentStore opens (or creates) the document database at path.
// Use ":memory:" for an in-memory store in tests.
func NewSQLiteDocumentStore(path string) (*SQLiteDocumentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open document db: %w", err)
	}

	// Single writer; readers go through the same pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDocumentStore{db: db}, nil
}

// DB exposes the underlying handle so auxiliary tables (search telemetry)
// can live in the same database file.
func (s *SQLiteDocumentStore) DB() *sql.DB {
	return s.db
}

// Save upserts documents in a single transaction.
func (s *SQLiteDocumentStore) Save(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("document store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, content, metadata) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document with empty id")
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, string(meta)); err != nil {
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// Get fetches documents by ID in a single query. Missing IDs are skipped.
// Result order follows the requested ID order.
func (s *SQLiteDocumentStore) Get(ctx context.Context, ids []string) ([]*Document, error) {
	if len(ids) == 0 {
		return []*Document{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("document store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata FROM documents WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	out := make([]*Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// All returns the full corpus ordered by ID for deterministic index builds.
func (s *SQLiteDocumentStore) All(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("document store is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, content, metadata FROM documents ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("select corpus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus: %w", err)
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *SQLiteDocumentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("document store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteDocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanDocument(rows *sql.Rows) (*Document, error) {
	var doc Document
	var metaJSON string
	if err := rows.Scan(&doc.ID, &doc.Content, &metaJSON); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	// Unparsable metadata degrades to empty metadata rather than failing
	// the whole read; scoring treats missing fields as zero contribution.
	if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
		doc.Metadata = Metadata{}
	}
	return &doc, nil
}

// Ensure interface compliance.
var _ DocumentStore = (*SQLiteDocumentStore)(nil)
