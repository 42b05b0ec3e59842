package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/the-deep/deeptree/internal/tree"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	version    INTEGER NOT NULL,
	nodes      INTEGER NOT NULL,
	root       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore keeps documents in a SQLite file, one row per document with
// the tree serialized as JSON.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, doc Document) (*Document, error) {
	if err := checkRoot(doc.Root); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if doc.ID == "" {
		doc.ID = NewID()
	}
	raw, err := json.Marshal(doc.Root)
	if err != nil {
		return nil, fmt.Errorf("encode root: %w", err)
	}
	now := time.Now().UTC()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, source, version, nodes, root, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.Title, doc.Source, doc.Version, tree.Count(tree.Forest{doc.Root}), string(raw),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("create document %s: %w", doc.ID, ErrVersionConflict)
	}
	return &doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d                    Document
		raw                  string
		createdAt, updatedAt string
	)
	if err := row.Scan(&d.ID, &d.Title, &d.Source, &d.Version, &raw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var root tree.Node
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, fmt.Errorf("decode root of %s: %w", d.ID, err)
	}
	d.Root = &root
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &d, nil
}

const selectDocument = `SELECT id, title, source, version, root, created_at, updated_at FROM documents WHERE id = ?`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, selectDocument, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, source, nodes, version, updated_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			updatedAt string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Source, &sum.Nodes, &sum.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, id string, version int64, fn UpdateFunc) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	d, err := scanDocument(tx.QueryRowContext(ctx, selectDocument, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	if version != 0 && version != d.Version {
		return nil, fmt.Errorf("update document %s at version %d (current %d): %w", id, version, d.Version, ErrVersionConflict)
	}

	root, err := fn(d.Root)
	if err != nil {
		return nil, err
	}
	if root == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("delete document %s: %w", id, err)
		}
		return nil, tx.Commit()
	}
	if err := checkRoot(root); err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}

	raw, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode root: %w", err)
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET root = ?, nodes = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(raw), tree.Count(tree.Forest{root}), now.Format(time.RFC3339Nano), id, d.Version)
	if err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, fmt.Errorf("update document %s: %w", id, ErrVersionConflict)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	d.Root = root
	d.Version++
	d.UpdatedAt = now
	return d, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete document %s: %w", id, ErrNotFound)
	}
	return nil
}
