// Package sqlitedocs implements docstore.Store on a single SQLite file using
// the pure-Go modernc.org/sqlite driver.
package sqlitedocs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/document"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS documents (
  name       TEXT PRIMARY KEY,
  body       TEXT NOT NULL,
  nodes      INTEGER NOT NULL,
  edges      INTEGER NOT NULL,
  updated_at TEXT NOT NULL
)`

// Store is a SQLite-backed document store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Save(ctx context.Context, name string, doc document.Document) error {
	if err := docstore.ValidateName(name); err != nil {
		return err
	}
	body, err := document.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (name, body, nodes, edges, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, string(body), len(doc.Nodes), len(doc.Edges), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, name string) (document.Document, error) {
	if err := docstore.ValidateName(name); err != nil {
		return document.Document{}, err
	}
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, fmt.Errorf("%w: %s", docstore.ErrNotFound, name)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("loading %s: %w", name, err)
	}
	return document.Unmarshal([]byte(body))
}

func (s *Store) List(ctx context.Context) ([]docstore.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, nodes, edges, updated_at FROM documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := []docstore.Summary{}
	for rows.Next() {
		var (
			sum     docstore.Summary
			updated string
		)
		if err := rows.Scan(&sum.Name, &sum.Nodes, &sum.Edges, &updated); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if sum.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("document %s has a bad timestamp: %w", sum.Name, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := docstore.ValidateName(name); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, name)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
