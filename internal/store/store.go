// Package store provides a SQLite-backed persistence layer for the document
// library. Each document row carries its extracted text and processing
// state; its committed fragment set lives in a child table and is replaced
// wholesale inside one transaction, so a crash never leaves a document with
// half of an old set and half of a new one.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/rag"
)

// SQLiteStore persists documents and their fragment sets in a local SQLite
// database. It is safe for concurrent use.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the library database.
// It resolves to ~/.docqa/library.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "library.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
//
// File-backed databases use WAL so readers do not block on a writer, and a
// busy timeout so a second docqa process waits for a lock instead of failing.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single connection: SQLite allows one writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id             TEXT    PRIMARY KEY,
    name           TEXT    NOT NULL,
    kind           TEXT    NOT NULL,
    content        TEXT    NOT NULL,
    status         TEXT    NOT NULL CHECK(status IN ('processing','processed','error')),
    error          TEXT    NOT NULL DEFAULT '',
    fingerprint    TEXT    NOT NULL,
    uploaded_at    INTEGER NOT NULL, -- Unix timestamp (nanoseconds)
    chunk_length   INTEGER NOT NULL,
    chunk_overlap  INTEGER NOT NULL,
    mode           TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_documents_fingerprint ON documents (fingerprint);

CREATE TABLE IF NOT EXISTS fragments (
    document_id    TEXT    NOT NULL,
    idx            INTEGER NOT NULL,
    id             TEXT    NOT NULL,
    text           TEXT    NOT NULL,
    start_offset   INTEGER NOT NULL,
    end_offset     INTEGER NOT NULL,
    embedding      BLOB,  -- little-endian float32, NULL when absent
    PRIMARY KEY (document_id, idx)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveDocument inserts or updates a document and replaces its fragment set.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc document.Document) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save %s: begin: %w", doc.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const upsert = `
INSERT INTO documents (id, name, kind, content, status, error, fingerprint, uploaded_at, chunk_length, chunk_overlap, mode)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    kind = excluded.kind,
    content = excluded.content,
    status = excluded.status,
    error = excluded.error,
    fingerprint = excluded.fingerprint,
    chunk_length = excluded.chunk_length,
    chunk_overlap = excluded.chunk_overlap,
    mode = excluded.mode`
	if _, err = tx.ExecContext(ctx, upsert,
		doc.ID, doc.Name, string(doc.Kind), doc.Content, string(doc.Status), doc.Error,
		doc.Fingerprint, doc.UploadedAt.UnixNano(), doc.Chunking.Length, doc.Chunking.Overlap, string(doc.Mode),
	); err != nil {
		return fmt.Errorf("store: save %s: %w", doc.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("store: save %s: clear fragments: %w", doc.ID, err)
	}

	const insert = `INSERT INTO fragments (document_id, idx, id, text, start_offset, end_offset, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, f := range doc.Fragments {
		if _, err = tx.ExecContext(ctx, insert, doc.ID, f.Index, f.ID, f.Text, f.Start, f.End, encodeEmbedding(f.Embedding)); err != nil {
			return fmt.Errorf("store: save %s: fragment %s: %w", doc.ID, f.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: save %s: commit: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument removes a document and its fragments. Deleting an unknown
// id is not an error.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete %s: begin: %w", id, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: delete %s: commit: %w", id, err)
	}
	return nil
}

// LoadAll returns every document with its fragment set, documents in upload
// order and fragments in reading order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]document.Document, error) {
	const q = `
SELECT id, name, kind, content, status, error, fingerprint, uploaded_at, chunk_length, chunk_overlap, mode
FROM   documents
ORDER  BY uploaded_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}

	var (
		docs  []document.Document
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			d                      document.Document
			kind, status, mode     string
			uploaded               int64
			chunkLen, chunkOverlap int
		)
		if err := rows.Scan(&d.ID, &d.Name, &kind, &d.Content, &status, &d.Error, &d.Fingerprint, &uploaded, &chunkLen, &chunkOverlap, &mode); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("store: load scan: %w", err)
		}
		d.Kind = document.Kind(kind)
		d.Status = document.Status(status)
		d.Mode = rag.Mode(mode)
		d.UploadedAt = time.Unix(0, uploaded).UTC()
		d.Chunking = chunker.Config{Length: chunkLen, Overlap: chunkOverlap}
		index[d.ID] = len(docs)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("store: load rows: %w", err)
	}
	_ = rows.Close()

	if err := s.loadFragments(ctx, docs, index); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *SQLiteStore) loadFragments(ctx context.Context, docs []document.Document, index map[string]int) error {
	const q = `
SELECT document_id, idx, id, text, start_offset, end_offset, embedding
FROM   fragments
ORDER  BY document_id ASC, idx ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: load fragments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f    rag.Fragment
			blob []byte
		)
		if err := rows.Scan(&f.DocumentID, &f.Index, &f.ID, &f.Text, &f.Start, &f.End, &blob); err != nil {
			return fmt.Errorf("store: load fragments scan: %w", err)
		}
		i, ok := index[f.DocumentID]
		if !ok {
			continue
		}
		if f.Embedding, err = decodeEmbedding(blob); err != nil {
			return fmt.Errorf("store: fragment %s: %w", f.ID, err)
		}
		docs[i].Fragments = append(docs[i].Fragments, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: load fragments rows: %w", err)
	}
	return nil
}

// Name returns the component name used in health reports.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// encodeEmbedding packs v as little-endian float32s. An empty vector is
// stored as NULL.
func encodeEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

var errBadEmbedding = errors.New("embedding blob length is not a multiple of 4")

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, errBadEmbedding
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
