// Package store provides a SQLite-backed checkpoint store for ingestion.
// Embeddings computed for a document are saved batch by batch, so an
// interrupted ingest resumes without recomputing work already paid for.
// Checkpoints are cleared once the document is committed to the index.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// Staged is one checkpointed embedding.
type Staged struct {
	// Position is the chunk's index within the document's chunk list.
	Position int
	// TextHash is TextHash of the chunk text the embedding was computed for.
	TextHash string
	// Embedding is the stored vector.
	Embedding []float32
}

// CheckpointStore persists in-progress embeddings keyed by document
// fingerprint. Implementations must be safe for concurrent use.
type CheckpointStore interface {
	// SaveBatch records embeddings for the chunks at start, start+1, ...
	// texts and vectors are parallel.
	SaveBatch(ctx context.Context, fingerprint string, start int, texts []string, vectors [][]float32) error
	// Load returns every staged embedding for the fingerprint keyed by position.
	Load(ctx context.Context, fingerprint string) (map[int]Staged, error)
	// Clear drops the fingerprint's checkpoints.
	Clear(ctx context.Context, fingerprint string) error
	// ClearAll drops every checkpoint.
	ClearAll(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a CheckpointStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the checkpoint database path inside an index
// directory, creating the directory if needed.
func DefaultDBPath(indexDir string) (string, error) {
	if err := os.MkdirAll(indexDir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", indexDir, err)
	}
	return filepath.Join(indexDir, "progress.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
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
CREATE TABLE IF NOT EXISTS checkpoints (
    fingerprint  TEXT    NOT NULL,
    position     INTEGER NOT NULL,
    text_hash    TEXT    NOT NULL,
    embedding    BLOB    NOT NULL,
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    PRIMARY KEY (fingerprint, position)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// TextHash is the digest used to detect that a checkpointed embedding still
// belongs to the same chunk text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SaveBatch writes one batch of embeddings in a single transaction,
// replacing any earlier checkpoint at the same positions.
func (s *SQLiteStore) SaveBatch(ctx context.Context, fingerprint string, start int, texts []string, vectors [][]float32) (err error) {
	if len(texts) != len(vectors) {
		return fmt.Errorf("store: save batch: %d texts but %d vectors", len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save batch: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO checkpoints (fingerprint, position, text_hash, embedding, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(fingerprint, position) DO UPDATE SET
    text_hash = excluded.text_hash,
    embedding = excluded.embedding,
    created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("store: save batch: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, text := range texts {
		if _, err = stmt.ExecContext(ctx, fingerprint, start+i, TextHash(text), rag.EncodeVector(vectors[i]), now); err != nil {
			return fmt.Errorf("store: save batch: insert: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: save batch: commit: %w", err)
	}
	return nil
}

// Load returns the staged embeddings of a fingerprint keyed by position.
func (s *SQLiteStore) Load(ctx context.Context, fingerprint string) (map[int]Staged, error) {
	const q = `SELECT position, text_hash, embedding FROM checkpoints WHERE fingerprint = ?`
	rows, err := s.db.QueryContext(ctx, q, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	defer rows.Close()

	staged := make(map[int]Staged)
	for rows.Next() {
		var st Staged
		var blob []byte
		if err := rows.Scan(&st.Position, &st.TextHash, &blob); err != nil {
			return nil, fmt.Errorf("store: load scan: %w", err)
		}
		st.Embedding = rag.DecodeVector(blob)
		staged[st.Position] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load rows: %w", err)
	}
	return staged, nil
}

// Clear drops the checkpoints of one fingerprint.
func (s *SQLiteStore) Clear(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE fingerprint = ?`, fingerprint); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

// ClearAll drops every checkpoint.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
		return fmt.Errorf("store: clear all: %w", err)
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
