package rag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// LocalConfig holds the parameters of an on-disk collection.
type LocalConfig struct {
	// Dir is the storage directory. The database file is Dir/index.db.
	// Ignored when Path is set.
	Dir string

	// Path overrides the database location. Use ":memory:" in tests.
	Path string

	// Collection is the collection name within the database.
	Collection string

	// Dimension, when non-zero, is the expected embedding dimension. An empty
	// collection otherwise pins the dimension of the first batch added.
	Dimension int
}

// LocalStore implements VectorStore on a SQLite file. Searches are served
// from an immutable in-memory snapshot that is swapped after every committed
// write, so queries running during an ingest see either the old or the new
// collection, never a partial one.
type LocalStore struct {
	db  *sql.DB
	cfg LocalConfig

	mu       sync.RWMutex
	snapshot []Entry
}

// OpenLocalStore opens (or creates) the collection and loads its snapshot.
func OpenLocalStore(ctx context.Context, cfg LocalConfig) (*LocalStore, error) {
	if cfg.Collection == "" {
		return nil, errors.New("rag: local store: collection name is required")
	}
	path := cfg.Path
	if path == "" {
		if cfg.Dir == "" {
			return nil, errors.New("rag: local store: storage directory is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("rag: local store: create %s: %w", cfg.Dir, err)
		}
		path = filepath.Join(cfg.Dir, "index.db")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("rag: local store: open %s: %w", path, err)
	}
	// Single connection: one writer, and ":memory:" databases stay alive.
	db.SetMaxOpenConns(1)

	s := &LocalStore{db: db, cfg: cfg}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS collections (
    name        TEXT    PRIMARY KEY,
    dimension   INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT    NOT NULL,
    collection    TEXT    NOT NULL,
    fingerprint   TEXT    NOT NULL,
    source_uri    TEXT    NOT NULL,
    page          INTEGER NOT NULL,
    start_offset  INTEGER NOT NULL,
    content       TEXT    NOT NULL,
    embedding     BLOB    NOT NULL,
    UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_entries_fingerprint
    ON entries (collection, fingerprint);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("rag: local store: migrate: %w", err)
	}
	return nil
}

// load reads every entry of the collection into a fresh snapshot.
func (s *LocalStore) load(ctx context.Context) error {
	const q = `
SELECT id, fingerprint, source_uri, page, start_offset, content, embedding
FROM   entries
WHERE  collection = ?
ORDER  BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("rag: local store: load: %w", err)
	}
	defer rows.Close()

	var snap []Entry
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.Chunk.ID, &e.Chunk.SourceFingerprint, &e.Chunk.SourceURI,
			&e.Chunk.PageNumber, &e.Chunk.StartOffset, &e.Chunk.Text, &blob); err != nil {
			return fmt.Errorf("rag: local store: load scan: %w", err)
		}
		e.Embedding = DecodeVector(blob)
		snap = append(snap, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rag: local store: load rows: %w", err)
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return nil
}

// AddBatch inserts all entries in one transaction and then publishes a new
// snapshot containing them.
func (s *LocalStore) AddBatch(ctx context.Context, entries []Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: local store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	dim, err := s.pinnedDimension(ctx, tx)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = s.cfg.Dimension
	}
	if dim == 0 {
		dim = len(entries[0].Embedding)
	}
	for _, e := range entries {
		if len(e.Embedding) != dim {
			return &DimensionMismatch{Collection: s.cfg.Collection, Want: dim, Got: len(e.Embedding)}
		}
	}

	const upsertCollection = `
INSERT INTO collections (name, dimension, created_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension`
	if _, err = tx.ExecContext(ctx, upsertCollection, s.cfg.Collection, dim, time.Now().Unix()); err != nil {
		return fmt.Errorf("rag: local store: pin dimension: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entries (id, collection, fingerprint, source_uri, page, start_offset, content, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("rag: local store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		c := e.Chunk
		if _, err = stmt.ExecContext(ctx, c.ID, s.cfg.Collection, c.SourceFingerprint, c.SourceURI,
			c.PageNumber, c.StartOffset, c.Text, EncodeVector(e.Embedding)); err != nil {
			return fmt.Errorf("rag: local store: insert %s: %w", c.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("rag: local store: commit: %w", err)
	}

	s.mu.Lock()
	next := make([]Entry, 0, len(s.snapshot)+len(entries))
	next = append(next, s.snapshot...)
	next = append(next, entries...)
	s.snapshot = next
	s.mu.Unlock()
	return nil
}

func (s *LocalStore) pinnedDimension(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.cfg.Collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rag: local store: read dimension: %w", err)
	}
	return dim, nil
}

// HasFingerprint reports whether any entry of the collection carries fingerprint.
func (s *LocalStore) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM entries WHERE collection = ? AND fingerprint = ?)`
	var found bool
	if err := s.db.QueryRowContext(ctx, q, s.cfg.Collection, fingerprint).Scan(&found); err != nil {
		return false, fmt.Errorf("rag: local store: exists: %w", err)
	}
	return found, nil
}

// Search ranks the current snapshot by cosine similarity.
func (s *LocalStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("rag: local store: topK must be positive, got %d", topK)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	if len(snap) == 0 {
		return []Chunk{}, nil
	}
	if want := len(snap[0].Embedding); len(queryEmbedding) != want {
		return nil, &DimensionMismatch{Collection: s.cfg.Collection, Want: want, Got: len(queryEmbedding)}
	}
	return rankByCosine(snap, queryEmbedding, topK), nil
}

// Dimension returns the pinned dimension of the collection.
func (s *LocalStore) Dimension(ctx context.Context) (int, error) {
	return s.pinnedDimension(ctx, s.db)
}

// Stats reports the snapshot size and pinned dimension.
func (s *LocalStore) Stats(ctx context.Context) (Stats, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	n := len(s.snapshot)
	s.mu.RUnlock()
	return Stats{Collection: s.cfg.Collection, Count: n, Dimension: dim}, nil
}

// Peek returns up to n chunks in insertion order.
func (s *LocalStore) Peek(_ context.Context, n int) ([]Chunk, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	if n > len(snap) {
		n = len(snap)
	}
	out := make([]Chunk, 0, n)
	for _, e := range snap[:n] {
		out = append(out, e.Chunk)
	}
	return out, nil
}

// DeleteCollection removes every entry and unpins the dimension.
func (s *LocalStore) DeleteCollection(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: local store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ?`, s.cfg.Collection); err != nil {
		return fmt.Errorf("rag: local store: delete entries: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.cfg.Collection); err != nil {
		return fmt.Errorf("rag: local store: delete collection: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("rag: local store: commit: %w", err)
	}

	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
	return nil
}

// Name identifies the store in readiness reports.
func (s *LocalStore) Name() string { return "index" }

// Ping verifies the database is reachable.
func (s *LocalStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("rag: local store: ping: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *LocalStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("rag: local store: close: %w", err)
	}
	return nil
}
