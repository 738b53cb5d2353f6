package store

import (
	"context"
	"path/filepath"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_SaveAndLoad(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveBatch(ctx, "fp-a", 0, []string{"one", "two"}, [][]float32{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("save batch 0: %v", err)
	}
	if err := s.SaveBatch(ctx, "fp-a", 2, []string{"three"}, [][]float32{{5, 6}}); err != nil {
		t.Fatalf("save batch 1: %v", err)
	}

	staged, err := s.Load(ctx, "fp-a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(staged) != 3 {
		t.Fatalf("want 3 staged embeddings, got %d", len(staged))
	}
	if got := staged[2]; got.TextHash != TextHash("three") || got.Embedding[1] != 6 {
		t.Errorf("position 2: got %+v", got)
	}
}

func Test_Store_SaveOverwritesPosition(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.SaveBatch(ctx, "fp", 0, []string{"old"}, [][]float32{{1}})
	if err := s.SaveBatch(ctx, "fp", 0, []string{"new"}, [][]float32{{9}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	staged, err := s.Load(ctx, "fp")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if staged[0].TextHash != TextHash("new") || staged[0].Embedding[0] != 9 {
		t.Errorf("want overwritten checkpoint, got %+v", staged[0])
	}
}

func Test_Store_FingerprintIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.SaveBatch(ctx, "fp-a", 0, []string{"a"}, [][]float32{{1}})
	_ = s.SaveBatch(ctx, "fp-b", 0, []string{"b"}, [][]float32{{2}})

	if err := s.Clear(ctx, "fp-a"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	a, _ := s.Load(ctx, "fp-a")
	b, _ := s.Load(ctx, "fp-b")
	if len(a) != 0 {
		t.Errorf("fp-a: want 0 after clear, got %d", len(a))
	}
	if len(b) != 1 {
		t.Errorf("fp-b: want 1, got %d", len(b))
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	b, _ = s.Load(ctx, "fp-b")
	if len(b) != 0 {
		t.Errorf("fp-b: want 0 after clear all, got %d", len(b))
	}
}

func Test_Store_SaveBatchLengthMismatch(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.SaveBatch(context.Background(), "fp", 0, []string{"a", "b"}, [][]float32{{1}}); err == nil {
		t.Fatal("expected error for mismatched texts and vectors")
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path, err := DefaultDBPath(filepath.Join(t.TempDir(), "index"))
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.SaveBatch(ctx, "fp", 0, []string{"persisted"}, [][]float32{{0.5}})
	_ = s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	staged, err := s2.Load(ctx, "fp")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(staged) != 1 || staged[0].Embedding[0] != 0.5 {
		t.Errorf("want persisted checkpoint, got %+v", staged)
	}
}
