package search

import (
	"context"
	"path/filepath"
	"testing"

	"curator/internal/domain"
	"curator/internal/port"
)

func openTestVec(t *testing.T, dim int) *SQLiteVec {
	t.Helper()
	s, err := NewSQLiteVec(filepath.Join(t.TempDir(), "vectors.db"), dim)
	if err != nil {
		t.Fatalf("open vector db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteVec_IndexAndNearest(t *testing.T) {
	s := openTestVec(t, 2)
	ctx := context.Background()

	err := s.Index(ctx, []domain.ImageRecord{
		{ID: "near", Username: "alpha", Embedding: []float32{1, 0}},
		{ID: "mid", Username: "beta", Embedding: []float32{0.7, 0.7}},
		{ID: "far", Username: "alpha", Embedding: []float32{0, 1}},
		{ID: "no-embedding", Username: "alpha"},
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	got, err := s.Nearest(ctx, []float32{1, 0}, 2, port.NeighborOptions{})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "near" || got[1].ID != "mid" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if len(got[0].Embedding) != 2 {
		t.Errorf("embedding not returned with the hit: %v", got[0].Embedding)
	}
}

func TestSQLiteVec_CoverFilter(t *testing.T) {
	s := openTestVec(t, 2)
	ctx := context.Background()

	err := s.Index(ctx, []domain.ImageRecord{
		{ID: "cover", Username: "alpha", IsCoverSlide: true, Embedding: []float32{1, 0}},
		{ID: "plain", Username: "alpha", Embedding: []float32{0.9, 0.1}},
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	got, err := s.Nearest(ctx, []float32{1, 0}, 5, port.NeighborOptions{})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(got) != 1 || got[0].ID != "plain" {
		t.Errorf("expected the cover to be filtered, got %+v", got)
	}
}

func TestSQLiteVec_UsernameFilter(t *testing.T) {
	s := openTestVec(t, 2)
	ctx := context.Background()

	err := s.Index(ctx, []domain.ImageRecord{
		{ID: "a1", Username: "alpha", Embedding: []float32{1, 0}},
		{ID: "b1", Username: "beta", Embedding: []float32{0.9, 0.1}},
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	got, err := s.Nearest(ctx, []float32{1, 0}, 5, port.NeighborOptions{Usernames: []string{"@Beta"}})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b1" {
		t.Errorf("expected only beta's image, got %+v", got)
	}
}

func TestSQLiteVec_UpsertReplaces(t *testing.T) {
	s := openTestVec(t, 2)
	ctx := context.Background()

	if err := s.Index(ctx, []domain.ImageRecord{{ID: "i1", Username: "old", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := s.Index(ctx, []domain.ImageRecord{{ID: "i1", Username: "new", Embedding: []float32{0, 1}}}); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	got, err := s.Nearest(ctx, []float32{0, 1}, 5, port.NeighborOptions{})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the upsert to keep one row, got %d", len(got))
	}
	if got[0].Username != "new" {
		t.Errorf("metadata not replaced: %q", got[0].Username)
	}
}

func TestSQLiteVec_DimensionMismatch(t *testing.T) {
	s := openTestVec(t, 4)

	err := s.Index(context.Background(), []domain.ImageRecord{
		{ID: "i1", Embedding: []float32{1, 0}},
	})
	if err == nil {
		t.Fatal("expected a dimension mismatch error")
	}
}
