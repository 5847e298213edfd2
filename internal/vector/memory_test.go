package vector

import (
	"context"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	vecs := [][]float32{
		{0, 1, 0},
		{0.9, 0.1, 0},
		{2, 0, 0},
	}
	ids := []string{"c", "b", "a"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("expected a then b, got %s then %s", results[0].ID, results[1].ID)
	}
	if results[0].Distance > 1e-9 {
		t.Errorf("parallel vectors should be at distance 0, got %f", results[0].Distance)
	}
}

func TestMemoryIndex_TiesKeepInsertionOrder(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"first", "second", "third"}, [][]float32{{1, 0}, {1, 0}, {1, 0}})

	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || results[0].ID != "first" || results[2].ID != "third" {
		t.Errorf("unexpected order %v", results)
	}
}

func TestMemoryIndex_Errors(t *testing.T) {
	if _, err := NewMemoryIndex(0); err == nil {
		t.Error("expected error for zero dimensions")
	}
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 2, 3}}); err == nil {
		t.Error("expected dimension mismatch on add")
	}
	if err := idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 2}}); err == nil {
		t.Error("expected length mismatch on add")
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected dimension mismatch on search")
	}
	results, err := idx.Search(ctx, []float32{1, 0}, 5)
	if err != nil || results != nil {
		t.Errorf("empty index should return nil, nil; got %v, %v", results, err)
	}
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := NewMemoryIndex(256)
	ctx := context.Background()
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 256)
		vecs[i][0] = float32(i) / 1000
		vecs[i][1] = 1
		ids[i] = string(rune('a' + i%26))
	}
	_ = idx.Add(ctx, ids, vecs)
	query := make([]float32, 256)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}
