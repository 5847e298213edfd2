package vector

import "context"

// Index ranks stored vectors against a query.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Size() int
}

// VectorResult is a single search hit. Lower distance is more similar.
type VectorResult struct {
	ID       string
	Distance float64
}
