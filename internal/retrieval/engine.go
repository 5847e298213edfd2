// Package retrieval finds the tenant chunks that may answer a question: vector ranking
// over embedded chunks when an embedder is available, substring keyword search otherwise.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Search paths reported to observers.
const (
	PathVector  = "vector"
	PathKeyword = "keyword"
)

// Bounds on the number of chunks a search returns.
const (
	MinTopK = 1
	MaxTopK = 20
)

// Observer is notified after every search.
type Observer func(path string, results int, elapsed time.Duration)

// Engine runs tenant-scoped chunk retrieval.
type Engine struct {
	chunks   storage.ChunkStore
	embedder embedding.Embedder
	logger   *zap.Logger
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder enables the vector path. Without it every search uses keywords.
func WithEmbedder(e embedding.Embedder) Option {
	return func(en *Engine) {
		en.embedder = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(en *Engine) {
		en.logger = l
	}
}

// WithObserver registers a search observer.
func WithObserver(o Observer) Option {
	return func(en *Engine) {
		en.observer = o
	}
}

// NewEngine creates a retrieval engine over chunks.
func NewEngine(chunks storage.ChunkStore, opts ...Option) *Engine {
	e := &Engine{chunks: chunks}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Search returns at most topK chunks for question, most relevant first. topK is clamped
// to [1, 20]. An empty slice means nothing relevant was found; errors are storage failures.
func (e *Engine) Search(ctx context.Context, tenantID, question string, topK int) ([]models.RetrievedChunk, error) {
	start := time.Now()
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, nil
	}
	topK = clampTopK(topK)

	path := PathKeyword
	var (
		chunks []*models.Chunk
		err    error
	)
	if e.embedder != nil {
		var qvec []float32
		qvec, err = e.embedder.Embed(ctx, q)
		if err != nil {
			e.logger.Warn("question embedding failed, using keyword search",
				zap.String("tenant_id", tenantID), zap.Error(err))
		} else {
			path = PathVector
			chunks, err = e.vectorSearch(ctx, tenantID, qvec, topK)
			if err != nil {
				return nil, err
			}
		}
	}
	if path == PathKeyword {
		chunks, err = e.chunks.SearchChunksByKeywords(ctx, tenantID, ExtractKeywords(q), topK)
		if err != nil {
			return nil, fmt.Errorf("keyword search failed: %w", err)
		}
	}

	out := make([]models.RetrievedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = c.Retrieved()
	}
	elapsed := time.Since(start)
	e.logger.Debug("retrieval complete",
		zap.String("tenant_id", tenantID),
		zap.String("path", path),
		zap.Int("results", len(out)),
		zap.Duration("elapsed", elapsed))
	if e.observer != nil {
		e.observer(path, len(out), elapsed)
	}
	return out, nil
}

// vectorSearch ranks the tenant's embedded chunks by ascending cosine distance to qvec.
// Chunks whose dimension differs from the question vector are skipped.
func (e *Engine) vectorSearch(ctx context.Context, tenantID string, qvec []float32, topK int) ([]*models.Chunk, error) {
	candidates, err := e.chunks.ChunksWithEmbeddings(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load embedded chunks: %w", err)
	}
	if len(candidates) == 0 || len(qvec) == 0 {
		return nil, nil
	}
	idx, err := vector.NewMemoryIndex(len(qvec))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Chunk, len(candidates))
	ids := make([]string, 0, len(candidates))
	vecs := make([][]float32, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if len(c.Embedding) != len(qvec) {
			skipped++
			continue
		}
		byID[c.ID] = c
		ids = append(ids, c.ID)
		vecs = append(vecs, c.Embedding)
	}
	if skipped > 0 {
		e.logger.Warn("skipped chunks with mismatched embedding dimension",
			zap.String("tenant_id", tenantID), zap.Int("skipped", skipped))
	}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		return nil, err
	}
	hits, err := idx.Search(ctx, qvec, topK)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Chunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, byID[h.ID])
	}
	return out, nil
}

func clampTopK(k int) int {
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}
