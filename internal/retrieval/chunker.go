package retrieval

import (
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Chunker splits text into overlapping character windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// An overlap not smaller than the size is reduced so that every window advances.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split normalizes whitespace and returns the non-empty windows in order.
func (c *Chunker) Split(text string) []string {
	runes := []rune(Preprocess(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	var pieces []string
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end > n {
			end = n
		}
		if piece := Preprocess(string(runes[start:end])); piece != "" {
			pieces = append(pieces, piece)
		}
		if end == n {
			break
		}
		start = end - c.chunkOverlap
	}
	return pieces
}

// Chunk splits text into chunks of docID with sequential indexes and fresh IDs.
func (c *Chunker) Chunk(tenantID, docID, text string) []*models.Chunk {
	pieces := c.Split(text)
	if len(pieces) == 0 {
		return nil
	}
	chunks := make([]*models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &models.Chunk{
			ID:         utils.NewID("c"),
			TenantID:   tenantID,
			DocumentID: docID,
			ChunkIndex: i,
			Text:       piece,
		}
	}
	return chunks
}
