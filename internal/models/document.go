package models

import "time"

// Document visibility values.
const (
	VisibilityPublic       = "public"
	VisibilityInternalOnly = "internal_only"
)

// Document is a tenant knowledge document. Its text lives in its chunks.
type Document struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	Visibility  string    `json:"visibility" db:"visibility"`
	Tags        []string  `json:"tags" db:"tags"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Chunk is a stored window of document text. Embedding is nil when the chunk was
// ingested without embedding capability; such chunks are only found by keyword search.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Text       string    `json:"text" db:"text"`
	Embedding  []float32 `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RetrievedChunk is the per-call snapshot of a chunk returned by retrieval.
type RetrievedChunk struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// Retrieved converts a stored chunk into its retrieval snapshot.
func (c *Chunk) Retrieved() RetrievedChunk {
	return RetrievedChunk{
		DocumentID: c.DocumentID,
		ChunkID:    c.ID,
		ChunkIndex: c.ChunkIndex,
		Text:       c.Text,
	}
}

// DocumentUpload is the input for ingesting a document into a tenant.
type DocumentUpload struct {
	Filename    string   `json:"filename"`
	ContentType string   `json:"content_type,omitempty"`
	Content     []byte   `json:"-"`
	Visibility  string   `json:"visibility,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}
