package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

const documentColumns = `id, tenant_id, filename, content_type, visibility, tags, created_at`

// CreateDocument inserts a document and its chunks in a transaction.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	if doc.Visibility == "" {
		doc.Visibility = models.VisibilityPublic
	}
	tagsJSON, err := json.Marshal(nonNilTags(doc.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	now := time.Now().UTC()
	doc.CreatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, tenant_id, filename, content_type, visibility, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Filename, doc.ContentType, doc.Visibility, string(tagsJSON), doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, tenant_id, document_id, chunk_index, text, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		chunk.TenantID = doc.TenantID
		chunk.DocumentID = doc.ID
		chunk.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.TenantID, chunk.DocumentID, chunk.ChunkIndex, chunk.Text,
			encodeEmbedding(chunk.Embedding), chunk.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// GetDocument returns a tenant document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = ? AND id = ?`, tenantID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document not found: %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// GetDocumentByFilename returns the most recent tenant document with the given filename.
func (s *SQLiteStorage) GetDocumentByFilename(ctx context.Context, tenantID, filename string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = ? AND filename = ?
		 ORDER BY created_at DESC LIMIT 1`, tenantID, filename)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document not found: %s: %w", filename, ErrNotFound)
	}
	return doc, err
}

// GetDocumentsByIDs returns the tenant documents with the given IDs in the order of ids.
// IDs that do not exist for the tenant are skipped.
func (s *SQLiteStorage) GetDocumentsByIDs(ctx context.Context, tenantID string, ids []string) ([]*models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*models.Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]*models.Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
			delete(byID, id)
		}
	}
	return docs, nil
}

// ListDocuments returns a tenant's documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, tenantID string, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a tenant document and its chunks.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE tenant_id = ? AND document_id = ?`, tenantID, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document not found: %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// ChunksWithEmbeddings returns every tenant chunk that has a stored embedding.
func (s *SQLiteStorage) ChunksWithEmbeddings(ctx context.Context, tenantID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, document_id, chunk_index, text, embedding, created_at
		 FROM chunks WHERE tenant_id = ? AND embedding IS NOT NULL
		 ORDER BY document_id, chunk_index`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.TenantID, &chunk.DocumentID, &chunk.ChunkIndex,
			&chunk.Text, &blob, &chunk.CreatedAt); err != nil {
			return nil, err
		}
		chunk.Embedding = decodeEmbedding(blob)
		if len(chunk.Embedding) == 0 {
			continue
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// SearchChunksByKeywords matches keywords as case-insensitive substrings of chunk text.
// Embeddings are not loaded.
func (s *SQLiteStorage) SearchChunksByKeywords(ctx context.Context, tenantID string, keywords []string, limit int) ([]*models.Chunk, error) {
	conds := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+2)
	args = append(args, tenantID)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		conds = append(conds, "instr(ulower(text), ?) > 0")
		args = append(args, kw)
	}
	if len(conds) == 0 || limit <= 0 {
		return nil, nil
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, document_id, chunk_index, text, created_at
		 FROM chunks WHERE tenant_id = ? AND (`+strings.Join(conds, " OR ")+`)
		 ORDER BY document_id, chunk_index LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.TenantID, &chunk.DocumentID, &chunk.ChunkIndex,
			&chunk.Text, &chunk.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of chunks stored for a tenant.
func (s *SQLiteStorage) CountChunks(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var contentType sql.NullString
	var tagsJSON string
	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.Filename, &contentType, &doc.Visibility,
		&tagsJSON, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.ContentType = contentType.String
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return &doc, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// encodeEmbedding stores a vector as little-endian float32s; nil stays NULL.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
