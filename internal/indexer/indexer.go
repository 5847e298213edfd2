// Package indexer ingests tenant knowledge files: extract, chunk, embed, persist.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// ErrInvalidUpload is returned (wrapped) when an upload is missing its tenant or filename,
// or names an unknown visibility.
var ErrInvalidUpload = errors.New("invalid upload")

// Indexer turns uploads into stored documents and chunks.
type Indexer struct {
	docs      storage.DocumentStore
	embedder  embedding.Embedder // optional; nil stores chunks without embeddings
	chunker   *retrieval.Chunker
	extractor *extract.Extractor
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file ingested, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithEmbedder embeds chunks at ingestion so they are visible to vector retrieval.
func WithEmbedder(e embedding.Embedder) IndexerOption {
	return func(idx *Indexer) { idx.embedder = e }
}

// NewIndexer creates an indexer persisting into docs.
func NewIndexer(docs storage.DocumentStore, extractor *extract.Extractor, cfg config.RetrievalConfig, opts ...IndexerOption) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		docs:      docs,
		chunker:   retrieval.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Ingest extracts, chunks and embeds an upload and stores it as a new tenant document.
// Chunks are embedded one by one; after the first embedding failure the remaining chunks
// are stored without embeddings, which keeps them reachable by keyword retrieval.
func (idx *Indexer) Ingest(ctx context.Context, tenantID string, upload models.DocumentUpload) (*models.Document, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidUpload)
	}
	filename := filepath.Base(strings.TrimSpace(upload.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}
	visibility := strings.ToLower(strings.TrimSpace(upload.Visibility))
	switch visibility {
	case "":
		visibility = models.VisibilityPublic
	case models.VisibilityPublic, models.VisibilityInternalOnly:
	default:
		return nil, fmt.Errorf("%w: visibility %q", ErrInvalidUpload, upload.Visibility)
	}

	contentType, text, err := idx.extractor.Extract(filename, upload.ContentType, upload.Content)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	doc := &models.Document{
		ID:          utils.NewID("d"),
		TenantID:    tenantID,
		Filename:    filename,
		ContentType: contentType,
		Visibility:  visibility,
		Tags:        normalizeTags(upload.Tags),
	}
	chunks := idx.chunker.Chunk(tenantID, doc.ID, text)
	embedded := idx.embedChunks(ctx, tenantID, chunks)

	if err := idx.docs.CreateDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	idx.logger.Debug("indexer document ingested",
		zap.String("tenant_id", tenantID),
		zap.String("doc_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", embedded))
	return doc, nil
}

// embedChunks sets embeddings in order until the first failure and returns how many were set.
func (idx *Indexer) embedChunks(ctx context.Context, tenantID string, chunks []*models.Chunk) int {
	if idx.embedder == nil {
		return 0
	}
	for i, ch := range chunks {
		vec, err := idx.embedder.Embed(ctx, ch.Text)
		if err != nil {
			idx.logger.Warn("chunk embedding failed, storing remaining chunks without embeddings",
				zap.String("tenant_id", tenantID),
				zap.String("doc_id", ch.DocumentID),
				zap.Int("chunk_index", ch.ChunkIndex),
				zap.Error(err))
			return i
		}
		ch.Embedding = vec
	}
	return len(chunks)
}

// IngestFile reads a file from path and ingests it into the tenant. A previous document
// with the same filename is replaced. If allowedExts is non-empty, the file's extension
// must be in the list (case-insensitive).
func (idx *Indexer) IngestFile(ctx context.Context, tenantID, path string, allowedExts []string) (*models.Document, error) {
	idx.logger.Debug("indexer ingesting file", zap.String("tenant_id", tenantID), zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := idx.DeleteByFilename(ctx, tenantID, filepath.Base(absPath)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return idx.Ingest(ctx, tenantID, models.DocumentUpload{
		Filename: filepath.Base(absPath),
		Content:  content,
	})
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension
// is in allowedExts (if non-empty; otherwise every supported file). Returns the number
// of files ingested and the first error encountered, if any.
func (idx *Indexer) IngestDirectory(ctx context.Context, tenantID, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if len(allowedExts) == 0 && !extract.Supports(path) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := idx.IngestFile(ctx, tenantID, path, allowedExts); ingestErr != nil {
			return fmt.Errorf("%s: %w", path, ingestErr)
		}
		n++
		return nil
	})
	return n, err
}

// DeleteByFilename removes the tenant's documents stored under filename.
// Returns storage.ErrNotFound (wrapped) if there is none.
func (idx *Indexer) DeleteByFilename(ctx context.Context, tenantID, filename string) error {
	deleted := 0
	for {
		doc, err := idx.docs.GetDocumentByFilename(ctx, tenantID, filename)
		if errors.Is(err, storage.ErrNotFound) {
			if deleted == 0 {
				return err
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up document: %w", err)
		}
		if err := idx.docs.DeleteDocument(ctx, tenantID, doc.ID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		deleted++
		idx.logger.Debug("indexer document deleted",
			zap.String("tenant_id", tenantID), zap.String("doc_id", doc.ID), zap.String("filename", filename))
	}
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
