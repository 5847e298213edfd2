package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{".txt", ".md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".pdf", []string{"txt", "pdf"}, true},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func testIndexer(t *testing.T, opts ...IndexerOption) (*Indexer, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	cfg := config.RetrievalConfig{ChunkSize: 40, ChunkOverlap: 10}
	return NewIndexer(store, extract.NewExtractor(), cfg, opts...), store
}

// flakyEmbedder succeeds for the first ok calls and fails afterwards.
type flakyEmbedder struct {
	ok    int64
	calls atomic.Int64
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.calls.Add(1) > f.ok {
		return nil, errors.New("embedding service unavailable")
	}
	return []float32{1, 0, 0}, nil
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestIngest_StoresDocumentAndChunks(t *testing.T) {
	idx, store := testIndexer(t, WithEmbedder(embedding.NewMockEmbedder(4)))
	ctx := context.Background()

	text := strings.Repeat("Refunds are accepted within thirty days. ", 4)
	doc, err := idx.Ingest(ctx, "t1", models.DocumentUpload{
		Filename: "refunds.txt",
		Content:  []byte(text),
		Tags:     []string{" FAQ ", "faq", ""},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.Visibility != models.VisibilityPublic {
		t.Errorf("default visibility = %q", doc.Visibility)
	}
	if len(doc.Tags) != 1 || doc.Tags[0] != "faq" {
		t.Errorf("tags = %v", doc.Tags)
	}
	if doc.ContentType != extract.TypePlain {
		t.Errorf("content type = %q", doc.ContentType)
	}

	n, err := store.CountChunks(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if n < 2 {
		t.Fatalf("expected several chunks, got %d", n)
	}
	embedded, err := store.ChunksWithEmbeddings(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(embedded)) != n {
		t.Errorf("all chunks should be embedded: %d of %d", len(embedded), n)
	}
	if other, _ := store.CountChunks(ctx, "t2"); other != 0 {
		t.Errorf("chunks leaked into another tenant: %d", other)
	}
}

func TestIngest_StopsEmbeddingAfterFirstFailure(t *testing.T) {
	flaky := &flakyEmbedder{ok: 1}
	idx, store := testIndexer(t, WithEmbedder(flaky))
	ctx := context.Background()

	text := strings.Repeat("Shipping takes five business days. ", 6)
	if _, err := idx.Ingest(ctx, "t1", models.DocumentUpload{Filename: "shipping.md", Content: []byte(text)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	total, _ := store.CountChunks(ctx, "t1")
	embedded, _ := store.ChunksWithEmbeddings(ctx, "t1")
	if len(embedded) != 1 {
		t.Errorf("expected exactly the first chunk embedded, got %d", len(embedded))
	}
	if total <= 1 {
		t.Errorf("remaining chunks must still be stored, total = %d", total)
	}
	if got := flaky.calls.Load(); got != 2 {
		t.Errorf("embedding should stop after first failure, calls = %d", got)
	}

	hits, err := store.SearchChunksByKeywords(ctx, "t1", []string{"shipping"}, 20)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(hits)) != total {
		t.Errorf("keyword search should see every chunk: %d of %d", len(hits), total)
	}
}

func TestIngest_WithoutEmbedder(t *testing.T) {
	idx, store := testIndexer(t)
	ctx := context.Background()
	if _, err := idx.Ingest(ctx, "t1", models.DocumentUpload{Filename: "a.txt", Content: []byte("hello world")}); err != nil {
		t.Fatal(err)
	}
	embedded, _ := store.ChunksWithEmbeddings(ctx, "t1")
	if len(embedded) != 0 {
		t.Errorf("no embeddings expected, got %d", len(embedded))
	}
}

func TestIngest_Rejects(t *testing.T) {
	idx, _ := testIndexer(t)
	ctx := context.Background()
	tests := []struct {
		name   string
		tenant string
		upload models.DocumentUpload
		want   error
	}{
		{"no tenant", "", models.DocumentUpload{Filename: "a.txt", Content: []byte("x")}, ErrInvalidUpload},
		{"no filename", "t1", models.DocumentUpload{Content: []byte("x")}, ErrInvalidUpload},
		{"bad visibility", "t1", models.DocumentUpload{Filename: "a.txt", Content: []byte("x"), Visibility: "secret"}, ErrInvalidUpload},
		{"unsupported", "t1", models.DocumentUpload{Filename: "a.exe", Content: []byte("x")}, extract.ErrUnsupported},
		{"empty", "t1", models.DocumentUpload{Filename: "a.txt", Content: []byte("  ")}, extract.ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idx.Ingest(ctx, tt.tenant, tt.upload)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIngestFile_ReplacesSameFilename(t *testing.T) {
	idx, store := testIndexer(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "hours.txt")

	if err := os.WriteFile(path, []byte("Open nine to five."), 0600); err != nil {
		t.Fatal(err)
	}
	first, err := idx.IngestFile(ctx, "t1", path, nil)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if err := os.WriteFile(path, []byte("Open eight to six."), 0600); err != nil {
		t.Fatal(err)
	}
	second, err := idx.IngestFile(ctx, "t1", path, nil)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if first.ID == second.ID {
		t.Error("re-ingest should create a new document")
	}
	if _, err := store.GetDocument(ctx, "t1", first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("old document should be gone, err = %v", err)
	}
	hits, _ := store.SearchChunksByKeywords(ctx, "t1", []string{"nine"}, 5)
	if len(hits) != 0 {
		t.Errorf("stale chunks remain: %d", len(hits))
	}

	if _, err := idx.IngestFile(ctx, "t1", path, []string{".md"}); err == nil {
		t.Error("expected extension filter error")
	}
	if _, err := idx.IngestFile(ctx, "t1", dir, nil); err == nil {
		t.Error("expected error for directory")
	}
}

func TestIngestDirectory(t *testing.T) {
	idx, store := testIndexer(t)
	ctx := context.Background()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "a.txt"):  "alpha document",
		filepath.Join(sub, "b.md"):   "bravo document",
		filepath.Join(dir, "c.bin"):  "skipped",
		filepath.Join(dir, "d.json"): `{"k":"delta"}`,
	}
	for p, content := range files {
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	n, err := idx.IngestDirectory(ctx, "t1", dir, nil)
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if n != 3 {
		t.Errorf("ingested %d files, want 3", n)
	}
	docs, err := store.ListDocuments(ctx, "t1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Errorf("stored %d documents, want 3", len(docs))
	}

	if _, err := idx.IngestDirectory(ctx, "t1", filepath.Join(dir, "a.txt"), nil); err == nil {
		t.Error("expected error for non-directory")
	}
}

func TestDeleteByFilename(t *testing.T) {
	idx, store := testIndexer(t)
	ctx := context.Background()
	if _, err := idx.Ingest(ctx, "t1", models.DocumentUpload{Filename: "a.txt", Content: []byte("alpha")}); err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteByFilename(ctx, "t1", "a.txt"); err != nil {
		t.Fatalf("DeleteByFilename: %v", err)
	}
	if n, _ := store.CountChunks(ctx, "t1"); n != 0 {
		t.Errorf("chunks remain: %d", n)
	}
	if err := idx.DeleteByFilename(ctx, "t1", "a.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
