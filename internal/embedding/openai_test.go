package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newEmbeddingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// Reverse order so the client must honour the index field.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusOK)
	defer srv.Close()

	e, err := NewOpenAIEmbedder("test-key", srv.URL+"/v1", "text-embedding-3-small", nil)
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}

	one, err := e.Embed(context.Background(), "solo")
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 2 {
		t.Errorf("Embed returned %v", one)
	}
}

func TestOpenAIEmbedder_UpstreamError(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusInternalServerError)
	defer srv.Close()

	e, err := NewOpenAIEmbedder("test-key", srv.URL+"/v1", "text-embedding-3-small", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected error from failing upstream")
	}
}

func TestNewOpenAIEmbedder_Validation(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", "", "m", nil); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := NewOpenAIEmbedder("k", "", "", nil); err == nil {
		t.Error("expected error for missing model")
	}
}
