package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAIEmbedder_RequiresAPIKeyForPublicEndpoint(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", "", ""); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := NewOpenAIEmbedder("", "nomic-embed-text", "http://localhost:11434/v1"); err != nil {
		t.Errorf("local endpoint should not need a key: %v", err)
	}
}

func TestNewOpenAIEmbedder_Defaults(t *testing.T) {
	emb, err := NewOpenAIEmbedder("sk-test", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Model() != "text-embedding-3-small" {
		t.Errorf("expected default model, got %s", emb.Model())
	}
	if emb.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default base URL, got %s", emb.baseURL)
	}
	if emb.Dimensions() != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", emb.Dimensions())
	}
}

func newEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		// Reverse order to check the client re-sorts by index.
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), 1, 0}})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
}

func TestOpenAIEmbedder_EmbedKeepsInputOrder(t *testing.T) {
	srv := newEmbeddingServer(t)
	defer srv.Close()

	emb, err := NewOpenAIEmbedder("", "local-model", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := emb.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if emb.Dimensions() != 3 {
		t.Errorf("expected dimensions learned from init, got %d", emb.Dimensions())
	}

	vecs, err := emb.Embed(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 3 {
		t.Errorf("embeddings out of order: %v", vecs)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "auth", "code": "401"}}`))
	}))
	defer srv.Close()

	emb, _ := NewOpenAIEmbedder("sk-bad", "", srv.URL)
	if err := emb.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check to fail")
	}
}
