package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embedServer(t *testing.T, dims int, gotModel *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		*gotModel = req.Model
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": make([]float32, dims)}},
		})
	}))
}

func TestOpenAIClient_OptionsApply(t *testing.T) {
	var gotModel string
	srv := embedServer(t, expectedDimensions, &gotModel)
	defer srv.Close()

	c := NewOpenAIClient("key", WithBaseURL(srv.URL), WithModel("text-embedding-3-large"))
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(vec) != expectedDimensions {
		t.Fatalf("expected %d dimensions, got %d", expectedDimensions, len(vec))
	}
	if gotModel != "text-embedding-3-large" {
		t.Fatalf("expected model override to reach the request, got %q", gotModel)
	}
}

func TestOpenAIClient_RejectsWrongVectorWidth(t *testing.T) {
	var gotModel string
	srv := embedServer(t, 8, &gotModel)
	defer srv.Close()

	c := NewOpenAIClient("key", WithBaseURL(srv.URL))
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected an error for a mismatched vector width")
	}
}

func TestOpenAIClient_EmptyOptionsKeepDefaults(t *testing.T) {
	c := NewOpenAIClient("key", WithModel(""), WithBaseURL(""))
	if c.model != defaultModel {
		t.Fatalf("expected default model, got %q", c.model)
	}
	if c.baseURL != defaultBaseURL {
		t.Fatalf("expected default base URL, got %q", c.baseURL)
	}
}
