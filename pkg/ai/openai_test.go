package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIClientEmbedTexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		var req oaiEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := oaiEmbeddingResponse{}
		// Return out of order to exercise index-based assembly.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "test-key")
	vectors, err := client.EmbedTexts(context.Background(), "embed-model", []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed texts: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 0 || vectors[1][0] != 1 {
		t.Fatalf("vectors not reordered by index: %v", vectors)
	}
}

func TestOpenAIClientEmbedTextsSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "quota exceeded", "type": "insufficient_quota"},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "")
	if _, err := client.EmbedTexts(context.Background(), "embed-model", []string{"a"}); err == nil {
		t.Fatalf("expected error from API failure")
	}
}

func TestOpenAIClientGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req oaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  the answer  "}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "")
	text, err := client.GenerateText(context.Background(), "gen-model", "be helpful", "question?")
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if text != "the answer" {
		t.Fatalf("expected trimmed answer, got %q", text)
	}
}

func TestOpenAIClientGenerateTextRejectsEmptyChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "")
	if _, err := client.GenerateText(context.Background(), "gen-model", "", "question?"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
