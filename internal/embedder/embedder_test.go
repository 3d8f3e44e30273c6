package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewEmptyProviderDisablesEmbedder(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e != nil {
		t.Error("expected nil embedder when no provider is configured")
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 1 || req.Input[0] != "black wallet" {
			t.Errorf("unexpected input %q", req.Input)
		}

		json.NewEncoder(w).Encode(ollamaResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer srv.Close()

	e, err := New(Config{Provider: "ollama", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	v, err := e.Embed(context.Background(), "black wallet")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(v) != 2 {
		t.Errorf("expected 2 dims, got %d", len(v))
	}
}

func TestOllamaEmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	e, _ := New(Config{Provider: "ollama", BaseURL: srv.URL})

	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func TestOllamaErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"nomic-embed-text\" not found"}`))
	}))
	defer srv.Close()

	e, _ := New(Config{Provider: "ollama", BaseURL: srv.URL})

	_, err := e.Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "not found") || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("expected ollama error message, got %v", err)
	}
}

func TestOpenAIEmbedAndErrors(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header")
		}
		if fail.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"embedding":[1,0,0],"index":0}]}`))
	}))
	defer srv.Close()

	e, _ := New(Config{Provider: "openai", BaseURL: srv.URL + "/", APIKey: "secret"})

	v, err := e.Embed(context.Background(), "keys")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(v) != 3 || v[0] != 1 {
		t.Errorf("unexpected vector %v", v)
	}

	fail.Store(true)
	_, err = e.Embed(context.Background(), "keys")
	if err == nil || errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected transport error distinct from empty result, got %v", err)
	}
}
