package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewKnownProviders(t *testing.T) {
	for _, provider := range []string{"claude", "openai", "ollama", "groq"} {
		if _, err := New(Config{Provider: provider, APIKey: "k"}); err != nil {
			t.Errorf("New(%s) failed: %v", provider, err)
		}
		if !IsKnownProvider(provider) {
			t.Errorf("expected %s to be known", provider)
		}
	}

	if _, err := New(Config{Provider: "bogus"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOpenAICompatibleChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			return
		}

		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system + user messages, got %+v", req.Messages)
		}

		w.Write([]byte(`{"choices":[{"message":{"content":"A black wallet was found in Cairo."}}]}`))
	}))
	defer srv.Close()

	model, err := New(Config{Provider: "openai", BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("failed to create llm: %v", err)
	}

	answer, err := model.Chat(context.Background(), "answer from context", []Message{{Role: "user", Content: "wallet?"}})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if answer != "A black wallet was found in Cairo." {
		t.Errorf("unexpected answer %q", answer)
	}
}

func TestOpenAICompatibleErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	model, _ := New(Config{Provider: "openai", BaseURL: srv.URL, APIKey: "k"})

	if _, err := model.Chat(context.Background(), "", []Message{{Role: "user", Content: "x"}}); err == nil {
		t.Error("expected error on 500")
	}
}

func TestIsRetryableError(t *testing.T) {
	if !isRetryableError(errors.New("529 overloaded_error")) {
		t.Error("expected 529 to be retryable")
	}
	if isRetryableError(errors.New("401 unauthorized")) {
		t.Error("expected 401 to not be retryable")
	}
}
