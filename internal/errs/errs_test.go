package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindsSurviveWrapping(t *testing.T) {
	provider := fmt.Errorf("refresh lost-1: %w", Provider("embedding", "embed", context.DeadlineExceeded))
	if !IsProvider(provider) || IsValidation(provider) || IsNotFound(provider) {
		t.Errorf("expected only a provider error, got %v", provider)
	}
	if !errors.Is(provider, context.DeadlineExceeded) {
		t.Error("expected provider error to unwrap to its cause")
	}

	if !IsNotFound(fmt.Errorf("load: %w", NotFound("report", "r1"))) {
		t.Error("expected wrapped not found error")
	}
	if !IsValidation(fmt.Errorf("ask: %w", Validation("question", "blank"))) {
		t.Error("expected wrapped validation error")
	}
}

func TestProviderNilError(t *testing.T) {
	if err := Provider("completion", "chat", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Provider("embedding", "", errors.New("boom")), "embedding provider: boom"},
		{Provider("completion", "chat", errors.New("503")), "completion provider chat: 503"},
		{NotFound("match", "m1"), "match m1 not found"},
		{Validation("item type", `"Stolen" is not an item type`), `invalid item type: "Stolen" is not an item type`},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
