package llm

import (
	"context"
	"time"
)

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

type Message struct {
	Role    string
	Content string
}

type LLM interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}
