// Package assistant answers free-text questions from retrieved report and
// knowledge snippets.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talaqi/talaqi/internal/errs"
	"github.com/talaqi/talaqi/internal/llm"
	"github.com/talaqi/talaqi/internal/logger"
	"github.com/talaqi/talaqi/internal/search"
)

// InsufficientData is the fixed answer when nothing relevant was retrieved or
// the model had nothing to say.
const InsufficientData = "I don't have enough information to answer that yet. Try rephrasing the question or check back after more reports are filed."

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, query []float32, topK int, f search.Filters) ([]search.Result, error)
}

type Answer struct {
	Answer   string          `json:"answer"`
	Snippets []search.Result `json:"snippets"`
}

type Assistant struct {
	embedder    Embedder
	searcher    Searcher
	completion  llm.LLM
	defaultTopK int
	timeout     time.Duration
}

type Option func(*Assistant)

func WithDefaultTopK(k int) Option {
	return func(a *Assistant) {
		if k > 0 {
			a.defaultTopK = k
		}
	}
}

// WithTimeout bounds the completion call.
func WithTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func New(embedder Embedder, searcher Searcher, completion llm.LLM, opts ...Option) *Assistant {
	a := &Assistant{
		embedder:    embedder,
		searcher:    searcher,
		completion:  completion,
		defaultTopK: 5,
		timeout:     30 * time.Second,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Ask embeds the question, retrieves up to topK snippets and has the model
// answer from them alone. With no usable snippet the model is never called.
// Provider failures come back as *errs.ProviderError and are not retried.
func (a *Assistant) Ask(ctx context.Context, question string, topK int, f search.Filters) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errs.Validation("question", "must not be empty")
	}

	if topK <= 0 {
		topK = a.defaultTopK
	}

	vector, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return nil, asProviderError("embedding", "embed question", err)
	}

	results, err := a.searcher.Search(ctx, vector, topK, f)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	snippets := make([]search.Result, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Snippet) != "" {
			snippets = append(snippets, r)
		}
	}

	if len(snippets) == 0 {
		logger.Debug("no snippets retrieved", "top_k", topK)
		return &Answer{Answer: InsufficientData, Snippets: []search.Result{}}, nil
	}

	if a.completion == nil {
		return nil, errs.Provider("completion", "chat", errors.New("no completion provider configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reply, err := a.completion.Chat(callCtx, BuildPrompt(question, snippets), []llm.Message{
		{Role: "user", Content: question},
	})
	if err != nil {
		return nil, errs.Provider("completion", "chat", err)
	}

	answer := strings.TrimSpace(reply)
	if answer == "" {
		answer = InsufficientData
	}

	logger.Info("question answered", "snippets", len(snippets), "chars", len(answer))

	return &Answer{Answer: answer, Snippets: snippets}, nil
}

// BuildPrompt renders the system prompt: the question followed by the
// numbered snippets the model may draw on.
func BuildPrompt(question string, snippets []search.Result) string {
	var sb strings.Builder

	sb.WriteString("You help people find lost belongings and explain how the lost and found service works.\n")
	sb.WriteString("Answer only from the context below. If the context does not contain the answer, say you don't know. ")
	sb.WriteString("Cite the numbers of the snippets you used, like [1]. Reply in the language of the question.\n\n")

	fmt.Fprintf(&sb, "Question: %s\n\nContext:\n", question)
	for i, s := range snippets {
		fmt.Fprintf(&sb, "[%d] (%s %s) %s\n", i+1, strings.ToLower(string(s.ItemType)), s.ItemID, s.Snippet)
	}

	return sb.String()
}

func asProviderError(provider, op string, err error) error {
	var pe *errs.ProviderError
	var ve *errs.ValidationError
	if errors.As(err, &pe) || errors.As(err, &ve) {
		return err
	}
	return errs.Provider(provider, op, err)
}
