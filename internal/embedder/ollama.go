package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ollama talks to the /api/embed endpoint, which takes a batch of inputs and
// returns one vector per input.
type ollama struct {
	client  *http.Client
	baseURL string
	model   string
}

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func newOllama(client *http.Client, baseURL, model string) *ollama {
	return &ollama{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

func (o *ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonBody, err := json.Marshal(ollamaRequest{Model: o.model, Input: []string{text}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var ollamaResp ollamaResponse
	decodeErr := json.Unmarshal(body, &ollamaResp)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && ollamaResp.Error != "" {
			return nil, fmt.Errorf("ollama %s (status %d): %s", o.model, resp.StatusCode, ollamaResp.Error)
		}
		return nil, fmt.Errorf("ollama %s (status %d): %s", o.model, resp.StatusCode, string(body))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode ollama response: %w", decodeErr)
	}

	if len(ollamaResp.Embeddings) == 0 || len(ollamaResp.Embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return ollamaResp.Embeddings[0], nil
}
