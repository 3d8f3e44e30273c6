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

type openaiCompatible struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

type openaiRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newOpenAICompatible(client *http.Client, apiKey, baseURL, model string) *openaiCompatible {
	return &openaiCompatible{
		client:  client,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

func (o *openaiCompatible) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonBody, err := json.Marshal(openaiRequest{Model: o.model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(body, &oaiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding api error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if oaiResp.Error != nil {
			return nil, fmt.Errorf("embedding api error (status %d): %s", resp.StatusCode, oaiResp.Error.Message)
		}
		return nil, fmt.Errorf("embedding api error (status %d): %s", resp.StatusCode, string(body))
	}

	if len(oaiResp.Data) == 0 || len(oaiResp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return oaiResp.Data[0].Embedding, nil
}
