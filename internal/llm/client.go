// Package llm provides HTTP clients for embedding and completion backends
// exposing an Ollama-compatible JSON API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tkoskine/stratum/pkg/api"
)

const defaultTimeout = 60 * time.Second

// Client talks to a local or remote model server. The zero value is not
// usable; construct with NewClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:11434". A zero timeout uses the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("call %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Embedder adapts the client to api.Embedder for a fixed model and
// dimensionality. Responses whose vector length differs from dim are
// rejected so the index never mixes dimensionalities.
type Embedder struct {
	client *Client
	model  string
	dim    int
}

var _ api.Embedder = (*Embedder)(nil)

// NewEmbedder returns an Embedder using the given model. dim must match
// the model's output dimensionality.
func NewEmbedder(client *Client, model string, dim int) *Embedder {
	return &Embedder{client: client, model: model, dim: dim}
}

// Embed requests an embedding for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &api.EmbeddingError{Reason: "empty text"}
	}
	var out embedResponse
	if err := e.client.post(ctx, "/api/embeddings", embedRequest{Model: e.model, Prompt: text}, &out); err != nil {
		return nil, &api.EmbeddingError{Reason: "backend request failed", Err: err}
	}
	if len(out.Embedding) != e.dim {
		return nil, &api.DimensionError{Want: e.dim, Got: len(out.Embedding)}
	}
	return out.Embedding, nil
}

// Dimension reports the vector size this embedder produces.
func (e *Embedder) Dimension() int { return e.dim }

// Completer adapts the client to api.Completer for a fixed model.
type Completer struct {
	client *Client
	model  string
}

var _ api.Completer = (*Completer)(nil)

// NewCompleter returns a Completer using the given model.
func NewCompleter(client *Client, model string) *Completer {
	return &Completer{client: client, model: model}
}

// Complete generates a completion for prompt.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	var out generateResponse
	req := generateRequest{Model: c.model, Prompt: prompt, Stream: false}
	if err := c.client.post(ctx, "/api/generate", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}
