// Package embedding provides the embedding and synthesis collaborators. The
// HTTP client speaks the Ollama API; the local provider hashes token features
// and needs no external service.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/pkg/errors"
)

const (
	defaultEndpoint = "http://localhost:11434"
	defaultModel    = "nomic-embed-text"
)

// HTTPClient calls an Ollama-compatible embedding endpoint
type HTTPClient struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

var _ ports.EmbeddingProvider = (*HTTPClient)(nil)

// HTTPOptions configures the client
type HTTPOptions struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// NewHTTPClient creates an embedding client against an Ollama-style server
func NewHTTPClient(opts HTTPOptions, logger *zap.Logger) *HTTPClient {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		endpoint: opts.Endpoint,
		model:    opts.Model,
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With(zap.String("component", "embedding-client")),
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding for a single text
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.NewValidationError("text is required")
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, errors.NewInternalError("marshal embedding request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError("build embedding request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelledError("embed")
		}
		return nil, errors.NewCollaboratorUnavailableError("embedder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("embedding request rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", msg))
		return nil, errors.NewCollaboratorUnavailableError("embedder", nil).
			WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewCollaboratorUnavailableError("embedder", err)
	}
	if len(result.Embedding) == 0 {
		return nil, errors.NewCollaboratorUnavailableError("embedder", nil).
			WithDetails(map[string]interface{}{"reason": "empty embedding"})
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedBatch embeds each text sequentially, stopping at the first failure
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}
