package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/pkg/errors"
)

const defaultGenerationModel = "llama3.2"

// HTTPSynthesizer rewrites consolidation summaries through an
// Ollama-compatible generation endpoint. Consolidation treats it as
// optional, so every failure surfaces as collaborator unavailability.
type HTTPSynthesizer struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

var _ ports.Synthesizer = (*HTTPSynthesizer)(nil)

// NewHTTPSynthesizer creates a generation client
func NewHTTPSynthesizer(opts HTTPOptions, logger *zap.Logger) *HTTPSynthesizer {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = defaultGenerationModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSynthesizer{
		endpoint: opts.Endpoint,
		model:    opts.Model,
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With(zap.String("component", "synthesizer")),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Synthesize generates prose for the given prompt
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", errors.NewValidationError("prompt is required")
	}

	body, err := json.Marshal(generateRequest{Model: s.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", errors.NewInternalError("marshal generation request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternalError("build generation request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.NewCancelledError("synthesize")
		}
		return "", errors.NewCollaboratorUnavailableError("synthesizer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Warn("generation request rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", msg))
		return "", errors.NewCollaboratorUnavailableError("synthesizer", nil).
			WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.NewCollaboratorUnavailableError("synthesizer", err)
	}
	return strings.TrimSpace(result.Response), nil
}
