package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"

	"mnemo-backend/application/ports"
	"mnemo-backend/pkg/errors"
)

// LocalProvider produces deterministic embeddings from hashed token
// features. Quality is far below a learned model, but the vectors are
// stable across runs and good enough for offline and test deployments.
type LocalProvider struct {
	dimension int
}

var _ ports.EmbeddingProvider = (*LocalProvider)(nil)

// NewLocalProvider creates a feature-hash embedder of the given dimension
func NewLocalProvider(dimension int) (*LocalProvider, error) {
	if dimension <= 0 {
		return nil, errors.NewValidationError("embedding dimension must be positive")
	}
	return &LocalProvider{dimension: dimension}, nil
}

// Dimension returns the vector width
func (p *LocalProvider) Dimension() int { return p.dimension }

// Embed hashes unigrams and bigrams into a signed feature vector and
// normalizes it to unit length
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("embed")
	}
	if text == "" {
		return nil, errors.NewValidationError("text is required")
	}

	vec := make([]float32, p.dimension)
	tokens := tokenize(text)
	for i, token := range tokens {
		p.accumulate(vec, token)
		if i+1 < len(tokens) {
			p.accumulate(vec, token+" "+tokens[i+1])
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// accumulate adds one feature. The hash picks the bucket and the sign,
// which keeps colliding features from biasing the vector upward.
func (p *LocalProvider) accumulate(vec []float32, feature string) {
	sum := blake3.Sum256([]byte(feature))
	bucket := binary.LittleEndian.Uint64(sum[:8]) % uint64(p.dimension)
	if sum[8]&1 == 0 {
		vec[bucket]++
	} else {
		vec[bucket]--
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
