// Package embedding turns text into vectors through a pluggable backend,
// batching requests and pacing them against provider rate limits.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize = 10
	DefaultTimeout   = 60 * time.Second
)

var (
	ErrUnavailable = errors.New("embedding service unavailable")
	ErrEmptyInput  = errors.New("embedding input is empty")
)

// Backend is a provider that embeds a batch of texts in one call.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	BatchSize         int
	RequestsPerSecond float64
	Timeout           time.Duration
}

type Generator struct {
	backend   Backend
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
}

func NewGenerator(backend Backend, cfg Config) *Generator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Generator{
		backend:   backend,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// EmbedDocuments embeds every non-blank text. The result is aligned with the
// input after blank entries are removed. Either all vectors are returned or none.
func (g *Generator) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vectors := make([][]float32, 0, len(kept))
	for start := 0; start < len(kept); start += g.batchSize {
		end := start + g.batchSize
		if end > len(kept) {
			end = len(kept)
		}
		batch, err := g.embedBatch(ctx, kept[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	if err := checkDimensions(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vectors, err := g.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	vectors, err := g.backend.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(vectors), len(batch))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector at position %d", ErrUnavailable, i)
		}
	}
	return vectors, nil
}

func checkDimensions(vectors [][]float32) error {
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return fmt.Errorf("%w: inconsistent vector dimensions %d and %d", ErrUnavailable, len(vectors[0]), len(vectors[i]))
		}
	}
	return nil
}
