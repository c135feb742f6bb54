// Package retrieval finds the chunks most relevant to a question, using the
// vector index first and keyword matching within a document as the fallback.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"

	"juris-rag/internal/model"
	"juris-rag/internal/vectorindex"
)

const (
	DefaultTopK  = 5
	rebuildBatch = 500
)

var ErrVectorCountMismatch = errors.New("chunk and vector counts differ")

type Source string

const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
)

// ChunkStore holds chunk text keyed by chunk id.
type ChunkStore interface {
	SaveBatch(ctx context.Context, chunks []model.Chunk) error
	GetByIDs(ctx context.Context, ids []string) ([]model.Chunk, error)
	// ListByDocument returns chunks in index order; limit <= 0 means all.
	ListByDocument(ctx context.Context, documentID string, limit int) ([]model.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// ChunkScanner walks every stored chunk in batches.
type ChunkScanner interface {
	ScanChunks(ctx context.Context, batchSize int, fn func([]model.Chunk) error) error
}

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Query struct {
	Text       string
	UserID     string
	SessionID  string
	DocumentID string
	TopK       int
}

type Result struct {
	Chunk  model.Chunk
	Score  float64
	Source Source
}

type Config struct {
	// MinScore drops vector matches whose cosine similarity is below it.
	MinScore float64
}

type Retriever struct {
	index    vectorindex.Index
	chunks   ChunkStore
	embedder QueryEmbedder
	minScore float64
}

func New(index vectorindex.Index, chunks ChunkStore, embedder QueryEmbedder, cfg Config) *Retriever {
	return &Retriever{
		index:    index,
		chunks:   chunks,
		embedder: embedder,
		minScore: cfg.MinScore,
	}
}

// Index stores chunk text with its vector and then upserts the vector into the
// index. vectors[i] belongs to chunks[i].
func (r *Retriever) Index(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", ErrVectorCountMismatch, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	if err := r.chunks.SaveBatch(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks failed: %w", err)
	}
	for i, c := range chunks {
		tags := vectorindex.Filter{UserID: c.UserID, DocumentID: c.DocumentID, SessionID: c.SessionID}
		if err := r.index.Upsert(ctx, c.ID, vectors[i], tags); err != nil {
			return fmt.Errorf("index chunk %d failed: %w", c.Index, err)
		}
	}
	return nil
}

// Rebuild upserts every persisted chunk vector into the index and returns how
// many were loaded. Chunks stored without a vector are skipped.
func (r *Retriever) Rebuild(ctx context.Context, scanner ChunkScanner) (int, error) {
	loaded := 0
	err := scanner.ScanChunks(ctx, rebuildBatch, func(batch []model.Chunk) error {
		for _, c := range batch {
			if len(c.Embedding) == 0 {
				continue
			}
			tags := vectorindex.Filter{UserID: c.UserID, DocumentID: c.DocumentID, SessionID: c.SessionID}
			if err := r.index.Upsert(ctx, c.ID, c.Embedding, tags); err != nil {
				return fmt.Errorf("reindex chunk %s failed: %w", c.ID, err)
			}
			loaded++
		}
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("rebuild vector index failed: %w", err)
	}
	return loaded, nil
}

// Retrieve runs the vector search and, when it finds nothing for a query scoped
// to one document, the keyword fallback over that document's chunks.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}

	results, err := r.vectorSearch(ctx, q)
	if err != nil {
		if q.DocumentID == "" {
			return nil, err
		}
		log.Printf("retrieval: vector search failed for document %s, using keyword fallback: %v", q.DocumentID, err)
	}
	if len(results) > 0 || q.DocumentID == "" {
		return results, nil
	}

	candidates, err := r.chunks.ListByDocument(ctx, q.DocumentID, 0)
	if err != nil {
		return nil, fmt.Errorf("list chunks for fallback failed: %w", err)
	}
	owned := candidates[:0]
	for _, c := range candidates {
		if q.UserID == "" || c.UserID == q.UserID {
			owned = append(owned, c)
		}
	}
	return KeywordSearch(q.Text, owned, q.TopK), nil
}

func (r *Retriever) vectorSearch(ctx context.Context, q Query) ([]Result, error) {
	vector, err := r.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	filter := vectorindex.Filter{UserID: q.UserID, DocumentID: q.DocumentID, SessionID: q.SessionID}
	matches, err := r.index.Search(ctx, vector, filter, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Score >= r.minScore {
			ids = append(ids, m.ChunkID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := r.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunk text failed: %w", err)
	}
	byID := make(map[string]model.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]Result, 0, len(ids))
	for _, m := range matches {
		c, ok := byID[m.ChunkID]
		if !ok || m.Score < r.minScore {
			continue
		}
		results = append(results, Result{Chunk: c, Score: m.Score, Source: SourceVector})
	}
	return results, nil
}

// DeleteDocument removes the document's vectors and then its chunk text.
func (r *Retriever) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := r.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document vectors failed: %w", err)
	}
	if _, err := r.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document chunks failed: %w", err)
	}
	return nil
}

func (r *Retriever) ListChunks(ctx context.Context, documentID string, limit int) ([]model.Chunk, error) {
	return r.chunks.ListByDocument(ctx, documentID, limit)
}
