// Package memory is an in-process vector index using exact cosine search.
package memory

import (
	"context"
	"sort"
	"sync"

	"juris-rag/internal/vectorindex"
)

type entry struct {
	vector []float32
	norm   float64
	tags   vectorindex.Filter
	seq    uint64
}

// Index keeps every vector in memory. It is safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	dim        int
	seq        uint64
	entries    map[string]*entry
	byDocument map[string]map[string]struct{}
}

var _ vectorindex.Index = (*Index)(nil)

func New() *Index {
	return &Index{
		entries:    make(map[string]*entry),
		byDocument: make(map[string]map[string]struct{}),
	}
}

func (idx *Index) Upsert(_ context.Context, chunkID string, vector []float32, tags vectorindex.Filter) error {
	if chunkID == "" {
		return vectorindex.ErrMissingChunkID
	}
	if tags.DocumentID == "" {
		return vectorindex.ErrMissingDocumentID
	}
	if len(vector) == 0 {
		return vectorindex.ErrEmptyVector
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dim != 0 && len(vector) != idx.dim {
		return vectorindex.ErrDimensionMismatch
	}
	idx.dim = len(vector)

	stored := make([]float32, len(vector))
	copy(stored, vector)

	if old, ok := idx.entries[chunkID]; ok {
		if old.tags.DocumentID != tags.DocumentID {
			idx.unlinkDocument(old.tags.DocumentID, chunkID)
		}
		old.vector = stored
		old.norm = vectorindex.Norm(stored)
		old.tags = tags
	} else {
		idx.seq++
		idx.entries[chunkID] = &entry{
			vector: stored,
			norm:   vectorindex.Norm(stored),
			tags:   tags,
			seq:    idx.seq,
		}
	}

	ids, ok := idx.byDocument[tags.DocumentID]
	if !ok {
		ids = make(map[string]struct{})
		idx.byDocument[tags.DocumentID] = ids
	}
	ids[chunkID] = struct{}{}
	return nil
}

func (idx *Index) Search(_ context.Context, query []float32, filter vectorindex.Filter, topK int) ([]vectorindex.Match, error) {
	if topK <= 0 || vectorindex.Norm(query) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.entries) == 0 {
		return nil, nil
	}
	if len(query) != idx.dim {
		return nil, vectorindex.ErrDimensionMismatch
	}

	type scored struct {
		id    string
		score float64
		seq   uint64
	}
	candidates := make([]scored, 0)
	for id, e := range idx.entries {
		if e.norm == 0 || !filter.Matches(e.tags) {
			continue
		}
		candidates = append(candidates, scored{id: id, score: vectorindex.Cosine(query, e.vector), seq: e.seq})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]vectorindex.Match, len(candidates))
	for i, c := range candidates {
		matches[i] = vectorindex.Match{ChunkID: c.id, Score: c.score}
	}
	return matches, nil
}

func (idx *Index) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, vectorindex.ErrMissingDocumentID
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := idx.byDocument[documentID]
	for id := range ids {
		delete(idx.entries, id)
	}
	delete(idx.byDocument, documentID)
	if len(idx.entries) == 0 {
		idx.dim = 0
	}
	return len(ids), nil
}

func (idx *Index) Count(_ context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}

func (idx *Index) unlinkDocument(documentID, chunkID string) {
	ids := idx.byDocument[documentID]
	delete(ids, chunkID)
	if len(ids) == 0 {
		delete(idx.byDocument, documentID)
	}
}
