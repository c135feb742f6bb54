package retrieval

import (
	"context"
	"sort"
	"sync"

	"juris-rag/internal/model"
)

// MemoryChunkStore keeps chunks in process memory. Entries are written once
// and replaced wholesale, never mutated in place.
type MemoryChunkStore struct {
	mu         sync.RWMutex
	chunks     map[string]model.Chunk
	byDocument map[string][]string
}

var (
	_ ChunkStore   = (*MemoryChunkStore)(nil)
	_ ChunkScanner = (*MemoryChunkStore)(nil)
)

func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{
		chunks:     make(map[string]model.Chunk),
		byDocument: make(map[string][]string),
	}
}

func (s *MemoryChunkStore) SaveBatch(_ context.Context, chunks []model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if _, exists := s.chunks[c.ID]; !exists {
			s.byDocument[c.DocumentID] = append(s.byDocument[c.DocumentID], c.ID)
		}
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *MemoryChunkStore) GetByIDs(_ context.Context, ids []string) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryChunkStore) ListByDocument(_ context.Context, documentID string, limit int) ([]model.Chunk, error) {
	s.mu.RLock()
	ids := s.byDocument[documentID]
	out := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.chunks[id])
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryChunkStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byDocument[documentID]
	for _, id := range ids {
		delete(s.chunks, id)
	}
	delete(s.byDocument, documentID)
	return len(ids), nil
}

// ScanChunks hands fn a snapshot of every chunk, grouped by document in index order.
func (s *MemoryChunkStore) ScanChunks(_ context.Context, batchSize int, fn func([]model.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	s.mu.RLock()
	docs := make([]string, 0, len(s.byDocument))
	for id := range s.byDocument {
		docs = append(docs, id)
	}
	sort.Strings(docs)
	all := make([]model.Chunk, 0, len(s.chunks))
	for _, doc := range docs {
		start := len(all)
		for _, id := range s.byDocument[doc] {
			all = append(all, s.chunks[id])
		}
		group := all[start:]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Index < group[j].Index })
	}
	s.mu.RUnlock()

	for start := 0; start < len(all); start += batchSize {
		end := min(start+batchSize, len(all))
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryChunkStore) Ping(_ context.Context) error {
	return nil
}
