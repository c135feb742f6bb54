package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"juris-rag/internal/model"
)

// MemoryDocumentRepository mirrors DocumentRepository in process memory,
// including soft deletion.
type MemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]model.Document
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{docs: make(map[string]model.Document)}
}

func (r *MemoryDocumentRepository) Create(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = *doc
	return nil
}

func (r *MemoryDocumentRepository) GetByIDAndUserID(_ context.Context, id, userID string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok || doc.UserID != userID || doc.DeletedAt.Valid {
		return nil, nil
	}
	return &doc, nil
}

func (r *MemoryDocumentRepository) ListByUserIDAndSessionID(_ context.Context, userID, sessionID string) ([]model.Document, error) {
	r.mu.RLock()
	list := make([]model.Document, 0)
	for _, doc := range r.docs {
		if doc.UserID != userID || doc.DeletedAt.Valid {
			continue
		}
		if sessionID != "" && doc.SessionID != sessionID {
			continue
		}
		list = append(list, doc)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r *MemoryDocumentRepository) DeleteByIDAndUserID(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.UserID != userID {
		return nil
	}
	doc.DeletedAt.Time = time.Now()
	doc.DeletedAt.Valid = true
	r.docs[id] = doc
	return nil
}
