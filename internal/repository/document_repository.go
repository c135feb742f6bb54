package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"juris-rag/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByIDAndUserID returns nil, nil when the document does not exist or is deleted.
func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ListByUserIDAndSessionID lists the user's documents, newest first; an empty
// sessionID lists every session.
func (r *DocumentRepository) ListByUserIDAndSessionID(ctx context.Context, userID, sessionID string) ([]model.Document, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	var list []model.Document
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// DeleteByIDAndUserID soft-deletes the document.
func (r *DocumentRepository) DeleteByIDAndUserID(ctx context.Context, id, userID string) error {
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
