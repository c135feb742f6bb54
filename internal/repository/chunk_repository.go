package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"juris-rag/internal/model"
)

const chunkInsertBatch = 100

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) SaveBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, chunkInsertBatch).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).Omit("embedding").Where("id IN ?", ids).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by ids failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string, limit int) ([]model.Chunk, error) {
	q := r.db.WithContext(ctx).Omit("embedding").Where("document_id = ?", documentID).Order("chunk_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var chunks []model.Chunk
	if err := q.Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

// ScanChunks walks every chunk that carries an embedding, batchSize rows at a time.
func (r *ChunkRepository) ScanChunks(ctx context.Context, batchSize int, fn func([]model.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = chunkInsertBatch
	}
	var batch []model.Chunk
	res := r.db.WithContext(ctx).
		Where("embedding IS NOT NULL").
		FindInBatches(&batch, batchSize, func(*gorm.DB, int) error {
			return fn(batch)
		})
	if res.Error != nil {
		return fmt.Errorf("scan chunks failed: %w", res.Error)
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete chunks by document failed: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
