package repository

import (
	"context"

	"docweave-go/internal/model"

	"gorm.io/gorm"
)

// ParentChunkRepository 定义了对 parent_chunks 表的数据操作接口。
type ParentChunkRepository interface {
	Create(ctx context.Context, chunk *model.ParentChunk) error
	// FindByIDs 按 id 集合批量查询，结果顺序不保证。
	FindByIDs(ctx context.Context, ids []uint) ([]model.ParentChunk, error)
	CountByDocument(ctx context.Context, documentID uint) (int64, error)
	DeleteByDocument(ctx context.Context, documentID uint) error
}

type parentChunkRepository struct {
	db *gorm.DB
}

// NewParentChunkRepository 创建一个新的 ParentChunkRepository 实例。
func NewParentChunkRepository(db *gorm.DB) ParentChunkRepository {
	return &parentChunkRepository{db: db}
}

func (r *parentChunkRepository) Create(ctx context.Context, chunk *model.ParentChunk) error {
	return r.db.WithContext(ctx).Create(chunk).Error
}

func (r *parentChunkRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.ParentChunk, error) {
	var chunks []model.ParentChunk
	if len(ids) == 0 {
		return chunks, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&chunks).Error
	return chunks, err
}

func (r *parentChunkRepository) CountByDocument(ctx context.Context, documentID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ParentChunk{}).Where("document_id = ?", documentID).Count(&n).Error
	return n, err
}

func (r *parentChunkRepository) DeleteByDocument(ctx context.Context, documentID uint) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.ParentChunk{}).Error
}
