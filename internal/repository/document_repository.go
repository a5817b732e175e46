package repository

import (
	"context"
	"fmt"

	"docweave-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了文档记录的数据持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	FindByRoom(ctx context.Context, roomID uint) ([]model.Document, error)
	// TransitionStatus 以条件更新的方式把文档从 from 迁移到 to。
	// 迁移不合法或当前状态已不是 from 时返回 model.ErrInvalidTransition。
	TransitionStatus(ctx context.Context, id uint, from, to model.DocumentStatus, errMsg string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	if doc.Status == "" {
		doc.Status = model.DocumentPending
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByRoom(ctx context.Context, roomID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id ASC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) TransitionStatus(ctx context.Context, id uint, from, to model.DocumentStatus, errMsg string) error {
	if err := model.ValidateTransition(from, to); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "error_message": errMsg})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: document %d is no longer %s", model.ErrInvalidTransition, id, from)
	}
	return nil
}
