// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"time"

	"docweave-go/internal/model"

	"gorm.io/gorm"
)

// RoomRepository 定义了聊天房间的数据持久化操作。
type RoomRepository interface {
	Create(ctx context.Context, room *model.ChatRoom) error
	FindByID(ctx context.Context, id uint) (*model.ChatRoom, error)
	FindByUser(ctx context.Context, userID uint) ([]model.ChatRoom, error)
	TouchLastActive(ctx context.Context, id uint, at time.Time) error
	// Delete 删除房间及其文档、父块与消息。
	Delete(ctx context.Context, id uint) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository 创建一个新的 RoomRepository 实例。
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *model.ChatRoom) error {
	if room.LastActiveAt.IsZero() {
		room.LastActiveAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(room).Error
}

// FindByID 查找房间，不存在时返回 gorm.ErrRecordNotFound。
func (r *roomRepository) FindByID(ctx context.Context, id uint) (*model.ChatRoom, error) {
	var room model.ChatRoom
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// FindByUser 按最近活跃时间倒序返回用户的房间。
func (r *roomRepository) FindByUser(ctx context.Context, userID uint) ([]model.ChatRoom, error) {
	var rooms []model.ChatRoom
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("last_active_at DESC").Find(&rooms).Error
	return rooms, err
}

func (r *roomRepository) TouchLastActive(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ChatRoom{}).Where("id = ?", id).Update("last_active_at", at).Error
}

func (r *roomRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docIDs := tx.Model(&model.Document{}).Select("id").Where("room_id = ?", id)
		if err := tx.Where("document_id IN (?)", docIDs).Delete(&model.ParentChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ChatRoom{}, id).Error
	})
}
