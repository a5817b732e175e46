package repository

import (
	"context"

	"docweave-go/internal/model"
	"docweave-go/pkg/log"

	"gorm.io/gorm"
)

// MessageRepository 定义了房间消息的数据持久化操作。
type MessageRepository interface {
	Save(ctx context.Context, msg *model.ChatMessage) error
	// FindRecent 返回房间最近 limit 条消息，按时间正序排列。
	FindRecent(ctx context.Context, roomID uint, limit int) ([]model.ChatMessage, error)
	// FindPage 返回 beforeID 之前的最近 limit 条消息，页内按时间正序排列。
	// beforeID 为 0 时取最新一页；翻到更早一页时传入本页第一条的 id。
	FindPage(ctx context.Context, roomID uint, beforeID uint, limit int) ([]model.ChatMessage, error)
	// ForgetRoom 清除房间的历史缓存。消息行随房间级联删除。
	ForgetRoom(ctx context.Context, roomID uint) error
}

type messageRepository struct {
	db    *gorm.DB
	cache HistoryCache
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。cache 可以为 nil。
func NewMessageRepository(db *gorm.DB, cache HistoryCache) MessageRepository {
	return &messageRepository{db: db, cache: cache}
}

func (r *messageRepository) Save(ctx context.Context, msg *model.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return err
	}
	if r.cache != nil {
		if err := r.cache.Append(ctx, *msg); err != nil {
			// 缓存失效即可，下一次读取会回源
			log.Warnf("[MessageRepository] 写入历史缓存失败, roomId: %d, error: %v", msg.RoomID, err)
			_ = r.cache.Invalidate(ctx, msg.RoomID)
		}
	}
	return nil
}

func (r *messageRepository) FindRecent(ctx context.Context, roomID uint, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	if r.cache != nil {
		if msgs, ok, err := r.cache.Recent(ctx, roomID, limit); err == nil && ok {
			return msgs, nil
		}
	}

	var msgs []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	if r.cache != nil {
		_ = r.cache.Fill(ctx, roomID, msgs)
	}
	return msgs, nil
}

func (r *messageRepository) FindPage(ctx context.Context, roomID uint, beforeID uint, limit int) ([]model.ChatMessage, error) {
	q := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeID > 0 {
		// 游标按 (created_at, id) 比较，与排序键一致
		cursor := r.db.WithContext(ctx).Model(&model.ChatMessage{}).Select("created_at, id").Where("id = ?", beforeID)
		q = q.Where("(created_at, id) < (?)", cursor)
	}
	var msgs []model.ChatMessage
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (r *messageRepository) ForgetRoom(ctx context.Context, roomID uint) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, roomID)
}

func reverse(msgs []model.ChatMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
