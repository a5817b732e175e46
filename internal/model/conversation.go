// Package model 包含了应用的数据模型定义。
package model

import "time"

// MessageRole 表示聊天消息的发送方。
type MessageRole string

const (
	RoleUser MessageRole = "USER"
	RoleAI   MessageRole = "AI"
)

// ChatRoom 对应于 'chat_rooms' 表，一个房间围绕一组上传文档展开对话。
type ChatRoom struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"userId"`
	Title        string    `gorm:"type:varchar(255);not null" json:"title"`
	LastActiveAt time.Time `gorm:"index" json:"lastActiveAt"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`

	Documents []Document    `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
	Messages  []ChatMessage `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// ChatMessage 代表房间中的单条消息，只追加不修改。
// 历史重建按 created_at 排序，id 作为同一时间戳下的次序。
type ChatMessage struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    uint        `gorm:"not null;index:idx_room_created,priority:1" json:"roomId"`
	Role      MessageRole `gorm:"type:varchar(8);not null" json:"role"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time   `gorm:"autoCreateTime;index:idx_room_created,priority:2" json:"createdAt"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// RoomEvent 是推送给房间订阅者（WebSocket / Kafka）的事件。
type RoomEvent struct {
	Type       string         `json:"type"`
	RoomID     uint           `json:"roomId"`
	DocumentID uint           `json:"documentId,omitempty"`
	FileName   string         `json:"fileName,omitempty"`
	Status     DocumentStatus `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

const (
	EventDocumentStatus = "document_status"
	EventMessage        = "message"
)
