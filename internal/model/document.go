// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"errors"
	"fmt"
	"time"
)

// DocumentStatus 表示文档在摄取流水线中的处理状态。
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentCompleted  DocumentStatus = "COMPLETED"
	DocumentFailed     DocumentStatus = "FAILED"
)

// ErrInvalidTransition 表示请求的状态迁移不被状态机允许，或文档当前状态已被他人修改。
var ErrInvalidTransition = errors.New("invalid document status transition")

// documentTransitions 是唯一合法的状态迁移表。COMPLETED 与 FAILED 为终态。
var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentPending:    {DocumentProcessing},
	DocumentProcessing: {DocumentCompleted, DocumentFailed},
}

// IsTerminal 报告该状态是否为终态。
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentCompleted || s == DocumentFailed
}

// ValidateTransition 校验 from -> to 是否为合法迁移。
func ValidateTransition(from, to DocumentStatus) error {
	for _, next := range documentTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Document 对应于 'documents' 表，记录房间内每个上传文件的处理状态。
// Status 只能由摄取 worker 通过 DocumentRepository.TransitionStatus 修改。
type Document struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID       uint           `gorm:"not null;index" json:"roomId"`
	FileName     string         `gorm:"type:varchar(255);not null" json:"fileName"`
	Status       DocumentStatus `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	ErrorMessage string         `gorm:"type:varchar(512)" json:"errorMessage,omitempty"`
	ObjectName   string         `gorm:"type:varchar(512)" json:"-"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`

	ParentChunks []ParentChunk `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
