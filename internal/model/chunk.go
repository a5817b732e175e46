package model

// ParentChunk 对应于 'parent_chunks' 表。
// 父块是提供给大模型的完整上下文，只存放在关系库中，不进入向量索引。
type ParentChunk struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID  uint   `gorm:"not null;index" json:"documentId"`
	OwnerUserID uint   `gorm:"not null;index" json:"ownerUserId"`
	Content     string `gorm:"type:mediumtext;not null" json:"content"`
	PageNumber  int    `gorm:"not null;default:0" json:"pageNumber"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ParentChunk) TableName() string {
	return "parent_chunks"
}

// ChildChunk 是只存在于向量索引中的细粒度切块，写入后不再修改。
// ParentID 必须指向同一 Document 下已落库的 ParentChunk。
type ChildChunk struct {
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector,omitempty"`
	ParentID   uint      `json:"parent_id"`
	DocumentID uint      `json:"document_id"`
	RoomID     uint      `json:"room_id"`
	UserID     uint      `json:"user_id"`
	SourceFile string    `json:"source_file"`
	PageNumber int       `json:"page_number"`
}

// ChildChunkHit 是一次向量检索命中的结果。
type ChildChunkHit struct {
	ChildChunk
	Score float64 `json:"score"`
}

// ChunkFilter 描述检索时的精确匹配过滤条件，零值字段不参与过滤。
type ChunkFilter struct {
	RoomID uint
	UserID uint
}
