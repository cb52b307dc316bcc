package model

import "time"

// 文档处理状态。上传后文档进入处理队列，处理完成前不可用于问答。
const (
	DocumentStatusProcessing = 0
	DocumentStatusReady      = 1
	DocumentStatusFailed     = 2
)

// Document 对应于数据库中的 'documents' 表。
// 它记录了每个上传文档的元数据和处理状态；文档的分块记录
// 完全由文档拥有，删除文档时一并删除。
type Document struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentHash string     `gorm:"type:varchar(64);not null;index" json:"contentHash"`
	FileName    string     `gorm:"type:varchar(255);not null" json:"fileName"`
	TotalSize   int64      `gorm:"not null" json:"totalSize"`
	TextLength  int        `gorm:"not null;default:0" json:"textLength"`
	Status      int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	UserID      uint       `gorm:"not null;index" json:"userId"`
	UploadedAt  time.Time  `gorm:"autoCreateTime" json:"uploadedAt"`
	ProcessedAt *time.Time `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
