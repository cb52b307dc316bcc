package model

// DocumentChunk 对应于数据库中的 'document_chunks' 表。
// 每行是文档文本的一个词窗口分块；Embedding 是向量的 JSON 编码
// （[]float32），在处理管道中一次性写入，之后不再修改。
// StartOffset/EndOffset 是该分块在原始提取文本中的字节偏移。
type DocumentChunk struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID   uint   `gorm:"not null;index" json:"documentId"`
	ChunkIndex   int    `gorm:"not null" json:"chunkIndex"`
	Content      string `gorm:"type:text;not null" json:"content"`
	StartOffset  int    `gorm:"not null" json:"startOffset"`
	EndOffset    int    `gorm:"not null" json:"endOffset"`
	Embedding    string `gorm:"type:mediumtext" json:"-"`
	ModelVersion string `gorm:"type:varchar(64)" json:"modelVersion"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
