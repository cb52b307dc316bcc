package model

// EsChunk 代表存储在 Elasticsearch 关键词索引中的分块文档。
// 该索引只服务于关键词搜索接口；问答检索使用的向量保存在
// MySQL 中，不进入 Elasticsearch。
type EsChunk struct {
	ChunkKey   string `json:"chunk_key"` // 唯一标识，documentID_chunkIndex
	DocumentID uint   `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	FileName   string `json:"file_name"`
	UserID     uint   `json:"user_id"`
}

// SearchResponseDTO 定义了返回给前端的关键词搜索结果结构。
type SearchResponseDTO struct {
	DocumentID uint    `json:"documentId"`
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}
