package repository

import (
	"gorm.io/gorm"

	"doc-chat-go/internal/model"
)

// ChunkRepository 定义了对 document_chunks 表的数据操作接口。
type ChunkRepository interface {
	BatchCreate(chunks []*model.DocumentChunk) error
	FindByDocumentID(documentID uint) ([]*model.DocumentChunk, error)
	DeleteByDocumentID(documentID uint) error
	CountByDocumentID(documentID uint) (int64, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量创建文档分块记录。
func (r *chunkRepository) BatchCreate(chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindByDocumentID 查找指定文档的所有分块，按分块序号升序。
func (r *chunkRepository) FindByDocumentID(documentID uint) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	err := r.db.Where("document_id = ?", documentID).Order("chunk_index asc").Find(&chunks).Error
	return chunks, err
}

// DeleteByDocumentID 删除指定文档的所有分块记录。
func (r *chunkRepository) DeleteByDocumentID(documentID uint) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}

// CountByDocumentID 统计指定文档的分块数量。
func (r *chunkRepository) CountByDocumentID(documentID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.DocumentChunk{}).Where("document_id = ?", documentID).Count(&count).Error
	return count, err
}
