package repository

import (
	"time"

	"gorm.io/gorm"

	"doc-chat-go/internal/model"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id uint) (*model.Document, error)
	FindByHashAndUser(contentHash string, userID uint) (*model.Document, error)
	FindByUserID(userID uint) ([]model.Document, error)
	UpdateStatus(id uint, status int) error
	MarkReady(id uint, textLength int) error
	Delete(id uint) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一个新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByID 根据 ID 查找文档记录。
func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.First(&doc, id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByHashAndUser 根据内容哈希和用户 ID 查找文档记录，用于去重。
func (r *documentRepository) FindByHashAndUser(contentHash string, userID uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("content_hash = ? AND user_id = ?", contentHash, userID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByUserID 查找指定用户上传的所有文档，按上传时间倒序。
func (r *documentRepository) FindByUserID(userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("user_id = ?", userID).Order("uploaded_at desc").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新指定文档的处理状态。
func (r *documentRepository) UpdateStatus(id uint, status int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error
}

// MarkReady 将文档标记为处理完成，同时记录提取文本的长度和完成时间。
func (r *documentRepository) MarkReady(id uint, textLength int) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.DocumentStatusReady,
		"text_length":  textLength,
		"processed_at": &now,
	}).Error
}

// Delete 删除一个文档记录。
func (r *documentRepository) Delete(id uint) error {
	return r.db.Delete(&model.Document{}, id).Error
}
