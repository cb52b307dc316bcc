// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/internal/repository"
	"doc-chat-go/pkg/es"
	"doc-chat-go/pkg/kafka"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/storage"
	"doc-chat-go/pkg/tasks"
)

// DocumentStatusDTO 封装了返回给前端的文档处理状态信息。
type DocumentStatusDTO struct {
	DocumentID uint   `json:"documentId"`
	FileName   string `json:"fileName"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	ChunkCount int64  `json:"chunkCount"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, fileHeader *multipart.FileHeader, userID uint) (*model.Document, error)
	ListDocuments(userID uint) ([]model.Document, error)
	GetStatus(documentID, userID uint) (*DocumentStatusDTO, error)
	DeleteDocument(documentID uint, user *model.User) error
}

type documentService struct {
	documentRepo repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	minioCfg     config.MinIOConfig
	esCfg        config.ElasticsearchConfig
	uploadCfg    config.UploadConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(documentRepo repository.DocumentRepository, chunkRepo repository.ChunkRepository, minioCfg config.MinIOConfig, esCfg config.ElasticsearchConfig, uploadCfg config.UploadConfig) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		minioCfg:     minioCfg,
		esCfg:        esCfg,
		uploadCfg:    uploadCfg,
	}
}

// Upload 处理文档上传：校验、去重、写入对象存储并投递处理任务。
func (s *documentService) Upload(ctx context.Context, fileHeader *multipart.FileHeader, userID uint) (*model.Document, error) {
	// 1. 校验扩展名与大小
	if err := s.validateFile(fileHeader); err != nil {
		return nil, err
	}

	// 2. 计算内容哈希（sha256），用于同一用户下的重复上传检测
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("计算文件哈希失败: %w", err)
	}
	contentHash := hex.EncodeToString(hasher.Sum(nil))

	existing, err := s.documentRepo.FindByHashAndUser(contentHash, userID)
	if err == nil {
		log.Infof("[DocumentService] 重复上传，返回已有文档: documentID=%d", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 3. 上传原始文件到 MinIO
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("重置文件读取位置失败: %w", err)
	}
	objectName := fmt.Sprintf("documents/%s/%s", contentHash, fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if err := storage.PutObject(ctx, s.minioCfg.BucketName, objectName, file, fileHeader.Size, contentType); err != nil {
		return nil, fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	// 4. 创建文档记录，初始状态为处理中
	doc := &model.Document{
		ContentHash: contentHash,
		FileName:    fileHeader.Filename,
		TotalSize:   fileHeader.Size,
		Status:      model.DocumentStatusProcessing,
		UserID:      userID,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		return nil, err
	}

	// 5. 投递 Kafka 处理任务
	task := tasks.DocumentTask{
		DocumentID:  doc.ID,
		ContentHash: contentHash,
		ObjectName:  objectName,
		FileName:    fileHeader.Filename,
		UserID:      userID,
	}
	if err := kafka.ProduceDocumentTask(task); err != nil {
		// 任务投递失败时文档无法进入处理流程，直接标记为失败
		log.Errorf("[DocumentService] 投递文档处理任务失败: documentID=%d, error: %v", doc.ID, err)
		if updErr := s.documentRepo.UpdateStatus(doc.ID, model.DocumentStatusFailed); updErr != nil {
			log.Errorf("[DocumentService] 更新文档失败状态出错: documentID=%d, error: %v", doc.ID, updErr)
		}
		return nil, fmt.Errorf("投递处理任务失败: %w", err)
	}

	return doc, nil
}

// ListDocuments 获取用户上传的文档列表。
func (s *documentService) ListDocuments(userID uint) ([]model.Document, error) {
	return s.documentRepo.FindByUserID(userID)
}

// GetStatus 查询文档的处理状态。
func (s *documentService) GetStatus(documentID, userID uint) (*DocumentStatusDTO, error) {
	doc, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("文档不存在")
		}
		return nil, err
	}
	if doc.UserID != userID {
		return nil, errors.New("没有权限访问此文档")
	}

	chunkCount, err := s.chunkRepo.CountByDocumentID(doc.ID)
	if err != nil {
		return nil, err
	}

	return &DocumentStatusDTO{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Status:     doc.Status,
		StatusText: statusText(doc.Status),
		ChunkCount: chunkCount,
	}, nil
}

// DeleteDocument 删除一个文档及其全部派生数据（分块、索引、对象存储文件）。
func (s *documentService) DeleteDocument(documentID uint, user *model.User) error {
	doc, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("文档不存在")
		}
		return err
	}
	if doc.UserID != user.ID && user.Role != "ADMIN" {
		return errors.New("没有权限删除此文档")
	}

	ctx := context.Background()

	// 删除对象存储中的原始文件；失败只记录，不阻塞记录清理
	objectName := fmt.Sprintf("documents/%s/%s", doc.ContentHash, doc.FileName)
	if err := storage.RemoveObject(ctx, s.minioCfg.BucketName, objectName); err != nil {
		log.Errorf("[DocumentService] 删除 MinIO 对象失败: %s, error: %v", objectName, err)
	}

	// 删除 Elasticsearch 中的关键词索引
	if err := es.DeleteByDocumentID(ctx, s.esCfg.IndexName, doc.ID); err != nil {
		log.Errorf("[DocumentService] 删除 Elasticsearch 索引失败: documentID=%d, error: %v", doc.ID, err)
	}

	// 删除分块与文档记录
	if err := s.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return fmt.Errorf("删除文档分块失败: %w", err)
	}
	return s.documentRepo.Delete(doc.ID)
}

// validateFile 校验上传文件的扩展名与大小限制。
func (s *documentService) validateFile(fileHeader *multipart.FileHeader) error {
	if fileHeader.Size > s.uploadCfg.MaxFileSize {
		return fmt.Errorf("文件大小超出限制（最大 %d 字节）", s.uploadCfg.MaxFileSize)
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	for _, allowed := range s.uploadCfg.Extensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("不支持的文件类型: %s，仅支持 %s", ext, strings.Join(s.uploadCfg.Extensions, ", "))
}

func statusText(status int) string {
	switch status {
	case model.DocumentStatusProcessing:
		return "处理中"
	case model.DocumentStatusReady:
		return "已就绪"
	case model.DocumentStatusFailed:
		return "处理失败"
	default:
		return "未知"
	}
}
