// Package pipeline 定义了文档处理的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/internal/rag"
	"doc-chat-go/internal/repository"
	"doc-chat-go/pkg/embedding"
	"doc-chat-go/pkg/es"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/storage"
	"doc-chat-go/pkg/tasks"
	"doc-chat-go/pkg/tika"
)

// 单次 Embedding API 调用携带的分块数量上限。
const embeddingBatchSize = 16

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	tikaClient      *tika.Client
	embeddingClient embedding.Client
	esCfg           config.ElasticsearchConfig
	minioCfg        config.MinIOConfig
	ragCfg          config.RAGConfig
	documentRepo    repository.DocumentRepository
	chunkRepo       repository.ChunkRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient *tika.Client,
	embeddingClient embedding.Client,
	esCfg config.ElasticsearchConfig,
	minioCfg config.MinIOConfig,
	ragCfg config.RAGConfig,
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
) *Processor {
	return &Processor{
		tikaClient:      tikaClient,
		embeddingClient: embeddingClient,
		esCfg:           esCfg,
		minioCfg:        minioCfg,
		ragCfg:          ragCfg,
		documentRepo:    documentRepo,
		chunkRepo:       chunkRepo,
	}
}

// Process 是文档处理的主函数：下载、提取文本、分块、向量化并落库。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %d, FileName: %s, UserID: %d", task.DocumentID, task.FileName, task.UserID)

	// 1. 从 MinIO 下载文件
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", p.minioCfg.BucketName, task.ObjectName)
	object, err := storage.GetObject(ctx, p.minioCfg.BucketName, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 从MinIO对象流中读取内容到缓冲区失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}

	// 2. 使用 Tika 提取文本
	log.Info("[Processor] 步骤2: 使用Tika提取文本内容")
	textContent, err := p.tikaClient.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if textContent == "" {
		log.Warnf("[Processor] Tika提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 按词窗口分块
	log.Infof("[Processor] 步骤3: 进行文本分块, chunkSize: %d, chunkOverlap: %d", p.ragCfg.ChunkSize, p.ragCfg.ChunkOverlap)
	chunks, err := rag.Split(textContent, p.ragCfg.ChunkSize, p.ragCfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("文本分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, FileName: %s", task.FileName)
		return errors.New("未生成任何文本分块")
	}

	// 4. 分批向量化
	log.Info("[Processor] 步骤4: 开始对分块进行向量化")
	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	// 5. 落库。为避免重试导致的累计膨胀，处理前先清理既有的分块记录（幂等）
	if err := p.chunkRepo.DeleteByDocumentID(task.DocumentID); err != nil {
		log.Warnf("[Processor] 清理 document_chunks 旧记录失败 (document_id=%d): %v", task.DocumentID, err)
	}
	if err := es.DeleteByDocumentID(ctx, p.esCfg.IndexName, task.DocumentID); err != nil {
		log.Warnf("[Processor] 清理 Elasticsearch 旧索引失败 (document_id=%d): %v", task.DocumentID, err)
	}

	modelVersion := p.embeddingClient.ModelVersion()
	rows := make([]*model.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		vecJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("序列化分块 %d 的向量失败: %w", chunk.Index, err)
		}
		rows = append(rows, &model.DocumentChunk{
			DocumentID:   task.DocumentID,
			ChunkIndex:   chunk.Index,
			Content:      chunk.Text,
			StartOffset:  chunk.StartOffset,
			EndOffset:    chunk.EndOffset,
			Embedding:    string(vecJSON),
			ModelVersion: modelVersion,
		})
	}
	if err := p.chunkRepo.BatchCreate(rows); err != nil {
		log.Errorf("[Processor] 批量保存文本分块到数据库失败, Error: %v", err)
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤5: 成功将 %d 个分块存入数据库", len(rows))

	// 6. 索引到 Elasticsearch 供关键词搜索；失败不阻塞主流程
	for _, chunk := range chunks {
		esChunk := model.EsChunk{
			ChunkKey:   fmt.Sprintf("%d_%d", task.DocumentID, chunk.Index),
			DocumentID: task.DocumentID,
			ChunkIndex: chunk.Index,
			Content:    chunk.Text,
			FileName:   task.FileName,
			UserID:     task.UserID,
		}
		if err := es.IndexChunk(ctx, p.esCfg.IndexName, esChunk); err != nil {
			log.Errorf("[Processor] 索引分块 %d 到Elasticsearch失败, Error: %v", chunk.Index, err)
		}
	}

	// 7. 更新文档状态为已就绪
	if err := p.documentRepo.MarkReady(task.DocumentID, utf8.RuneCountInString(textContent)); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	log.Infof("[Processor] 文档处理成功完成, DocumentID: %d", task.DocumentID)
	return nil
}

// MarkFailed 在任务重试耗尽后将文档标记为处理失败。
func (p *Processor) MarkFailed(ctx context.Context, task tasks.DocumentTask) error {
	return p.documentRepo.UpdateStatus(task.DocumentID, model.DocumentStatusFailed)
}

// embedChunks 分批调用 Embedding API，返回与分块一一对应的向量。
func (p *Processor) embedChunks(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}
		batch, err := p.embeddingClient.CreateEmbeddings(ctx, texts)
		if err != nil {
			log.Errorf("[Processor] 分块 %d-%d 向量化失败, Error: %v", start, end-1, err)
			return nil, fmt.Errorf("分块向量化失败: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
