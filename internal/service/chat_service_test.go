package service

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/internal/rag"
	"doc-chat-go/pkg/llm"
)

func scoredChunks(texts ...string) []rag.ScoredChunk {
	chunks := make([]rag.ScoredChunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, rag.ScoredChunk{
			Chunk: rag.Chunk{Index: i, Text: text},
			Score: 1.0 - float64(i)*0.1,
		})
	}
	return chunks
}

func TestBuildContextText(t *testing.T) {
	s := &chatService{}

	assert.Equal(t, "", s.buildContextText(nil))

	text := s.buildContextText(scoredChunks("第一段", "第二段"))
	assert.Contains(t, text, "[1] 第一段")
	assert.Contains(t, text, "[2] 第二段")
}

func TestBuildSystemMessageWithContext(t *testing.T) {
	s := &chatService{}

	msg := s.buildSystemMessage("[1] 参考内容\n")
	assert.Contains(t, msg, "<<REF>>")
	assert.Contains(t, msg, "<<END>>")
	assert.Contains(t, msg, "[1] 参考内容")
	// 默认规则要求仅根据参考资料回答
	assert.Contains(t, msg, "参考资料")
}

func TestBuildSystemMessageNoContext(t *testing.T) {
	s := &chatService{}

	msg := s.buildSystemMessage("")
	assert.Contains(t, msg, "（本轮无检索结果）")
}

func TestFallbackAnswer(t *testing.T) {
	s := &chatService{}

	empty := s.fallbackAnswer(nil)
	assert.Contains(t, empty, "没有找到相关内容")

	withChunks := s.fallbackAnswer(scoredChunks("相关段落"))
	assert.Contains(t, withChunks, "暂时无法生成回答")
	assert.Contains(t, withChunks, "[1] 相关段落")
}

// --- 带桩实现的问答流程测试 ---

type stubDocumentRepo struct {
	doc *model.Document
	err error
}

func (r *stubDocumentRepo) Create(doc *model.Document) error { return nil }
func (r *stubDocumentRepo) FindByID(id uint) (*model.Document, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.doc, nil
}
func (r *stubDocumentRepo) FindByHashAndUser(contentHash string, userID uint) (*model.Document, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *stubDocumentRepo) FindByUserID(userID uint) ([]model.Document, error) { return nil, nil }
func (r *stubDocumentRepo) UpdateStatus(id uint, status int) error             { return nil }
func (r *stubDocumentRepo) MarkReady(id uint, textLength int) error            { return nil }
func (r *stubDocumentRepo) Delete(id uint) error                               { return nil }

type stubChunkRepo struct {
	chunks []*model.DocumentChunk
}

func (r *stubChunkRepo) BatchCreate(chunks []*model.DocumentChunk) error { return nil }
func (r *stubChunkRepo) FindByDocumentID(documentID uint) ([]*model.DocumentChunk, error) {
	return r.chunks, nil
}
func (r *stubChunkRepo) DeleteByDocumentID(documentID uint) error        { return nil }
func (r *stubChunkRepo) CountByDocumentID(documentID uint) (int64, error) { return int64(len(r.chunks)), nil }

type stubChatRepo struct {
	session  *model.ChatSession
	messages []*model.ChatMessage
}

func (r *stubChatRepo) CreateSession(session *model.ChatSession) error { return nil }
func (r *stubChatRepo) FindSession(sessionID string) (*model.ChatSession, error) {
	if r.session == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.session, nil
}
func (r *stubChatRepo) FindSessionsByUserID(userID uint) ([]model.ChatSession, error) {
	return nil, nil
}
func (r *stubChatRepo) CreateMessage(message *model.ChatMessage) error {
	r.messages = append(r.messages, message)
	return nil
}
func (r *stubChatRepo) FindMessagesBySessionID(sessionID string) ([]model.ChatMessage, error) {
	return nil, nil
}

type stubHistoryRepo struct{}

func (r *stubHistoryRepo) GetHistory(ctx context.Context, sessionID string) ([]model.HistoryMessage, error) {
	return nil, nil
}
func (r *stubHistoryRepo) AppendHistory(ctx context.Context, sessionID string, messages ...model.HistoryMessage) error {
	return nil
}
func (r *stubHistoryRepo) DeleteHistory(ctx context.Context, sessionID string) error { return nil }

type countingEmbeddingClient struct {
	calls int
}

func (c *countingEmbeddingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{1, 0}, nil
}
func (c *countingEmbeddingClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return [][]float32{{1, 0}}, nil
}
func (c *countingEmbeddingClient) ModelVersion() string { return "test-embed" }

type stubLLMClient struct {
	answer string
	chunks []string
}

func (c *stubLLMClient) Chat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	return c.answer, nil
}
func (c *stubLLMClient) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	for _, chunk := range c.chunks {
		if err := writer.WriteMessage(websocket.TextMessage, []byte(chunk)); err != nil {
			return err
		}
	}
	return nil
}

// collectSender 收集写往 WebSocket 的帧，收到第一帧后置位停止标志。
type collectSender struct {
	frames      []string
	stopOnWrite bool
	stopped     bool
}

func (s *collectSender) WriteMessage(messageType int, data []byte) error {
	s.frames = append(s.frames, string(data))
	if s.stopOnWrite {
		s.stopped = true
	}
	return nil
}

func newStubChatService(docRepo *stubDocumentRepo, chunkRepo *stubChunkRepo, chatRepo *stubChatRepo, embed *countingEmbeddingClient, llmClient *stubLLMClient) *chatService {
	return &chatService{
		documentRepo:    docRepo,
		chunkRepo:       chunkRepo,
		chatRepo:        chatRepo,
		historyRepo:     &stubHistoryRepo{},
		embeddingClient: embed,
		llmClient:       llmClient,
		ragCfg:          config.RAGConfig{TopK: 5, HistoryLimit: 10},
	}
}

func TestAnswerFailsWhenDocumentDeleted(t *testing.T) {
	docRepo := &stubDocumentRepo{err: gorm.ErrRecordNotFound}
	chatRepo := &stubChatRepo{session: &model.ChatSession{SessionID: "s-1", DocumentID: 7, UserID: 1}}
	embed := &countingEmbeddingClient{}
	s := newStubChatService(docRepo, &stubChunkRepo{}, chatRepo, embed, &stubLLMClient{answer: "不该出现"})

	user := &model.User{ID: 1, Role: "USER"}
	answer, err := s.Answer(context.Background(), "s-1", "问题", user)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "文档不存在")
	assert.Nil(t, answer)
	// 文档已删除时不应再发起向量化请求
	assert.Equal(t, 0, embed.calls)
	assert.Empty(t, chatRepo.messages)
}

func TestAnswerFailsWhenDocumentNotReady(t *testing.T) {
	docRepo := &stubDocumentRepo{doc: &model.Document{Status: model.DocumentStatusFailed}}
	chatRepo := &stubChatRepo{session: &model.ChatSession{SessionID: "s-1", DocumentID: 7, UserID: 1}}
	embed := &countingEmbeddingClient{}
	s := newStubChatService(docRepo, &stubChunkRepo{}, chatRepo, embed, &stubLLMClient{})

	user := &model.User{ID: 1, Role: "USER"}
	_, err := s.Answer(context.Background(), "s-1", "问题", user)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "尚未处理完成")
	assert.Equal(t, 0, embed.calls)
}

func TestStreamAnswerFailsWhenDocumentDeleted(t *testing.T) {
	docRepo := &stubDocumentRepo{err: gorm.ErrRecordNotFound}
	chatRepo := &stubChatRepo{session: &model.ChatSession{SessionID: "s-1", DocumentID: 7, UserID: 1}}
	s := newStubChatService(docRepo, &stubChunkRepo{}, chatRepo, &countingEmbeddingClient{}, &stubLLMClient{chunks: []string{"不该下发"}})

	sender := &collectSender{}
	user := &model.User{ID: 1, Role: "USER"}
	err := s.StreamAnswer(context.Background(), "s-1", "问题", user, sender, func() bool { return false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "文档不存在")
	assert.Empty(t, sender.frames)
}

func TestStreamAnswerStopSkipsRemainingChunks(t *testing.T) {
	docRepo := &stubDocumentRepo{doc: &model.Document{Status: model.DocumentStatusReady}}
	chatRepo := &stubChatRepo{session: &model.ChatSession{SessionID: "s-1", DocumentID: 7, UserID: 1}}
	chunkRepo := &stubChunkRepo{chunks: []*model.DocumentChunk{
		{DocumentID: 7, ChunkIndex: 0, Content: "相关内容", Embedding: "[1,0]"},
	}}
	s := newStubChatService(docRepo, chunkRepo, chatRepo, &countingEmbeddingClient{}, &stubLLMClient{chunks: []string{"你", "好", "！"}})

	sender := &collectSender{stopOnWrite: true}
	user := &model.User{ID: 1, Role: "USER"}
	err := s.StreamAnswer(context.Background(), "s-1", "问题", user, sender, func() bool { return sender.stopped })
	require.NoError(t, err)

	// 第一帧下发后停止标志生效，后续分块被跳过，最后仍有完成通知
	require.Len(t, sender.frames, 2)
	assert.Contains(t, sender.frames[0], "你")
	assert.Contains(t, sender.frames[1], "completion")

	// 已下发的部分仍被持久化
	require.Len(t, chatRepo.messages, 2)
	assert.Equal(t, "assistant", chatRepo.messages[1].Role)
	assert.Equal(t, "你", chatRepo.messages[1].Content)
}

func TestToContextChunks(t *testing.T) {
	result := toContextChunks(scoredChunks("a", "b"))
	assert.Len(t, result, 2)
	assert.Equal(t, "a", result[0].Text)
	assert.InDelta(t, 1.0, result[0].Score, 1e-9)
	assert.Equal(t, "b", result[1].Text)
	assert.InDelta(t, 0.9, result[1].Score, 1e-9)

	assert.Empty(t, toContextChunks(nil))
}
