// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/internal/rag"
	"doc-chat-go/internal/repository"
	"doc-chat-go/pkg/embedding"
	"doc-chat-go/pkg/llm"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/token"
)

// AnswerDTO 封装了一轮同步问答的结果。
type AnswerDTO struct {
	SessionID     string                   `json:"sessionId"`
	Answer        string                   `json:"answer"`
	ContextChunks []model.ContextChunkInfo `json:"contextChunks"`
	Fallback      bool                     `json:"fallback"`
}

// MessageSender 抽象了 WebSocket 连接上的消息写入。
// 处理器可以传入带写锁的连接包装，保证多协程下发时写入串行。
type MessageSender interface {
	WriteMessage(messageType int, data []byte) error
}

// ChatService 定义了基于文档的问答操作接口。
type ChatService interface {
	StartSession(ctx context.Context, documentID, userID uint) (*model.ChatSession, error)
	Answer(ctx context.Context, sessionID, question string, user *model.User) (*AnswerDTO, error)
	StreamAnswer(ctx context.Context, sessionID, question string, user *model.User, ws MessageSender, shouldStop func() bool) error
	ListSessions(userID uint) ([]model.ChatSession, error)
	GetHistory(sessionID string, user *model.User) ([]model.ChatMessage, error)
}

type chatService struct {
	documentRepo    repository.DocumentRepository
	chunkRepo       repository.ChunkRepository
	chatRepo        repository.ChatRepository
	historyRepo     repository.HistoryRepository
	embeddingClient embedding.Client
	llmClient       llm.Client
	ragCfg          config.RAGConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	chatRepo repository.ChatRepository,
	historyRepo repository.HistoryRepository,
	embeddingClient embedding.Client,
	llmClient llm.Client,
	ragCfg config.RAGConfig,
) ChatService {
	return &chatService{
		documentRepo:    documentRepo,
		chunkRepo:       chunkRepo,
		chatRepo:        chatRepo,
		historyRepo:     historyRepo,
		embeddingClient: embeddingClient,
		llmClient:       llmClient,
		ragCfg:          ragCfg,
	}
}

// StartSession 为指定文档创建一个新的问答会话。文档必须处理完成。
func (s *chatService) StartSession(ctx context.Context, documentID, userID uint) (*model.ChatSession, error) {
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
	if doc.Status != model.DocumentStatusReady {
		return nil, errors.New("文档尚未处理完成，无法开始问答")
	}

	sessionID := token.GenerateRandomString(16)
	session := &model.ChatSession{
		SessionID:  sessionID,
		DocumentID: documentID,
		UserID:     userID,
	}
	if err := s.chatRepo.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Answer 执行一轮同步问答：检索文档分块、构建提示词并调用 LLM。
// LLM 调用失败时返回由最相关分块拼接的降级回答。
func (s *chatService) Answer(ctx context.Context, sessionID, question string, user *model.User) (*AnswerDTO, error) {
	session, err := s.loadSession(sessionID, user)
	if err != nil {
		return nil, err
	}
	if err := s.ensureDocumentReady(session.DocumentID); err != nil {
		return nil, err
	}

	scored, err := s.retrieve(ctx, session.DocumentID, question)
	if err != nil {
		return nil, err
	}

	contextChunks := toContextChunks(scored)
	messages, err := s.buildMessages(ctx, sessionID, scored, question)
	if err != nil {
		return nil, err
	}

	answer, fallback := "", false
	answer, err = s.llmClient.Chat(ctx, messages, nil)
	if err != nil {
		// LLM 不可用时降级：直接返回最相关的分块内容
		log.Errorf("[ChatService] LLM 调用失败，使用降级回答: session=%s, error: %v", sessionID, err)
		answer = s.fallbackAnswer(scored)
		fallback = true
	}

	if err := s.persistTurn(ctx, sessionID, question, answer, contextChunks); err != nil {
		// 持久化失败不影响已生成的回答
		log.Errorf("[ChatService] 保存对话记录失败: session=%s, error: %v", sessionID, err)
	}

	return &AnswerDTO{
		SessionID:     sessionID,
		Answer:        answer,
		ContextChunks: contextChunks,
		Fallback:      fallback,
	}, nil
}

// StreamAnswer 执行一轮流式问答，将 LLM 的增量输出写入 WebSocket。
func (s *chatService) StreamAnswer(ctx context.Context, sessionID, question string, user *model.User, ws MessageSender, shouldStop func() bool) error {
	session, err := s.loadSession(sessionID, user)
	if err != nil {
		return err
	}
	if err := s.ensureDocumentReady(session.DocumentID); err != nil {
		return err
	}

	scored, err := s.retrieve(ctx, session.DocumentID, question)
	if err != nil {
		return err
	}

	contextChunks := toContextChunks(scored)
	messages, err := s.buildMessages(ctx, sessionID, scored, question)
	if err != nil {
		return err
	}

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	if err := s.llmClient.StreamChatMessages(ctx, messages, nil, interceptor); err != nil {
		// 流式失败时同样降级，把分块内容一次性下发
		log.Errorf("[ChatService] LLM 流式调用失败，使用降级回答: session=%s, error: %v", sessionID, err)
		fallback := s.fallbackAnswer(scored)
		answerBuilder.Reset()
		if werr := interceptor.WriteMessage(websocket.TextMessage, []byte(fallback)); werr != nil {
			return werr
		}
	}

	sendCompletion(ws)

	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，因为即使原始请求被取消，我们也希望保存成功生成的答案
		if err := s.persistTurn(context.Background(), sessionID, question, fullAnswer, contextChunks); err != nil {
			// 只记录错误，不返回给客户端，因为流式响应已经成功
			log.Errorf("[ChatService] 保存对话记录失败: session=%s, error: %v", sessionID, err)
		}
	}

	return nil
}

// ListSessions 获取用户的全部会话。
func (s *chatService) ListSessions(userID uint) ([]model.ChatSession, error) {
	return s.chatRepo.FindSessionsByUserID(userID)
}

// GetHistory 获取会话的完整消息记录。
func (s *chatService) GetHistory(sessionID string, user *model.User) ([]model.ChatMessage, error) {
	if _, err := s.loadSession(sessionID, user); err != nil {
		return nil, err
	}
	return s.chatRepo.FindMessagesBySessionID(sessionID)
}

// loadSession 查找会话并校验归属。
func (s *chatService) loadSession(sessionID string, user *model.User) (*model.ChatSession, error) {
	session, err := s.chatRepo.FindSession(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("会话不存在")
		}
		return nil, err
	}
	if session.UserID != user.ID && user.Role != "ADMIN" {
		return nil, errors.New("没有权限访问此会话")
	}
	return session, nil
}

// ensureDocumentReady 校验会话关联的文档仍然存在且处于可问答状态。
// 文档被删除后会话本身保留，但继续问答必须失败。
func (s *chatService) ensureDocumentReady(documentID uint) error {
	doc, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("文档不存在")
		}
		return err
	}
	if doc.Status != model.DocumentStatusReady {
		return errors.New("文档尚未处理完成，无法问答")
	}
	return nil
}

// retrieve 将问题向量化并在文档分块上做余弦相似度检索。
func (s *chatService) retrieve(ctx context.Context, documentID uint, question string) ([]rag.ScoredChunk, error) {
	queryVec, err := s.embeddingClient.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("问题向量化失败: %w", err)
	}

	rows, err := s.chunkRepo.FindByDocumentID(documentID)
	if err != nil {
		return nil, fmt.Errorf("加载文档分块失败: %w", err)
	}

	candidates := make([]rag.Candidate, 0, len(rows))
	for _, row := range rows {
		var vec []float32
		if err := json.Unmarshal([]byte(row.Embedding), &vec); err != nil {
			// 向量数据损坏属于数据完整性问题，本轮问答直接失败，提示重新处理文档
			return nil, fmt.Errorf("分块 %d 的向量数据损坏，请重新处理该文档: %w", row.ChunkIndex, err)
		}
		candidates = append(candidates, rag.Candidate{
			Chunk: rag.Chunk{
				Index:       row.ChunkIndex,
				Text:        row.Content,
				StartOffset: row.StartOffset,
				EndOffset:   row.EndOffset,
			},
			Vector: vec,
		})
	}

	scored, err := rag.TopK(queryVec, candidates, s.ragCfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("分块检索失败: %w", err)
	}
	return scored, nil
}

// buildMessages 构建发给 LLM 的完整消息序列：system + 近期历史 + 当前问题。
func (s *chatService) buildMessages(ctx context.Context, sessionID string, scored []rag.ScoredChunk, question string) ([]llm.Message, error) {
	contextText := s.buildContextText(scored)
	systemMsg := s.buildSystemMessage(contextText)

	history, err := s.historyRepo.GetHistory(ctx, sessionID)
	if err != nil {
		log.Errorf("[ChatService] 加载会话历史失败: session=%s, error: %v", sessionID, err)
		history = []model.HistoryMessage{}
	}
	if limit := s.ragCfg.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemMsg})
	for _, h := range history {
		messages = append(messages, llm.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})
	return messages, nil
}

// buildContextText 将检索结果拼接为提示词中的参考资料部分。
func (s *chatService) buildContextText(scored []rag.ScoredChunk) string {
	if len(scored) == 0 {
		return ""
	}
	var contextBuilder strings.Builder
	for i, sc := range scored {
		contextBuilder.WriteString(fmt.Sprintf("[%d] %s\n", i+1, sc.Chunk.Text))
	}
	return contextBuilder.String()
}

// buildSystemMessage 根据配置的规则与包裹符构建 system 消息。
func (s *chatService) buildSystemMessage(contextText string) string {
	promptCfg := config.Conf.LLM.Prompt

	rules := promptCfg.Rules
	if rules == "" {
		rules = "你是一个文档问答助手。请仅根据参考资料回答用户问题；如果资料中找不到答案，请明确说明。"
	}
	refStart := promptCfg.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := promptCfg.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := promptCfg.NoResultText
		if noRes == "" {
			noRes = "（本轮无检索结果）"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// fallbackAnswer 在 LLM 不可用时，用最相关的分块拼出一个可读的降级回答。
func (s *chatService) fallbackAnswer(scored []rag.ScoredChunk) string {
	if len(scored) == 0 {
		return "暂时无法生成回答，且文档中没有找到相关内容。"
	}
	var b strings.Builder
	b.WriteString("暂时无法生成回答，以下是文档中最相关的内容：\n")
	for i, sc := range scored {
		b.WriteString(fmt.Sprintf("[%d] %s\n", i+1, sc.Chunk.Text))
	}
	return b.String()
}

// persistTurn 持久化一轮问答：MySQL 消息记录 + Redis 历史缓存。
func (s *chatService) persistTurn(ctx context.Context, sessionID, question, answer string, contextChunks []model.ContextChunkInfo) error {
	if err := s.chatRepo.CreateMessage(&model.ChatMessage{
		SessionID: sessionID,
		Role:      "user",
		Content:   question,
	}); err != nil {
		return err
	}

	contextJSON := ""
	if len(contextChunks) > 0 {
		if b, err := json.Marshal(contextChunks); err == nil {
			contextJSON = string(b)
		}
	}
	if err := s.chatRepo.CreateMessage(&model.ChatMessage{
		SessionID:     sessionID,
		Role:          "assistant",
		Content:       answer,
		ContextChunks: contextJSON,
	}); err != nil {
		return err
	}

	now := time.Now()
	return s.historyRepo.AppendHistory(ctx, sessionID,
		model.HistoryMessage{Role: "user", Content: question, Timestamp: now},
		model.HistoryMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
}

func toContextChunks(scored []rag.ScoredChunk) []model.ContextChunkInfo {
	chunks := make([]model.ContextChunkInfo, 0, len(scored))
	for _, sc := range scored {
		chunks = append(chunks, model.ContextChunkInfo{Text: sc.Chunk.Text, Score: sc.Score})
	}
	return chunks
}

// wsWriterInterceptor 是对 WebSocket 写入端的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       MessageSender
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws MessageSender) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
