// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"doc-chat-go/internal/service"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答相关的 HTTP 与 WebSocket 请求。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
	// 每连接停止标志
	stopFlags sync.Map // key: conn pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// StartSessionRequest 定义了创建会话 API 的请求体结构。
type StartSessionRequest struct {
	DocumentID uint `json:"documentId" binding:"required"`
}

// StartSession 为指定文档创建一个新的问答会话。
func (h *ChatHandler) StartSession(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：documentId 不能为空",
		})
		return
	}

	session, err := h.chatService.StartSession(c.Request.Context(), req.DocumentID, user.ID)
	if err != nil {
		log.Warnf("StartSession: 创建会话失败, user: %s, documentID: %d, error: %v", user.Username, req.DocumentID, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "会话已创建",
		"data":    session,
	})
}

// ChatRequest 定义了同步问答 API 的请求体结构。
type ChatRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Question  string `json:"question" binding:"required"`
}

// Chat 处理一轮同步问答请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：sessionId 和 question 不能为空",
		})
		return
	}

	answer, err := h.chatService.Answer(c.Request.Context(), req.SessionID, req.Question, user)
	if err != nil {
		log.Warnf("Chat: 问答失败, user: %s, session: %s, error: %v", user.Username, req.SessionID, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	// LLM 不可用时回答是降级内容，用 502 告知客户端
	if answer.Fallback {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    http.StatusBadGateway,
			"message": "AI服务暂时不可用，已返回文档中最相关的内容",
			"data":    answer,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    answer,
	})
}

// ListSessions 获取当前用户的全部会话。
func (h *ChatHandler) ListSessions(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	sessions, err := h.chatService.ListSessions(user.ID)
	if err != nil {
		log.Errorf("ListSessions: 获取会话列表失败, user: %s, error: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取会话列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    sessions,
	})
}

// GetHistory 获取指定会话的完整消息记录。
func (h *ChatHandler) GetHistory(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	sessionID := c.Param("sessionId")
	messages, err := h.chatService.GetHistory(sessionID, user)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    messages,
	})
}

// wsQuestion 是 WebSocket 上每条问答消息的结构。
type wsQuestion struct {
	Type      string `json:"type"` // "question" 或 "stop"
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

// HandleWS 处理一个传入的 WebSocket 连接，支持流式问答与停止指令。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	// 获取用户模型
	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	key := connKey(conn)
	defer h.stopFlags.Delete(key)

	// 流式下发在独立协程中进行，读循环保持可用以随时接收停止指令；
	// 所有写入经过 safe 串行化，避免与流式协程并发写同一连接。
	safe := &wsSafeConn{conn: conn}
	var streaming atomic.Bool
	var wg sync.WaitGroup

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var msg wsQuestion
		if err := json.Unmarshal(message, &msg); err != nil {
			writeWSError(safe, "消息格式错误，期望 JSON")
			continue
		}

		// 停止指令：置位停止标志，中断当前流式下发
		if msg.Type == "stop" {
			h.stopFlags.Store(key, true)
			resp := map[string]interface{}{
				"type":      "stop",
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			}
			b, _ := json.Marshal(resp)
			_ = safe.WriteMessage(websocket.TextMessage, b)
			continue
		}

		if msg.SessionID == "" || msg.Question == "" {
			writeWSError(safe, "sessionId 和 question 不能为空")
			continue
		}

		if streaming.Load() {
			writeWSError(safe, "上一轮回答尚未完成，请等待或发送 stop")
			continue
		}

		// 清除旧标志
		h.stopFlags.Delete(key)
		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(key)
			return ok && v.(bool)
		}

		streaming.Store(true)
		wg.Add(1)
		go func(sessionID, question string) {
			defer wg.Done()
			defer streaming.Store(false)
			if err := h.chatService.StreamAnswer(c.Request.Context(), sessionID, question, user, safe, shouldStop); err != nil {
				log.Errorf("处理流式响应失败: %v", err)
				writeWSError(safe, err.Error())
			}
		}(msg.SessionID, msg.Question)
	}

	// 连接关闭后等待在途的流式协程退出
	wg.Wait()
}

func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}

// wsSafeConn 用互斥锁串行化对同一 WebSocket 连接的写入。
type wsSafeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsSafeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func writeWSError(conn service.MessageSender, message string) {
	errResp := map[string]string{"error": message}
	b, _ := json.Marshal(errResp)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
