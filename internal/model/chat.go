package model

import "time"

// ChatSession 对应于数据库中的 'chat_sessions' 表。
// 一个会话将一段对话绑定到单个文档。
type ChatSession struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"sessionId"`
	DocumentID uint      `gorm:"not null;index" json:"documentId"`
	UserID     uint      `gorm:"not null;index" json:"userId"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 对应于数据库中的 'chat_messages' 表。
// ContextChunks 仅在 assistant 消息上填充，保存本轮回答
// 引用的检索分块摘要（JSON 编码的 []ContextChunkInfo）。
type ChatMessage struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string    `gorm:"type:varchar(64);not null;index" json:"sessionId"`
	Role          string    `gorm:"type:varchar(16);not null" json:"role"` // "user" 或 "assistant"
	Content       string    `gorm:"type:text;not null" json:"content"`
	ContextChunks string    `gorm:"type:text" json:"contextChunks,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// ContextChunkInfo 是持久化在 assistant 消息上的检索分块摘要。
type ContextChunkInfo struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// HistoryMessage 代表缓存在 Redis 中的单条对话消息，
// 用于构建提示词时携带近期历史。
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
