package repository

import (
	"gorm.io/gorm"

	"doc-chat-go/internal/model"
)

// ChatRepository 定义了会话与消息的持久化操作接口。
type ChatRepository interface {
	CreateSession(session *model.ChatSession) error
	FindSession(sessionID string) (*model.ChatSession, error)
	FindSessionsByUserID(userID uint) ([]model.ChatSession, error)
	CreateMessage(message *model.ChatMessage) error
	FindMessagesBySessionID(sessionID string) ([]model.ChatMessage, error)
}

// chatRepository 是 ChatRepository 接口的 GORM 实现。
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// CreateSession 在数据库中创建一个新的会话记录。
func (r *chatRepository) CreateSession(session *model.ChatSession) error {
	return r.db.Create(session).Error
}

// FindSession 根据会话标识查找会话记录。
func (r *chatRepository) FindSession(sessionID string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindSessionsByUserID 查找指定用户的所有会话，按创建时间倒序。
func (r *chatRepository) FindSessionsByUserID(userID uint) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.Where("user_id = ?", userID).Order("created_at desc").Find(&sessions).Error
	return sessions, err
}

// CreateMessage 在数据库中创建一条消息记录。
func (r *chatRepository) CreateMessage(message *model.ChatMessage) error {
	return r.db.Create(message).Error
}

// FindMessagesBySessionID 查找指定会话的全部消息，按时间升序。
func (r *chatRepository) FindMessagesBySessionID(sessionID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).Order("created_at asc, id asc").Find(&messages).Error
	return messages, err
}
