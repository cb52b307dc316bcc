package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"doc-chat-go/internal/model"
)

// 历史缓存的保留策略：每个会话最多缓存 20 条消息，7 天过期。
const (
	historyMaxMessages = 20
	historyTTL         = 7 * 24 * time.Hour
)

// HistoryRepository 定义了会话近期历史在 Redis 中的缓存操作接口。
// 完整的消息记录持久化在 MySQL 中，此缓存只服务于提示词构建。
type HistoryRepository interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.HistoryMessage, error)
	AppendHistory(ctx context.Context, sessionID string, messages ...model.HistoryMessage) error
	DeleteHistory(ctx context.Context, sessionID string) error
}

type redisHistoryRepository struct {
	redisClient *redis.Client
}

// NewHistoryRepository 创建一个新的 HistoryRepository 实例。
func NewHistoryRepository(redisClient *redis.Client) HistoryRepository {
	return &redisHistoryRepository{redisClient: redisClient}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

// GetHistory 从 Redis 获取会话的近期历史消息。
func (r *redisHistoryRepository) GetHistory(ctx context.Context, sessionID string) ([]model.HistoryMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(sessionID)).Result()
	if err == redis.Nil {
		return []model.HistoryMessage{}, nil // No history yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	var messages []model.HistoryMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	return messages, nil
}

// AppendHistory 向会话历史追加消息，超出上限时丢弃最旧的消息。
func (r *redisHistoryRepository) AppendHistory(ctx context.Context, sessionID string, messages ...model.HistoryMessage) error {
	history, err := r.GetHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history, messages...)
	// 保留最近 20 条
	if len(history) > historyMaxMessages {
		history = history[len(history)-historyMaxMessages:]
	}
	jsonData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}
	if err := r.redisClient.Set(ctx, historyKey(sessionID), jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session history: %w", err)
	}
	return nil
}

// DeleteHistory 清除会话的历史缓存。
func (r *redisHistoryRepository) DeleteHistory(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, historyKey(sessionID)).Err()
}
