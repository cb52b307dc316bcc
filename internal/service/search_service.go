// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/pkg/es"
)

// SearchService 定义了关键词搜索的业务操作接口。
type SearchService interface {
	SearchChunks(ctx context.Context, keyword string, user *model.User, size int) ([]model.SearchResponseDTO, error)
}

type searchService struct {
	esCfg config.ElasticsearchConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(esCfg config.ElasticsearchConfig) SearchService {
	return &searchService{esCfg: esCfg}
}

// SearchChunks 在用户自己的文档分块上执行关键词搜索。
func (s *searchService) SearchChunks(ctx context.Context, keyword string, user *model.User, size int) ([]model.SearchResponseDTO, error) {
	if keyword == "" {
		return nil, errors.New("搜索关键词不能为空")
	}
	if size <= 0 {
		size = 10
	}
	return es.SearchChunks(ctx, s.esCfg.IndexName, keyword, user.ID, size)
}
