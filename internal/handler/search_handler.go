// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"doc-chat-go/internal/service"
	"doc-chat-go/pkg/log"
)

// SearchHandler 负责处理关键词搜索相关的 API 请求。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 在当前用户的文档分块上执行关键词搜索。
func (h *SearchHandler) Search(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	keyword := c.Query("query")
	topK, _ := strconv.Atoi(c.DefaultQuery("topK", "10"))

	results, err := h.searchService.SearchChunks(c.Request.Context(), keyword, user, topK)
	if err != nil {
		log.Warnf("Search: 搜索失败, user: %s, keyword: %s, error: %v", user.Username, keyword, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    results,
	})
}
