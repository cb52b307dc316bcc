// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"doc-chat-go/internal/model"
	"doc-chat-go/internal/service"
	"doc-chat-go/pkg/log"
)

// DocumentHandler 负责处理文档管理相关的 API 请求。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理文档上传请求。文件接收后立即返回，处理流程异步进行。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "请求中未包含文件",
		})
		return
	}

	doc, err := h.documentService.Upload(c.Request.Context(), fileHeader, user.ID)
	if err != nil {
		log.Warnf("Upload: 文档上传失败, user: %s, file: %s, error: %v", user.Username, fileHeader.Filename, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	log.Infof("文档上传成功, user: %s, documentID: %d", user.Username, doc.ID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文档已接收，正在处理中",
		"data":    doc,
	})
}

// List 获取当前用户上传的文档列表。
func (h *DocumentHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	docs, err := h.documentService.ListDocuments(user.ID)
	if err != nil {
		log.Errorf("List: 获取文档列表失败, user: %s, error: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取文档列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    docs,
	})
}

// GetStatus 查询文档的处理状态。
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	documentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的文档 ID",
		})
		return
	}

	status, err := h.documentService.GetStatus(uint(documentID), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    status,
	})
}

// Delete 删除一个文档及其派生数据。
func (h *DocumentHandler) Delete(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		return
	}

	documentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的文档 ID",
		})
		return
	}

	if err := h.documentService.DeleteDocument(uint(documentID), user); err != nil {
		log.Warnf("Delete: 删除文档失败, user: %s, documentID: %d, error: %v", user.Username, documentID, err)
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文档已删除",
	})
}

// currentUser 从上下文中取出 AuthMiddleware 注入的用户对象。
// 取不到时直接写入 500 响应并返回 nil。
func currentUser(c *gin.Context) *model.User {
	user, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return nil
	}
	currentUser, ok := user.(*model.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
		return nil
	}
	return currentUser
}
