// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"doc-chat-go/pkg/database"
)

// HealthHandler 负责健康检查接口。
type HealthHandler struct{}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Check 检查 MySQL 与 Redis 的连通性并返回各组件状态。
func (h *HealthHandler) Check(c *gin.Context) {
	components := gin.H{}
	healthy := true

	if sqlDB, err := database.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		components["mysql"] = "down"
		healthy = false
	} else {
		components["mysql"] = "up"
	}

	if err := database.RDB.Ping(c.Request.Context()).Err(); err != nil {
		components["redis"] = "down"
		healthy = false
	} else {
		components["redis"] = "up"
	}

	status := http.StatusOK
	statusText := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     statusText,
		"components": components,
	})
}
