package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/storage"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/3Eeeecho/go-chunkupload/internal/repositories"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const readyTimeout = 3 * time.Second

type HealthHandler struct {
	sessions repositories.SessionRepository
	storage  storage.StorageService
}

func NewHealthHandler(sessions repositories.SessionRepository, ss storage.StorageService) *HealthHandler {
	return &HealthHandler{sessions: sessions, storage: ss}
}

// Ping 存活检查
// @Summary 存活检查
// @Tags 健康检查
// @Produce json
// @Success 200 {object} xerr.Response
// @Router /ping [get]
func (h *HealthHandler) Ping(c *gin.Context) {
	xerr.Success(c, http.StatusOK, xerr.OK("pong"))
}

// Ready 检查会话存储和文件存储是否可用
// @Summary 就绪检查
// @Tags 健康检查
// @Produce json
// @Success 200 {object} xerr.Response
// @Failure 503 {object} xerr.Response
// @Router /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if err := h.sessions.Ping(ctx); err != nil {
		logger.Warn("Ready: session store unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, xerr.Fail(xerr.InternalServerErrorCode, "session store unavailable"))
		return
	}
	if err := h.storage.Ping(ctx); err != nil {
		logger.Warn("Ready: storage unavailable", zap.String("type", h.storage.Type()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, xerr.Fail(xerr.StorageErrorCode, "storage unavailable"))
		return
	}
	xerr.Success(c, http.StatusOK, xerr.OK("ready"))
}
