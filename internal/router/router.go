package router

import (
	"net/http"

	_ "github.com/3Eeeecho/go-chunkupload/docs"
	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/handlers"
	"github.com/3Eeeecho/go-chunkupload/internal/middlewares"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/metrics"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func InitRouter(cfg *config.Config, uploadHandler *handlers.UploadHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	// 设置 Gin 模式，开发环境为 DebugMode，生产环境为 ReleaseMode
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	if cfg.Server.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = cfg.Server.MaxMultipartMemory
	}

	// 全局中间件
	router.Use(logger.Middleware(), gin.Recovery())
	if cfg.Metrics.Enabled {
		router.Use(metrics.Middleware())
		metrics.Register(router, cfg.Metrics.Path)
	}

	// Health Check 路由
	router.GET("/ping", healthHandler.Ping)
	router.GET("/health/ready", healthHandler.Ready)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middlewares.AuthMiddleware(&cfg.JWT)

	// 同一组接口同时挂在 /api/v1/uploads 和 /uploads 下
	registerUploadRoutes(router.Group("/api/v1/uploads", auth), uploadHandler)
	registerUploadRoutes(router.Group("/uploads", auth), uploadHandler)

	router.NoRoute(func(c *gin.Context) {
		xerr.AbortWithError(c, http.StatusNotFound, xerr.NotFoundCode, "Route not found")
	})

	return router
}

func registerUploadRoutes(g *gin.RouterGroup, h *handlers.UploadHandler) {
	g.POST("", h.Initiate)
	g.POST("/chunks", h.UploadChunk)
	g.POST("/complete", h.Complete)
	g.GET("/progress", h.Progress)
	g.POST("/cancel", h.Cancel)
}
