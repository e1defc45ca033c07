package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/handlers"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/cache"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/mq"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/search"
	"github.com/3Eeeecho/go-chunkupload/internal/repositories"
	"github.com/3Eeeecho/go-chunkupload/internal/router"
	"github.com/3Eeeecho/go-chunkupload/internal/services/upload"
	"github.com/3Eeeecho/go-chunkupload/internal/setup"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg            *config.Config
	router         *gin.Engine
	httpServer     *http.Server
	redisClient    *redis.Client
	rabbitMQClient *mq.RabbitMQClient
	indexer        worker.FileIndexer
	sweeper        *upload.Sweeper
}

// NewServer 负责构建所有依赖
func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	// 初始化存储服务，分片和最终文件共用同一个后端
	ss := setup.InitStorage(cfg)

	// 初始化会话存储
	var sessions repositories.SessionRepository
	switch cfg.Upload.SessionStore {
	case "", "memory":
		sessions = repositories.NewMemorySessionRepository()
	case "redis":
		s.redisClient = setup.InitRedis(context.Background(), &cfg.Redis)
		sessions = repositories.NewRedisSessionRepository(cache.NewRedisCache(s.redisClient), cfg.Upload.SessionTTL)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.Upload.SessionStore)
	}
	logger.Info("Session store initialized", zap.String("type", cfg.Upload.SessionStore))

	chunkStore, err := upload.NewChunkStore(ss, cfg.Upload.WorkspacePrefix, cfg.Upload.ChunkCodec)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunk store: %w", err)
	}
	assembler := upload.NewAssembler(chunkStore, ss, afero.NewOsFs(), cfg.Upload.TempDir)

	// 可选：MySQL 文件记录
	var files repositories.FileRepository
	if db := setup.InitMySQL(&cfg.MySQL); db != nil {
		files = repositories.NewFileRepository(db)
	}

	// 可选：RabbitMQ 完成事件
	var publisher upload.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		s.rabbitMQClient, err = mq.NewRabbitMQClient(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		if _, err := s.rabbitMQClient.DeclareQueue(cfg.RabbitMQ.UploadQueue); err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.RabbitMQ.UploadQueue, err)
		}
		publisher = mq.NewUploadEventPublisher(s.rabbitMQClient, cfg.RabbitMQ.UploadQueue)
		logger.Info("RabbitMQ publisher initialized", zap.String("queue", cfg.RabbitMQ.UploadQueue))
	}

	// 可选：Elasticsearch 索引，由 Worker 消费完成事件写入
	if esClient := setup.InitElasticsearchClient(&cfg.Elasticsearch); esClient != nil {
		fileIndexer := search.NewFileIndexer(esClient, cfg.Elasticsearch.Index)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := fileIndexer.EnsureIndex(ctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to ensure search index: %w", err)
		}
		s.indexer = fileIndexer
	}

	//  初始化 Services
	uploadService := upload.NewUploadService(upload.UploadServiceDeps{
		Sessions:  sessions,
		Chunks:    chunkStore,
		Assembler: assembler,
		Storage:   ss,
		Files:     files,
		Publisher: publisher,
		Config:    cfg.Upload,
	})
	s.sweeper = upload.NewSweeper(sessions, chunkStore, cfg.Upload.SessionTTL, cfg.Upload.CompleteLockTTL, cfg.Upload.SweepInterval)

	//  初始化 Handlers 和路由
	uploadHandler := handlers.NewUploadHandler(uploadService)
	healthHandler := handlers.NewHealthHandler(sessions, ss)
	s.router = router.InitRouter(cfg, uploadHandler, healthHandler)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// Run 启动服务器和后台任务，并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 确保在应用关闭时，所有连接都被释放
	defer setup.CloseMySQLDB()
	if s.redisClient != nil {
		defer setup.CloseRedis()
	}
	if s.rabbitMQClient != nil {
		defer s.rabbitMQClient.Close()
	}

	// 启动所有后台 Worker
	worker.StartAllWorkers(ctx, s.cfg, s.rabbitMQClient, s.indexer)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		s.sweeper.Run(ctx)
	}()

	// 启动 HTTP 服务器
	go func() {
		logger.Info("Server is running", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	// 优雅关机：先停止接收请求，再停止后台任务
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()
	<-sweeperDone
	logger.Info("Server exited gracefully")
}
