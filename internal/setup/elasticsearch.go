package setup

import (
	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

var EsClient *elasticsearch.Client

// InitElasticsearchClient 未配置地址时返回 nil，完成的文件不会被索引
func InitElasticsearchClient(cfg *config.ElasticsearchConfig) *elasticsearch.Client {
	if len(cfg.Addresses) == 0 {
		logger.Info("Elasticsearch not configured, file indexing is disabled")
		return nil
	}
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	var err error
	if EsClient, err = elasticsearch.NewClient(esCfg); err != nil {
		logger.Fatal("Failed to create Elasticsearch client", zap.Error(err))
	}

	// 尝试连接并获取集群信息，验证连接是否成功
	res, err := EsClient.Info()
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", zap.Error(err))
	}
	defer res.Body.Close()

	if res.IsError() {
		logger.Fatal("Error connecting to Elasticsearch", zap.String("status", res.Status()), zap.String("response", res.String()))
	}

	logger.Info("Elasticsearch client initialized successfully.", zap.Strings("addresses", cfg.Addresses))
	return EsClient
}
