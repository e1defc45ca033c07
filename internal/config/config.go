package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper" // 导入 Viper
)

// Config 结构体包含所有应用的配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"` // `mapstructure` 标签用于Viper绑定结构体
	Upload        UploadConfig        `mapstructure:"upload"`
	Storage       StorageConfig       `mapstructure:"storage"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	AliyunOSS     AliyunOSSConfig     `mapstructure:"aliyun_oss"`
	RabbitMQ      RabbitMQConfig      `mapstructure:"rabbitmq"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// multipart 表单在内存中保留的最大字节数，超出部分落盘
	MaxMultipartMemory int64 `mapstructure:"max_multipart_memory"`
}

// UploadConfig 分片上传相关配置
type UploadConfig struct {
	MinChunkSize          int64         `mapstructure:"min_chunk_size"`
	MaxChunkSize          int64         `mapstructure:"max_chunk_size"`
	MaxFileSize           int64         `mapstructure:"max_file_size"`
	MaxChunks             int           `mapstructure:"max_chunks"`
	SessionStore          string        `mapstructure:"session_store"` // memory, redis
	SessionTTL            time.Duration `mapstructure:"session_ttl"`   // 超过该时间未活动的会话会被清理
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
	CompleteWaitTimeout   time.Duration `mapstructure:"complete_wait_timeout"`
	CompleteLockTTL       time.Duration `mapstructure:"complete_lock_ttl"`
	ChunkCodec            string        `mapstructure:"chunk_codec"` // none, zstd
	TempDir               string        `mapstructure:"temp_dir"`    // 合并时使用的本地临时目录
	WorkspacePrefix       string        `mapstructure:"workspace_prefix"`
	FilePrefix            string        `mapstructure:"file_prefix"`
	MaxParallelChunkCalls int           `mapstructure:"max_parallel_chunk_calls"` // 仅客户端使用
}

// StorageConfig 存储后端配置
type StorageConfig struct {
	Type          string `mapstructure:"type"` // local, minio, aliyun_oss
	LocalBasePath string `mapstructure:"local_base_path"`
}

// MySQLConfig 数据库配置，DSN 为空时不记录文件元数据
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
}

// RabbitMQConfig RabbitMQ配置，URL 为空时不发布完成事件
type RabbitMQConfig struct {
	URL         string `mapstructure:"url"`
	UploadQueue string `mapstructure:"upload_queue"`
}

// JWTConfig JWT配置，SecretKey 为空时上传接口不做鉴权
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

// zap日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

// ElasticsearchConfig 定义 Elasticsearch 连接配置
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults 设置默认值 (如果配置文件和环境变量中都没有，则使用这些默认值)
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_multipart_memory", 12<<20)

	v.SetDefault("upload.min_chunk_size", 1024)
	v.SetDefault("upload.max_chunk_size", 10*1024*1024)
	v.SetDefault("upload.max_file_size", int64(5)<<30)
	v.SetDefault("upload.max_chunks", 10000)
	v.SetDefault("upload.session_store", "memory")
	v.SetDefault("upload.session_ttl", 24*time.Hour)
	v.SetDefault("upload.sweep_interval", 30*time.Minute)
	v.SetDefault("upload.complete_wait_timeout", 30*time.Second)
	v.SetDefault("upload.complete_lock_ttl", 10*time.Minute)
	v.SetDefault("upload.chunk_codec", "none")
	v.SetDefault("upload.temp_dir", "")
	v.SetDefault("upload.workspace_prefix", "workspace")
	v.SetDefault("upload.file_prefix", "files")
	v.SetDefault("upload.max_parallel_chunk_calls", 4)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_base_path", "./uploads/data")

	// 空默认值也需要声明，否则 Unmarshal 时不会读取对应的环境变量
	for _, key := range []string{
		"mysql.dsn", "redis.password", "rabbitmq.url", "jwt.secret_key",
		"minio.endpoint", "minio.access_key_id", "minio.secret_access_key", "minio.bucket_name",
		"aliyun_oss.endpoint", "aliyun_oss.access_key_id", "aliyun_oss.secret_access_key", "aliyun_oss.bucket_name",
		"elasticsearch.username", "elasticsearch.password",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("redis.db", 0)
	v.SetDefault("elasticsearch.addresses", []string{})
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("rabbitmq.upload_queue", "upload_completed_queue")
	v.SetDefault("elasticsearch.index", "uploaded_files")
	v.SetDefault("jwt.issuer", "go-chunkupload")

	v.SetDefault("log.output_path", "logs/app.log")
	v.SetDefault("log.error_path", "logs/error.log")
	v.SetDefault("log.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")                // 配置文件名 (不带扩展名)
	v.SetConfigType("yaml")                  // 配置文件类型
	v.AddConfigPath(".")                     // 在当前目录查找配置文件
	v.AddConfigPath("./configs")             // 也可以添加其他路径，例如 ./configs/
	v.AddConfigPath("/etc/go-chunkupload/") // 生产环境常见路径

	// 读取环境变量，例如 GO_CHUNK_UPLOAD_SERVER_PORT 对应 server.port
	v.SetEnvPrefix("GO_CHUNK_UPLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// 其他读取错误，例如配置文件格式错误
			return nil, err
		}
		// 配置文件未找到不是致命错误，依赖环境变量或默认值
		log.Println("Warning: config file not found, using environment variables or default values.")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	log.Println("Configuration loaded successfully with Viper.")
	return cfg, nil
}
