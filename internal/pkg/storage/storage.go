package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
)

const (
	TypeLocal     = "local"
	TypeMinIO     = "minio"
	TypeAliyunOSS = "aliyun_oss"
)

var (
	// ErrObjectNotFound 对象不存在，各存储实现需将自身的 not found 错误转换为它
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrInvalidObjectName 对象名为空或包含 ".."
	ErrInvalidObjectName = errors.New("storage: invalid object name")
	// ErrShortWrite 写入的字节数与声明的大小不一致
	ErrShortWrite = errors.New("storage: written size does not match object size")
)

// StorageService 定义了通用的文件存储操作接口，每个实例绑定一个存储桶（或本地根目录）
type StorageService interface {
	// PutObject 写入对象，要么完整写入，要么对象不存在，不会留下可读的半个对象
	// objectSize 为 -1 表示大小未知
	PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error)
	// GetObject 读取对象，返回的 Reader 需要调用方关闭
	GetObject(ctx context.Context, objectName string) (GetObjectResult, error)
	// StatObject 获取对象大小等信息
	StatObject(ctx context.Context, objectName string) (ObjectInfo, error)
	// RemoveObject 删除单个对象，对象不存在时不返回错误
	RemoveObject(ctx context.Context, objectName string) error
	// RemoveObjects 删除 prefix 下的所有对象
	RemoveObjects(ctx context.Context, prefix string) error
	// ListPrefixes 列出 prefix 下一级的 "目录"，返回完整前缀（不带结尾的 /）
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
	// EnsureBucket 检查存储桶是否存在，不存在则创建
	EnsureBucket(ctx context.Context) error
	// Ping 健康检查
	Ping(ctx context.Context) error

	Type() string
	Bucket() string
}

type PutObjectResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string // 对象哈希值
}

type GetObjectResult struct {
	Reader   io.ReadCloser // 文件内容读取器，需要在使用后关闭
	Size     int64
	MimeType string
}

type ObjectInfo struct {
	Key  string
	Size int64
}

// NewStorageService 根据配置创建存储服务
func NewStorageService(cfg *config.Config) (StorageService, error) {
	switch cfg.Storage.Type {
	case TypeLocal:
		return NewLocalStorageService(cfg.Storage.LocalBasePath)
	case TypeMinIO:
		return NewMinIOStorageService(&cfg.MinIO)
	case TypeAliyunOSS:
		return NewAliyunOSSStorageService(&cfg.AliyunOSS)
	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Storage.Type)
	}
}

// JoinKey 拼接对象键，统一使用 / 分隔
func JoinKey(parts ...string) string {
	return path.Join(parts...)
}

// validateObjectName 拒绝空名、绝对路径和包含 .. 的名字
func validateObjectName(name string) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(name))
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectName, name)
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidObjectName, name)
		}
	}
	return cleaned, nil
}

// dirPrefix 将前缀规范为以 / 结尾，用于对象存储的 List
func dirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
