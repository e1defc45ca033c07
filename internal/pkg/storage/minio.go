package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinIOStorageService struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorageService 创建并返回一个 MinIOStorageService 实例
func NewMinIOStorageService(cfg *config.MinIOConfig) (*MinIOStorageService, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL, // 根据配置决定是否使用 HTTPS
	})
	if err != nil {
		logger.Error("Failed to initialize MinIO client", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	logger.Info("MinIO client initialized", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.BucketName))
	return &MinIOStorageService{
		client: minioClient,
		bucket: cfg.BucketName,
	}, nil
}

func (s *MinIOStorageService) Type() string   { return TypeMinIO }
func (s *MinIOStorageService) Bucket() string { return s.bucket }

// PutObject 单次 PutObject 对外是原子的：上传失败时对象不会出现
func (s *MinIOStorageService) PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return PutObjectResult{}, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, name, reader, objectSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return PutObjectResult{}, fmt.Errorf("MinIO put object %s: %w", name, err)
	}
	if objectSize >= 0 && info.Size != objectSize {
		_ = s.RemoveObject(ctx, name)
		return PutObjectResult{}, fmt.Errorf("%w: wrote %d, expected %d", ErrShortWrite, info.Size, objectSize)
	}
	return PutObjectResult{
		Bucket: info.Bucket,
		Key:    info.Key,
		Size:   info.Size,
		ETag:   info.ETag,
	}, nil
}

func (s *MinIOStorageService) GetObject(ctx context.Context, objectName string) (GetObjectResult, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return GetObjectResult{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return GetObjectResult{}, translateMinIOError(name, err)
	}
	// GetObject 是惰性的，Stat 才会真正访问服务端并暴露 NoSuchKey
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return GetObjectResult{}, translateMinIOError(name, err)
	}
	return GetObjectResult{
		Reader:   obj,
		Size:     stat.Size,
		MimeType: stat.ContentType,
	}, nil
}

func (s *MinIOStorageService) StatObject(ctx context.Context, objectName string) (ObjectInfo, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return ObjectInfo{}, err
	}
	stat, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateMinIOError(name, err)
	}
	return ObjectInfo{Key: stat.Key, Size: stat.Size}, nil
}

func (s *MinIOStorageService) RemoveObject(ctx context.Context, objectName string) error {
	name, err := validateObjectName(objectName)
	if err != nil {
		return err
	}
	err = s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{
		GovernanceBypass: true,
	})
	if err != nil && !isMinIONotFound(err) {
		return fmt.Errorf("MinIO remove object %s: %w", name, err)
	}
	return nil
}

func (s *MinIOStorageService) RemoveObjects(ctx context.Context, prefix string) error {
	p := dirPrefix(prefix)
	if p == "" {
		return fmt.Errorf("%w: empty prefix", ErrInvalidObjectName)
	}
	objectsCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    p,
		Recursive: true,
	})

	// ListObjects 的错误通过 ObjectInfo.Err 传递，需要在转交给 RemoveObjects 前过滤出来
	toDelete := make(chan minio.ObjectInfo)
	var listErr error
	go func() {
		defer close(toDelete)
		for obj := range objectsCh {
			if obj.Err != nil {
				listErr = obj.Err
				continue
			}
			toDelete <- obj
		}
	}()

	var firstErr error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, toDelete, minio.RemoveObjectsOptions{GovernanceBypass: true}) {
		if firstErr == nil && !isMinIONotFound(rErr.Err) {
			firstErr = fmt.Errorf("MinIO remove %s: %w", rErr.ObjectName, rErr.Err)
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if listErr != nil {
		return fmt.Errorf("MinIO list %s: %w", p, listErr)
	}
	return nil
}

func (s *MinIOStorageService) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	p := dirPrefix(prefix)
	var prefixes []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: p, Recursive: false}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("MinIO list %s: %w", p, obj.Err)
		}
		if len(obj.Key) > 0 && obj.Key[len(obj.Key)-1] == '/' {
			prefixes = append(prefixes, obj.Key[:len(obj.Key)-1])
		}
	}
	return prefixes, nil
}

func (s *MinIOStorageService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check MinIO bucket existence: %w", err)
	}
	if exists {
		logger.Info("MinIO bucket already exists", zap.String("bucket", s.bucket))
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// 并发创建时桶可能已被其他实例建好
		if exists, errExists := s.client.BucketExists(ctx, s.bucket); errExists == nil && exists {
			return nil
		}
		return fmt.Errorf("create MinIO bucket: %w", err)
	}
	logger.Info("MinIO bucket created", zap.String("bucket", s.bucket))
	return nil
}

func (s *MinIOStorageService) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func isMinIONotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func translateMinIOError(name string, err error) error {
	if isMinIONotFound(err) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("MinIO %s: %w", name, err)
}
