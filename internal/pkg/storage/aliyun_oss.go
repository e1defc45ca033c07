package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"
)

// 单次 DeleteObjects 请求最多 1000 个 key
const ossDeleteBatch = 1000

type AliyunOSSStorageService struct {
	client *oss.Client
	bucket *oss.Bucket
	name   string
}

// NewAliyunOSSStorageService 创建并返回一个 AliyunOSSStorageService 实例
func NewAliyunOSSStorageService(cfg *config.AliyunOSSConfig) (*AliyunOSSStorageService, error) {
	// OSS Endpoint 应该包含 http:// 或 https:// 前缀
	ossClient, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		logger.Error("Failed to initialize Aliyun OSS client", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize Aliyun OSS client: %w", err)
	}
	bucket, err := ossClient.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get OSS bucket %s: %w", cfg.BucketName, err)
	}
	logger.Info("Aliyun OSS client initialized", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.BucketName))
	return &AliyunOSSStorageService{
		client: ossClient,
		bucket: bucket,
		name:   cfg.BucketName,
	}, nil
}

func (s *AliyunOSSStorageService) Type() string   { return TypeAliyunOSS }
func (s *AliyunOSSStorageService) Bucket() string { return s.name }

func (s *AliyunOSSStorageService) PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return PutObjectResult{}, err
	}
	counter := &countingReader{r: contextReader{ctx: ctx, r: reader}}
	options := []oss.Option{oss.ContentType(contentType)}
	if objectSize >= 0 {
		options = append(options, oss.ContentLength(objectSize))
	}
	if err := s.bucket.PutObject(name, counter, options...); err != nil {
		return PutObjectResult{}, fmt.Errorf("Aliyun OSS put object %s: %w", name, err)
	}
	if objectSize >= 0 && counter.n != objectSize {
		_ = s.RemoveObject(ctx, name)
		return PutObjectResult{}, fmt.Errorf("%w: wrote %d, expected %d", ErrShortWrite, counter.n, objectSize)
	}
	return PutObjectResult{
		Bucket: s.name,
		Key:    name,
		Size:   counter.n,
	}, nil
}

func (s *AliyunOSSStorageService) GetObject(ctx context.Context, objectName string) (GetObjectResult, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return GetObjectResult{}, err
	}
	props, err := s.bucket.GetObjectDetailedMeta(name, oss.WithContext(ctx))
	if err != nil {
		return GetObjectResult{}, translateOSSError(name, err)
	}
	reader, err := s.bucket.GetObject(name, oss.WithContext(ctx))
	if err != nil {
		return GetObjectResult{}, translateOSSError(name, err)
	}
	size, _ := strconv.ParseInt(props.Get(oss.HTTPHeaderContentLength), 10, 64)
	return GetObjectResult{
		Reader:   reader,
		Size:     size,
		MimeType: props.Get(oss.HTTPHeaderContentType),
	}, nil
}

func (s *AliyunOSSStorageService) StatObject(ctx context.Context, objectName string) (ObjectInfo, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return ObjectInfo{}, err
	}
	props, err := s.bucket.GetObjectDetailedMeta(name, oss.WithContext(ctx))
	if err != nil {
		return ObjectInfo{}, translateOSSError(name, err)
	}
	size, _ := strconv.ParseInt(props.Get(oss.HTTPHeaderContentLength), 10, 64)
	return ObjectInfo{Key: name, Size: size}, nil
}

func (s *AliyunOSSStorageService) RemoveObject(ctx context.Context, objectName string) error {
	name, err := validateObjectName(objectName)
	if err != nil {
		return err
	}
	// OSS 删除不存在的对象同样返回成功
	if err := s.bucket.DeleteObject(name, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("Aliyun OSS delete object %s: %w", name, err)
	}
	return nil
}

func (s *AliyunOSSStorageService) RemoveObjects(ctx context.Context, prefix string) error {
	p := dirPrefix(prefix)
	if p == "" {
		return fmt.Errorf("%w: empty prefix", ErrInvalidObjectName)
	}
	token := ""
	for {
		opts := []oss.Option{oss.Prefix(p), oss.MaxKeys(ossDeleteBatch), oss.WithContext(ctx)}
		if token != "" {
			opts = append(opts, oss.ContinuationToken(token))
		}
		result, err := s.bucket.ListObjectsV2(opts...)
		if err != nil {
			return fmt.Errorf("Aliyun OSS list %s: %w", p, err)
		}
		keys := make([]string, 0, len(result.Objects))
		for _, obj := range result.Objects {
			keys = append(keys, obj.Key)
		}
		if len(keys) > 0 {
			if _, err := s.bucket.DeleteObjects(keys, oss.DeleteObjectsQuiet(true), oss.WithContext(ctx)); err != nil {
				return fmt.Errorf("Aliyun OSS delete objects under %s: %w", p, err)
			}
		}
		if !result.IsTruncated {
			return nil
		}
		token = result.NextContinuationToken
	}
}

func (s *AliyunOSSStorageService) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	p := dirPrefix(prefix)
	var prefixes []string
	token := ""
	for {
		opts := []oss.Option{oss.Prefix(p), oss.Delimiter("/"), oss.WithContext(ctx)}
		if token != "" {
			opts = append(opts, oss.ContinuationToken(token))
		}
		result, err := s.bucket.ListObjectsV2(opts...)
		if err != nil {
			return nil, fmt.Errorf("Aliyun OSS list %s: %w", p, err)
		}
		for _, cp := range result.CommonPrefixes {
			if len(cp) > 0 && cp[len(cp)-1] == '/' {
				cp = cp[:len(cp)-1]
			}
			prefixes = append(prefixes, cp)
		}
		if !result.IsTruncated {
			return prefixes, nil
		}
		token = result.NextContinuationToken
	}
}

func (s *AliyunOSSStorageService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.IsBucketExist(s.name)
	if err != nil {
		return fmt.Errorf("check Aliyun OSS bucket existence: %w", err)
	}
	if exists {
		logger.Info("Aliyun OSS bucket already exists", zap.String("bucket", s.name))
		return nil
	}
	if err := s.client.CreateBucket(s.name); err != nil {
		return fmt.Errorf("create Aliyun OSS bucket: %w", err)
	}
	logger.Info("Aliyun OSS bucket created", zap.String("bucket", s.name))
	return nil
}

func (s *AliyunOSSStorageService) Ping(ctx context.Context) error {
	_, err := s.client.IsBucketExist(s.name)
	return err
}

func translateOSSError(name string, err error) error {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	return fmt.Errorf("Aliyun OSS %s: %w", name, err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
