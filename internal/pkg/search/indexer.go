package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// 文件名使用 text + keyword 双字段，便于模糊搜索和精确过滤
const fileIndexMapping = `{
  "mappings": {
    "properties": {
      "upload_id":    {"type": "keyword"},
      "file_uuid":    {"type": "keyword"},
      "object_key":   {"type": "keyword"},
      "filename":     {"type": "text", "fields": {"raw": {"type": "keyword", "ignore_above": 256}}},
      "extension":    {"type": "keyword"},
      "size":         {"type": "long"},
      "content_type": {"type": "keyword"},
      "checksum":     {"type": "keyword"},
      "completed_at": {"type": "date"}
    }
  }
}`

// FileDocument 索引中的文档
type FileDocument struct {
	UploadID    string    `json:"upload_id"`
	FileUUID    string    `json:"file_uuid"`
	ObjectKey   string    `json:"object_key"`
	Filename    string    `json:"filename"`
	Extension   string    `json:"extension,omitempty"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Checksum    string    `json:"checksum"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewFileDocument 从完成事件构造文档
func NewFileDocument(e *models.UploadCompletedEvent) FileDocument {
	ext := ""
	if i := strings.LastIndexByte(e.ObjectKey, '.'); i >= 0 && !strings.Contains(e.ObjectKey[i:], "/") {
		ext = e.ObjectKey[i+1:]
	}
	return FileDocument{
		UploadID:    e.UploadID,
		FileUUID:    e.FileUUID,
		ObjectKey:   e.ObjectKey,
		Filename:    e.Filename,
		Extension:   ext,
		Size:        e.Size,
		ContentType: e.ContentType,
		Checksum:    e.Checksum,
		CompletedAt: e.CompletedAt,
	}
}

// FileIndexer 把完成的文件写入 Elasticsearch
type FileIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewFileIndexer(client *elasticsearch.Client, index string) *FileIndexer {
	return &FileIndexer{client: client, index: index}
}

// EnsureIndex 索引不存在时按 mapping 创建
func (i *FileIndexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", i.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = i.client.Indices.Create(i.index,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(strings.NewReader(fileIndexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", i.index, err)
	}
	defer res.Body.Close()
	// 多个实例同时创建时会返回 resource_already_exists_exception
	if res.IsError() && !strings.Contains(readBody(res.Body), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %s", i.index, res.Status())
	}
	logger.Info("Elasticsearch index ready", zap.String("index", i.index))
	return nil
}

// IndexFile 以 file_uuid 作为文档 id，重复投递的消息会覆盖同一个文档
func (i *FileIndexer) IndexFile(ctx context.Context, doc FileDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := i.client.Index(i.index, bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(doc.FileUUID),
	)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.FileUUID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index document %s: %s: %s", doc.FileUUID, res.Status(), readBody(res.Body))
	}
	return nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}
