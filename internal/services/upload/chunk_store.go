package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/3Eeeecho/go-chunkupload/internal/pkg/storage"
	"github.com/klauspost/compress/zstd"
)

const (
	CodecNone = "none"
	CodecZstd = "zstd"

	chunkExt = ".chunk"
)

// ChunkStore 分片的持久化，对象键为 <prefix>/<uploadID>/<index>.chunk
type ChunkStore struct {
	storage storage.StorageService
	prefix  string
	codec   string
	encoder *zstd.Encoder
}

// NewChunkStore codec 为 zstd 时分片压缩后落盘，读取时透明解压
func NewChunkStore(ss storage.StorageService, prefix, codec string) (*ChunkStore, error) {
	cs := &ChunkStore{storage: ss, prefix: strings.Trim(prefix, "/"), codec: codec}
	switch codec {
	case "", CodecNone:
		cs.codec = CodecNone
	case CodecZstd:
		// EncodeAll 可以被多个 goroutine 并发调用
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("chunk store: create zstd encoder: %w", err)
		}
		cs.encoder = enc
	default:
		return nil, fmt.Errorf("chunk store: unknown codec %q", codec)
	}
	if cs.prefix == "" {
		cs.prefix = "workspace"
	}
	return cs, nil
}

// WorkspacePrefix 会话的分片目录
func (cs *ChunkStore) WorkspacePrefix(uploadID string) string {
	return storage.JoinKey(cs.prefix, uploadID)
}

func (cs *ChunkStore) chunkKey(uploadID string, index int) string {
	return storage.JoinKey(cs.prefix, uploadID, strconv.Itoa(index)+chunkExt)
}

// Put 写入一个分片，同一位置重复写入时覆盖
func (cs *ChunkStore) Put(ctx context.Context, uploadID string, index int, r io.Reader, size int64) error {
	key := cs.chunkKey(uploadID, index)
	if cs.codec == CodecZstd {
		raw, err := io.ReadAll(io.LimitReader(r, size+1))
		if err != nil {
			return fmt.Errorf("chunk store: read chunk %d: %w", index, err)
		}
		if int64(len(raw)) != size {
			return fmt.Errorf("%w: chunk %d has %d bytes, expected %d", storage.ErrShortWrite, index, len(raw), size)
		}
		compressed := cs.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
		r, size = bytes.NewReader(compressed), int64(len(compressed))
	}
	if _, err := cs.storage.PutObject(ctx, key, r, size, "application/octet-stream"); err != nil {
		return fmt.Errorf("chunk store: put %s: %w", key, err)
	}
	return nil
}

// Open 读取分片原始内容，分片不存在时返回的错误包装 storage.ErrObjectNotFound
func (cs *ChunkStore) Open(ctx context.Context, uploadID string, index int) (io.ReadCloser, error) {
	key := cs.chunkKey(uploadID, index)
	obj, err := cs.storage.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("chunk store: open %s: %w", key, err)
	}
	if cs.codec != CodecZstd {
		return obj.Reader, nil
	}
	dec, err := zstd.NewReader(obj.Reader, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = obj.Reader.Close()
		return nil, fmt.Errorf("chunk store: zstd reader for %s: %w", key, err)
	}
	return &zstdReadCloser{dec: dec, src: obj.Reader}, nil
}

// RemoveAll 删除会话的整个分片目录
func (cs *ChunkStore) RemoveAll(ctx context.Context, uploadID string) error {
	if err := cs.storage.RemoveObjects(ctx, cs.WorkspacePrefix(uploadID)); err != nil {
		return fmt.Errorf("chunk store: remove workspace %s: %w", uploadID, err)
	}
	return nil
}

// ListUploadIDs 列出存储中所有存在分片目录的会话 id
func (cs *ChunkStore) ListUploadIDs(ctx context.Context) ([]string, error) {
	prefixes, err := cs.storage.ListPrefixes(ctx, cs.prefix)
	if err != nil {
		return nil, fmt.Errorf("chunk store: list workspaces: %w", err)
	}
	ids := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		ids = append(ids, path.Base(p))
	}
	return ids, nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
	src io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.src.Close()
}
