package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/storage"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Assembler 按序号把分片拼接到本地临时文件，校验大小后再发布到存储
type Assembler struct {
	chunks  *ChunkStore
	storage storage.StorageService
	tempFs  afero.Fs
	tempDir string
}

// NewAssembler tempFs 为 nil 时使用本地磁盘
func NewAssembler(chunks *ChunkStore, ss storage.StorageService, tempFs afero.Fs, tempDir string) *Assembler {
	if tempFs == nil {
		tempFs = afero.NewOsFs()
	}
	return &Assembler{chunks: chunks, storage: ss, tempFs: tempFs, tempDir: tempDir}
}

// AssembledFile 已校验的合并结果，调用方必须 Close 以删除临时文件
type AssembledFile struct {
	fs       afero.Fs
	file     afero.File
	Size     int64
	Checksum string // sha256 hex
}

func (a *AssembledFile) Close() error {
	name := a.file.Name()
	_ = a.file.Close()
	if err := a.fs.Remove(name); err != nil {
		logger.Warn("Failed to remove assembled temp file", zap.String("path", name), zap.Error(err))
		return err
	}
	return nil
}

// Assemble 依次读取 0..TotalChunks-1 的分片，任意时刻内存中只有一个拷贝缓冲区
// 失败时临时文件已被删除
func (a *Assembler) Assemble(ctx context.Context, session *models.UploadSession) (_ *AssembledFile, err error) {
	tmp, err := afero.TempFile(a.tempFs, a.tempDir, "assemble-"+session.ID+"-*")
	if err != nil {
		return nil, fmt.Errorf("assembler: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			name := tmp.Name()
			_ = tmp.Close()
			_ = a.tempFs.Remove(name)
		}
	}()

	h := sha256.New()
	counter := &countingWriter{}
	dst := io.MultiWriter(tmp, h, counter)

	for i := 0; i < session.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.appendChunk(ctx, dst, session.ID, i); err != nil {
			return nil, err
		}
	}

	if counter.n != session.DeclaredSize {
		logger.Warn("Assembled size does not match declared size",
			zap.String("uploadID", session.ID),
			zap.Int64("expected", session.DeclaredSize),
			zap.Int64("actual", counter.n))
		return nil, &xerr.SizeMismatchError{Expected: session.DeclaredSize, Actual: counter.n}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("assembler: rewind temp file: %w", err)
	}
	return &AssembledFile{
		fs:       a.tempFs,
		file:     tmp,
		Size:     counter.n,
		Checksum: hexSum(h),
	}, nil
}

func (a *Assembler) appendChunk(ctx context.Context, dst io.Writer, uploadID string, index int) error {
	rc, err := a.chunks.Open(ctx, uploadID, index)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return &xerr.MissingChunkError{Index: index, Err: err}
		}
		return fmt.Errorf("assembler: open chunk %d: %w", index, err)
	}
	defer rc.Close()
	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("assembler: copy chunk %d: %w", index, err)
	}
	return nil
}

// Publish 把合并结果写入 objectKey，存储层保证不会留下半个对象
func (a *Assembler) Publish(ctx context.Context, f *AssembledFile, objectKey, contentType string) (storage.PutObjectResult, error) {
	res, err := a.storage.PutObject(ctx, objectKey, f.file, f.Size, contentType)
	if err != nil {
		return storage.PutObjectResult{}, fmt.Errorf("assembler: publish %s: %w", objectKey, err)
	}
	return res, nil
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
