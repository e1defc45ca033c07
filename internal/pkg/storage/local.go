package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"

	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// LocalStorageService 基于 afero 的本地磁盘存储，对象键映射为 basePath 下的相对路径
type LocalStorageService struct {
	fs       afero.Fs
	basePath string
}

// NewLocalStorageService 在 basePath 下创建本地存储
func NewLocalStorageService(basePath string) (*LocalStorageService, error) {
	if basePath == "" {
		return nil, errors.New("local storage: base path is empty")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: create base path: %w", err)
	}
	logger.Info("Local storage initialized", zap.String("basePath", basePath))
	return NewLocalStorageWithFs(afero.NewBasePathFs(osFs, basePath), basePath), nil
}

// NewLocalStorageWithFs 使用给定的文件系统，测试中传入 afero.NewMemMapFs()
func NewLocalStorageWithFs(fs afero.Fs, basePath string) *LocalStorageService {
	return &LocalStorageService{fs: fs, basePath: basePath}
}

func (s *LocalStorageService) Type() string   { return TypeLocal }
func (s *LocalStorageService) Bucket() string { return s.basePath }

// PutObject 先写入同目录下的临时文件，再 rename 到目标位置，保证不会读到写了一半的对象
func (s *LocalStorageService) PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return PutObjectResult{}, err
	}
	dir := path.Dir(name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return PutObjectResult{}, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".tmp-"+path.Base(name)+"-*")
	if err != nil {
		return PutObjectResult{}, fmt.Errorf("local storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: reader})
	if err != nil {
		return PutObjectResult{}, fmt.Errorf("local storage: write %s: %w", name, err)
	}
	if objectSize >= 0 && written != objectSize {
		return PutObjectResult{}, fmt.Errorf("%w: wrote %d, expected %d", ErrShortWrite, written, objectSize)
	}
	if err := tmp.Sync(); err != nil {
		return PutObjectResult{}, fmt.Errorf("local storage: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return PutObjectResult{}, fmt.Errorf("local storage: close %s: %w", name, err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		committed = true
		return PutObjectResult{}, fmt.Errorf("local storage: rename %s: %w", name, err)
	}
	committed = true

	return PutObjectResult{
		Bucket: s.basePath,
		Key:    name,
		Size:   written,
	}, nil
}

func (s *LocalStorageService) GetObject(ctx context.Context, objectName string) (GetObjectResult, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return GetObjectResult{}, err
	}
	f, err := s.fs.Open(name)
	if err != nil {
		return GetObjectResult{}, translateFsError(name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return GetObjectResult{}, translateFsError(name, err)
	}
	return GetObjectResult{
		Reader:   f,
		Size:     info.Size(),
		MimeType: mime.TypeByExtension(path.Ext(name)),
	}, nil
}

func (s *LocalStorageService) StatObject(ctx context.Context, objectName string) (ObjectInfo, error) {
	name, err := validateObjectName(objectName)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := s.fs.Stat(name)
	if err != nil {
		return ObjectInfo{}, translateFsError(name, err)
	}
	if info.IsDir() {
		return ObjectInfo{}, fmt.Errorf("%w: %s is a directory", ErrObjectNotFound, name)
	}
	return ObjectInfo{Key: name, Size: info.Size()}, nil
}

func (s *LocalStorageService) RemoveObject(ctx context.Context, objectName string) error {
	name, err := validateObjectName(objectName)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local storage: remove %s: %w", name, err)
	}
	return nil
}

func (s *LocalStorageService) RemoveObjects(ctx context.Context, prefix string) error {
	name, err := validateObjectName(prefix)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(name); err != nil {
		return fmt.Errorf("local storage: remove all %s: %w", name, err)
	}
	return nil
}

func (s *LocalStorageService) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	name, err := validateObjectName(prefix)
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("local storage: read dir %s: %w", name, err)
	}
	var prefixes []string
	for _, e := range entries {
		if e.IsDir() {
			prefixes = append(prefixes, path.Join(name, e.Name()))
		}
	}
	return prefixes, nil
}

func (s *LocalStorageService) EnsureBucket(ctx context.Context) error {
	return s.fs.MkdirAll(".", 0o755)
}

func (s *LocalStorageService) Ping(ctx context.Context) error {
	_, err := s.fs.Stat(".")
	return err
}

func translateFsError(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	return fmt.Errorf("local storage: %s: %w", name, err)
}

// contextReader 在每次 Read 前检查 ctx，客户端断开时尽快停止写入
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
