// Package client 分片上传服务的 Go 客户端
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize   = 5 << 20
	DefaultParallelism = 4
	DefaultMaxRetries  = 5

	apiPrefix = "/api/v1/uploads"
)

// ErrCompleteOutcomeUnknown 合并请求发出后没有收到响应，服务端可能已经完成合并
// 此时不会重试，也不会取消会话，可以用 Progress 查询：会话不存在说明已完成或已过期
var ErrCompleteOutcomeUnknown = errors.New("upload: complete outcome unknown")

// APIError 服务端返回的非 200 响应
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upload api: %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Retriable 重发同一请求是否可能成功
func (e *APIError) Retriable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound 上传会话不存在或已过期
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client 并发上传分片，可重试的失败按指数退避重试
type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	chunkSize   int64
	parallelism int
	maxRetries  uint64
	onProgress  func(ChunkResult)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithToken 每个请求都带上 Authorization: Bearer <token>
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithChunkSize(n int64) Option { return func(c *Client) { c.chunkSize = n } }

func WithParallelism(n int) Option { return func(c *Client) { c.parallelism = n } }

func WithMaxRetries(n uint64) Option { return func(c *Client) { c.maxRetries = n } }

// WithProgress 每个分片保存后回调，可能在多个 goroutine 中并发调用
func WithProgress(fn func(ChunkResult)) Option { return func(c *Client) { c.onProgress = fn } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		chunkSize:   DefaultChunkSize,
		parallelism: DefaultParallelism,
		maxRetries:  DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.parallelism < 1 {
		c.parallelism = 1
	}
	return c
}

// ChunkResult 单个分片上传后服务端返回的进度，Index 由客户端填写
type ChunkResult struct {
	Index          int     `json:"-"`
	Progress       float64 `json:"progress"`
	UploadedChunks int     `json:"uploaded_chunks"`
	TotalChunks    int     `json:"total_chunks"`
}

// UploadFile 以文件的 base name 上传 path 指向的文件
func (c *Client) UploadFile(ctx context.Context, path string) (*models.CompletedUpload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return c.Upload(ctx, filepath.Base(path), f, info.Size())
}

// Upload 切分 r 并发上传各分片，最后合并
// 失败时取消服务端的会话，合并结果未知时除外
func (c *Client) Upload(ctx context.Context, filename string, r io.ReaderAt, size int64) (_ *models.CompletedUpload, err error) {
	if size < 1 {
		return nil, errors.New("upload: file is empty")
	}
	total := int((size + c.chunkSize - 1) / c.chunkSize)

	uploadID, err := c.Initiate(ctx, filename, size, c.chunkSize, total)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrCompleteOutcomeUnknown) {
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = c.Cancel(cancelCtx, uploadID)
		}
	}()

	if err := c.uploadChunks(ctx, uploadID, r, size, total, nil); err != nil {
		return nil, err
	}
	return c.Complete(ctx, uploadID)
}

// Resume 只上传服务端尚未记录的分片，然后合并
func (c *Client) Resume(ctx context.Context, uploadID string, r io.ReaderAt, size int64) (*models.CompletedUpload, error) {
	progress, err := c.Progress(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	have := make(map[int]bool, len(progress.ReceivedIndices))
	for _, i := range progress.ReceivedIndices {
		have[i] = true
	}
	if err := c.uploadChunks(ctx, uploadID, r, size, progress.TotalChunks, have); err != nil {
		return nil, err
	}
	return c.Complete(ctx, uploadID)
}

func (c *Client) uploadChunks(ctx context.Context, uploadID string, r io.ReaderAt, size int64, total int, skip map[int]bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i := 0; i < total; i++ {
		if skip[i] {
			continue
		}
		index := i
		g.Go(func() error {
			off := int64(index) * c.chunkSize
			n := c.chunkSize
			if off+n > size {
				n = size - off
			}
			buf := make([]byte, n)
			if _, err := r.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read chunk %d: %w", index, err)
			}
			res, err := c.UploadChunk(gctx, uploadID, index, buf)
			if err != nil {
				return fmt.Errorf("upload chunk %d: %w", index, err)
			}
			if c.onProgress != nil {
				c.onProgress(*res)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Client) Initiate(ctx context.Context, filename string, size, chunkSize int64, totalChunks int) (string, error) {
	var resp struct {
		UploadID string `json:"upload_id"`
	}
	req := models.InitiateUploadRequest{Filename: filename, FileSize: size, ChunkSize: chunkSize, TotalChunks: totalChunks}
	err := c.retry(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, apiPrefix, req, &resp)
	})
	return resp.UploadID, err
}

// UploadChunk 上传一个分片，同一序号可以重复发送
func (c *Client) UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (*ChunkResult, error) {
	res := &ChunkResult{Index: index}
	err := c.retry(ctx, func() error {
		body, contentType, err := chunkForm(uploadID, index, data)
		if err != nil {
			return backoff.Permanent(err)
		}
		return c.do(ctx, http.MethodPost, apiPrefix+"/chunks", contentType, body, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Complete 只在其他合并请求持有会话（409）时重试
// 网络错误不重试：请求可能已经完成合并，重试只会得到 404
func (c *Client) Complete(ctx context.Context, uploadID string) (*models.CompletedUpload, error) {
	var res models.CompletedUpload
	err := c.retry(ctx, func() error {
		err := c.doJSON(ctx, http.MethodPost, apiPrefix+"/complete", models.UploadIDRequest{UploadID: uploadID}, &res)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusConflict {
				return err
			}
			return backoff.Permanent(err)
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		return backoff.Permanent(fmt.Errorf("%w: %w", ErrCompleteOutcomeUnknown, err))
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Progress(ctx context.Context, uploadID string) (*models.UploadProgress, error) {
	var res models.UploadProgress
	path := apiPrefix + "/progress?upload_id=" + url.QueryEscape(uploadID)
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, "", nil, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Cancel(ctx context.Context, uploadID string) error {
	return c.retry(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, apiPrefix+"/cancel", models.UploadIDRequest{UploadID: uploadID}, nil)
	})
}

// retry 4xx（409、429 除外）不重试
func (c *Client) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 15 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retriable() {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func chunkForm(uploadID string, index int, data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("upload_id", uploadID); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("chunk_number", strconv.Itoa(index)); err != nil {
		return nil, "", err
	}
	fw, err := mw.CreateFormFile("chunk", fmt.Sprintf("%d.chunk", index))
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return backoff.Permanent(err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(b), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
