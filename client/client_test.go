package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/handlers"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/storage"
	"github.com/3Eeeecho/go-chunkupload/internal/repositories"
	"github.com/3Eeeecho/go-chunkupload/internal/router"
	"github.com/3Eeeecho/go-chunkupload/internal/services/upload"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type e2eEnv struct {
	srv    *httptest.Server
	store  storage.StorageService
	engine http.Handler

	mu sync.RWMutex
	// intercept 返回 true 时请求不再交给服务端处理
	intercept func(w http.ResponseWriter, r *http.Request) bool
}

func (e *e2eEnv) setIntercept(fn func(w http.ResponseWriter, r *http.Request) bool) {
	e.mu.Lock()
	e.intercept = fn
	e.mu.Unlock()
}

func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		Upload: config.UploadConfig{
			MinChunkSize:        1,
			MaxChunkSize:        1 << 20,
			MaxFileSize:         1 << 30,
			MaxChunks:           1000,
			CompleteWaitTimeout: time.Second,
			CompleteLockTTL:     time.Minute,
			FilePrefix:          "files",
		},
	}
	store := storage.NewLocalStorageWithFs(afero.NewMemMapFs(), "data")
	require.NoError(t, store.EnsureBucket(context.Background()))
	chunks, err := upload.NewChunkStore(store, "workspace", upload.CodecZstd)
	require.NoError(t, err)
	sessions := repositories.NewMemorySessionRepository()
	svc := upload.NewUploadService(upload.UploadServiceDeps{
		Sessions:  sessions,
		Chunks:    chunks,
		Assembler: upload.NewAssembler(chunks, store, afero.NewMemMapFs(), "tmp"),
		Storage:   store,
		Config:    cfg.Upload,
	})
	engine := router.InitRouter(cfg, handlers.NewUploadHandler(svc), handlers.NewHealthHandler(sessions, store))

	env := &e2eEnv{store: store, engine: engine}
	env.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.RLock()
		intercept := env.intercept
		env.mu.RUnlock()
		if intercept != nil && intercept(w, r) {
			return
		}
		engine.ServeHTTP(w, r)
	}))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *e2eEnv) read(t *testing.T, key string) []byte {
	t.Helper()
	obj, err := e.store.GetObject(context.Background(), key)
	require.NoError(t, err)
	defer obj.Reader.Close()
	data, err := io.ReadAll(obj.Reader)
	require.NoError(t, err)
	return data
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i/7)
	}
	return b
}

func TestUploadFileRoundTrip(t *testing.T) {
	env := newE2EEnv(t)
	data := payload(10_000)
	path := filepath.Join(t.TempDir(), "holiday.JPG")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var mu sync.Mutex
	var seen []int
	c := New(env.srv.URL, WithChunkSize(1024), WithParallelism(3), WithProgress(func(r ChunkResult) {
		mu.Lock()
		seen = append(seen, r.Index)
		mu.Unlock()
	}))

	res, err := c.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "holiday.JPG", res.Filename)
	assert.Equal(t, int64(len(data)), res.FileSize)
	assert.True(t, strings.HasSuffix(res.FilePath, ".jpg"), res.FilePath)
	assert.Equal(t, "image/jpeg", res.ContentType)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Checksum)
	assert.Equal(t, data, env.read(t, res.FilePath))
	assert.Len(t, seen, 10)
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	env := newE2EEnv(t)
	var failures atomic.Int32
	env.setIntercept(func(w http.ResponseWriter, r *http.Request) bool {
		if strings.HasSuffix(r.URL.Path, "/chunks") && failures.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return true
		}
		return false
	})

	data := payload(3000)
	c := New(env.srv.URL, WithChunkSize(1000), WithParallelism(1))
	res, err := c.Upload(context.Background(), "a.bin", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, env.read(t, res.FilePath))
}

func TestUploadCancelsSessionOnPermanentFailure(t *testing.T) {
	env := newE2EEnv(t)
	var uploadID atomic.Value
	env.setIntercept(func(w http.ResponseWriter, r *http.Request) bool {
		if strings.HasSuffix(r.URL.Path, "/chunks") {
			_ = r.ParseMultipartForm(1 << 20)
			uploadID.Store(r.FormValue("upload_id"))
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"code":40000,"message":"rejected"}`))
			return true
		}
		return false
	})

	c := New(env.srv.URL, WithChunkSize(1000), WithParallelism(1))
	data := payload(2000)
	_, err := c.Upload(context.Background(), "a.bin", bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "rejected", apiErr.Message)

	id, _ := uploadID.Load().(string)
	require.NotEmpty(t, id)
	env.setIntercept(nil)
	_, err = c.Progress(context.Background(), id)
	assert.True(t, IsNotFound(err), "session should be cancelled, got %v", err)
}

func TestResumeSendsOnlyMissingChunks(t *testing.T) {
	env := newE2EEnv(t)
	data := payload(4000)
	c := New(env.srv.URL, WithChunkSize(1000))
	ctx := context.Background()

	id, err := c.Initiate(ctx, "resume.bin", int64(len(data)), 1000, 4)
	require.NoError(t, err)
	_, err = c.UploadChunk(ctx, id, 0, data[:1000])
	require.NoError(t, err)
	_, err = c.UploadChunk(ctx, id, 2, data[2000:3000])
	require.NoError(t, err)

	var chunkCalls atomic.Int32
	env.setIntercept(func(w http.ResponseWriter, r *http.Request) bool {
		if strings.HasSuffix(r.URL.Path, "/chunks") {
			chunkCalls.Add(1)
		}
		return false
	})
	res, err := c.Resume(ctx, id, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), chunkCalls.Load())
	assert.Equal(t, data, env.read(t, res.FilePath))
}

func TestInitiateValidationIsNotRetried(t *testing.T) {
	env := newE2EEnv(t)
	var calls atomic.Int32
	env.setIntercept(func(w http.ResponseWriter, r *http.Request) bool {
		calls.Add(1)
		return false
	})
	c := New(env.srv.URL, WithChunkSize(2<<20))
	data := payload(10)
	_, err := c.Upload(context.Background(), "big-chunks.bin", bytes.NewReader(data), int64(len(data)))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteLostResponseIsNotRetried(t *testing.T) {
	env := newE2EEnv(t)
	var completeCalls, cancelCalls atomic.Int32
	var published atomic.Value
	env.setIntercept(func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case strings.HasSuffix(r.URL.Path, "/cancel"):
			cancelCalls.Add(1)
		case strings.HasSuffix(r.URL.Path, "/complete"):
			completeCalls.Add(1)
			// 服务端完成合并，但响应在返回途中丢失
			rec := httptest.NewRecorder()
			env.engine.ServeHTTP(rec, r)
			published.Store(rec.Body.String())
			conn, _, err := w.(http.Hijacker).Hijack()
			if assert.NoError(t, err) {
				_ = conn.Close()
			}
			return true
		}
		return false
	})

	c := New(env.srv.URL, WithChunkSize(1000), WithParallelism(2))
	data := payload(2500)
	_, err := c.Upload(context.Background(), "lost.bin", bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompleteOutcomeUnknown)
	assert.Equal(t, int32(1), completeCalls.Load())
	assert.Zero(t, cancelCalls.Load(), "session must not be cancelled when the outcome is unknown")

	body, _ := published.Load().(string)
	assert.Contains(t, body, `"success":true`)
}
