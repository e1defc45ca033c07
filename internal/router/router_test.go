package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/config"
	"github.com/3Eeeecho/go-chunkupload/internal/handlers"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/storage"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/utils"
	"github.com/3Eeeecho/go-chunkupload/internal/repositories"
	"github.com/3Eeeecho/go-chunkupload/internal/services/upload"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: gin.TestMode},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		JWT:     config.JWTConfig{SecretKey: secret},
		Upload: config.UploadConfig{
			MinChunkSize:        1,
			MaxChunkSize:        1 << 20,
			CompleteWaitTimeout: time.Second,
			CompleteLockTTL:     time.Minute,
			FilePrefix:          "files",
		},
	}

	store := storage.NewLocalStorageWithFs(afero.NewMemMapFs(), "data")
	require.NoError(t, store.EnsureBucket(context.Background()))
	chunks, err := upload.NewChunkStore(store, "workspace", upload.CodecNone)
	require.NoError(t, err)
	sessions := repositories.NewMemorySessionRepository()
	svc := upload.NewUploadService(upload.UploadServiceDeps{
		Sessions:  sessions,
		Chunks:    chunks,
		Assembler: upload.NewAssembler(chunks, store, afero.NewMemMapFs(), ""),
		Storage:   store,
		Config:    cfg.Upload,
	})
	return InitRouter(cfg, handlers.NewUploadHandler(svc), handlers.NewHealthHandler(sessions, store))
}

func serve(r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutesMountedUnderBothPrefixes(t *testing.T) {
	r := newTestRouter(t, "")
	body := `{"filename":"a.txt","filesize":4,"chunk_size":4,"total_chunks":1}`

	for _, prefix := range []string{"/api/v1/uploads", "/uploads"} {
		w := serve(r, http.MethodPost, prefix, body, nil)
		assert.Equal(t, http.StatusOK, w.Code, prefix)
		assert.Contains(t, w.Body.String(), `"upload_id"`)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

		w = serve(r, http.MethodPost, prefix+"/cancel", `{"upload_id":"x"}`, nil)
		assert.Equal(t, http.StatusOK, w.Code, prefix)
	}
}

func TestNoRouteAndOperationalEndpoints(t *testing.T) {
	r := newTestRouter(t, "")

	w := serve(r, http.MethodGet, "/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	w = serve(r, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chunkupload_http_requests_total")
}

func TestUploadRoutesRequireTokenWhenConfigured(t *testing.T) {
	r := newTestRouter(t, "secret")
	body := `{"filename":"a.txt","filesize":4,"chunk_size":4,"total_chunks":1}`

	w := serve(r, http.MethodPost, "/api/v1/uploads", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := utils.GenerateToken("cli", "secret", "", time.Hour)
	require.NoError(t, err)

	w = serve(r, http.MethodPost, "/api/v1/uploads", body, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)

	// 健康检查不需要 Token
	w = serve(r, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
