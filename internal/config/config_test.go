package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigUsesDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(1024), cfg.Upload.MinChunkSize)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxChunkSize)
	assert.Equal(t, "memory", cfg.Upload.SessionStore)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 24*time.Hour, cfg.Upload.SessionTTL)
	assert.Equal(t, "none", cfg.Upload.ChunkCodec)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GO_CHUNK_UPLOAD_SERVER_PORT", "9090")
	t.Setenv("GO_CHUNK_UPLOAD_UPLOAD_SESSION_STORE", "redis")
	t.Setenv("GO_CHUNK_UPLOAD_MYSQL_DSN", "user:pass@tcp(db:3306)/uploads")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Upload.SessionStore)
	assert.Equal(t, "user:pass@tcp(db:3306)/uploads", cfg.MySQL.DSN)
}

func TestSetDefaultsChunkBounds(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	assert.Equal(t, 1024, v.GetInt("upload.min_chunk_size"))
	assert.Equal(t, "workspace", v.GetString("upload.workspace_prefix"))
	assert.Equal(t, "/metrics", v.GetString("metrics.path"))
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
