package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStorage() *LocalStorageService {
	return NewLocalStorageWithFs(afero.NewMemMapFs(), "mem")
}

func TestLocalPutGetRoundTrip(t *testing.T) {
	s := newMemStorage()
	ctx := context.Background()

	res, err := s.PutObject(ctx, "workspace/abc/0.chunk", strings.NewReader("hello"), 5, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Size)
	assert.Equal(t, "workspace/abc/0.chunk", res.Key)

	obj, err := s.GetObject(ctx, "workspace/abc/0.chunk")
	require.NoError(t, err)
	defer obj.Reader.Close()
	data, err := io.ReadAll(obj.Reader)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), obj.Size)

	info, err := s.StatObject(ctx, "workspace/abc/0.chunk")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
}

func TestLocalPutOverwrites(t *testing.T) {
	s := newMemStorage()
	ctx := context.Background()

	_, err := s.PutObject(ctx, "a/b", strings.NewReader("first"), -1, "")
	require.NoError(t, err)
	_, err = s.PutObject(ctx, "a/b", strings.NewReader("2nd"), -1, "")
	require.NoError(t, err)

	obj, err := s.GetObject(ctx, "a/b")
	require.NoError(t, err)
	defer obj.Reader.Close()
	data, _ := io.ReadAll(obj.Reader)
	assert.Equal(t, "2nd", string(data))
}

func TestLocalPutShortWriteLeavesNothing(t *testing.T) {
	s := newMemStorage()
	ctx := context.Background()

	_, err := s.PutObject(ctx, "a/short", bytes.NewReader([]byte("abc")), 10, "")
	require.ErrorIs(t, err, ErrShortWrite)

	_, err = s.StatObject(ctx, "a/short")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	entries, err := afero.ReadDir(s.fs, "a")
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be cleaned up")
}

func TestLocalPutCancelledContext(t *testing.T) {
	s := newMemStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.PutObject(ctx, "a/cancelled", strings.NewReader("data"), -1, "")
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.StatObject(context.Background(), "a/cancelled")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalMissingObject(t *testing.T) {
	s := newMemStorage()
	ctx := context.Background()

	_, err := s.GetObject(ctx, "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = s.StatObject(ctx, "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.NoError(t, s.RemoveObject(ctx, "nope"))
}

func TestLocalRemoveObjectsAndListPrefixes(t *testing.T) {
	s := newMemStorage()
	ctx := context.Background()

	for _, key := range []string{"workspace/u1/0.chunk", "workspace/u1/1.chunk", "workspace/u2/0.chunk"} {
		_, err := s.PutObject(ctx, key, strings.NewReader("x"), 1, "")
		require.NoError(t, err)
	}

	prefixes, err := s.ListPrefixes(ctx, "workspace")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"workspace/u1", "workspace/u2"}, prefixes)

	require.NoError(t, s.RemoveObjects(ctx, "workspace/u1"))
	_, err = s.StatObject(ctx, "workspace/u1/0.chunk")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	prefixes, err = s.ListPrefixes(ctx, "workspace")
	require.NoError(t, err)
	assert.Equal(t, []string{"workspace/u2"}, prefixes)

	// 不存在的前缀
	prefixes, err = s.ListPrefixes(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, prefixes)
	assert.NoError(t, s.RemoveObjects(ctx, "missing/u9"))
}

func TestValidateObjectName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple", "files/a.txt", "files/a.txt", false},
		{"cleaned", "files//b/./c", "files/b/c", false},
		{"empty", "", "", true},
		{"dot", ".", "", true},
		{"absolute", "/etc/passwd", "", true},
		{"parent", "files/../../x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateObjectName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidObjectName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirPrefix(t *testing.T) {
	assert.Equal(t, "workspace/", dirPrefix("workspace"))
	assert.Equal(t, "workspace/", dirPrefix("/workspace/"))
	assert.Equal(t, "", dirPrefix(""))
}
