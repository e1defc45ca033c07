package xerr

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"validation", NewValidationError("chunk_size", "must be at least 1024"), http.StatusUnprocessableEntity, ValidationFailedCode},
		{"not found", fmt.Errorf("lookup: %w", ErrUploadSessionNotFound), http.StatusNotFound, UploadSessionNotFoundCode},
		{"bad index", ErrInvalidChunkIndex, http.StatusBadRequest, InvalidChunkIndexCode},
		{"incomplete", &IncompleteUploadError{Uploaded: 1, Total: 2}, http.StatusBadRequest, IncompleteUploadCode},
		{"size mismatch", &SizeMismatchError{Expected: 10, Actual: 9}, http.StatusBadRequest, SizeMismatchCode},
		{"missing chunk", &MissingChunkError{Index: 3}, http.StatusInternalServerError, ChunkMissingCode},
		{"in flight", ErrCompletionInFlight, http.StatusConflict, CompletionInProgressCode},
		{"lock lost", ErrCompletionLockLost, http.StatusConflict, CompletionInProgressCode},
		{"code error", NewCodeError(StorageErrorCode, errors.New("minio down")), http.StatusInternalServerError, StorageErrorCode},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, InternalServerErrorCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := HTTPStatus(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestMissingChunkErrorUnwrapsBoth(t *testing.T) {
	err := &MissingChunkError{Index: 2, Err: fs.ErrNotExist}
	assert.ErrorIs(t, err, ErrChunkMissing)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNewErrorResponseDetails(t *testing.T) {
	status, body := NewErrorResponse(&IncompleteUploadError{Uploaded: 1, Total: 2})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Success)
	require.NotNil(t, body.UploadedChunks)
	assert.Equal(t, 1, *body.UploadedChunks)
	assert.Equal(t, 2, *body.TotalChunks)
	assert.Equal(t, 1, *body.MissingChunks)

	_, body = NewErrorResponse(&SizeMismatchError{Expected: 3000000, Actual: 2999999})
	require.NotNil(t, body.ExpectedSize)
	assert.Equal(t, int64(3000000), *body.ExpectedSize)
	assert.Equal(t, int64(2999999), *body.ActualSize)

	_, body = NewErrorResponse(errors.New("dial tcp: connection refused"))
	assert.Equal(t, ErrInternalServer.Error(), body.Message)
}

func TestNewErrorResponseHidesInternalDetail(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"storage", NewCodeError(StorageErrorCode, errors.New("local storage: write workspace/abc/0.chunk: disk full"))},
		{"database", NewCodeError(DatabaseErrorCode, errors.New("Error 1045: access denied for user 'root'@'10.0.0.3'"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := NewErrorResponse(tc.err)
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.NotEqual(t, InternalServerErrorCode, body.Code)
			assert.Equal(t, ErrInternalServer.Error(), body.Message)
		})
	}

	// 缺失分片的提示对客户端有用，保留
	status, body := NewErrorResponse(&MissingChunkError{Index: 4})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body.Message, "chunk 4")
	require.NotNil(t, body.ChunkIndex)
	assert.Equal(t, 4, *body.ChunkIndex)
}
