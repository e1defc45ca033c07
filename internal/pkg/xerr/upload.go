package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError 请求参数不合法，Field 为出错的字段
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// IncompleteUploadError 合并时仍有分片未上传
type IncompleteUploadError struct {
	Uploaded int
	Total    int
}

func (e *IncompleteUploadError) Missing() int { return e.Total - e.Uploaded }

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("upload is incomplete: %d of %d chunks uploaded, %d missing", e.Uploaded, e.Total, e.Missing())
}

func (e *IncompleteUploadError) Unwrap() error { return ErrIncompleteUpload }

// MissingChunkError 分片已记录为收到，但存储中找不到，说明存储不一致
type MissingChunkError struct {
	Index int
	Err   error
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chunk %d is marked as received but missing from storage", e.Index)
}

func (e *MissingChunkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrChunkMissing}
	}
	return []error{ErrChunkMissing, e.Err}
}

// SizeMismatchError 合并后的字节数与声明大小不一致
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("assembled size %d does not match declared size %d", e.Actual, e.Expected)
}

func (e *SizeMismatchError) Unwrap() error { return ErrSizeMismatch }

// HTTPStatus 将错误映射为 HTTP 状态码和业务码
func HTTPStatus(err error) (int, int) {
	var codeErr *CodeError
	switch {
	case err == nil:
		return http.StatusOK, SuccessCode
	case errors.Is(err, ErrValidationFailed):
		return http.StatusUnprocessableEntity, ValidationFailedCode
	case errors.Is(err, ErrUploadSessionNotFound):
		return http.StatusNotFound, UploadSessionNotFoundCode
	case errors.Is(err, ErrInvalidChunkIndex):
		return http.StatusBadRequest, InvalidChunkIndexCode
	case errors.Is(err, ErrIncompleteUpload):
		return http.StatusBadRequest, IncompleteUploadCode
	case errors.Is(err, ErrSizeMismatch):
		return http.StatusBadRequest, SizeMismatchCode
	case errors.Is(err, ErrChunkMissing):
		return http.StatusInternalServerError, ChunkMissingCode
	case errors.Is(err, ErrCompletionInFlight):
		return http.StatusConflict, CompletionInProgressCode
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized, UnauthorizedCode
	case errors.As(err, &codeErr):
		return http.StatusInternalServerError, codeErr.Code
	default:
		return http.StatusInternalServerError, InternalServerErrorCode
	}
}
