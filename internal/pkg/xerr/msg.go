package xerr

import (
	"errors"
	"fmt"
)

var (
	// 通用错误
	ErrInternalServer = errors.New("internal server error")

	// 客户端请求错误
	ErrValidationFailed   = errors.New("validation failed")
	ErrChunkMissing       = errors.New("chunk marked as received is missing from storage")
	ErrSizeMismatch       = errors.New("assembled size does not match declared size")
	ErrInvalidChunkIndex  = errors.New("chunk index out of range")
	ErrIncompleteUpload   = errors.New("upload is incomplete")
	ErrCompletionInFlight = errors.New("upload completion already in progress")
	// 合并锁在合并期间失效，另一个请求可能已经接手
	ErrCompletionLockLost = fmt.Errorf("%w: completion lock expired", ErrCompletionInFlight)

	// 认证与授权错误
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenInvalid = errors.New("token is invalid or expired")

	// 资源未找到错误
	ErrUploadSessionNotFound = errors.New("upload session not found or expired")
)
