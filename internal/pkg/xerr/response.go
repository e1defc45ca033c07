package xerr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CodeError 结构体用于在服务层传递带有业务码的错误
// 它实现了 error 接口
type CodeError struct {
	Code int   // 业务错误码
	Err  error // 被包裹的底层错误
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	return e.Err.Error()
}

// Unwrap 返回被包裹的底层错误，支持 errors.Unwrap
func (e *CodeError) Unwrap() error {
	return e.Err
}

// NewCodeError 创建一个 CodeError 实例
func NewCodeError(code int, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

// Response 是通用 JSON 响应结构，各接口的响应体内嵌它，字段会被展开到同一层
type Response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// OK 构造成功响应头部
func OK(message string) Response {
	return Response{Success: true, Code: SuccessCode, Message: message}
}

// Fail 构造失败响应头部
func Fail(code int, message string) Response {
	return Response{Success: false, Code: code, Message: message}
}

// ErrorResponse 失败时的响应体，Details 中放置与错误相关的附加字段
type ErrorResponse struct {
	Response
	UploadedChunks *int   `json:"uploaded_chunks,omitempty"`
	TotalChunks    *int   `json:"total_chunks,omitempty"`
	MissingChunks  *int   `json:"missing_chunks,omitempty"`
	ChunkIndex     *int   `json:"chunk_index,omitempty"`
	ExpectedSize   *int64 `json:"expected_size,omitempty"`
	ActualSize     *int64 `json:"actual_size,omitempty"`
}

// NewErrorResponse 根据错误类型构造响应体
func NewErrorResponse(err error) (int, ErrorResponse) {
	status, code := HTTPStatus(err)
	resp := ErrorResponse{Response: Fail(code, err.Error())}
	if status == http.StatusInternalServerError && code != ChunkMissingCode {
		// 不向客户端暴露内部错误细节，存储和数据库错误中带有对象路径
		resp.Message = ErrInternalServer.Error()
	}

	var incomplete *IncompleteUploadError
	var missing *MissingChunkError
	var mismatch *SizeMismatchError
	switch {
	case errors.As(err, &incomplete):
		uploaded, total, left := incomplete.Uploaded, incomplete.Total, incomplete.Missing()
		resp.UploadedChunks, resp.TotalChunks, resp.MissingChunks = &uploaded, &total, &left
	case errors.As(err, &missing):
		idx := missing.Index
		resp.ChunkIndex = &idx
	case errors.As(err, &mismatch):
		expected, actual := mismatch.Expected, mismatch.Actual
		resp.ExpectedSize, resp.ActualSize = &expected, &actual
	}
	return status, resp
}

// Success 成功响应
func Success(c *gin.Context, httpStatus int, body any) {
	c.JSON(httpStatus, body)
}

// Error 根据错误发送失败响应
func Error(c *gin.Context, err error) {
	status, body := NewErrorResponse(err)
	_ = c.Error(err)
	c.JSON(status, body)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, Fail(code, message))
}
