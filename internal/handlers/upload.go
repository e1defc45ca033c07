package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/xerr"
	"github.com/3Eeeecho/go-chunkupload/internal/services/upload"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UploadHandler struct {
	uploadService upload.UploadService
}

func NewUploadHandler(uploadService upload.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// InitiateResponse 初始化上传的响应
type InitiateResponse struct {
	xerr.Response
	UploadID string `json:"upload_id"`
}

// ChunkResponse 分片上传的响应
type ChunkResponse struct {
	xerr.Response
	upload.ChunkResult
}

// CompleteResponse 合并完成的响应
type CompleteResponse struct {
	xerr.Response
	models.CompletedUpload
}

// ProgressResponse 上传进度的响应
type ProgressResponse struct {
	xerr.Response
	models.UploadProgress
}

// bindError 请求体或表单解析失败统一按参数校验失败处理
func bindError(c *gin.Context, field string, err error) {
	xerr.Error(c, xerr.NewValidationError(field, err.Error()))
}

// Initiate 创建上传会话
// @Summary 初始化分片上传
// @Description 声明文件名、文件大小、分片大小和分片数量，返回上传会话 ID
// @Tags 分片上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.InitiateUploadRequest true "上传参数"
// @Success 200 {object} InitiateResponse "会话创建成功"
// @Failure 422 {object} xerr.ErrorResponse "参数校验失败"
// @Failure 500 {object} xerr.ErrorResponse "内部服务器错误"
// @Router /api/v1/uploads [post]
func (h *UploadHandler) Initiate(c *gin.Context) {
	var req models.InitiateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "request", err)
		return
	}

	uploadID, err := h.uploadService.Initiate(c.Request.Context(), &req)
	if err != nil {
		xerr.Error(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, InitiateResponse{Response: xerr.OK("Upload initiated"), UploadID: uploadID})
}

// UploadChunk 接收单个分片
// @Summary 上传分片
// @Description 上传指定序号的分片，重复上传同一序号会覆盖之前的内容
// @Tags 分片上传
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param upload_id formData string true "上传会话 ID"
// @Param chunk_number formData int true "分片序号，从 0 开始"
// @Param chunk formData file true "分片内容"
// @Success 200 {object} ChunkResponse "分片已保存"
// @Failure 400 {object} xerr.ErrorResponse "分片序号超出范围"
// @Failure 404 {object} xerr.ErrorResponse "上传会话不存在"
// @Failure 422 {object} xerr.ErrorResponse "参数校验失败"
// @Router /api/v1/uploads/chunks [post]
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	var req models.UploadChunkRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, "form", err)
		return
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		bindError(c, "chunk", err)
		return
	}
	chunk, err := fileHeader.Open()
	if err != nil {
		logger.Error("UploadChunk: failed to open multipart chunk", zap.Error(err))
		xerr.Error(c, err)
		return
	}
	defer chunk.Close()

	result, err := h.uploadService.UploadChunk(c.Request.Context(), req.UploadID, *req.ChunkNumber, chunk, fileHeader.Size)
	if err != nil {
		xerr.Error(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, ChunkResponse{Response: xerr.OK(""), ChunkResult: *result})
}

// Complete 合并分片并发布最终文件
// @Summary 完成上传
// @Description 按序合并全部分片，校验大小后保存到存储中并删除会话
// @Tags 分片上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.UploadIDRequest true "上传会话 ID"
// @Success 200 {object} CompleteResponse "文件已保存"
// @Failure 400 {object} xerr.ErrorResponse "分片未上传完或大小不符"
// @Failure 404 {object} xerr.ErrorResponse "上传会话不存在"
// @Failure 409 {object} xerr.ErrorResponse "正在合并"
// @Failure 500 {object} xerr.ErrorResponse "分片丢失或内部错误"
// @Router /api/v1/uploads/complete [post]
func (h *UploadHandler) Complete(c *gin.Context) {
	var req models.UploadIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "upload_id", err)
		return
	}

	completed, err := h.uploadService.Complete(c.Request.Context(), req.UploadID)
	if err != nil {
		xerr.Error(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, CompleteResponse{Response: xerr.OK("Upload completed"), CompletedUpload: *completed})
}

// Progress 查询上传进度
// @Summary 查询上传进度
// @Tags 分片上传
// @Produce json
// @Security BearerAuth
// @Param upload_id query string true "上传会话 ID"
// @Success 200 {object} ProgressResponse "当前进度"
// @Failure 404 {object} xerr.ErrorResponse "上传会话不存在"
// @Failure 422 {object} xerr.ErrorResponse "缺少 upload_id"
// @Router /api/v1/uploads/progress [get]
func (h *UploadHandler) Progress(c *gin.Context) {
	var req models.UploadIDRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, "upload_id", err)
		return
	}

	progress, err := h.uploadService.GetProgress(c.Request.Context(), req.UploadID)
	if err != nil {
		xerr.Error(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, ProgressResponse{Response: xerr.OK(""), UploadProgress: *progress})
}

// Cancel 取消上传，未知会话同样返回成功
// @Summary 取消上传
// @Tags 分片上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.UploadIDRequest true "上传会话 ID"
// @Success 200 {object} xerr.Response "已取消"
// @Failure 422 {object} xerr.ErrorResponse "缺少 upload_id"
// @Router /api/v1/uploads/cancel [post]
func (h *UploadHandler) Cancel(c *gin.Context) {
	var req models.UploadIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "upload_id", err)
		return
	}

	if err := h.uploadService.Cancel(c.Request.Context(), req.UploadID); err != nil {
		xerr.Error(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, xerr.OK("Upload cancelled"))
}
