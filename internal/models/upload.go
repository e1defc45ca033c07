package models

import (
	"math"
	"sort"
	"time"
)

// UploadStatus 上传会话状态
type UploadStatus string

const (
	UploadStatusInitiated  UploadStatus = "initiated"
	UploadStatusInProgress UploadStatus = "in_progress" // 至少收到一个分片
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusCancelled  UploadStatus = "cancelled"
)

// UploadSession 一次分片上传的会话元数据
type UploadSession struct {
	ID             string       `json:"id"`
	Filename       string       `json:"filename"` // 客户端提供的原始文件名，仅用于展示
	DeclaredSize   int64        `json:"declared_size"`
	ChunkSize      int64        `json:"chunk_size"`
	TotalChunks    int          `json:"total_chunks"`
	ReceivedChunks []int        `json:"received_chunks"` // 升序
	Status         UploadStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// HasChunk 判断某个分片是否已收到
func (s *UploadSession) HasChunk(index int) bool {
	i := sort.SearchInts(s.ReceivedChunks, index)
	return i < len(s.ReceivedChunks) && s.ReceivedChunks[i] == index
}

// MissingChunks 返回尚未收到的分片序号
func (s *UploadSession) MissingChunks() []int {
	missing := make([]int, 0, s.TotalChunks-len(s.ReceivedChunks))
	for i := 0; i < s.TotalChunks; i++ {
		if !s.HasChunk(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

// IsComplete 所有分片是否都已收到
func (s *UploadSession) IsComplete() bool {
	return len(s.ReceivedChunks) == s.TotalChunks
}

// Progress 返回百分比进度，保留两位小数
func (s *UploadSession) Progress() float64 {
	return Progress(len(s.ReceivedChunks), s.TotalChunks)
}

// Progress received/total*100，保留两位小数
func Progress(received, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(received)/float64(total)*100*100) / 100
}

// InitiateUploadRequest 初始化分片上传
type InitiateUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	FileSize    int64  `json:"filesize" binding:"required"`
	ChunkSize   int64  `json:"chunk_size" binding:"required"`
	TotalChunks int    `json:"total_chunks" binding:"required"`
}

// UploadChunkRequest 上传单个分片，分片内容在 multipart 的 chunk 字段中
type UploadChunkRequest struct {
	UploadID    string `form:"upload_id" binding:"required"`
	ChunkNumber *int   `form:"chunk_number" binding:"required"`
}

// UploadIDRequest complete / cancel 共用的请求体
type UploadIDRequest struct {
	UploadID string `json:"upload_id" form:"upload_id" binding:"required"`
}

// CompletedUpload 合并成功后的结果
type CompletedUpload struct {
	UploadID    string `json:"upload_id"`
	FilePath    string `json:"file_path"` // 存储中的对象键
	FileSize    int64  `json:"file_size"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum"` // sha256 hex
}

// UploadProgress 进度查询结果
type UploadProgress struct {
	UploadID        string       `json:"upload_id"`
	Progress        float64      `json:"progress"`
	UploadedChunks  int          `json:"uploaded_chunks"`
	TotalChunks     int          `json:"total_chunks"`
	Status          UploadStatus `json:"status"`
	Filename        string       `json:"filename"`
	ReceivedIndices []int        `json:"received_indices"`
}
