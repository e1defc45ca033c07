package models

import (
	"time"
)

// UploadedFile 对应 uploaded_files 表，记录合并完成的文件
type UploadedFile struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID             string    `gorm:"type:varchar(36);unique;not null" json:"uuid"`
	UploadID         string    `gorm:"type:varchar(36);unique;not null" json:"upload_id"`
	OriginalFilename string    `gorm:"type:varchar(255);not null" json:"filename"`
	StorageType      string    `gorm:"type:varchar(16);not null" json:"storage_type"`
	Bucket           *string   `gorm:"type:varchar(64);default:null" json:"bucket"`
	ObjectKey        string    `gorm:"type:varchar(255);not null" json:"object_key"`
	Size             int64     `gorm:"type:bigint;not null" json:"size"`
	MimeType         string    `gorm:"type:varchar(128);not null" json:"mime_type"`
	SHA256           string    `gorm:"type:char(64);not null;index" json:"sha256"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定 GORM 使用的表名
func (UploadedFile) TableName() string {
	return "uploaded_files"
}

// UploadCompletedEvent 发布到 RabbitMQ 的上传完成消息体
type UploadCompletedEvent struct {
	UploadID    string    `json:"upload_id"`
	FileUUID    string    `json:"file_uuid"`
	ObjectKey   string    `json:"object_key"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Checksum    string    `json:"checksum"`
	CompletedAt time.Time `json:"completed_at"`
}
