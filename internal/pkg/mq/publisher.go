package mq

import (
	"context"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
)

// MessagePublisher 便于在测试中替换 RabbitMQClient
type MessagePublisher interface {
	PublishJSON(queueName string, v any) error
}

// UploadEventPublisher 把上传完成事件投递到队列
type UploadEventPublisher struct {
	client MessagePublisher
	queue  string
}

func NewUploadEventPublisher(client MessagePublisher, queue string) *UploadEventPublisher {
	return &UploadEventPublisher{client: client, queue: queue}
}

func (p *UploadEventPublisher) PublishUploadCompleted(ctx context.Context, event *models.UploadCompletedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.client.PublishJSON(p.queue, event)
}
