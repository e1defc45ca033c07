package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/mq"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/search"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const indexTimeout = 10 * time.Second

// FileIndexer 由 search.FileIndexer 实现
type FileIndexer interface {
	IndexFile(ctx context.Context, doc search.FileDocument) error
}

// IndexWorker 消费上传完成事件并写入搜索索引
type IndexWorker struct {
	mqClient *mq.RabbitMQClient
	indexer  FileIndexer
	queue    string
}

func NewIndexWorker(mqClient *mq.RabbitMQClient, indexer FileIndexer, queue string) *IndexWorker {
	return &IndexWorker{mqClient: mqClient, indexer: indexer, queue: queue}
}

func (w *IndexWorker) Start(ctx context.Context) error {
	if _, err := w.mqClient.DeclareQueue(w.queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", w.queue, err)
	}
	if err := w.mqClient.Consume(ctx, w.queue, w.HandleDelivery); err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", w.queue, err)
	}
	logger.Info("Index worker started", zap.String("queue", w.queue))
	return nil
}

// ackAction 消息处理结果
type ackAction int

const (
	actionAck ackAction = iota
	actionDrop
	actionRequeue
)

func (w *IndexWorker) HandleDelivery(msg amqp.Delivery) {
	switch w.process(msg.Body, msg.Redelivered) {
	case actionAck:
		_ = msg.Ack(false)
	case actionDrop:
		_ = msg.Nack(false, false)
	case actionRequeue:
		_ = msg.Nack(false, true)
	}
}

func (w *IndexWorker) process(body []byte, redelivered bool) ackAction {
	var event models.UploadCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Error("Failed to unmarshal upload completed event", zap.Error(err))
		return actionDrop // 解析失败,直接抛弃
	}
	if event.FileUUID == "" {
		logger.Warn("Upload completed event without file uuid", zap.String("uploadID", event.UploadID))
		return actionDrop
	}

	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	if err := w.indexer.IndexFile(ctx, search.NewFileDocument(&event)); err != nil {
		if redelivered {
			// 已经重试过一次，避免坏消息在队列里无限循环
			logger.Error("Failed to index file after retry, dropping event",
				zap.String("uploadID", event.UploadID), zap.Error(err))
			return actionDrop
		}
		logger.Warn("Failed to index file, requeueing", zap.String("uploadID", event.UploadID), zap.Error(err))
		return actionRequeue
	}

	logger.Info("Indexed uploaded file", zap.String("uploadID", event.UploadID), zap.String("fileUUID", event.FileUUID))
	return actionAck
}
