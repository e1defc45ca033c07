package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	queue string
	body  []byte
}

func (r *recordingPublisher) PublishJSON(queueName string, v any) error {
	r.queue = queueName
	b, err := json.Marshal(v)
	r.body = b
	return err
}

func TestUploadEventPublisher(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewUploadEventPublisher(rec, "upload_completed_queue")

	event := &models.UploadCompletedEvent{
		UploadID:    "u1",
		FileUUID:    "f1",
		ObjectKey:   "files/2024/05/01/f1.jpg",
		Filename:    "photo.jpg",
		Size:        42,
		CompletedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishUploadCompleted(context.Background(), event))
	assert.Equal(t, "upload_completed_queue", rec.queue)

	var got models.UploadCompletedEvent
	require.NoError(t, json.Unmarshal(rec.body, &got))
	assert.Equal(t, *event, got)
}

func TestUploadEventPublisherCancelledContext(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewUploadEventPublisher(rec, "q")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.PublishUploadCompleted(ctx, &models.UploadCompletedEvent{}), context.Canceled)
	assert.Empty(t, rec.queue)
}
