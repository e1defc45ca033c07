package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/3Eeeecho/go-chunkupload/internal/models"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	docs []search.FileDocument
	err  error
}

func (f *fakeIndexer) IndexFile(ctx context.Context, doc search.FileDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

func eventBody(t *testing.T, e models.UploadCompletedEvent) []byte {
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestIndexWorkerProcess(t *testing.T) {
	idx := &fakeIndexer{}
	w := NewIndexWorker(nil, idx, "q")

	body := eventBody(t, models.UploadCompletedEvent{UploadID: "u1", FileUUID: "f1", ObjectKey: "files/f1.png", Filename: "a.png"})
	assert.Equal(t, actionAck, w.process(body, false))
	require.Len(t, idx.docs, 1)
	assert.Equal(t, "f1", idx.docs[0].FileUUID)
	assert.Equal(t, "png", idx.docs[0].Extension)
}

func TestIndexWorkerDropsBadMessages(t *testing.T) {
	w := NewIndexWorker(nil, &fakeIndexer{}, "q")
	assert.Equal(t, actionDrop, w.process([]byte("{not json"), false))
	assert.Equal(t, actionDrop, w.process(eventBody(t, models.UploadCompletedEvent{UploadID: "u1"}), false))
}

func TestIndexWorkerRequeuesOnce(t *testing.T) {
	w := NewIndexWorker(nil, &fakeIndexer{err: errors.New("es down")}, "q")
	body := eventBody(t, models.UploadCompletedEvent{UploadID: "u1", FileUUID: "f1"})

	assert.Equal(t, actionRequeue, w.process(body, false))
	assert.Equal(t, actionDrop, w.process(body, true))
}
