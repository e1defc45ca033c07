package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressRoundsToTwoDecimals(t *testing.T) {
	assert.Equal(t, 33.33, Progress(1, 3))
	assert.Equal(t, 66.67, Progress(2, 3))
	assert.Equal(t, 100.0, Progress(3, 3))
	assert.Equal(t, 0.0, Progress(0, 0))
}

func TestSessionChunkHelpers(t *testing.T) {
	s := &UploadSession{TotalChunks: 4, ReceivedChunks: []int{0, 2}}

	assert.True(t, s.HasChunk(2))
	assert.False(t, s.HasChunk(1))
	assert.Equal(t, []int{1, 3}, s.MissingChunks())
	assert.False(t, s.IsComplete())
	assert.Equal(t, 50.0, s.Progress())

	s.ReceivedChunks = []int{0, 1, 2, 3}
	assert.True(t, s.IsComplete())
	assert.Empty(t, s.MissingChunks())
}
