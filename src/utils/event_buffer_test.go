package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------

func record(id int64) models.MEventRecord {
	return models.MEventRecord{SubmissionID: id}
}

// -----------------------------------------------------------------------------

func TestEventBuffer_AppendAndGetAll(t *testing.T) {
	eb := NewEventBuffer(4)

	for i := int64(1); i <= 3; i++ {
		eb.Append(record(i))
	}

	all := eb.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].SubmissionID)
	assert.Equal(t, int64(3), all[2].SubmissionID)
	assert.Equal(t, 3, eb.Size())
	assert.False(t, eb.IsFull())
}

// -----------------------------------------------------------------------------

func TestEventBuffer_WrapAroundOverwritesOldest(t *testing.T) {
	eb := NewEventBuffer(3)

	for i := int64(1); i <= 5; i++ {
		eb.Append(record(i))
	}

	assert.True(t, eb.IsFull())
	assert.Equal(t, 3, eb.Size())

	all := eb.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].SubmissionID)
	assert.Equal(t, int64(5), all[2].SubmissionID)
}

// -----------------------------------------------------------------------------

func TestEventBuffer_GetLatestNewestFirst(t *testing.T) {
	eb := NewEventBuffer(8)

	for i := int64(1); i <= 5; i++ {
		eb.Append(record(i))
	}

	latest := eb.GetLatest(2)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(5), latest[0].SubmissionID)
	assert.Equal(t, int64(4), latest[1].SubmissionID)

	// Asking for more than stored returns everything
	assert.Len(t, eb.GetLatest(100), 5)
	assert.Empty(t, eb.GetLatest(0))
}

// -----------------------------------------------------------------------------

func TestEventBuffer_Clear(t *testing.T) {
	eb := NewEventBuffer(3)
	eb.Append(record(1))

	eb.Clear()
	assert.Equal(t, 0, eb.Size())
	assert.Empty(t, eb.GetAll())
	assert.Equal(t, 3, eb.Capacity())
}
