package utils

import (
	"sync"

	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// EventBuffer is a fixed-size circular buffer over recent event records.
// True ring buffer - no resizing while in use; oldest entries are overwritten.
// -----------------------------------------------------------------------------

type EventBuffer struct {
	mu       sync.Mutex
	data     []models.MEventRecord
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewEventBuffer creates a new buffer with fixed capacity
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 256 // Default reasonable size
	}

	return &EventBuffer{
		data:     make([]models.MEventRecord, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds one record, overwriting the oldest when full
func (eb *EventBuffer) Append(record models.MEventRecord) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.data[eb.index] = record
	eb.index = (eb.index + 1) % eb.capacity

	// Update size (never exceeds capacity)
	if eb.size < eb.capacity {
		eb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n newest records, newest first
func (eb *EventBuffer) GetLatest(n int) []models.MEventRecord {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.size == 0 || n <= 0 {
		return []models.MEventRecord{}
	}

	count := n
	if n > eb.size {
		count = eb.size
	}

	result := make([]models.MEventRecord, count)

	// Latest record sits at index-1, walk backwards from there
	for i := 0; i < count; i++ {
		idx := (eb.index - 1 - i + eb.capacity) % eb.capacity
		result[i] = eb.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all records in insertion order (oldest to newest)
func (eb *EventBuffer) GetAll() []models.MEventRecord {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.size == 0 {
		return []models.MEventRecord{}
	}

	result := make([]models.MEventRecord, eb.size)

	var startIdx int
	if eb.size == eb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		startIdx = eb.index
	} else {
		startIdx = 0
	}

	for i := 0; i < eb.size; i++ {
		idx := (startIdx + i) % eb.capacity
		result[i] = eb.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (eb *EventBuffer) Size() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (eb *EventBuffer) Capacity() int {
	return eb.capacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (eb *EventBuffer) IsFull() bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.size == eb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (eb *EventBuffer) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.index = 0
	eb.size = 0
}
