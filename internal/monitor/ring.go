package monitor

import (
	"log"
	"os"
	"time"

	"devscope/internal/models"
)

// RingBuffer is a fixed-capacity FIFO of activity records. When full, Append
// evicts the oldest record first and deletes its on-disk artifact; every
// evicted artifact is deleted exactly once because each path is owned by
// exactly one slot.
//
// The buffer is not internally synchronized. All mutation happens under the
// monitor's registry lock, matching the single-mutex concurrency model.
type RingBuffer struct {
	entries  []models.ActivityRecord
	capacity int
}

// NewRingBuffer creates a buffer with the given capacity (minimum 1).
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		entries:  make([]models.ActivityRecord, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a record, evicting the oldest first when at capacity.
func (rb *RingBuffer) Append(record models.ActivityRecord) {
	if len(rb.entries) == rb.capacity {
		oldest := rb.entries[0]
		rb.entries = rb.entries[1:]
		if oldest.ScreenshotPath != "" {
			deleteArtifact(oldest.ScreenshotPath)
		}
	}
	rb.entries = append(rb.entries, record)
}

// Len returns the current number of buffered records.
func (rb *RingBuffer) Len() int {
	return len(rb.entries)
}

// Capacity returns the fixed capacity.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// Snapshot returns a copy of the buffer in insertion order.
func (rb *RingBuffer) Snapshot() []models.ActivityRecord {
	out := make([]models.ActivityRecord, len(rb.entries))
	copy(out, rb.entries)
	return out
}

// Window returns the records with timestamp >= since that satisfy predicate,
// in insertion order. This is the filter commit-context consumers use to get
// a privacy-respecting, time-bounded view.
func (rb *RingBuffer) Window(since time.Time, predicate func(models.ActivityRecord) bool) []models.ActivityRecord {
	var out []models.ActivityRecord
	for _, entry := range rb.entries {
		if entry.Timestamp.Before(since) {
			continue
		}
		if predicate != nil && !predicate(entry) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// deleteArtifact removes a raw capture file. A file that is already gone is
// not an error; anything else is logged and otherwise ignored.
func deleteArtifact(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[MONITOR] Failed to delete artifact %s: %v", path, err)
	}
}
