package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"devscope/internal/models"
)

func writeArtifact(t *testing.T, dir string, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("frame"), 0o644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	return path
}

func TestRingBufferBoundAndEviction(t *testing.T) {
	dir := t.TempDir()
	rb := NewRingBuffer(3)

	var paths []string
	for i := 0; i < 5; i++ {
		path := writeArtifact(t, dir, fmt.Sprintf("frame_%d.png", i))
		paths = append(paths, path)
		rb.Append(models.ActivityRecord{
			Task:           fmt.Sprintf("task-%d", i),
			ScreenshotPath: path,
		})
	}

	if rb.Len() != 3 {
		t.Fatalf("expected buffer length 3, got %d", rb.Len())
	}

	// The two oldest artifacts were evicted and deleted.
	for i := 0; i < 2; i++ {
		if _, err := os.Stat(paths[i]); !os.IsNotExist(err) {
			t.Errorf("expected evicted artifact %s to be deleted", paths[i])
		}
	}
	// The surviving three are intact.
	for i := 2; i < 5; i++ {
		if _, err := os.Stat(paths[i]); err != nil {
			t.Errorf("expected retained artifact %s to exist: %v", paths[i], err)
		}
	}

	snapshot := rb.Snapshot()
	if snapshot[0].Task != "task-2" || snapshot[2].Task != "task-4" {
		t.Errorf("unexpected retained records: first=%s last=%s", snapshot[0].Task, snapshot[2].Task)
	}
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	if rb.Capacity() != 1 {
		t.Fatalf("expected capacity floor of 1, got %d", rb.Capacity())
	}
	rb.Append(models.ActivityRecord{Task: "a"})
	rb.Append(models.ActivityRecord{Task: "b"})
	if rb.Len() != 1 || rb.Snapshot()[0].Task != "b" {
		t.Fatalf("expected only the newest record to survive")
	}
}

func TestRingBufferWindowFiltersTimeAndPredicate(t *testing.T) {
	now := time.Now().UTC()
	rb := NewRingBuffer(10)

	rb.Append(models.ActivityRecord{
		Task:         "old allowed",
		Timestamp:    now.Add(-45 * time.Minute),
		PrivacyState: models.PrivacyAllowed,
	})
	rb.Append(models.ActivityRecord{
		Task:         "recent allowed",
		Timestamp:    now.Add(-5 * time.Minute),
		PrivacyState: models.PrivacyAllowed,
	})
	rb.Append(models.ActivityRecord{
		Task:         "recent blocked",
		Timestamp:    now.Add(-3 * time.Minute),
		PrivacyState: models.PrivacyBlocked,
	})

	got := rb.Window(now.Add(-30*time.Minute), func(r models.ActivityRecord) bool {
		return r.PrivacyState == models.PrivacyAllowed
	})

	if len(got) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(got))
	}
	if got[0].Task != "recent allowed" {
		t.Errorf("expected the recent allowed record, got %q", got[0].Task)
	}
}

func TestRingBufferSnapshotIsACopy(t *testing.T) {
	rb := NewRingBuffer(2)
	rb.Append(models.ActivityRecord{Task: "a"})

	snap := rb.Snapshot()
	snap[0].Task = "mutated"

	if rb.Snapshot()[0].Task != "a" {
		t.Fatal("snapshot mutation leaked into the buffer")
	}
}
