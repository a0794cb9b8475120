package trigger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"devscope/internal/models"
)

func TestLastCommitHash(t *testing.T) {
	dir := t.TempDir()
	headLog := filepath.Join(dir, "HEAD")

	reflog := strings.Join([]string{
		"0000000000 aaa111 Dev <dev@example.com> 1700000000 +0000\tcommit (initial): init",
		"aaa111 bbb222 Dev <dev@example.com> 1700000100 +0000\tcommit: second",
		"bbb222 ccc333 Dev <dev@example.com> 1700000200 +0000\tcommit: third",
	}, "\n") + "\n"
	if err := os.WriteFile(headLog, []byte(reflog), 0o644); err != nil {
		t.Fatal(err)
	}

	hash, err := lastCommitHash(headLog)
	if err != nil {
		t.Fatalf("lastCommitHash: %v", err)
	}
	if hash != "ccc333" {
		t.Errorf("hash = %q, want ccc333", hash)
	}
}

func TestLastCommitHashMalformed(t *testing.T) {
	dir := t.TempDir()
	headLog := filepath.Join(dir, "HEAD")

	if err := os.WriteFile(headLog, []byte("just-one-token\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := lastCommitHash(headLog); err == nil {
		t.Error("expected error for malformed reflog line")
	}

	if err := os.WriteFile(headLog, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := lastCommitHash(headLog); err == nil {
		t.Error("expected error for empty reflog")
	}

	if _, err := lastCommitHash(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGitTriggerStartRequiresReflog(t *testing.T) {
	gt := NewGitTrigger(t.TempDir(), nil, nil)
	if err := gt.Start(); err == nil {
		t.Fatal("expected error for repository without reflog")
	}
	// Stop on a never-started trigger is a no-op.
	gt.Stop()
}

func TestGitTriggerDetectsNewCommit(t *testing.T) {
	repo := t.TempDir()
	logsDir := filepath.Join(repo, ".git", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	headLog := filepath.Join(logsDir, "HEAD")
	if err := os.WriteFile(headLog, []byte("000 aaa111 Dev 1 +0000\tcommit: one\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	commits := make(chan string, 1)
	gt := NewGitTrigger(repo, func(hash string) { commits <- hash }, nil)
	if err := gt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer gt.Stop()

	entry := "aaa111 bbb222 Dev 2 +0000\tcommit: two\n"
	f, err := os.OpenFile(headLog, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(entry); err != nil {
		t.Fatal(err)
	}
	f.Close()

	select {
	case hash := <-commits:
		if hash != "bbb222" {
			t.Errorf("hash = %q, want bbb222", hash)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for commit callback")
	}

	gt.Stop()
	gt.Stop()
}

type fakeSource struct {
	records []models.ActivityRecord
}

func (f *fakeSource) RecentWindow(sessionID string, window time.Duration) []models.ActivityRecord {
	return f.records
}

type fakeCompleter struct {
	answer string
}

func (f *fakeCompleter) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return f.answer, nil
}

func TestReporterSkipsEmptyWindow(t *testing.T) {
	repo := t.TempDir()
	r := NewContextReporter(&fakeSource{}, nil, "model", nil)

	path, err := r.OnCommit(context.Background(), "session", repo, "abc123")
	if err != nil {
		t.Fatalf("OnCommit: %v", err)
	}
	if path != "" {
		t.Errorf("expected no report, got %q", path)
	}
	if _, err := os.Stat(filepath.Join(repo, ".devscope")); !os.IsNotExist(err) {
		t.Error("report directory should not be created for an empty window")
	}
}

func TestReporterWritesDossier(t *testing.T) {
	repo := t.TempDir()
	source := &fakeSource{records: []models.ActivityRecord{
		{
			Timestamp:        time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
			Task:             "Fixing token refresh",
			ActivityType:     models.ActivityDebugging,
			TechnicalContext: "refresh loop returning 401",
			AppName:          "VS Code",
			ErrorCode:        "401",
			PrivacyState:     models.PrivacyAllowed,
		},
	}}
	r := NewContextReporter(source, &fakeCompleter{answer: "Fixed the refresh loop."}, "model", nil)

	path, err := r.OnCommit(context.Background(), "session", repo, "abc123")
	if err != nil {
		t.Fatalf("OnCommit: %v", err)
	}
	if path == "" {
		t.Fatal("expected a report path")
	}
	if filepath.Dir(path) != filepath.Join(repo, ".devscope") {
		t.Errorf("report written to %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	report := string(data)

	for _, want := range []string{
		"# Commit Context: abc123",
		"## Visual Timeline",
		"[DEBUGGING] Fixing token refresh (VS Code)",
		"## AI PR Draft",
		"Fixed the refresh loop.",
		"## Structured Event Table",
		"| 10:30:00 | DEBUGGING |",
		"## Raw JSON Records",
		"refresh loop returning 401",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestReporterWithoutModel(t *testing.T) {
	repo := t.TempDir()
	source := &fakeSource{records: []models.ActivityRecord{
		{Timestamp: time.Now().UTC(), Task: "work", ActivityType: models.ActivityCoding},
	}}
	r := NewContextReporter(source, nil, "", nil)

	path, err := r.OnCommit(context.Background(), "session", repo, "abc123")
	if err != nil {
		t.Fatalf("OnCommit: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "draft omitted") {
		t.Error("expected placeholder draft when no model is configured")
	}
}
