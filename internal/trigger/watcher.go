package trigger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CommitFunc is invoked once per newly observed commit hash.
type CommitFunc func(commitHash string)

// GitTrigger watches a repository's reflog and fires a callback when a new
// commit lands. It watches the .git/logs directory rather than HEAD itself
// because git replaces files atomically and per-file watches die with the
// inode.
type GitTrigger struct {
	repoPath string
	onCommit CommitFunc
	log      *slog.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	lastHash string
	running  bool
	done     chan struct{}
}

// NewGitTrigger creates a trigger for the repository at repoPath. The
// callback runs on the watcher goroutine; keep it short or dispatch.
func NewGitTrigger(repoPath string, onCommit CommitFunc, log *slog.Logger) *GitTrigger {
	if log == nil {
		log = slog.Default()
	}
	return &GitTrigger{
		repoPath: repoPath,
		onCommit: onCommit,
		log:      log.With("component", "git_trigger", "repo", repoPath),
	}
}

// Start begins watching. It fails when the repository has no reflog yet,
// which also catches paths that are not git repositories at all.
func (t *GitTrigger) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	logsDir := filepath.Join(t.repoPath, ".git", "logs")
	headLog := filepath.Join(logsDir, "HEAD")
	if _, err := os.Stat(headLog); err != nil {
		return fmt.Errorf("repository has no HEAD reflog at %s: %w", headLog, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(logsDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", logsDir, err)
	}

	// Seed with the current tip so a pre-existing commit does not fire.
	if hash, err := lastCommitHash(headLog); err == nil {
		t.lastHash = hash
	}

	t.watcher = watcher
	t.running = true
	t.done = make(chan struct{})
	go t.loop(watcher, headLog)

	t.log.Info("Git trigger started")
	return nil
}

// Stop shuts the watcher down. Safe to call repeatedly; bounded wait.
func (t *GitTrigger) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	watcher := t.watcher
	done := t.done
	t.mu.Unlock()

	watcher.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.log.Warn("Git trigger loop did not stop in time")
	}
	t.log.Info("Git trigger stopped")
}

func (t *GitTrigger) loop(watcher *fsnotify.Watcher, headLog string) {
	defer close(t.done)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != "HEAD" {
				continue
			}
			t.handleHeadChange(headLog)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			t.log.Warn("Watcher error", "error", err)
		}
	}
}

func (t *GitTrigger) handleHeadChange(headLog string) {
	hash, err := lastCommitHash(headLog)
	if err != nil {
		t.log.Debug("Could not read HEAD reflog", "error", err)
		return
	}

	t.mu.Lock()
	isNew := hash != "" && hash != t.lastHash
	if isNew {
		t.lastHash = hash
	}
	t.mu.Unlock()

	if !isNew {
		return
	}

	t.log.Info("Commit detected", "commit", hash)
	if t.onCommit != nil {
		t.onCommit(hash)
	}
}

// lastCommitHash extracts the new-tip hash from the final reflog entry. Each
// reflog line is "<old> <new> <committer> ..."; the second token is the tip.
func lastCommitHash(headLog string) (string, error) {
	data, err := os.ReadFile(headLog)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 {
		return "", fmt.Errorf("empty reflog")
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	fields := strings.Fields(last)
	if len(fields) < 2 {
		return "", fmt.Errorf("malformed reflog line: %q", last)
	}
	return fields[1], nil
}
