package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

type fakeStore struct {
	enabled   bool
	activity  []bson.M
	summaries []bson.M
}

func (f *fakeStore) Enabled(ctx context.Context) bool { return f.enabled }

func (f *fakeStore) QueryActivity(ctx context.Context, orgID, scope, projectName string, limit int, since *time.Time) ([]bson.M, error) {
	return f.activity, nil
}

func (f *fakeStore) QuerySummaries(ctx context.Context, orgID string, limit int) ([]bson.M, error) {
	return f.summaries, nil
}

type fakeCompleter struct {
	answer string
	err    error
	called bool
	user   string
}

func (f *fakeCompleter) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	f.called = true
	f.user = userPrompt
	return f.answer, f.err
}

func ts(offset time.Duration) time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC).Add(offset)
}

func TestRankAndDedup(t *testing.T) {
	docs := []bson.M{
		{"timestamp": ts(3 * time.Minute), "summary": "A", "task": "t", "technical_context": "c"},
		{"timestamp": ts(1 * time.Minute), "summary": "B", "task": "t", "technical_context": "c"},
		{"timestamp": ts(2 * time.Minute), "summary": "A", "task": "t", "technical_context": "c"},
	}

	got := RankAndDedup(docs, 10)

	if len(got) != 2 {
		t.Fatalf("expected 2 records after dedup, got %d", len(got))
	}
	if got[0]["summary"] != "A" || !docTime(got[0]).Equal(ts(3*time.Minute)) {
		t.Errorf("first record should be the newest A, got %+v", got[0])
	}
	if got[1]["summary"] != "B" {
		t.Errorf("second record should be B, got %+v", got[1])
	}
}

func TestRankAndDedupFallbackKey(t *testing.T) {
	// Identity is the summary alone when present; differing task or context
	// must not keep a repeated summary alive.
	sameSummary := []bson.M{
		{"timestamp": ts(2 * time.Minute), "summary": "fixing auth bug", "task": "login", "technical_context": "AuthService"},
		{"timestamp": ts(1 * time.Minute), "summary": "fixing auth bug", "task": "signup", "technical_context": "TokenStore"},
	}
	if got := RankAndDedup(sameSummary, 10); len(got) != 1 {
		t.Fatalf("same summary should collapse to 1 record, got %d", len(got))
	}

	// Without a summary the key falls back to the task.
	byTask := []bson.M{
		{"timestamp": ts(2 * time.Minute), "task": "refactor parser"},
		{"timestamp": ts(1 * time.Minute), "task": "refactor parser", "technical_context": "lexer.go"},
	}
	if got := RankAndDedup(byTask, 10); len(got) != 1 {
		t.Fatalf("same task without summary should collapse to 1 record, got %d", len(got))
	}
}

func TestRankAndDedupKeepsKeylessDocs(t *testing.T) {
	docs := []bson.M{
		{"timestamp": ts(3 * time.Minute)},
		{"timestamp": ts(2 * time.Minute)},
		{"timestamp": ts(1 * time.Minute)},
	}
	if got := RankAndDedup(docs, 10); len(got) != 3 {
		t.Fatalf("documents without identity fields must never collapse, got %d", len(got))
	}
}

func TestRankAndDedupCap(t *testing.T) {
	var docs []bson.M
	for i := 0; i < 10; i++ {
		docs = append(docs, bson.M{
			"timestamp": ts(time.Duration(i) * time.Minute),
			"summary":   strings.Repeat("x", i+1),
		})
	}
	if got := RankAndDedup(docs, 3); len(got) != 3 {
		t.Fatalf("expected cap at 3, got %d", len(got))
	}
	if RankAndDedup(nil, 3) != nil {
		t.Error("nil input should stay nil")
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	llm := &fakeCompleter{}
	o := New(&fakeStore{enabled: true}, llm, "model", 40, nil)

	result := o.Ask(context.Background(), "   ", AskOptions{})

	if !strings.Contains(result.Answer, "ask a question") {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if llm.called {
		t.Error("model must not be called for an empty question")
	}
}

func TestAskStoreUnavailable(t *testing.T) {
	llm := &fakeCompleter{}
	o := New(&fakeStore{enabled: false}, llm, "model", 40, nil)

	result := o.Ask(context.Background(), "what happened?", AskOptions{})

	if !strings.Contains(result.Answer, "not reachable") {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if llm.called {
		t.Error("model must not be called without a store")
	}
}

func TestAskNoHistory(t *testing.T) {
	llm := &fakeCompleter{}
	o := New(&fakeStore{enabled: true}, llm, "model", 40, nil)

	result := o.Ask(context.Background(), "what happened?", AskOptions{HoursBack: 6})

	if !strings.Contains(result.Answer, "no recorded activity") {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if result.HoursBack != 6 {
		t.Errorf("HoursBack = %d", result.HoursBack)
	}
	if llm.called {
		t.Error("model must not be called with an empty context")
	}
}

func TestAskBuildsTwoTierContext(t *testing.T) {
	store := &fakeStore{
		enabled: true,
		activity: []bson.M{
			{"timestamp": ts(0), "summary": "Fixing login | AuthService", "task": "Fixing login",
				"technical_context": "AuthService", "activity_type": "DEBUGGING",
				"user_display": "Dev One", "project_name": "alpha", "error_code": "401"},
		},
		summaries: []bson.M{
			{"timestamp": ts(-time.Hour), "user_display": "Dev One", "summary_text": "Worked on auth."},
		},
	}
	llm := &fakeCompleter{answer: "Dev One debugged the login flow."}
	o := New(store, llm, "model", 40, nil)

	result := o.Ask(context.Background(), "who worked on auth?", AskOptions{Scope: "project", ProjectName: "alpha"})

	if !llm.called {
		t.Fatal("model should have been called")
	}
	if !strings.Contains(llm.user, "--- RECENT SESSION SUMMARIES (High Level) ---") {
		t.Error("summaries block missing from prompt")
	}
	if !strings.Contains(llm.user, "--- RAW ACTIVITY LOGS (Low Level Details) ---") {
		t.Error("activity block missing from prompt")
	}
	if !strings.Contains(llm.user, "error=401") {
		t.Error("error code missing from activity line")
	}
	if result.Answer != "Dev One debugged the login flow." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.ActivityCount != 1 || result.SummaryCount != 1 {
		t.Errorf("counts = %d/%d", result.ActivityCount, result.SummaryCount)
	}
	if result.Scope != "project" {
		t.Errorf("Scope = %q", result.Scope)
	}
	if lines := strings.Count(result.ContextPreview, "\n"); lines > 3 {
		t.Errorf("preview has %d newlines, want at most 3", lines)
	}
	if strings.Contains(result.ContextPreview, "SESSION SUMMARIES") {
		t.Errorf("preview should hold raw-log lines only, got %q", result.ContextPreview)
	}
	if !strings.Contains(result.ContextPreview, "Fixing login") {
		t.Errorf("preview missing the raw activity line: %q", result.ContextPreview)
	}
}

func TestPreviewCapsRawLogLines(t *testing.T) {
	var activity []bson.M
	for i := 0; i < 6; i++ {
		activity = append(activity, bson.M{
			"timestamp": ts(time.Duration(i) * time.Minute),
			"summary":   strings.Repeat("x", i+1),
		})
	}
	got := preview(activity, previewLines)
	if lines := strings.Count(got, "\n") + 1; lines != previewLines {
		t.Errorf("preview has %d lines, want %d", lines, previewLines)
	}
}

func TestAskModelFailureDegrades(t *testing.T) {
	store := &fakeStore{
		enabled:  true,
		activity: []bson.M{{"timestamp": ts(0), "summary": "s", "task": "t"}},
	}
	llm := &fakeCompleter{err: errors.New("boom")}
	o := New(store, llm, "model", 40, nil)

	result := o.Ask(context.Background(), "what happened?", AskOptions{})

	if !strings.Contains(result.Answer, "language model call failed") {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
}

func TestBuildContextOmitsEmptyTiers(t *testing.T) {
	onlyActivity := buildContext(nil, []bson.M{{"timestamp": ts(0), "summary": "s"}})
	if strings.Contains(onlyActivity, "SESSION SUMMARIES") {
		t.Error("empty summaries tier should be omitted")
	}
	onlySummaries := buildContext([]bson.M{{"timestamp": ts(0), "summary_text": "s"}}, nil)
	if strings.Contains(onlySummaries, "RAW ACTIVITY LOGS") {
		t.Error("empty activity tier should be omitted")
	}
}
