package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devscope/internal/models"
)

// ActivitySource provides a privacy-filtered, time-bounded view of buffered
// activity. The session monitor satisfies this.
type ActivitySource interface {
	RecentWindow(sessionID string, window time.Duration) []models.ActivityRecord
}

// Completer generates the PR draft prose. Optional; the report degrades to a
// placeholder when unset or failing.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// ContextWindow is how far back a commit-context report looks.
const ContextWindow = 30 * time.Minute

// ContextReporter turns the recent activity window into a markdown dossier
// written under the repository's .devscope directory when a commit lands.
type ContextReporter struct {
	source ActivitySource
	llm    Completer
	model  string
	log    *slog.Logger
}

// NewContextReporter wires a reporter. llm may be nil.
func NewContextReporter(source ActivitySource, llm Completer, model string, log *slog.Logger) *ContextReporter {
	if log == nil {
		log = slog.Default()
	}
	return &ContextReporter{
		source: source,
		llm:    llm,
		model:  model,
		log:    log.With("component", "context_reporter"),
	}
}

// OnCommit writes the commit-context report. When the recent window holds no
// privacy-cleared records, nothing is written: an empty dossier next to a
// commit is noise.
func (r *ContextReporter) OnCommit(ctx context.Context, sessionID, repoPath, commitHash string) (string, error) {
	records := r.source.RecentWindow(sessionID, ContextWindow)
	if len(records) == 0 {
		r.log.Info("No shareable activity in window; skipping commit report", "commit", commitHash)
		return "", nil
	}

	report := r.render(ctx, commitHash, records)

	outDir := filepath.Join(repoPath, ".devscope")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("commit_context_%s.md", time.Now().UTC().Format("20060102_150405")))
	if err := os.WriteFile(outPath, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("failed to write commit report: %w", err)
	}

	r.log.Info("Commit context report written", "commit", commitHash, "path", outPath, "records", len(records))
	return outPath, nil
}

func (r *ContextReporter) render(ctx context.Context, commitHash string, records []models.ActivityRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Commit Context: %s\n\n", commitHash)
	fmt.Fprintf(&b, "Generated at %s from the last %d minutes of observed activity (%d records).\n\n",
		time.Now().UTC().Format(time.RFC3339), int(ContextWindow.Minutes()), len(records))

	b.WriteString("## Visual Timeline\n\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "- %s — [%s] %s (%s)\n",
			rec.Timestamp.Format("15:04:05"), rec.ActivityType, rec.Task, rec.AppName)
	}
	b.WriteString("\n")

	b.WriteString("## AI PR Draft\n\n")
	b.WriteString(r.prDraft(ctx, commitHash, records))
	b.WriteString("\n\n")

	b.WriteString("## Structured Event Table\n\n")
	b.WriteString("| Time (UTC) | Type | Task | Technical Context | Error |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			rec.Timestamp.Format("15:04:05"),
			escapeCell(rec.ActivityType),
			escapeCell(rec.Task),
			escapeCell(rec.TechnicalContext),
			escapeCell(rec.ErrorCode))
	}
	b.WriteString("\n")

	b.WriteString("## Raw JSON Records\n\n```json\n")
	if raw, err := json.MarshalIndent(records, "", "  "); err == nil {
		b.Write(raw)
	}
	b.WriteString("\n```\n")

	return b.String()
}

// prDraft asks the model to narrate the window as a pull-request description.
func (r *ContextReporter) prDraft(ctx context.Context, commitHash string, records []models.ActivityRecord) string {
	if r.llm == nil {
		return "_No language model configured; draft omitted._"
	}

	var timeline strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&timeline, "%s [%s] %s :: %s\n",
			rec.Timestamp.Format("15:04"), rec.ActivityType, rec.Task, rec.TechnicalContext)
	}

	system := "You are a senior engineer writing a pull request description from an activity log. " +
		"Summarize what was worked on, notable errors hit, and references consulted. " +
		"Be concrete and under 200 words. Markdown, no headings."
	user := fmt.Sprintf("Commit %s. Activity timeline:\n%s", commitHash, timeline.String())

	draft, err := r.llm.Complete(ctx, r.model, system, user)
	if err != nil {
		r.log.Warn("PR draft generation failed", "error", err)
		return "_Draft generation failed; see timeline above._"
	}
	return strings.TrimSpace(draft)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
