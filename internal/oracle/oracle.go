package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"devscope/internal/services"
)

// Store is the slice of the Hive Mind the Oracle reads.
type Store interface {
	Enabled(ctx context.Context) bool
	QueryActivity(ctx context.Context, orgID, scope, projectName string, limit int, since *time.Time) ([]bson.M, error)
	QuerySummaries(ctx context.Context, orgID string, limit int) ([]bson.M, error)
}

// Completer generates the final answer from the assembled context.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// Defaults for query shaping.
const (
	DefaultHoursBack  = 24
	DefaultMaxContext = 40
	summaryLimit      = 5
	previewLines      = 4
)

// AskOptions scope one question. Zero values select org-wide, last 24 hours.
type AskOptions struct {
	Scope       string // "org" or "project"
	ProjectName string
	OrgID       string
	HoursBack   int
}

// Result is one answered question with enough metadata for a UI to show what
// evidence the answer rests on.
type Result struct {
	Answer         string    `json:"answer"`
	ActivityCount  int       `json:"activity_count"`
	SummaryCount   int       `json:"summary_count"`
	Scope          string    `json:"scope"`
	HoursBack      int       `json:"hours_back"`
	GeneratedAt    time.Time `json:"generated_at"`
	ContextPreview string    `json:"context_preview,omitempty"`
}

// Oracle answers natural-language questions about team activity by assembling
// a two-tier context (high-level summaries, low-level raw logs) from the Hive
// Mind and handing it to a language model. Every failure path produces a
// descriptive answer rather than an error; the caller always gets a Result.
type Oracle struct {
	store      Store
	llm        Completer
	model      string
	maxContext int
	log        *slog.Logger
}

// New creates an Oracle. maxContext bounds how many raw records make it into
// the prompt.
func New(store Store, llm Completer, model string, maxContext int, log *slog.Logger) *Oracle {
	if maxContext < 1 {
		maxContext = DefaultMaxContext
	}
	if log == nil {
		log = slog.Default()
	}
	return &Oracle{
		store:      store,
		llm:        llm,
		model:      model,
		maxContext: maxContext,
		log:        log.With("component", "oracle"),
	}
}

// Ask answers one question.
func (o *Oracle) Ask(ctx context.Context, question string, opts AskOptions) Result {
	if mt := services.GetMetrics(); mt != nil {
		mt.OracleAsks.Inc()
	}

	result := Result{
		Scope:       normalizeScope(opts.Scope),
		HoursBack:   opts.HoursBack,
		GeneratedAt: time.Now().UTC(),
	}
	if result.HoursBack <= 0 {
		result.HoursBack = DefaultHoursBack
	}

	if strings.TrimSpace(question) == "" {
		result.Answer = "Please ask a question, for example: \"What did the team work on today?\""
		return result
	}
	if o.store == nil || !o.store.Enabled(ctx) {
		result.Answer = "The Hive Mind is not reachable right now, so I have no team history to draw on. Check the MongoDB connection and try again."
		return result
	}

	since := time.Now().UTC().Add(-time.Duration(result.HoursBack) * time.Hour)

	activity, err := o.store.QueryActivity(ctx, opts.OrgID, result.Scope, opts.ProjectName, o.maxContext, &since)
	if err != nil {
		o.log.Warn("Activity query failed", "error", err)
	}
	summaries, err := o.store.QuerySummaries(ctx, opts.OrgID, summaryLimit)
	if err != nil {
		o.log.Warn("Summary query failed", "error", err)
	}

	activity = RankAndDedup(activity, o.maxContext)
	result.ActivityCount = len(activity)
	result.SummaryCount = len(summaries)

	if len(activity) == 0 && len(summaries) == 0 {
		result.Answer = fmt.Sprintf("I found no recorded activity in the last %d hours for this %s, so there is nothing to report yet.", result.HoursBack, result.Scope)
		return result
	}

	contextBlock := buildContext(summaries, activity)
	result.ContextPreview = preview(activity, previewLines)

	answer, err := o.llm.Complete(ctx, o.model, o.systemPrompt(result.Scope, result.HoursBack), o.userPrompt(question, contextBlock))
	if err != nil {
		o.log.Warn("Oracle completion failed", "error", err)
		result.Answer = fmt.Sprintf("I gathered %d activity records and %d summaries but the language model call failed: %v", result.ActivityCount, result.SummaryCount, err)
		return result
	}

	result.Answer = strings.TrimSpace(answer)
	return result
}

func (o *Oracle) systemPrompt(scope string, hoursBack int) string {
	target := "the whole organization"
	if scope == "project" {
		target = "a single project"
	}
	return fmt.Sprintf(`You are the DevScope Oracle, an analyst over a shared log of developer activity.
You are answering about %s, using observations from the last %d hours.

The context has two tiers:
- SESSION SUMMARIES are trusted, pre-digested standup reports. Prefer them for "what happened" questions.
- RAW ACTIVITY LOGS are fine-grained observations. Use them for specifics: error codes, file names, documentation consulted.

Rules:
1. Answer only from the context. If it does not contain the answer, say so plainly.
2. Attribute work to people when user names are present.
3. Cite concrete details (error codes, function names, doc titles) when they support the answer.
4. Be concise: a short paragraph, or a few bullets for multi-person answers.`, target, hoursBack)
}

func (o *Oracle) userPrompt(question, contextBlock string) string {
	return fmt.Sprintf("CONTEXT:\n%s\n\nQUESTION: %s", contextBlock, question)
}

// RankAndDedup orders documents newest first and collapses repeated
// observations. The identity key is the summary, falling back to the task and
// then the technical context, so a developer stuck on one task for an hour
// contributes one line of context instead of thirty. Documents with none of
// the three fields carry no identity and are never collapsed. The most recent
// duplicate wins. The result is capped at limit.
func RankAndDedup(docs []bson.M, limit int) []bson.M {
	if len(docs) == 0 {
		return nil
	}

	sorted := make([]bson.M, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return docTime(sorted[i]).After(docTime(sorted[j]))
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]bson.M, 0, len(sorted))
	for _, doc := range sorted {
		key := firstNonEmpty(
			docString(doc, "summary"),
			docString(doc, "task"),
			docString(doc, "technical_context"))
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// buildContext renders the two-tier context. Empty tiers are omitted rather
// than rendered as empty headings.
func buildContext(summaries, activity []bson.M) string {
	var b strings.Builder

	if len(summaries) > 0 {
		b.WriteString("--- RECENT SESSION SUMMARIES (High Level) ---\n")
		for _, doc := range summaries {
			fmt.Fprintf(&b, "[%s] %s: %s\n",
				docTime(doc).Format("2006-01-02 15:04"),
				firstNonEmpty(docString(doc, "user_display"), docString(doc, "user_id"), "unknown"),
				docString(doc, "summary_text"))
		}
	}

	if len(activity) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("--- RAW ACTIVITY LOGS (Low Level Details) ---\n")
		for _, doc := range activity {
			b.WriteString(activityLine(doc) + "\n")
		}
	}

	return b.String()
}

func activityLine(doc bson.M) string {
	line := fmt.Sprintf("[%s] %s (%s) %s: %s",
		docTime(doc).Format("15:04"),
		firstNonEmpty(docString(doc, "user_display"), docString(doc, "user_id"), "unknown"),
		docString(doc, "project_name"),
		docString(doc, "activity_type"),
		firstNonEmpty(docString(doc, "summary"), docString(doc, "task")))
	if tc := docString(doc, "technical_context"); tc != "" {
		line += " | " + tc
	}
	if ec := docString(doc, "error_code"); ec != "" {
		line += " | error=" + ec
	}
	return line
}

func normalizeScope(scope string) string {
	if strings.EqualFold(strings.TrimSpace(scope), "project") {
		return "project"
	}
	return "org"
}

// preview shows the first few raw-log lines so a UI can hint at the evidence
// without replaying the whole context.
func preview(activity []bson.M, maxLines int) string {
	if len(activity) > maxLines {
		activity = activity[:maxLines]
	}
	lines := make([]string, 0, len(activity))
	for _, doc := range activity {
		lines = append(lines, activityLine(doc))
	}
	return strings.Join(lines, "\n")
}

func docString(doc bson.M, key string) string {
	if v, ok := doc[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// docTime tolerates both driver-decoded time.Time and raw primitive.DateTime.
func docTime(doc bson.M) time.Time {
	switch v := doc["timestamp"].(type) {
	case time.Time:
		return v
	case primitive.DateTime:
		return v.Time()
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
