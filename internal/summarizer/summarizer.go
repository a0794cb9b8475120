package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"

	"devscope/internal/models"
)

// ActivitySource is the monitor surface the summarizer reads: the active
// session's recent, privacy-cleared records plus the current identity.
type ActivitySource interface {
	RecentWindow(sessionID string, window time.Duration) []models.ActivityRecord
	Identity() models.Identity
}

// Sink receives finished standup documents.
type Sink interface {
	Enabled(ctx context.Context) bool
	SaveSummary(ctx context.Context, document map[string]interface{}) bool
}

// Completer condenses a timeline into standup prose.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// MinInterval is the floor for periodic summarization. Anything tighter
// produces summaries of near-empty windows.
const MinInterval = time.Minute

// Options configure the summarizer. CronExpr, when set, takes precedence over
// Interval and must be a standard five-field cron expression.
type Options struct {
	Source   ActivitySource
	Sink     Sink
	LLM      Completer
	Model    string
	Interval time.Duration
	CronExpr string
	Log      *slog.Logger
}

// Summarizer periodically condenses the active session's recent activity into
// a standup-style summary and stores it in the Hive Mind summaries tier.
type Summarizer struct {
	source   ActivitySource
	sink     Sink
	llm      Completer
	model    string
	interval time.Duration
	cronExpr string
	log      *slog.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// New validates the schedule and builds a summarizer. The scheduler is not
// started.
func New(opts Options) (*Summarizer, error) {
	if opts.Interval < MinInterval {
		opts.Interval = MinInterval
	}
	if opts.CronExpr != "" {
		if _, err := cron.ParseStandard(opts.CronExpr); err != nil {
			return nil, fmt.Errorf("invalid summary cron expression %q: %w", opts.CronExpr, err)
		}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Summarizer{
		source:   opts.Source,
		sink:     opts.Sink,
		llm:      opts.LLM,
		model:    opts.Model,
		interval: opts.Interval,
		cronExpr: opts.CronExpr,
		log:      opts.Log.With("component", "summarizer"),
	}, nil
}

// Start schedules the periodic job. Idempotent.
func (s *Summarizer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	var definition gocron.JobDefinition
	if s.cronExpr != "" {
		definition = gocron.CronJob(s.cronExpr, false)
	} else {
		definition = gocron.DurationJob(s.interval)
	}

	if _, err := scheduler.NewJob(
		definition,
		gocron.NewTask(s.RunOnce),
		gocron.WithName("standup-summary"),
	); err != nil {
		return fmt.Errorf("failed to schedule summary job: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.log.Info("Summarizer started", "interval", s.interval, "cron", s.cronExpr)
	return nil
}

// Stop shuts the scheduler down and waits for an in-flight run. Idempotent.
func (s *Summarizer) Stop() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if scheduler == nil {
		return
	}
	if err := scheduler.Shutdown(); err != nil {
		s.log.Warn("Scheduler shutdown reported error", "error", err)
	}
	s.log.Info("Summarizer stopped")
}

// RunOnce produces and stores one summary. Exported so an operator endpoint
// can trigger a standup on demand. Every skip condition is silent-by-design:
// no identity, no records, or no sink simply means no summary this window.
func (s *Summarizer) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	identity := s.source.Identity()
	if identity.UserID == "" || identity.OrgID == "" {
		s.log.Debug("Skipping summary: identity incomplete")
		return
	}

	records := s.source.RecentWindow("", s.interval)
	if len(records) == 0 {
		s.log.Debug("Skipping summary: no shareable activity in window")
		return
	}
	if s.sink == nil || !s.sink.Enabled(ctx) {
		s.log.Debug("Skipping summary: sink unavailable")
		return
	}

	summaryText, err := s.summarize(ctx, records)
	if err != nil {
		s.log.Warn("Summary generation failed", "error", err)
		return
	}

	display := identity.DisplayName
	if display == "" {
		display = identity.UserID
	}
	document := map[string]interface{}{
		"org_id":             identity.OrgID,
		"user_id":            identity.UserID,
		"user_display":       display,
		"session_id":         records[len(records)-1].SessionID,
		"timestamp":          time.Now().UTC(),
		"summary_text":       summaryText,
		"time_range_minutes": int(s.interval.Minutes()),
		"source":             "devscope-standup",
	}
	if !s.sink.SaveSummary(ctx, document) {
		s.log.Warn("Failed to store session summary")
		return
	}
	s.log.Info("Session summary stored", "records", len(records))
}

func (s *Summarizer) summarize(ctx context.Context, records []models.ActivityRecord) (string, error) {
	var timeline strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&timeline, "%s [%s] %s :: %s\n",
			rec.Timestamp.Format("15:04"), rec.ActivityType, rec.Task, rec.TechnicalContext)
	}

	system := "You write terse standup updates from an activity timeline. " +
		"Cover what was worked on, blockers or errors hit, and anything shipped. " +
		"Three to five sentences, first person, no preamble."
	user := fmt.Sprintf("Timeline for the last %d minutes:\n%s", int(s.interval.Minutes()), timeline.String())

	return s.llm.Complete(ctx, s.model, system, user)
}
