package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"devscope/internal/models"
	"devscope/internal/services"
)

// ErrSessionNotFound is returned when an operation names an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// Classifier labels one raw capture. It is an opaque boundary: free text in,
// free text out, expected but not guaranteed to contain a JSON object.
type Classifier interface {
	ClassifyFrame(ctx context.Context, image []byte, systemPrompt, userPrompt string) (string, error)
}

// Publisher forwards privacy-cleared records to the shared store.
type Publisher interface {
	Enabled(ctx context.Context) bool
	PublishActivity(ctx context.Context, payload map[string]interface{}) bool
}

// Listener receives every record appended to any session buffer. Listeners
// are invoked on their own goroutine and must not block the capture loop.
type Listener func(models.ActivityRecord)

// Session is one user-declared unit of tracked work with its own bounded
// history. The ring buffer is only touched under the monitor's lock.
type Session struct {
	ID          string
	ProjectName string
	ProjectSlug string
	Goal        string
	RepoPath    string
	SpoolDir    string

	buffer *RingBuffer
}

// Options wires the Monitor's collaborators. Inspector, Capturer and
// Classifier are required for Start; the Publisher is optional.
type Options struct {
	CaptureInterval time.Duration
	RingCapacity    int
	TempRoot        string

	Inspector     *Inspector
	Capturer      FrameCapturer
	Classifier    Classifier
	Publisher     Publisher
	PrivacyFilter PrivacyFilter
	Identity      models.Identity
}

// Monitor owns the session registry and the capture scheduler: one background
// worker that captures, classifies, buffers and forwards activity records.
// A single mutex guards the session map, the active pointer and every ring
// buffer, matching the one-writer-many-readers access pattern.
type Monitor struct {
	captureInterval time.Duration
	ringCapacity    int
	tempRoot        string

	inspector     *Inspector
	capturer      FrameCapturer
	classifier    Classifier
	publisher     Publisher
	privacyFilter PrivacyFilter

	log *logrus.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	activeID  string
	identity  models.Identity
	listeners []Listener

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Monitor. The worker is not started.
func New(opts Options) *Monitor {
	if opts.CaptureInterval <= 0 {
		opts.CaptureInterval = 10 * time.Second
	}
	if opts.RingCapacity < 1 {
		opts.RingCapacity = 180
	}
	if opts.PrivacyFilter == nil {
		opts.PrivacyFilter = AllowAll
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Monitor{
		captureInterval: opts.CaptureInterval,
		ringCapacity:    opts.RingCapacity,
		tempRoot:        opts.TempRoot,
		inspector:       opts.Inspector,
		capturer:        opts.Capturer,
		classifier:      opts.Classifier,
		publisher:       opts.Publisher,
		privacyFilter:   opts.PrivacyFilter,
		identity:        opts.Identity,
		log:             logger,
		sessions:        make(map[string]*Session),
	}
}

// Session management ---------------------------------------------------

// CreateSession allocates a session with its own spool directory and empty
// ring buffer. It becomes active if no session was active.
func (m *Monitor) CreateSession(projectName, repoPath, goal string) (models.SessionMetadata, error) {
	slug := Slugify(projectName)
	spoolDir := filepath.Join(m.tempRoot, slug)
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return models.SessionMetadata{}, fmt.Errorf("failed to create spool directory: %w", err)
	}

	session := &Session{
		ID:          uuid.New().String(),
		ProjectName: projectName,
		ProjectSlug: slug,
		Goal:        goal,
		RepoPath:    repoPath,
		SpoolDir:    spoolDir,
		buffer:      NewRingBuffer(m.ringCapacity),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	if m.activeID == "" {
		m.activeID = session.ID
	}
	active := m.activeID == session.ID
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"project":    projectName,
	}).Info("Session created")

	return models.SessionMetadata{
		ID:          session.ID,
		ProjectName: session.ProjectName,
		ProjectSlug: session.ProjectSlug,
		Goal:        session.Goal,
		RepoPath:    session.RepoPath,
		Active:      active,
	}, nil
}

// DeleteSession removes a session and its entire spool directory tree.
// Deleting an unknown id is a no-op. If the deleted session was active, the
// active pointer moves to an arbitrary remaining session, or clears.
func (m *Monitor) DeleteSession(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if m.activeID == id {
			m.activeID = ""
			for remaining := range m.sessions {
				m.activeID = remaining
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := os.RemoveAll(session.SpoolDir); err != nil {
		m.log.WithField("session_id", id).Warnf("Failed to remove spool dir: %v", err)
	}
	m.log.WithField("session_id", id).Info("Session deleted")
}

// SwitchSession makes the given session active.
func (m *Monitor) SwitchSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.activeID = id
	return nil
}

// ListSessions returns a snapshot of session metadata.
func (m *Monitor) ListSessions() []models.SessionMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SessionMetadata, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, models.SessionMetadata{
			ID:          s.ID,
			ProjectName: s.ProjectName,
			ProjectSlug: s.ProjectSlug,
			Goal:        s.Goal,
			RepoPath:    s.RepoPath,
			Active:      s.ID == m.activeID,
		})
	}
	return out
}

// GetSession returns the session value for id.
func (m *Monitor) GetSession(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ActiveSessionID returns the id of the active session, or "".
func (m *Monitor) ActiveSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Snapshot returns a copy of a session's full buffer in insertion order.
// An empty id targets the active session.
func (m *Monitor) Snapshot(sessionID string) []models.ActivityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.lockedSession(sessionID)
	if session == nil {
		return nil
	}
	return session.buffer.Snapshot()
}

// RecentWindow returns a session's records limited to the recent window and
// filtered to privacy-allowed entries. Git triggers use this to produce
// commit context without dumping the whole buffer.
func (m *Monitor) RecentWindow(sessionID string, window time.Duration) []models.ActivityRecord {
	if window < time.Minute {
		window = time.Minute
	}
	cutoff := time.Now().UTC().Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.lockedSession(sessionID)
	if session == nil {
		return nil
	}
	return session.buffer.Window(cutoff, func(r models.ActivityRecord) bool {
		return r.PrivacyState == models.PrivacyAllowed
	})
}

// SetIdentity replaces the attribution used for Hive Mind uploads. Records
// freeze identity at capture time, so the change applies from the next tick.
func (m *Monitor) SetIdentity(identity models.Identity) {
	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()
}

// Identity returns the current attribution snapshot.
func (m *Monitor) Identity() models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// AddListener registers a best-effort observer of new records.
func (m *Monitor) AddListener(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// lockedSession resolves a session id (or the active session for "") while
// m.mu is held.
func (m *Monitor) lockedSession(sessionID string) *Session {
	id := sessionID
	if id == "" {
		id = m.activeID
	}
	if id == "" {
		return nil
	}
	return m.sessions[id]
}

// Worker control -------------------------------------------------------

// Start launches the background capture worker. Starting a running monitor
// is a no-op with a warning.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.log.Warn("Monitor already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	go m.run(ctx)
	m.log.Info("Monitor started")
}

// Stop requests a cooperative shutdown and joins the worker with a timeout
// bounded by the capture interval plus a grace margin. It never blocks
// forever and is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(m.captureInterval + 2*time.Second):
		m.log.Warn("Monitor worker did not stop in time; proceeding")
	}
	m.log.Info("Monitor stopped")
}

// IsRunning reports whether the capture worker is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// run is the scheduler loop. No failure inside a cycle may terminate it;
// only cancellation does.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for {
		if ctx.Err() != nil {
			return
		}

		session, ok := m.activeSession()
		if !ok {
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		if !m.privacyFilter() {
			m.log.Debug("Privacy filter blocked capture")
			if mt := services.GetMetrics(); mt != nil {
				mt.PrivacyVetoes.Inc()
			}
			if !sleepCtx(ctx, m.captureInterval) {
				return
			}
			continue
		}

		m.safeCycle(ctx, session)

		if !sleepCtx(ctx, m.captureInterval) {
			return
		}
	}
}

// safeCycle runs one capture cycle with a panic boundary. A single bad cycle
// must never kill the worker.
func (m *Monitor) safeCycle(ctx context.Context, session Session) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", fmt.Sprint(r)).Error("Capture cycle panicked")
			if mt := services.GetMetrics(); mt != nil {
				mt.CaptureErrors.WithLabelValues("panic").Inc()
			}
		}
	}()
	m.cycle(ctx, session)
}

func (m *Monitor) cycle(ctx context.Context, session Session) {
	// Zero cache age so the prompt and the record describe the same window.
	snap := m.inspector.Snapshot(0)

	framePath, err := m.capturer.CaptureFrame(session.SpoolDir)
	if err != nil {
		m.log.Debugf("Frame capture failed: %v", err)
		if mt := services.GetMetrics(); mt != nil {
			mt.CaptureErrors.WithLabelValues("frame").Inc()
		}
		return
	}

	image, err := os.ReadFile(framePath)
	if err != nil {
		m.log.Debugf("Failed to read frame %s: %v", framePath, err)
		deleteArtifact(framePath)
		return
	}

	systemPrompt := buildExtractorPrompt(session.Goal, snap)
	raw, err := m.classifier.ClassifyFrame(ctx, image, systemPrompt, extractorUserPrompt)
	if err != nil {
		// A failed classifier call degrades like malformed output: the
		// normalizer's defaults (distracted, blocked) take over.
		m.log.Debugf("Classifier call failed: %v", err)
		if mt := services.GetMetrics(); mt != nil {
			mt.CaptureErrors.WithLabelValues("classify").Inc()
		}
		raw = ""
	}

	record := m.buildRecord(session, snap, Normalize(raw), framePath)

	// Privacy gate: a blocked artifact is deleted immediately; the record
	// itself is kept locally for visibility.
	if record.PrivacyState != models.PrivacyAllowed {
		deleteArtifact(framePath)
		record.ScreenshotPath = ""
		m.log.WithFields(logrus.Fields{
			"project":         session.ProjectName,
			"privacy_state":   record.PrivacyState,
			"deep_work_state": record.DeepWorkState,
		}).Info("Dropped screenshot due to privacy gate")
	}

	m.append(session.ID, record)
	m.syncHiveMind(ctx, record)
	m.notifyListeners(record)

	if mt := services.GetMetrics(); mt != nil {
		mt.Captures.Inc()
	}
}

func (m *Monitor) buildRecord(session Session, snap WindowSnapshot, norm Normalized, framePath string) models.ActivityRecord {
	identity := m.Identity()

	appName := norm.AppName
	if appName == "" || appName == "Unknown" {
		appName = snap.App
	}

	isDeepWork := norm.IsDeepWork
	if norm.DeepWorkState == models.DeepWorkStateDeep {
		isDeepWork = true
	}

	display := identity.DisplayName
	if display == "" {
		display = identity.UserID
	}

	return models.ActivityRecord{
		Timestamp:          time.Now().UTC(),
		SessionID:          session.ID,
		ProjectName:        session.ProjectName,
		ProjectSlug:        session.ProjectSlug,
		SessionGoal:        session.Goal,
		RepoPath:           session.RepoPath,
		Task:               norm.Task,
		ActivityType:       norm.ActivityType,
		TechnicalContext:   norm.TechnicalContext,
		AppName:            appName,
		AlignmentScore:     norm.AlignmentScore,
		IsDeepWork:         isDeepWork,
		DeepWorkState:      norm.DeepWorkState,
		PrivacyState:       norm.PrivacyState,
		ActiveApp:          snap.App,
		WindowTitle:        snap.Title,
		FocusBounds:        snap.Bounds,
		ErrorCode:          norm.ErrorCode,
		FunctionTarget:     norm.FunctionTarget,
		DocumentationTitle: norm.DocumentationTitle,
		DocURL:             norm.DocURL,
		ScreenshotPath:     framePath,
		UserID:             identity.UserID,
		UserDisplay:        display,
		OrgID:              identity.OrgID,
		Source:             models.SourceVision,
	}
}

// append buffers the record under the registry lock. The session may have
// been deleted mid-cycle; the record is dropped in that case and its artifact
// cleaned up, since nothing else owns it.
func (m *Monitor) append(sessionID string, record models.ActivityRecord) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	evicting := ok && session.buffer.Len() == session.buffer.Capacity()
	if ok {
		session.buffer.Append(record)
	}
	m.mu.Unlock()

	if !ok {
		if record.ScreenshotPath != "" {
			deleteArtifact(record.ScreenshotPath)
		}
		return
	}
	if evicting {
		if mt := services.GetMetrics(); mt != nil {
			mt.Evictions.Inc()
		}
	}

	m.log.WithFields(logrus.Fields{
		"project":   record.ProjectName,
		"task":      record.Task,
		"app":       record.AppName,
		"deep_work": record.IsDeepWork,
	}).Info("Buffered frame")
}

// syncHiveMind forwards a record when the gate allows: privacy cleared, deep
// work, identity resolvable, sink configured and reachable. A silent skip is
// the expected common case, never a failure.
func (m *Monitor) syncHiveMind(ctx context.Context, record models.ActivityRecord) {
	mt := services.GetMetrics()
	skip := func(reason string) {
		if mt != nil {
			mt.SyncSkipped.WithLabelValues(reason).Inc()
		}
	}

	if record.PrivacyState != models.PrivacyAllowed {
		skip("privacy")
		return
	}
	if !record.IsDeepWork {
		skip("shallow")
		return
	}
	if record.UserID == "" {
		skip("identity")
		return
	}
	if m.publisher == nil || !m.publisher.Enabled(ctx) {
		skip("disabled")
		return
	}

	if !m.publisher.PublishActivity(ctx, record.ToPayload()) {
		m.log.Debugf("Hive Mind sync failed for session %s", record.SessionID)
		if mt != nil {
			mt.SyncFailed.Inc()
		}
		return
	}
	if mt != nil {
		mt.SyncPublished.Inc()
	}
}

func (m *Monitor) notifyListeners(record models.ActivityRecord) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		go l(record)
	}
}

func (m *Monitor) activeSession() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == "" {
		return Session{}, false
	}
	s, ok := m.sessions[m.activeID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// sleepCtx sleeps for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)
var slugCollapse = regexp.MustCompile(`-{2,}`)

// Slugify derives a deterministic, filesystem-safe directory name from a
// project name. Empty input maps to the fixed placeholder "project".
func Slugify(value string) string {
	cleaned := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	cleaned = slugCollapse.ReplaceAllString(cleaned, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return "project"
	}
	return cleaned
}
