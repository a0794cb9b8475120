package models

import (
	"fmt"
	"time"
)

// Activity type labels emitted by the classifier. The set is open ended;
// anything else is kept as-is after upper-casing.
const (
	ActivityCoding        = "CODING"
	ActivityDebugging     = "DEBUGGING"
	ActivityResearching   = "RESEARCHING"
	ActivityReviewing     = "REVIEWING"
	ActivityCommunicating = "COMMUNICATING"
	ActivityTesting       = "TESTING"
	ActivityDesign        = "DESIGN"
	ActivityMonitoring    = "MONITORING"
	ActivityDeploying     = "DEPLOYING"
	ActivityDistracted    = "DISTRACTED"
	ActivityUnknown       = "UNKNOWN"
)

// Deep-work states
const (
	DeepWorkStateDeep       = "deep_work"
	DeepWorkStateDistracted = "distracted"
)

// Privacy states
const (
	PrivacyAllowed = "allowed"
	PrivacyBlocked = "blocked"
)

// SourceVision tags records produced by the visual capture loop.
const SourceVision = "devscope-vision"

// FocusBounds is the on-screen rectangle of the focused window.
type FocusBounds struct {
	X      int `bson:"x" json:"x"`
	Y      int `bson:"y" json:"y"`
	Width  int `bson:"width" json:"width"`
	Height int `bson:"height" json:"height"`
}

func (b FocusBounds) String() string {
	return fmt.Sprintf("x=%d, y=%d, width=%d, height=%d", b.X, b.Y, b.Width, b.Height)
}

// ActivityRecord is the canonical representation of one classified
// observation. Every producer (capture loop, git trigger, batch summarizer)
// emits this structure so downstream consumers can rely on consistent keys.
// Records are immutable once built; identity is frozen at capture time.
type ActivityRecord struct {
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	SessionID   string    `bson:"session_id" json:"session_id"`
	ProjectName string    `bson:"project_name" json:"project_name"`
	ProjectSlug string    `bson:"project_slug,omitempty" json:"project_slug,omitempty"`
	SessionGoal string    `bson:"session_goal" json:"session_goal"`
	RepoPath    string    `bson:"repo_path" json:"repo_path"`

	// Classifier-reported fields (normalized, never trusted raw).
	Task             string `bson:"task" json:"task"`
	ActivityType     string `bson:"activity_type" json:"activity_type"`
	TechnicalContext string `bson:"technical_context" json:"technical_context"`
	AppName          string `bson:"app_name" json:"app_name"`
	AlignmentScore   *int   `bson:"alignment_score,omitempty" json:"alignment_score,omitempty"`
	IsDeepWork       bool   `bson:"is_deep_work" json:"is_deep_work"`
	DeepWorkState    string `bson:"deep_work_state" json:"deep_work_state"`
	PrivacyState     string `bson:"privacy_state" json:"privacy_state"`

	// Sensor-reported fields. These are authoritative over the classifier's
	// guess at app identity.
	ActiveApp   string       `bson:"active_app" json:"active_app"`
	WindowTitle string       `bson:"window_title" json:"window_title"`
	FocusBounds *FocusBounds `bson:"focus_bounds,omitempty" json:"focus_bounds,omitempty"`

	// Forensic extractions.
	ErrorCode          string `bson:"error_code,omitempty" json:"error_code,omitempty"`
	FunctionTarget     string `bson:"function_target,omitempty" json:"function_target,omitempty"`
	DocumentationTitle string `bson:"documentation_title,omitempty" json:"documentation_title,omitempty"`
	DocURL             string `bson:"doc_url,omitempty" json:"doc_url,omitempty"`

	// Local-only. Never serialized into a Hive Mind payload.
	ScreenshotPath string `bson:"-" json:"screenshot_path,omitempty"`

	// Attribution, frozen from the identity snapshot at capture time.
	UserID      string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	UserDisplay string `bson:"user_display,omitempty" json:"user_display,omitempty"`
	OrgID       string `bson:"org_id,omitempty" json:"org_id,omitempty"`
	Source      string `bson:"source" json:"source"`
}

// ToPayload converts the record into a Hive Mind document, stripping the
// local screenshot path and dropping empty optionals to keep documents lean.
func (r *ActivityRecord) ToPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"timestamp":         r.Timestamp,
		"session_id":        r.SessionID,
		"project_name":      r.ProjectName,
		"session_goal":      r.SessionGoal,
		"repo_path":         r.RepoPath,
		"task":              r.Task,
		"activity_type":     r.ActivityType,
		"technical_context": r.TechnicalContext,
		"app_name":          r.AppName,
		"active_app":        r.ActiveApp,
		"window_title":      r.WindowTitle,
		"is_deep_work":      r.IsDeepWork,
		"deep_work_state":   r.DeepWorkState,
		"privacy_state":     r.PrivacyState,
		"source":            r.Source,
		"summary":           fmt.Sprintf("%s | %s", r.Task, r.TechnicalContext),
	}

	setIfNotEmpty := func(key, value string) {
		if value != "" {
			payload[key] = value
		}
	}
	setIfNotEmpty("project_slug", r.ProjectSlug)
	setIfNotEmpty("error_code", r.ErrorCode)
	setIfNotEmpty("function_target", r.FunctionTarget)
	setIfNotEmpty("documentation_title", r.DocumentationTitle)
	setIfNotEmpty("doc_url", r.DocURL)
	setIfNotEmpty("user_id", r.UserID)
	setIfNotEmpty("org_id", r.OrgID)

	if r.UserDisplay != "" {
		payload["user_display"] = r.UserDisplay
	} else if r.UserID != "" {
		payload["user_display"] = r.UserID
	}

	if r.AlignmentScore != nil {
		payload["alignment_score"] = *r.AlignmentScore
	}
	if r.FocusBounds != nil {
		payload["focus_bounds"] = map[string]int{
			"x":      r.FocusBounds.X,
			"y":      r.FocusBounds.Y,
			"width":  r.FocusBounds.Width,
			"height": r.FocusBounds.Height,
		}
	}

	return payload
}

// SessionSummary is a high-level standup document produced by the batch
// summarizer and stored in the summaries collection.
type SessionSummary struct {
	OrgID            string    `bson:"org_id" json:"org_id"`
	UserID           string    `bson:"user_id" json:"user_id"`
	SessionID        string    `bson:"session_id" json:"session_id"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`
	SummaryText      string    `bson:"summary_text" json:"summary_text"`
	TimeRangeMinutes int       `bson:"time_range_minutes" json:"time_range_minutes"`
}

// Identity is the attribution snapshot read on every capture cycle.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	OrgID       string `json:"org_id"`
}

// SessionMetadata is the lock-free view of a session returned by List.
type SessionMetadata struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	ProjectSlug string `json:"project_slug"`
	Goal        string `json:"goal"`
	RepoPath    string `json:"repo_path"`
	Active      bool   `json:"active"`
}
