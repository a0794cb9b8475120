package monitor

import (
	"testing"

	"devscope/internal/models"
)

func TestNormalizeDefaultsOnGarbage(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"prose only", "The user appears to be coding in VS Code."},
		{"truncated json", `{"task": "Fixing auth", "activity_type": "CODI`},
		{"no braces", "task: coding, app: vscode"},
		{"invalid json in braces", `{"task": oops}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got.Task != "Unknown Task" {
				t.Errorf("Task = %q, want default", got.Task)
			}
			if got.ActivityType != models.ActivityUnknown {
				t.Errorf("ActivityType = %q, want UNKNOWN", got.ActivityType)
			}
			if got.IsDeepWork {
				t.Error("IsDeepWork should default to false")
			}
			if got.DeepWorkState != models.DeepWorkStateDistracted {
				t.Errorf("DeepWorkState = %q, want distracted", got.DeepWorkState)
			}
			if got.PrivacyState != models.PrivacyBlocked {
				t.Errorf("PrivacyState = %q, want blocked", got.PrivacyState)
			}
		})
	}
}

func TestNormalizeParsesWrappedJSON(t *testing.T) {
	input := "Here is the analysis:\n```json\n" +
		`{"task": "Debugging login flow", "activity_type": "debugging", "app_name": "VS Code",
		  "technical_context": "AuthService.validate returning nil", "alignment_score": 85,
		  "is_deep_work": true, "function_target": "validate"}` +
		"\n```\nHope that helps!"

	got := Normalize(input)

	if got.Task != "Debugging login flow" {
		t.Errorf("Task = %q", got.Task)
	}
	if got.ActivityType != models.ActivityDebugging {
		t.Errorf("ActivityType = %q, want DEBUGGING (upper-cased)", got.ActivityType)
	}
	if got.AppName != "VS Code" {
		t.Errorf("AppName = %q", got.AppName)
	}
	if got.AlignmentScore == nil || *got.AlignmentScore != 85 {
		t.Errorf("AlignmentScore = %v, want 85", got.AlignmentScore)
	}
	if !got.IsDeepWork {
		t.Error("IsDeepWork should be true")
	}
	if got.DeepWorkState != models.DeepWorkStateDeep {
		t.Errorf("DeepWorkState = %q, want deep_work (derived from is_deep_work)", got.DeepWorkState)
	}
	if got.PrivacyState != models.PrivacyAllowed {
		t.Errorf("PrivacyState = %q, want allowed (derived from deep_work_state)", got.PrivacyState)
	}
	if got.FunctionTarget != "validate" {
		t.Errorf("FunctionTarget = %q", got.FunctionTarget)
	}
}

func TestNormalizeFieldAliases(t *testing.T) {
	got := Normalize(`{"activity_summary": "Reading docs", "activity_kind": "researching",
		"app": "Chrome", "doc_title": "net/http", "doc_url": "https://pkg.go.dev/net/http",
		"function_name": "ListenAndServe"}`)

	if got.Task != "Reading docs" {
		t.Errorf("Task = %q, want alias activity_summary", got.Task)
	}
	if got.ActivityType != models.ActivityResearching {
		t.Errorf("ActivityType = %q, want alias activity_kind", got.ActivityType)
	}
	if got.AppName != "Chrome" {
		t.Errorf("AppName = %q, want alias app", got.AppName)
	}
	if got.DocumentationTitle != "net/http" {
		t.Errorf("DocumentationTitle = %q", got.DocumentationTitle)
	}
	if got.DocURL != "https://pkg.go.dev/net/http" {
		t.Errorf("DocURL = %q", got.DocURL)
	}
	if got.FunctionTarget != "ListenAndServe" {
		t.Errorf("FunctionTarget = %q, want alias function_name", got.FunctionTarget)
	}
}

func TestNormalizeExplicitStatesWin(t *testing.T) {
	got := Normalize(`{"task": "Planning", "is_deep_work": false,
		"deep_work_state": "deep_work", "privacy_state": "allowed"}`)

	if got.DeepWorkState != models.DeepWorkStateDeep {
		t.Errorf("explicit deep_work_state ignored: %q", got.DeepWorkState)
	}
	if got.PrivacyState != models.PrivacyAllowed {
		t.Errorf("explicit privacy_state ignored: %q", got.PrivacyState)
	}
}

func TestNormalizeErrorCodeCoercion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"string code", `{"error_code": "ECONNREFUSED"}`, "ECONNREFUSED"},
		{"numeric code", `{"error_code": 500}`, "500"},
		{"from technical context", `{"technical_context": "POST /login returned 403 Forbidden"}`, "403"},
		{"no code anywhere", `{"technical_context": "editing README"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input).ErrorCode; got != tt.want {
				t.Errorf("ErrorCode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeAlignmentScoreCoercion(t *testing.T) {
	if got := Normalize(`{"alignment_score": "72"}`).AlignmentScore; got == nil || *got != 72 {
		t.Errorf("string score not coerced: %v", got)
	}
	if got := Normalize(`{"alignment_score": "high"}`).AlignmentScore; got != nil {
		t.Errorf("non-numeric score should be nil, got %v", *got)
	}
	if got := Normalize(`{"task": "x"}`).AlignmentScore; got != nil {
		t.Errorf("absent score should be nil, got %v", *got)
	}
}
