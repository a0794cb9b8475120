package monitor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"devscope/internal/models"
)

// Normalized is the canonical classifier output after defensive parsing.
// Every field is populated; malformed input degrades to safe defaults and
// never to an error that could kill the capture loop.
type Normalized struct {
	Task               string
	ActivityType       string
	TechnicalContext   string
	AppName            string
	AlignmentScore     *int
	IsDeepWork         bool
	DeepWorkState      string
	PrivacyState       string
	ErrorCode          string
	FunctionTarget     string
	DocumentationTitle string
	DocURL             string
}

// classifierOutput mirrors the loose JSON the classifier is expected to emit.
// Every field is optional; several have legacy aliases observed in the wild.
type classifierOutput struct {
	Task             *string     `json:"task"`
	ActivitySummary  *string     `json:"activity_summary"`
	ActivityType     *string     `json:"activity_type"`
	ActivityKind     *string     `json:"activity_kind"`
	TechnicalContext *string     `json:"technical_context"`
	AppName          *string     `json:"app_name"`
	App              *string     `json:"app"`
	AlignmentScore   interface{} `json:"alignment_score"`
	IsDeepWork       *bool       `json:"is_deep_work"`
	DeepWorkState    *string     `json:"deep_work_state"`
	PrivacyState     *string     `json:"privacy_state"`
	ErrorCode        interface{} `json:"error_code"`
	FunctionTarget   *string     `json:"function_target"`
	FunctionName     *string     `json:"function_name"`
	DocTitle         *string     `json:"documentation_title"`
	DocTitleAlt      *string     `json:"doc_title"`
	DocURL           *string     `json:"documentation_url"`
	DocURLAlt        *string     `json:"doc_url"`
}

var httpErrorCodePattern = regexp.MustCompile(`\b([45]\d{2})\b`)

// Normalize parses free-form classifier text that should embed one JSON
// object. Classifiers wrap the object in prose or code fences, so the parse
// window is the first '{' through the last '}'. Total: any input, including
// the empty string, yields a fully-populated result.
func Normalize(text string) Normalized {
	out := Normalized{
		Task:             "Unknown Task",
		ActivityType:     models.ActivityUnknown,
		TechnicalContext: "Unparsed response",
		AppName:          "Unknown",
		IsDeepWork:       false,
		DeepWorkState:    models.DeepWorkStateDistracted,
		PrivacyState:     models.PrivacyBlocked,
	}

	cleaned := strings.TrimSpace(text)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return out
	}

	var parsed classifierOutput
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &parsed); err != nil {
		return out
	}

	// Decoded values win only where present and non-null.
	mergeString(&out.Task, parsed.Task, parsed.ActivitySummary)
	mergeString(&out.ActivityType, parsed.ActivityType, parsed.ActivityKind)
	mergeString(&out.TechnicalContext, parsed.TechnicalContext)
	mergeString(&out.AppName, parsed.AppName, parsed.App)
	mergeString(&out.FunctionTarget, parsed.FunctionTarget, parsed.FunctionName)
	mergeString(&out.DocumentationTitle, parsed.DocTitle, parsed.DocTitleAlt)
	mergeString(&out.DocURL, parsed.DocURL, parsed.DocURLAlt)

	out.AlignmentScore = coerceInt(parsed.AlignmentScore)
	if parsed.IsDeepWork != nil {
		out.IsDeepWork = *parsed.IsDeepWork
	}

	out.ActivityType = strings.ToUpper(strings.TrimSpace(out.ActivityType))
	if out.ActivityType == "" {
		out.ActivityType = models.ActivityUnknown
	}

	// deep_work_state derives from is_deep_work when the classifier omits
	// it; privacy_state then derives from deep_work_state. One rule, applied
	// in that order.
	if parsed.DeepWorkState != nil && strings.TrimSpace(*parsed.DeepWorkState) != "" {
		out.DeepWorkState = strings.ToLower(strings.TrimSpace(*parsed.DeepWorkState))
	} else if out.IsDeepWork {
		out.DeepWorkState = models.DeepWorkStateDeep
	} else {
		out.DeepWorkState = models.DeepWorkStateDistracted
	}

	if parsed.PrivacyState != nil && strings.TrimSpace(*parsed.PrivacyState) != "" {
		out.PrivacyState = strings.ToLower(strings.TrimSpace(*parsed.PrivacyState))
	} else if out.DeepWorkState == models.DeepWorkStateDeep {
		out.PrivacyState = models.PrivacyAllowed
	} else {
		out.PrivacyState = models.PrivacyBlocked
	}

	out.ErrorCode = pickErrorCode(parsed.ErrorCode, out.TechnicalContext)
	return out
}

func mergeString(dst *string, candidates ...*string) {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if trimmed := strings.TrimSpace(*c); trimmed != "" {
			*dst = trimmed
			return
		}
	}
}

// coerceInt accepts JSON numbers and numeric strings.
func coerceInt(value interface{}) *int {
	switch v := value.(type) {
	case float64:
		n := int(v)
		return &n
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return &n
		}
	}
	return nil
}

// pickErrorCode accepts a string or integer error code; when absent it falls
// back to scanning the technical context for a 4xx/5xx HTTP status.
func pickErrorCode(value interface{}, technicalContext string) string {
	switch v := value.(type) {
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	case float64:
		return strconv.Itoa(int(v))
	}
	if match := httpErrorCodePattern.FindStringSubmatch(technicalContext); match != nil {
		return match[1]
	}
	return ""
}
