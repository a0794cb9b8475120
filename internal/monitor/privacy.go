package monitor

import "strings"

// PrivacyFilter reports whether capturing is currently allowed. When it
// vetoes, the cycle produces no record and writes no artifact.
type PrivacyFilter func() bool

// AllowAll is the default filter when no blocklist is configured.
func AllowAll() bool { return true }

// BlocklistFilter vetoes capture while a blocklisted application owns the
// frontmost window. The inspector is queried at zero cache age so the veto is
// based on the window that would actually be captured.
func BlocklistFilter(inspector *Inspector, blockedApps []string) PrivacyFilter {
	if len(blockedApps) == 0 || inspector == nil {
		return AllowAll
	}

	blocked := make(map[string]struct{}, len(blockedApps))
	for _, app := range blockedApps {
		if trimmed := strings.ToLower(strings.TrimSpace(app)); trimmed != "" {
			blocked[trimmed] = struct{}{}
		}
	}

	return func() bool {
		snap := inspector.Snapshot(0)
		_, hit := blocked[strings.ToLower(snap.App)]
		return !hit
	}
}
