package monitor

import (
	"errors"
	"testing"
	"time"

	"devscope/internal/models"
)

func TestParseFrontmostOutput(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantApp    string
		wantTitle  string
		wantBounds *models.FocusBounds
	}{
		{
			name:       "full output",
			raw:        "Code|main.go — devscope|100,50,1440,900",
			wantApp:    "Code",
			wantTitle:  "main.go — devscope",
			wantBounds: &models.FocusBounds{X: 100, Y: 50, Width: 1440, Height: 900},
		},
		{
			name:      "no bounds",
			raw:       "Terminal|zsh|",
			wantApp:   "Terminal",
			wantTitle: "zsh",
		},
		{
			name:      "app only",
			raw:       "Finder||",
			wantApp:   "Finder",
			wantTitle: "Unknown",
		},
		{
			name:      "empty",
			raw:       "",
			wantApp:   "Unknown",
			wantTitle: "Unknown",
		},
		{
			name:      "malformed bounds ignored",
			raw:       "Code|file.go|1,2,three,4",
			wantApp:   "Code",
			wantTitle: "file.go",
		},
		{
			name:      "non-positive size rejected",
			raw:       "Code|file.go|0,0,0,900",
			wantApp:   "Code",
			wantTitle: "file.go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFrontmostOutput(tt.raw)
			if got.App != tt.wantApp {
				t.Errorf("App = %q, want %q", got.App, tt.wantApp)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if (got.Bounds == nil) != (tt.wantBounds == nil) {
				t.Fatalf("Bounds = %v, want %v", got.Bounds, tt.wantBounds)
			}
			if got.Bounds != nil && *got.Bounds != *tt.wantBounds {
				t.Errorf("Bounds = %+v, want %+v", *got.Bounds, *tt.wantBounds)
			}
		})
	}
}

type countingSensor struct {
	calls int
	fail  bool
}

func (s *countingSensor) Snapshot() (WindowSnapshot, error) {
	s.calls++
	if s.fail {
		return WindowSnapshot{}, errors.New("sensor down")
	}
	return WindowSnapshot{App: "Code", Title: "main.go"}, nil
}

func TestInspectorCaching(t *testing.T) {
	sensor := &countingSensor{}
	inspector := NewInspector(sensor, time.Minute)

	inspector.Snapshot(time.Minute)
	inspector.Snapshot(time.Minute)
	if sensor.calls != 1 {
		t.Errorf("expected cached second read, sensor called %d times", sensor.calls)
	}

	// Zero max age forces a refetch.
	inspector.Snapshot(0)
	if sensor.calls != 2 {
		t.Errorf("expected forced refetch, sensor called %d times", sensor.calls)
	}
}

func TestInspectorDegradesToUnknown(t *testing.T) {
	inspector := NewInspector(&countingSensor{fail: true}, 0)
	snap := inspector.Snapshot(0)
	if snap.App != "Unknown" || snap.Title != "Unknown" {
		t.Errorf("failed sensor should yield Unknown snapshot, got %+v", snap)
	}

	nilInspector := NewInspector(nil, 0)
	if snap := nilInspector.Snapshot(0); snap.App != "Unknown" {
		t.Errorf("nil sensor should yield Unknown snapshot, got %+v", snap)
	}
}

func TestBlocklistFilter(t *testing.T) {
	sensor := &countingSensor{}
	inspector := NewInspector(sensor, 0)

	allow := BlocklistFilter(inspector, []string{"Slack", "  code "})
	if allow() {
		t.Error("blocklisted app (case-insensitive) should veto capture")
	}

	open := BlocklistFilter(inspector, nil)
	if !open() {
		t.Error("empty blocklist should allow everything")
	}
}
