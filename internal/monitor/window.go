package monitor

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"devscope/internal/models"
)

// WindowSnapshot is the current frontmost window, including geometry when the
// platform exposes it. The zero value is the well-defined "Unknown" snapshot.
type WindowSnapshot struct {
	App    string
	Title  string
	Bounds *models.FocusBounds
}

// UnknownSnapshot is returned whenever window introspection fails. The
// capture loop must never fail because the OS query did.
func UnknownSnapshot() WindowSnapshot {
	return WindowSnapshot{App: "Unknown", Title: "Unknown"}
}

// WindowSensor performs the raw OS query for the frontmost window.
type WindowSensor interface {
	Snapshot() (WindowSnapshot, error)
}

const snapshotCacheKey = "active_window"

// Inspector caches frontmost window metadata to avoid redundant OS calls.
// OS sensor failures degrade to the Unknown snapshot, never to an error.
type Inspector struct {
	sensor WindowSensor
	cache  *cache.Cache
}

// NewInspector wraps a sensor with a TTL cache. maxAge is the default
// freshness window for cached snapshots.
func NewInspector(sensor WindowSensor, maxAge time.Duration) *Inspector {
	if maxAge <= 0 {
		maxAge = 250 * time.Millisecond
	}
	return &Inspector{
		sensor: sensor,
		cache:  cache.New(maxAge, time.Minute),
	}
}

// Snapshot returns the current window snapshot. A zero cacheMaxAge forces a
// refetch; this is used right before building classifier prompts so the
// prompt and the record describe the same window.
func (i *Inspector) Snapshot(cacheMaxAge time.Duration) WindowSnapshot {
	if cacheMaxAge > 0 {
		if cached, found := i.cache.Get(snapshotCacheKey); found {
			return cached.(WindowSnapshot)
		}
	}

	snap := i.fetch()
	i.cache.Set(snapshotCacheKey, snap, cache.DefaultExpiration)
	return snap
}

func (i *Inspector) fetch() WindowSnapshot {
	if i.sensor == nil {
		return UnknownSnapshot()
	}
	snap, err := i.sensor.Snapshot()
	if err != nil {
		return UnknownSnapshot()
	}
	if snap.App == "" {
		snap.App = "Unknown"
	}
	if snap.Title == "" {
		snap.Title = "Unknown"
	}
	return snap
}

// NewPlatformSensor returns the best window sensor for the current OS. On
// unsupported platforms it returns a sensor that always reports Unknown.
func NewPlatformSensor() WindowSensor {
	if runtime.GOOS == "darwin" {
		return &darwinSensor{}
	}
	return unsupportedSensor{}
}

type unsupportedSensor struct{}

func (unsupportedSensor) Snapshot() (WindowSnapshot, error) {
	return UnknownSnapshot(), nil
}

// darwinSensor shells out to osascript for the frontmost process and window.
// Any failure (permissions, no window, script error) yields Unknown.
type darwinSensor struct{}

const frontmostScript = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set windowTitle to ""
	set windowBounds to ""
	try
		set frontWindow to front window of frontApp
		set windowTitle to name of frontWindow
		set {x, y} to position of frontWindow
		set {w, h} to size of frontWindow
		set windowBounds to (x as text) & "," & (y as text) & "," & (w as text) & "," & (h as text)
	end try
	return appName & "|" & windowTitle & "|" & windowBounds
end tell`

func (darwinSensor) Snapshot() (WindowSnapshot, error) {
	out, err := exec.Command("osascript", "-e", frontmostScript).Output()
	if err != nil {
		return UnknownSnapshot(), fmt.Errorf("osascript query failed: %w", err)
	}
	return parseFrontmostOutput(strings.TrimSpace(string(out))), nil
}

func parseFrontmostOutput(raw string) WindowSnapshot {
	parts := strings.SplitN(raw, "|", 3)
	snap := UnknownSnapshot()
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		snap.App = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		snap.Title = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		if bounds := parseBounds(strings.TrimSpace(parts[2])); bounds != nil {
			snap.Bounds = bounds
		}
	}
	return snap
}

func parseBounds(raw string) *models.FocusBounds {
	fields := strings.Split(raw, ",")
	if len(fields) != 4 {
		return nil
	}
	values := make([]int, 4)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil
		}
		values[i] = n
	}
	if values[2] <= 0 || values[3] <= 0 {
		return nil
	}
	return &models.FocusBounds{X: values[0], Y: values[1], Width: values[2], Height: values[3]}
}
