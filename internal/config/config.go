package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is built once at startup and
// passed into the services; hot-path code never reads the environment.
type Config struct {
	Port string

	// Capture loop
	CaptureInterval time.Duration // default 10s
	RingCapacity    int           // default 180 frames per session
	TempRoot        string        // spool root for raw frames

	// Hive Mind (MongoDB)
	MongoURI            string
	MongoDB             string
	ActivityCollection  string
	SummariesCollection string
	OrgID               string

	// Identity defaults (overridden by the settings store at runtime)
	UserID      string
	DisplayName string

	// LLM provider (OpenAI-compatible chat completions endpoint)
	LLMBaseURL  string
	LLMAPIKey   string
	VisionModel string
	OracleModel string
	LLMRate     float64 // requests per second allowed against the provider

	// Batch standup summarizer
	SummaryInterval time.Duration // floor 60s
	SummaryCron     string        // optional cron expression, overrides interval

	// Oracle
	MaxContext int

	// Privacy
	PrivacyBlocklist []string
}

// FileSettings is the optional YAML settings file referenced by
// DEVSCOPE_CONFIG. Env vars win for scalars; blocklists are merged.
type FileSettings struct {
	PrivacyBlocklist []string `yaml:"privacy_blocklist"`
	CaptureInterval  int      `yaml:"capture_interval_seconds"`
	RingCapacity     int      `yaml:"ring_capacity"`
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	home, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(home, ".devscope", "temp_disk")

	cfg := &Config{
		Port: getEnv("PORT", "3917"),

		CaptureInterval: time.Duration(getIntEnv("DEVSCOPE_CAPTURE_INTERVAL", 10)) * time.Second,
		RingCapacity:    getIntEnv("DEVSCOPE_RING_CAPACITY", 180),
		TempRoot:        getEnv("DEVSCOPE_TEMP_ROOT", defaultRoot),

		MongoURI:            getEnv("HIVEMIND_MONGO_URI", ""),
		MongoDB:             getEnv("HIVEMIND_MONGO_DB", "devscope"),
		ActivityCollection:  getEnv("HIVEMIND_COLLECTION", "activity_logs"),
		SummariesCollection: getEnv("HIVEMIND_SUMMARIES_COLLECTION", "session_summaries"),
		OrgID:               getEnv("HIVEMIND_ORG_ID", "NYU-Team"),

		UserID:      getEnv("HIVEMIND_USER_ID", ""),
		DisplayName: getEnv("HIVEMIND_USER_NAME", ""),

		LLMBaseURL:  getEnv("DEVSCOPE_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:   getEnv("DEVSCOPE_LLM_API_KEY", ""),
		VisionModel: getEnv("DEVSCOPE_VISION_MODEL", "gpt-4o-mini"),
		OracleModel: getEnv("DEVSCOPE_ORACLE_MODEL", "gpt-4o-mini"),
		LLMRate:     getFloatEnv("DEVSCOPE_LLM_RATE", 1.0),

		SummaryInterval: time.Duration(getIntEnv("DEVSCOPE_SUMMARY_INTERVAL", 1800)) * time.Second,
		SummaryCron:     getEnv("DEVSCOPE_SUMMARY_CRON", ""),

		MaxContext: getIntEnv("DEVSCOPE_ORACLE_MAX_CONTEXT", 40),

		PrivacyBlocklist: splitList(getEnv("DEVSCOPE_PRIVACY_APPS", "")),
	}

	// Batch-style intervals get a 60s floor so a typo cannot hammer the
	// provider every tick.
	if cfg.SummaryInterval < time.Minute {
		cfg.SummaryInterval = time.Minute
	}
	if cfg.CaptureInterval < time.Second {
		cfg.CaptureInterval = time.Second
	}
	if cfg.RingCapacity < 1 {
		cfg.RingCapacity = 180
	}

	if path := getEnv("DEVSCOPE_CONFIG", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "devscope: ignoring settings file %s: %v\n", path, err)
		}
	}

	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var fs FileSettings
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	c.PrivacyBlocklist = append(c.PrivacyBlocklist, fs.PrivacyBlocklist...)
	if fs.CaptureInterval > 0 && os.Getenv("DEVSCOPE_CAPTURE_INTERVAL") == "" {
		c.CaptureInterval = time.Duration(fs.CaptureInterval) * time.Second
	}
	if fs.RingCapacity > 0 && os.Getenv("DEVSCOPE_RING_CAPACITY") == "" {
		c.RingCapacity = fs.RingCapacity
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
