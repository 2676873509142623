package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/quickpeek/internal/browser"
	"github.com/dgnsrekt/quickpeek/internal/netutil"
	"github.com/dgnsrekt/quickpeek/internal/peek"
	"github.com/dgnsrekt/quickpeek/internal/relay"
)

// Config holds all configuration for peekd.
type Config struct {
	// CDP connection settings
	CDPAddress    string
	CDPPort       int
	OriginFilter  string
	EvalTimeoutMS int

	// HTTP API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	LaunchRate       float64
	LaunchBurst      int

	// Logging
	LogLevel string
	LogFile  string

	// Capture behavior
	MaxScreenshots int
	FoldSlackPx    int
	Zoom           float64
	LoadTimeoutMS  int
	CaptureFormat  string
	CaptureQuality int
	ProfileFile    string

	// Secondary overlays
	Relay          relay.Config
	StreamReadOnly bool
	ArchiveDir     string
	ArchiveKeep    int
	NotifyURL      string
	JournalDir     string
	JournalMaxMB   int

	// Optional local browser
	LaunchBrowser     bool
	BrowserBinary     string
	BrowserProfileDir string
	BrowserStartURL   string
	BrowserHeadless   bool
}

// Load reads configuration from environment variables and optional .env
// file, then applies the capture profile if one is named.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	candidates, err := netutil.ParseCandidates(getEnvOrDefault("PEEK_PORT_CANDIDATES", "127.0.0.1:8191-8194"))
	if err != nil {
		return nil, fmt.Errorf("PEEK_PORT_CANDIDATES: %w", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		OriginFilter:      os.Getenv("PEEK_ORIGIN_FILTER"),
		EvalTimeoutMS:     getEnvIntOrDefault("PEEK_EVAL_TIMEOUT_MS", 5000),
		BindAddr:          getEnvOrDefault("PEEK_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:    candidates,
		PortAutoFallback:  getEnvBoolOrDefault("PEEK_PORT_AUTO_FALLBACK", true),
		LaunchRate:        getEnvFloatOrDefault("PEEK_LAUNCH_RATE", 2),
		LaunchBurst:       getEnvIntOrDefault("PEEK_LAUNCH_BURST", 5),
		LogLevel:          strings.ToLower(getEnvOrDefault("PEEK_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("PEEK_LOG_FILE", "logs/peekd.log"),
		MaxScreenshots:    getEnvIntOrDefault("PEEK_MAX_SCREENSHOTS", peek.DefaultMaxScreenshots),
		FoldSlackPx:       getEnvIntOrDefault("PEEK_FOLD_SLACK_PX", peek.DefaultFoldSlack),
		Zoom:              getEnvFloatOrDefault("PEEK_ZOOM", 1.5),
		LoadTimeoutMS:     getEnvIntOrDefault("PEEK_LOAD_TIMEOUT_MS", 30000),
		CaptureFormat:     strings.ToLower(getEnvOrDefault("PEEK_CAPTURE_FORMAT", "png")),
		CaptureQuality:    getEnvIntOrDefault("PEEK_CAPTURE_QUALITY", 80),
		ProfileFile:       os.Getenv("PEEK_PROFILE_FILE"),
		Relay:             relay.DefaultConfig(),
		StreamReadOnly:    getEnvBoolOrDefault("PEEK_STREAM_READ_ONLY", false),
		ArchiveDir:        os.Getenv("PEEK_ARCHIVE_DIR"),
		ArchiveKeep:       getEnvIntOrDefault("PEEK_ARCHIVE_KEEP", 500),
		NotifyURL:         os.Getenv("PEEK_NOTIFY_URL"),
		JournalDir:        os.Getenv("PEEK_JOURNAL_DIR"),
		JournalMaxMB:      getEnvIntOrDefault("PEEK_JOURNAL_MAX_MB", 50),
		LaunchBrowser:     getEnvBoolOrDefault("PEEK_LAUNCH_BROWSER", false),
		BrowserBinary:     os.Getenv("PEEK_BROWSER_BINARY"),
		BrowserProfileDir: getEnvOrDefault("PEEK_BROWSER_PROFILE_DIR", "./chromium-profile"),
		BrowserStartURL:   getEnvOrDefault("PEEK_BROWSER_START_URL", "about:blank"),
		BrowserHeadless:   getEnvBoolOrDefault("PEEK_BROWSER_HEADLESS", false),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}

	if cfg.ProfileFile != "" {
		p, err := LoadProfile(cfg.ProfileFile)
		if err != nil {
			return nil, err
		}
		p.Apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a capture.
func (c *Config) Validate() error {
	switch c.CaptureFormat {
	case "png", "jpeg", "webp":
	default:
		return fmt.Errorf("capture format %q: want png, jpeg or webp", c.CaptureFormat)
	}
	if c.CaptureQuality < 0 || c.CaptureQuality > 100 {
		return fmt.Errorf("capture quality %d: want 0..100", c.CaptureQuality)
	}
	if c.MaxScreenshots < 1 {
		return fmt.Errorf("max screenshots %d: want at least 1", c.MaxScreenshots)
	}
	if c.FoldSlackPx < 0 {
		return fmt.Errorf("fold slack %d: must not be negative", c.FoldSlackPx)
	}
	if c.Zoom < 1 || c.Zoom > 4 {
		return fmt.Errorf("zoom %.2f: want 1..4", c.Zoom)
	}
	if c.LaunchRate < 0 || c.LaunchBurst < 0 {
		return fmt.Errorf("launch rate limit must not be negative")
	}
	return c.Relay.Validate()
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// LoadTimeout is zero when load timeouts are disabled.
func (c *Config) LoadTimeout() time.Duration {
	if c.LoadTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.LoadTimeoutMS) * time.Millisecond
}

func (c *Config) CaptureConfig() peek.CaptureConfig {
	cc := peek.DefaultCaptureConfig()
	cc.MaxScreenshots = c.MaxScreenshots
	cc.FoldSlack = c.FoldSlackPx
	cc.Zoom = c.Zoom
	return cc
}

func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{
		Binary:     c.BrowserBinary,
		CDPAddress: c.CDPAddress,
		CDPPort:    c.CDPPort,
		StartURL:   c.BrowserStartURL,
		ProfileDir: c.BrowserProfileDir,
		Headless:   c.BrowserHeadless,
	}
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
