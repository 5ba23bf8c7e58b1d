// Package config handles daemon configuration
package config

import (
	"os"
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
)

// Frame sources that can be listed in SOURCES.
const (
	SourceScreen    = "screen"
	SourceBrowser   = "browser"
	SourceSynthetic = "synthetic" // built-in strobe demo
)

type Config struct {
	HTTPAddr    string
	ControlAddr string
	DBPath      string
	LogLevel    string
	StatsAddr   string // peer daemon that owns the counters; empty keeps them local

	// Sampling
	RefreshRate    float64 // Hz
	FrameSkip      int
	MaxFrameWidth  int
	MaxFrameHeight int

	// Detection
	WarmupFrames      int
	MinBrightness     float64
	RelativeThreshold float64
	AbsoluteThreshold float64
	RedThreshold      float64
	WindowMs          int64
	FlashFrequency    int
	SeekRearmSeconds  float64 // 0 disables re-arming on seek

	// Sources
	Sources         []string
	BrowserDebugURL string
	BrowserPageURL  string
	VideoSelector   string

	MonitorEnabled bool
	JournalEnabled bool
}

func Load() *Config {
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		ControlAddr: getEnv("CONTROL_ADDR", "localhost:50061"),
		DBPath:      getEnv("DB_PATH", "flashguard.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		StatsAddr:   getEnv("STATS_ADDR", ""),

		RefreshRate:    getEnvFloat("REFRESH_RATE", 60),
		FrameSkip:      getEnvInt("FRAME_SKIP", 3),
		MaxFrameWidth:  getEnvInt("MAX_FRAME_WIDTH", 640),
		MaxFrameHeight: getEnvInt("MAX_FRAME_HEIGHT", 360),

		WarmupFrames:      getEnvInt("WARMUP_FRAMES", 10),
		MinBrightness:     getEnvFloat("MIN_BRIGHTNESS", 0.05),
		RelativeThreshold: getEnvFloat("RELATIVE_THRESHOLD", 0.2),
		AbsoluteThreshold: getEnvFloat("ABSOLUTE_THRESHOLD", 0.1),
		RedThreshold:      getEnvFloat("RED_THRESHOLD", 0.8),
		WindowMs:          int64(getEnvInt("WINDOW_MS", 1000)),
		FlashFrequency:    getEnvInt("FLASH_FREQUENCY", 3),
		SeekRearmSeconds:  getEnvFloat("SEEK_REARM_SECONDS", 10),

		Sources:         getEnvList("SOURCES", []string{SourceScreen}),
		BrowserDebugURL: getEnv("BROWSER_DEBUG_URL", "ws://localhost:9222"),
		BrowserPageURL:  getEnv("BROWSER_PAGE_URL", ""),
		VideoSelector:   getEnv("VIDEO_SELECTOR", "video"),

		MonitorEnabled: getEnvBool("MONITOR_ENABLED", true),
		JournalEnabled: getEnvBool("JOURNAL_ENABLED", true),
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	invalid := func(key, msg string) error {
		return apperrors.New(apperrors.ConfigInvalid, msg).WithMetadata("key", key)
	}
	switch {
	case c.RefreshRate <= 0:
		return invalid("REFRESH_RATE", "refresh rate must be positive")
	case c.FrameSkip < 1:
		return invalid("FRAME_SKIP", "frame skip must be at least 1")
	case c.MaxFrameWidth < 1 || c.MaxFrameHeight < 1:
		return invalid("MAX_FRAME_WIDTH", "frame cap must be positive")
	case c.WarmupFrames < 0:
		return invalid("WARMUP_FRAMES", "warm-up frames must not be negative")
	case c.MinBrightness < 0 || c.MinBrightness > 1:
		return invalid("MIN_BRIGHTNESS", "brightness floor must be within [0,1]")
	case c.RelativeThreshold <= 0:
		return invalid("RELATIVE_THRESHOLD", "relative threshold must be positive")
	case c.AbsoluteThreshold < 0 || c.AbsoluteThreshold > 1:
		return invalid("ABSOLUTE_THRESHOLD", "absolute threshold must be within [0,1]")
	case c.RedThreshold < 0 || c.RedThreshold > 1:
		return invalid("RED_THRESHOLD", "red threshold must be within [0,1]")
	case c.WindowMs <= 0:
		return invalid("WINDOW_MS", "window must be positive")
	case c.FlashFrequency < 1:
		return invalid("FLASH_FREQUENCY", "flash frequency must be at least 1")
	case c.SeekRearmSeconds < 0:
		return invalid("SEEK_REARM_SECONDS", "re-arm threshold must not be negative")
	case c.StatsAddr != "" && c.StatsAddr == c.ControlAddr:
		return invalid("STATS_ADDR", "stats peer must not be this daemon's control address")
	}
	for _, s := range c.Sources {
		if s != SourceScreen && s != SourceBrowser && s != SourceSynthetic {
			return invalid("SOURCES", "unknown source "+strconv.Quote(s))
		}
		if s == SourceBrowser && c.BrowserDebugURL == "" {
			return invalid("BROWSER_DEBUG_URL", "browser source needs a debug URL")
		}
	}
	return nil
}

// HasSource reports whether name is listed in SOURCES.
func (c *Config) HasSource(name string) bool {
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.ToLower(strings.TrimSpace(p)); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
