// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/user/framegrab/pkg/framegrab"
)

// Config represents the full configuration for framegrab.
type Config struct {
	// Extraction
	ChunkSize   int64 `yaml:"chunk_size"`
	TimeoutMs   int   `yaml:"timeout_ms"`
	ToleranceMs int   `yaml:"tolerance_ms"`

	// Output
	Quality    int    `yaml:"quality"`
	MaxWidth   int    `yaml:"max_width"`
	Labels     bool   `yaml:"labels"`
	FontPath   string `yaml:"font_path"`
	LabelColor string `yaml:"label_color"`
	BandColor  string `yaml:"band_color"`

	// Decoding
	FFmpegPath string `yaml:"ffmpeg_path"`
	MaxPending int    `yaml:"max_pending"`
	Fallback   bool   `yaml:"fallback"`

	// Batch
	Concurrency int `yaml:"concurrency"`

	Server ServerConfig `yaml:"server"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// ServerConfig represents the HTTP server settings.
type ServerConfig struct {
	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	UploadLimit     int64    `yaml:"upload_limit"`
	MultipartMemory int64    `yaml:"multipart_memory"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		// Extraction
		ChunkSize:   10 << 20,
		TimeoutMs:   30000,
		ToleranceMs: 100,

		// Output
		Quality: 80,

		// Decoding
		Fallback: true,

		// Batch
		Concurrency: 2,

		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"http://localhost:5173"},
			UploadLimit:     200 << 20,
			MultipartMemory: 10 << 20,
		},

		LogLevel: "info",

		// Debug
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvPort           = "PORT"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
	EnvTimeoutMs      = "FRAMEGRAB_TIMEOUT_MS"
	EnvToleranceMs    = "FRAMEGRAB_TOLERANCE_MS"
	EnvQuality        = "FRAMEGRAB_QUALITY"
	EnvMaxWidth       = "FRAMEGRAB_MAX_WIDTH"
	EnvFFmpegPath     = "FRAMEGRAB_FFMPEG_PATH"
	EnvFallback       = "FRAMEGRAB_FALLBACK"
	EnvUploadLimit    = "FRAMEGRAB_UPLOAD_LIMIT"
	EnvLogLevel       = "FRAMEGRAB_LOG_LEVEL"
	EnvDebugDir       = "FRAMEGRAB_DEBUG_DIR"
)

// ApplyEnv loads the given dotenv files (missing files are ignored) and
// overlays environment variables onto cfg. Variables already set in the
// process environment win over dotenv values.
func ApplyEnv(cfg *Config, files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return fmt.Errorf("load env: %w", err)
		}
	}

	if v := os.Getenv(EnvPort); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvDebugDir); v != "" {
		cfg.DebugDir = v
		cfg.Debug = true
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvTimeoutMs, &cfg.TimeoutMs},
		{EnvToleranceMs, &cfg.ToleranceMs},
		{EnvQuality, &cfg.Quality},
		{EnvMaxWidth, &cfg.MaxWidth},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}

	if v := os.Getenv(EnvUploadLimit); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUploadLimit, err)
		}
		cfg.Server.UploadLimit = n
	}
	if v := os.Getenv(EnvFallback); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFallback, err)
		}
		cfg.Fallback = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseColor parses "#rrggbb" or "#rrggbbaa" into a color. It returns nil
// for an empty or malformed string so callers keep their default.
func ParseColor(hex string) color.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return nil
	}

	var rgba [4]uint8
	rgba[3] = 255
	for i := 0; i < len(hex)/2; i++ {
		hi, ok1 := hexValue(hex[2*i])
		lo, ok2 := hexValue(hex[2*i+1])
		if !ok1 || !ok2 {
			return nil
		}
		rgba[i] = hi<<4 | lo
	}

	return color.NRGBA{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]}
}

func hexValue(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// ToFramegrabConfig converts Config to framegrab.Config through the
// builder, so out-of-range values fall back to defaults.
func (c Config) ToFramegrabConfig() framegrab.Config {
	return framegrab.NewConfigBuilder().
		WithChunkSize(c.ChunkSize).
		WithTimeout(time.Duration(c.TimeoutMs) * time.Millisecond).
		WithTolerance(time.Duration(c.ToleranceMs) * time.Millisecond).
		WithQuality(c.Quality).
		WithMaxWidth(c.MaxWidth).
		WithLabels(c.Labels).
		WithFont(c.FontPath).
		WithLabelColors(ParseColor(c.LabelColor), ParseColor(c.BandColor)).
		WithFFmpegPath(c.FFmpegPath).
		WithMaxPending(c.MaxPending).
		WithFallback(c.Fallback).
		Build()
}

// DebugOutputDir returns the debug directory, or "" when debug output is off.
func (c Config) DebugOutputDir() string {
	if !c.Debug {
		return ""
	}
	return c.DebugDir
}
