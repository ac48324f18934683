package framegrab

import (
	"image/color"
	"time"

	"github.com/user/framegrab/pkg/orchestrator"
	"github.com/user/framegrab/pkg/stages/materialize"
)

// QualityPreset represents a JPEG quality preset name.
type QualityPreset string

const (
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
)

// PresetQuality returns the JPEG quality for the given preset.
func PresetQuality(preset QualityPreset) int {
	switch preset {
	case QualityLow:
		return 60
	case QualityHigh:
		return 92
	default: // medium
		return 80
	}
}

// Config represents the configuration for frame extraction.
type Config struct {
	// Reading
	ChunkSize int64 // Bytes per source read (default: 10 MiB)

	// Matching
	Timeout   time.Duration // Wall-clock budget per extraction (default: 30s)
	Tolerance time.Duration // Max distance between a target and its frame (default: 100ms)

	// Output
	Quality    int    // JPEG quality (1-100)
	MaxWidth   int    // Downscale wider frames (0 = keep)
	Labels     bool   // Draw target labels onto the frames
	FontPath   string // TTF/OTF used for labels ("" = built-in)
	LabelColor color.Color
	BandColor  color.Color

	// Decoding
	FFmpegPath string // Explicit ffmpeg binary ("" = search)
	MaxPending int    // Units buffered by the decoder before a forced drain

	// Fallback to whole-file ffmpeg seeking when the track cannot be decoded
	// in process.
	Fallback bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	oc := orchestrator.DefaultConfig()
	return Config{
		ChunkSize: oc.ChunkSize,
		Timeout:   oc.Timeout,
		Tolerance: oc.Tolerance,
		Quality:   PresetQuality(QualityMedium),
		Fallback:  true,
	}
}

// ConfigBuilder provides a fluent interface for building Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder creates a new ConfigBuilder with default values.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: DefaultConfig()}
}

// Build returns the configuration, replacing out-of-range values with
// defaults.
func (b *ConfigBuilder) Build() Config {
	c := b.config
	d := DefaultConfig()
	if c.ChunkSize < 4096 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Tolerance < 0 {
		c.Tolerance = 0
	}
	if c.Quality < 1 || c.Quality > 100 {
		c.Quality = d.Quality
	}
	if c.MaxWidth < 0 {
		c.MaxWidth = 0
	}
	if c.MaxPending < 0 {
		c.MaxPending = 0
	}
	return c
}

// WithChunkSize sets the number of bytes read per source window.
func (b *ConfigBuilder) WithChunkSize(bytes int64) *ConfigBuilder {
	b.config.ChunkSize = bytes
	return b
}

// WithTimeout sets the per-extraction deadline.
func (b *ConfigBuilder) WithTimeout(d time.Duration) *ConfigBuilder {
	b.config.Timeout = d
	return b
}

// WithTolerance sets the matching tolerance.
func (b *ConfigBuilder) WithTolerance(d time.Duration) *ConfigBuilder {
	b.config.Tolerance = d
	return b
}

// WithQuality sets the JPEG quality (1-100).
func (b *ConfigBuilder) WithQuality(quality int) *ConfigBuilder {
	b.config.Quality = quality
	return b
}

// WithQualityPreset sets the JPEG quality from a preset.
func (b *ConfigBuilder) WithQualityPreset(preset QualityPreset) *ConfigBuilder {
	b.config.Quality = PresetQuality(preset)
	return b
}

// WithMaxWidth downsizes frames wider than width.
func (b *ConfigBuilder) WithMaxWidth(width int) *ConfigBuilder {
	b.config.MaxWidth = width
	return b
}

// WithLabels enables the label band.
func (b *ConfigBuilder) WithLabels(enabled bool) *ConfigBuilder {
	b.config.Labels = enabled
	return b
}

// WithFont sets the label font file.
func (b *ConfigBuilder) WithFont(path string) *ConfigBuilder {
	b.config.FontPath = path
	return b
}

// WithLabelColors sets the label text and band colors. nil keeps the default.
func (b *ConfigBuilder) WithLabelColors(text, band color.Color) *ConfigBuilder {
	b.config.LabelColor = text
	b.config.BandColor = band
	return b
}

// WithFFmpegPath sets an explicit ffmpeg binary.
func (b *ConfigBuilder) WithFFmpegPath(path string) *ConfigBuilder {
	b.config.FFmpegPath = path
	return b
}

// WithMaxPending sets how many units the decoder buffers before draining.
func (b *ConfigBuilder) WithMaxPending(n int) *ConfigBuilder {
	b.config.MaxPending = n
	return b
}

// WithFallback enables or disables the whole-file fallback.
func (b *ConfigBuilder) WithFallback(enabled bool) *ConfigBuilder {
	b.config.Fallback = enabled
	return b
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ChunkSize: c.ChunkSize,
		Timeout:   c.Timeout,
		Tolerance: c.Tolerance,
	}
}

// ToMaterializeOptions converts Config to materialize.Options.
func (c Config) ToMaterializeOptions() materialize.Options {
	return materialize.Options{
		Quality:    c.Quality,
		MaxWidth:   c.MaxWidth,
		Labels:     c.Labels,
		FontPath:   c.FontPath,
		LabelColor: c.LabelColor,
		BandColor:  c.BandColor,
	}
}
