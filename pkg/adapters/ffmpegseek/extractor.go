// Package ffmpegseek extracts frames by letting ffmpeg seek in the whole
// file. It is the fallback when frames cannot be decoded in-process.
package ffmpegseek

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/user/framegrab/pkg/adapters/ffmpeg"
	"github.com/user/framegrab/pkg/ports"
)

// ErrNoOutput is returned when ffmpeg exits cleanly without producing a frame.
var ErrNoOutput = errors.New("ffmpegseek: no frame produced")

// runFunc runs an executable and returns its stdout.
type runFunc func(ctx context.Context, path string, args ...string) ([]byte, error)

// Extractor implements ports.FallbackExtractor.
type Extractor struct {
	logger ports.Logger
	run    runFunc
}

// New creates a fallback extractor.
func New(logger ports.Logger) *Extractor {
	return &Extractor{
		logger: logger.WithComponent("fallback"),
		run:    runCommand,
	}
}

// Available reports whether ffmpeg can be found.
func (e *Extractor) Available() bool {
	return ffmpeg.Available(ffmpeg.FFmpeg)
}

// ExtractFrames returns one image per requested time, nil where no frame
// could be produced. Times at or past the probed duration are skipped.
func (e *Extractor) ExtractFrames(ctx context.Context, path string, seconds []float64) ([]image.Image, error) {
	ffmpegPath, err := ffmpeg.Find(ffmpeg.FFmpeg)
	if err != nil {
		return nil, err
	}

	duration, err := e.duration(ctx, path)
	if err != nil {
		e.logger.Warn("Could not get video duration: %v", err)
		duration = -1
	} else {
		e.logger.Debug("Video duration: %.2f seconds", duration)
	}

	images := make([]image.Image, len(seconds))
	for i, ts := range seconds {
		if err := ctx.Err(); err != nil {
			return images, err
		}
		if ts < 0 || (duration >= 0 && ts >= duration) {
			e.logger.Debug("Skipping timestamp %.2fs (beyond video duration of %.2fs)", ts, duration)
			continue
		}

		img, err := e.extractDirect(ctx, ffmpegPath, path, ts)
		if err != nil {
			e.logger.Debug("Direct extraction failed at %.2fs, trying conversion: %v", ts, err)
			img, err = e.extractConverted(ctx, ffmpegPath, path, ts)
		}
		if err != nil {
			e.logger.Debug("Conversion failed at %.2fs, trying keyframe extraction: %v", ts, err)
			img, err = e.extractKeyframe(ctx, ffmpegPath, path, ts)
		}
		if err != nil {
			e.logger.Warn("Error extracting frame at %.2fs: %v", ts, err)
			continue
		}
		images[i] = img
	}
	return images, nil
}

func (e *Extractor) extractDirect(ctx context.Context, ffmpegPath, path string, ts float64) (image.Image, error) {
	return e.extract(ctx, ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(ts),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
}

// Segment bounds for extractConverted.
const (
	segmentLead     = 2.0
	segmentDuration = 5.0
)

// extractConverted re-encodes a short segment around ts to a plain MP4 and
// seeks in that. It recovers fragmented files ffmpeg cannot seek in.
func (e *Extractor) extractConverted(ctx context.Context, ffmpegPath, path string, ts float64) (image.Image, error) {
	f, err := os.CreateTemp("", "converted-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	converted := f.Name()
	f.Close()
	defer os.Remove(converted)

	start := ts - segmentLead
	if start < 0 {
		start = 0
	}
	_, err = e.run(ctx, ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(start),
		"-i", path,
		"-t", formatSeconds(segmentDuration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-threads", "1",
		"-an",
		"-y",
		converted,
	)
	if err != nil {
		return nil, fmt.Errorf("convert segment: %w", err)
	}

	return e.extractDirect(ctx, ffmpegPath, converted, ts-start)
}

// extractKeyframe decodes key frames only. It is faster and survives
// damaged streams but lands on the nearest key frame.
func (e *Extractor) extractKeyframe(ctx context.Context, ffmpegPath, path string, ts float64) (image.Image, error) {
	return e.extract(ctx, ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-skip_frame", "nokey",
		"-i", path,
		"-ss", formatSeconds(ts),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
}

func (e *Extractor) extract(ctx context.Context, ffmpegPath string, args ...string) (image.Image, error) {
	out, err := e.run(ctx, ffmpegPath, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoOutput
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// duration asks ffprobe for the container duration in seconds.
func (e *Extractor) duration(ctx context.Context, path string) (float64, error) {
	ffprobePath, err := ffmpeg.Find(ffmpeg.FFprobe)
	if err != nil {
		return 0, err
	}
	out, err := e.run(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func runCommand(ctx context.Context, path string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w, stderr: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Ensure Extractor implements ports.FallbackExtractor
var _ ports.FallbackExtractor = (*Extractor)(nil)
