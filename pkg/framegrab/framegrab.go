// Package framegrab provides a high-level API for extracting still frames
// from video files.
package framegrab

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/framegrab/pkg/adapters/ffmpeg"
	"github.com/user/framegrab/pkg/adapters/ffmpegseek"
	"github.com/user/framegrab/pkg/adapters/filesink"
	"github.com/user/framegrab/pkg/adapters/ggrenderer"
	"github.com/user/framegrab/pkg/adapters/nullsink"
	"github.com/user/framegrab/pkg/adapters/osfilesystem"
	"github.com/user/framegrab/pkg/adapters/smartdecoder"
	"github.com/user/framegrab/pkg/orchestrator"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/stages/materialize"
	"github.com/user/framegrab/pkg/stages/plan"
)

// Re-exported so callers need not import the orchestrator.
var (
	ErrConfiguration = orchestrator.ErrConfiguration
	ErrParse         = orchestrator.ErrParse
)

// Adapters are the ports an Extractor runs on.
type Adapters struct {
	FileSystem ports.FileSystem
	Renderer   ports.Renderer
	Decoders   ports.DecoderFactory
	Fallback   ports.FallbackExtractor // nil disables the fallback
	Logger     ports.Logger
	DebugDir   string // "" disables debug output
}

// Extractor extracts frames for caller-supplied timestamps. It holds no
// per-request state and may be shared between goroutines.
type Extractor struct {
	config   Config
	adapters Adapters
	logger   ports.Logger
}

// New creates an Extractor on the ffmpeg-backed adapters.
func New(config Config, logger ports.Logger, debugDir string) *Extractor {
	return NewWithAdapters(config, Adapters{
		FileSystem: osfilesystem.New(),
		Renderer:   ggrenderer.New(),
		Decoders:   smartdecoder.New(smartdecoder.Options{FFmpegPath: config.FFmpegPath, MaxPending: config.MaxPending}),
		Fallback:   ffmpegseek.New(logger),
		Logger:     logger,
		DebugDir:   debugDir,
	})
}

// NewWithAdapters creates an Extractor on the given adapters.
func NewWithAdapters(config Config, adapters Adapters) *Extractor {
	return &Extractor{
		config:   config,
		adapters: adapters,
		logger:   adapters.Logger.WithComponent("framegrab"),
	}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.config
}

// ExtractFile opens path and extracts a frame for every target.
func (e *Extractor) ExtractFile(ctx context.Context, path string, targets []pipeline.Target) (pipeline.Result, error) {
	return e.extractFile(ctx, path, targets, debugName(path))
}

func (e *Extractor) extractFile(ctx context.Context, path string, targets []pipeline.Target, name string) (pipeline.Result, error) {
	source, err := e.adapters.FileSystem.Open(path)
	if err != nil {
		return emptyResult(targets), fmt.Errorf("open %s: %w", path, err)
	}
	defer source.Close()
	return e.extract(ctx, source, targets, name)
}

// Extract extracts a frame for every target from source. The result always
// holds one shot per target. The error is non-nil only when in-process
// extraction is impossible and the fallback could not stand in, or when
// nothing could be parsed.
func (e *Extractor) Extract(ctx context.Context, source ports.Source, targets []pipeline.Target) (pipeline.Result, error) {
	return e.extract(ctx, source, targets, debugName(source.Path()))
}

func (e *Extractor) extract(ctx context.Context, source ports.Source, targets []pipeline.Target, name string) (pipeline.Result, error) {
	sink := e.sink(name)
	matStage := materialize.NewStage(e.adapters.Renderer, sink, e.adapters.Logger, e.config.ToMaterializeOptions())
	orch := orchestrator.New(
		plan.NewStage(e.adapters.Logger, e.config.Tolerance),
		matStage,
		e.adapters.Decoders,
		sink,
		e.adapters.Logger,
		e.config.ToOrchestratorConfig(),
	)

	result, err := orch.Extract(ctx, source, targets)
	if err == nil || !errors.Is(err, ErrConfiguration) || !e.config.Fallback {
		return result, err
	}

	fallback, fbErr := e.runFallback(ctx, source, targets, matStage, result)
	if fbErr != nil {
		e.logger.Warn("Fallback unavailable: %v", fbErr)
		return result, err
	}
	return fallback, nil
}

// errNoFallback reports why the fallback could not run.
var errNoFallback = errors.New("framegrab: fallback not possible")

func (e *Extractor) runFallback(ctx context.Context, source ports.Source, targets []pipeline.Target, stage *materialize.Stage, failed pipeline.Result) (pipeline.Result, error) {
	switch {
	case e.adapters.Fallback == nil:
		return failed, fmt.Errorf("%w: no fallback extractor", errNoFallback)
	case source.Path() == "":
		return failed, fmt.Errorf("%w: source is not file-backed", errNoFallback)
	case !e.adapters.Fallback.Available():
		return failed, fmt.Errorf("%w: %v", errNoFallback, ffmpeg.ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	e.logger.Info("Falling back to whole-file extraction for %d targets", len(targets))

	seconds := make([]float64, len(targets))
	for i, t := range targets {
		seconds[i] = t.Seconds
	}
	images, err := e.adapters.Fallback.ExtractFrames(ctx, source.Path(), seconds)
	stopped := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if err != nil && !stopped {
		return failed, fmt.Errorf("%w: %v", errNoFallback, err)
	}
	// Frames produced before the deadline are still encoded.
	encodeCtx := context.WithoutCancel(ctx)

	result := pipeline.Result{
		Shots:  make([]pipeline.Shot, len(targets)),
		Reason: pipeline.FinishComplete,
		Track:  failed.Track,
	}
	for i := range targets {
		t := failed.Shots[i].Target
		result.Shots[i] = pipeline.Shot{Target: t}
		if i >= len(images) || images[i] == nil {
			continue
		}
		shot, err := stage.Execute(encodeCtx, pipeline.MaterializeInput{
			Target:      t,
			Image:       images[i],
			TimestampUs: t.Micros(),
		})
		if err != nil {
			e.logger.Warn("Failed to encode fallback frame for target %d: %v", t.ID, err)
			continue
		}
		shot.Source = pipeline.SourceFallback
		result.Shots[i] = shot
	}
	if result.Found() < len(targets) {
		result.Reason = pipeline.FinishDrained
	}
	if (stopped || ctx.Err() != nil) && result.Found() < len(targets) {
		result.Reason = pipeline.FinishTimeout
		if errors.Is(err, context.Canceled) {
			result.Reason = pipeline.FinishCanceled
		}
	}

	e.logger.Info("Fallback produced %d of %d frames", result.Found(), len(targets))
	return result, nil
}

func (e *Extractor) sink(name string) ports.DebugSink {
	if e.adapters.DebugDir == "" {
		return nullsink.New()
	}
	return filesink.New(e.adapters.DebugDir, e.adapters.FileSystem, e.adapters.Renderer).Sub(name)
}

// debugName derives a directory name for debug output from a file path.
func debugName(path string) string {
	if path == "" {
		return "source"
	}
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func emptyResult(targets []pipeline.Target) pipeline.Result {
	result := pipeline.Result{
		Shots:  make([]pipeline.Shot, len(targets)),
		Reason: pipeline.FinishFailed,
	}
	for i, t := range targets {
		result.Shots[i] = pipeline.Shot{Target: t}
	}
	return result
}
