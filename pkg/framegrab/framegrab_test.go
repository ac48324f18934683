package framegrab

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/pipeline"
)

type harness struct {
	fs       *mocks.FileSystem
	fallback *mocks.FallbackExtractor
	adapters Adapters
}

func newHarness(files map[string][]byte) *harness {
	fs := mocks.NewFileSystem()
	for path, data := range files {
		_ = fs.WriteFile(path, data)
	}
	fb := &mocks.FallbackExtractor{}
	return &harness{
		fs:       fs,
		fallback: fb,
		adapters: Adapters{
			FileSystem: fs,
			Renderer:   &mocks.Renderer{},
			Decoders:   &mocks.DecoderFactory{},
			Fallback:   fb,
			Logger:     logger.NewNoop(),
		},
	}
}

func TestConfigBuilder_Defaults(t *testing.T) {
	cfg := NewConfigBuilder().Build()

	if cfg.ChunkSize != 10<<20 {
		t.Errorf("expected 10 MiB chunks, got %d", cfg.ChunkSize)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Timeout)
	}
	if cfg.Tolerance != 100*time.Millisecond {
		t.Errorf("expected 100ms tolerance, got %v", cfg.Tolerance)
	}
	if cfg.Quality != 80 {
		t.Errorf("expected quality 80, got %d", cfg.Quality)
	}
	if !cfg.Fallback {
		t.Error("fallback should be enabled by default")
	}
}

func TestConfigBuilder_Clamps(t *testing.T) {
	cfg := NewConfigBuilder().
		WithChunkSize(10).
		WithTimeout(-time.Second).
		WithTolerance(-time.Second).
		WithQuality(101).
		WithMaxWidth(-5).
		WithMaxPending(-1).
		Build()

	d := DefaultConfig()
	if cfg.ChunkSize != d.ChunkSize || cfg.Timeout != d.Timeout || cfg.Quality != d.Quality {
		t.Errorf("out-of-range values should fall back to defaults: %+v", cfg)
	}
	if cfg.Tolerance != 0 || cfg.MaxWidth != 0 || cfg.MaxPending != 0 {
		t.Errorf("negative values should clamp to zero: %+v", cfg)
	}
}

func TestConfigBuilder_Conversions(t *testing.T) {
	cfg := NewConfigBuilder().
		WithQualityPreset(QualityHigh).
		WithMaxWidth(640).
		WithLabels(true).
		WithFont("/fonts/a.ttf").
		WithTolerance(40 * time.Millisecond).
		WithFallback(false).
		Build()

	oc := cfg.ToOrchestratorConfig()
	if oc.Tolerance != 40*time.Millisecond || oc.ChunkSize != cfg.ChunkSize {
		t.Errorf("unexpected orchestrator config %+v", oc)
	}
	mo := cfg.ToMaterializeOptions()
	if mo.Quality != 92 || mo.MaxWidth != 640 || !mo.Labels || mo.FontPath != "/fonts/a.ttf" {
		t.Errorf("unexpected materialize options %+v", mo)
	}
	if cfg.Fallback {
		t.Error("fallback should be disabled")
	}
}

func TestPresetQuality(t *testing.T) {
	cases := map[QualityPreset]int{
		QualityLow:    60,
		QualityMedium: 80,
		QualityHigh:   92,
		"unknown":     80,
	}
	for preset, want := range cases {
		if got := PresetQuality(preset); got != want {
			t.Errorf("%s: expected %d, got %d", preset, want, got)
		}
	}
}

func TestExtractor_ExtractFile(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 50, GOP: 10})
	h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	targets := pipeline.NewTargets(0.4, 1.0, 99)
	result, err := e.ExtractFile(context.Background(), "/in/clip.mp4", targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Shots) != 3 {
		t.Fatalf("expected 3 shots, got %d", len(result.Shots))
	}
	for i, want := range []bool{true, true, false} {
		if result.Shots[i].Present() != want {
			t.Errorf("shot %d: present=%v, want %v", i, result.Shots[i].Present(), want)
		}
	}
	if result.Shots[0].Source != pipeline.SourceDecoder {
		t.Errorf("expected decoder source, got %q", result.Shots[0].Source)
	}
	if len(h.fallback.Paths) != 0 {
		t.Error("fallback should not run when decoding works")
	}
}

func TestExtractor_ExtractFile_Missing(t *testing.T) {
	h := newHarness(nil)
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	result, err := e.ExtractFile(context.Background(), "/nope.mp4", pipeline.NewTargets(1))
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(result.Shots) != 1 || result.Shots[0].Present() {
		t.Error("a failed open still reports every target as absent")
	}
	if result.Reason != pipeline.FinishFailed {
		t.Errorf("expected failed reason, got %s", result.Reason)
	}
}

func TestExtractor_FallbackOnConfigurationError(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 20, NoDescription: true})
	h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
	h.fallback.ExtractFramesFunc = func(ctx context.Context, path string, seconds []float64) ([]image.Image, error) {
		return []image.Image{mocks.FrameImage(16, 16, 0), nil}, nil
	}
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	result, err := e.ExtractFile(context.Background(), "/in/clip.mp4", pipeline.NewTargets(0.2, 0.5))
	if err != nil {
		t.Fatalf("fallback should absorb the configuration error, got %v", err)
	}
	if len(h.fallback.Paths) != 1 || h.fallback.Paths[0] != "/in/clip.mp4" {
		t.Errorf("unexpected fallback calls %v", h.fallback.Paths)
	}
	if !result.Shots[0].Present() || result.Shots[0].Source != pipeline.SourceFallback {
		t.Errorf("expected a fallback shot, got %+v", result.Shots[0])
	}
	if result.Shots[1].Present() {
		t.Error("target without a fallback frame should be absent")
	}
	if result.Reason != pipeline.FinishDrained {
		t.Errorf("expected drained, got %s", result.Reason)
	}
	if result.Track == nil {
		t.Error("track metadata should survive the fallback")
	}
}

func TestExtractor_FallbackKeepsFramesAtDeadline(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 20, NoDescription: true})
	h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
	h.fallback.ExtractFramesFunc = func(ctx context.Context, path string, seconds []float64) ([]image.Image, error) {
		return []image.Image{mocks.FrameImage(16, 16, 0), nil, nil}, context.DeadlineExceeded
	}
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	result, err := e.ExtractFile(context.Background(), "/in/clip.mp4", pipeline.NewTargets(0.2, 0.4, 0.6))
	if err != nil {
		t.Fatalf("partial fallback output should be returned, got %v", err)
	}
	if len(result.Shots) != 3 {
		t.Fatalf("expected 3 shots, got %d", len(result.Shots))
	}
	if !result.Shots[0].Present() || result.Shots[0].Source != pipeline.SourceFallback {
		t.Errorf("expected the frame produced before the deadline, got %+v", result.Shots[0])
	}
	if result.Shots[1].Present() || result.Shots[2].Present() {
		t.Error("targets past the deadline should be absent")
	}
	if result.Reason != pipeline.FinishTimeout {
		t.Errorf("expected timeout, got %s", result.Reason)
	}
}

func TestExtractor_FallbackDisabled(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 20, NoDescription: true})
	h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
	e := NewWithAdapters(NewConfigBuilder().WithFallback(false).Build(), h.adapters)

	_, err := e.ExtractFile(context.Background(), "/in/clip.mp4", pipeline.NewTargets(0.2))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if len(h.fallback.Paths) != 0 {
		t.Error("disabled fallback must not run")
	}
}

func TestExtractor_FallbackNotPossible(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 20, NoDescription: true})

	t.Run("unavailable", func(t *testing.T) {
		h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
		h.fallback.AvailableFunc = func() bool { return false }
		e := NewWithAdapters(DefaultConfig(), h.adapters)

		_, err := e.ExtractFile(context.Background(), "/in/clip.mp4", pipeline.NewTargets(0.2))
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("not file-backed", func(t *testing.T) {
		h := newHarness(nil)
		e := NewWithAdapters(DefaultConfig(), h.adapters)

		_, err := e.Extract(context.Background(), mocks.NewSource(fx.Data, ""), pipeline.NewTargets(0.2))
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
		if len(h.fallback.Paths) != 0 {
			t.Error("fallback needs a file path")
		}
	})

	t.Run("fallback fails", func(t *testing.T) {
		h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
		h.fallback.ExtractFramesFunc = func(ctx context.Context, path string, seconds []float64) ([]image.Image, error) {
			return nil, errors.New("boom")
		}
		e := NewWithAdapters(DefaultConfig(), h.adapters)

		result, err := e.ExtractFile(context.Background(), "/in/clip.mp4", pipeline.NewTargets(0.2))
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
		if result.Found() != 0 {
			t.Error("expected no shots")
		}
	})
}

func TestExtractor_ParseErrorSkipsFallback(t *testing.T) {
	h := newHarness(map[string][]byte{"/in/junk.mp4": bytes.Repeat([]byte{0xff}, 1000)})
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	_, err := e.ExtractFile(context.Background(), "/in/junk.mp4", pipeline.NewTargets(1))
	if !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
	if len(h.fallback.Paths) != 0 {
		t.Error("fallback only covers configuration errors")
	}
}

func TestExtractor_DebugOutput(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 20, GOP: 10})
	h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
	h.adapters.DebugDir = "/debug"
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	if _, err := e.ExtractFile(context.Background(), "/in/clip.mp4", pipeline.NewTargets(0.4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"/debug/clip/track.json", "/debug/clip/plan.json", "/debug/clip/report.json"} {
		if _, ok := h.fs.GetFile(name); !ok {
			t.Errorf("expected %s to be written", name)
		}
	}
}

func TestExtractor_Probe(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 50, GOP: 10})
	h := newHarness(nil)
	e := NewWithAdapters(NewConfigBuilder().WithChunkSize(4096).Build(), h.adapters)

	res, err := e.Probe(context.Background(), mocks.NewSource(fx.Data, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Samples != 50 || res.SyncSamples != 5 {
		t.Errorf("expected 50 samples with 5 sync, got %d/%d", res.Samples, res.SyncSamples)
	}
	if res.Seconds != 2.0 {
		t.Errorf("expected 2s span, got %v", res.Seconds)
	}
	if res.Track.CodecString != "avc1.42c01e" {
		t.Errorf("unexpected codec %q", res.Track.CodecString)
	}
	if res.Damaged {
		t.Error("intact file reported as damaged")
	}
}

func TestExtractor_Probe_Unparseable(t *testing.T) {
	h := newHarness(nil)
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	_, err := e.Probe(context.Background(), mocks.NewSource(make([]byte, 64), ""))
	if !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestExtractor_Batch(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 50, GOP: 10})
	h := newHarness(map[string][]byte{
		"/in/a.mp4": fx.Data,
		"/in/b.mp4": fx.Data,
	})
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	jobs := []Job{
		{Name: "a", Path: "/in/a.mp4", Targets: pipeline.NewTargets(0.4)},
		{Name: "missing", Path: "/in/missing.mp4", Targets: pipeline.NewTargets(0.4)},
		{Name: "b", Path: "/in/b.mp4", Targets: pipeline.NewTargets(1.0, 1.2)},
	}
	results, err := e.Batch(context.Background(), jobs, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Result.Found() != 1 {
		t.Errorf("job a: err=%v found=%d", results[0].Err, results[0].Result.Found())
	}
	if results[1].Err == nil {
		t.Error("job missing: expected an error")
	}
	if results[2].Err != nil || results[2].Result.Found() != 2 {
		t.Errorf("job b: err=%v found=%d", results[2].Err, results[2].Result.Found())
	}
	if results[2].Job.Name != "b" {
		t.Errorf("results out of order: %s", results[2].Job.Name)
	}
}

func TestExtractor_BatchCanceled(t *testing.T) {
	h := newHarness(nil)
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := e.Batch(ctx, []Job{{Path: "/in/a.mp4", Targets: pipeline.NewTargets(1)}}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Error("unstarted job should carry the context error")
	}
}
