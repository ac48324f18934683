// Package materialize turns matched frames into JPEG shots.
package materialize

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// Options configures the output images.
type Options struct {
	Quality  int  // JPEG quality, 1-100
	MaxWidth int  // 0 keeps the decoded width
	Labels   bool // draw the target label in a band at the bottom
	FontPath string

	LabelColor color.Color // default white
	BandColor  color.Color // default translucent black
}

// DefaultOptions returns the default materializer options.
func DefaultOptions() Options {
	return Options{Quality: 80}
}

var (
	bandColor  = color.RGBA{0, 0, 0, 160}
	labelColor = color.White
)

// Stage encodes one frame per call. Every call draws on a fresh canvas, so
// the stage may run concurrently with decoding and with itself.
type Stage struct {
	renderer ports.Renderer
	sink     ports.DebugSink
	logger   ports.Logger
	opts     Options
}

// NewStage creates a materialize stage.
func NewStage(renderer ports.Renderer, sink ports.DebugSink, logger ports.Logger, opts Options) *Stage {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}
	if opts.LabelColor == nil {
		opts.LabelColor = labelColor
	}
	if opts.BandColor == nil {
		opts.BandColor = bandColor
	}
	return &Stage{
		renderer: renderer,
		sink:     sink,
		logger:   logger.WithComponent("materialize"),
		opts:     opts,
	}
}

// Execute encodes the frame for one target.
func (s *Stage) Execute(ctx context.Context, input pipeline.MaterializeInput) (pipeline.Shot, error) {
	shot := pipeline.Shot{Target: input.Target}

	if err := ctx.Err(); err != nil {
		return shot, err
	}
	if input.Image == nil {
		return shot, fmt.Errorf("target %d: no image", input.Target.ID)
	}

	if s.sink.Enabled() {
		if err := s.sink.SaveDecodedFrame(input.Target.ID, input.Image); err != nil {
			s.logger.Warn("Failed to save decoded frame %d: %v", input.Target.ID, err)
		}
	}

	img := s.scale(input.Image)
	bounds := img.Bounds()
	canvas := s.renderer.CreateCanvas(bounds.Dx(), bounds.Dy(), color.Black)
	canvas.DrawImage(img, -bounds.Min.X, -bounds.Min.Y)

	if s.opts.Labels && input.Target.Label != "" {
		s.drawLabel(canvas, input.Target.Label, bounds.Dx(), bounds.Dy())
	}

	data, err := s.renderer.EncodeImage(canvas.ToImage(), ports.FormatJPEG, s.opts.Quality)
	if err != nil {
		return shot, fmt.Errorf("target %d: %w", input.Target.ID, err)
	}

	shot.Image = data
	shot.TimestampUs = input.TimestampUs
	shot.Source = pipeline.SourceDecoder
	s.logger.Debug("Encoded target %d at %dus: %d bytes", input.Target.ID, input.TimestampUs, len(data))
	return shot, nil
}

// scale downsizes img to MaxWidth, keeping the aspect ratio.
func (s *Stage) scale(img image.Image) image.Image {
	b := img.Bounds()
	if s.opts.MaxWidth <= 0 || b.Dx() <= s.opts.MaxWidth {
		return img
	}
	height := b.Dy() * s.opts.MaxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	return s.renderer.ResizeImage(img, s.opts.MaxWidth, height)
}

func (s *Stage) drawLabel(canvas ports.Canvas, label string, width, height int) {
	fontSize := float64(height) / 20
	if fontSize < 10 {
		fontSize = 10
	}
	style := ports.TextStyle{
		FontSize: fontSize,
		FontPath: s.opts.FontPath,
		Color:    s.opts.LabelColor,
		Align:    ports.AlignCenter,
	}
	_, textHeight := canvas.MeasureText(label, style)
	band := int(textHeight*1.8) + 1
	if band > height {
		band = height
	}
	canvas.DrawRect(0, height-band, width, band, s.opts.BandColor)
	canvas.DrawText(label, width/2, height-band/2, style)
}
