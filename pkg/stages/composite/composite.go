// Package composite draws extracted shots onto a contact sheet.
package composite

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// DefaultTheme returns the default contact sheet colors.
func DefaultTheme() pipeline.SheetTheme {
	return pipeline.SheetTheme{
		Background:  color.RGBA{24, 24, 24, 255},
		Placeholder: color.RGBA{56, 56, 56, 255},
		Caption:     color.RGBA{230, 230, 230, 255},
	}
}

// Stage composes shots into a single JPEG.
type Stage struct {
	renderer   ports.Renderer
	logger     ports.Logger
	numWorkers int
}

// NewStage creates a new composite stage.
func NewStage(renderer ports.Renderer, logger ports.Logger, numWorkers int) *Stage {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Stage{
		renderer:   renderer,
		logger:     logger.WithComponent("composite"),
		numWorkers: numWorkers,
	}
}

// Execute draws every shot into its layout cell. Absent shots and shots that
// fail to decode leave a placeholder.
func (s *Stage) Execute(ctx context.Context, input pipeline.CompositeInput) (pipeline.CompositeResult, error) {
	layout := input.Layout
	if len(input.Shots) == 0 || layout.Width <= 0 || layout.Height <= 0 {
		return pipeline.CompositeResult{}, nil
	}
	if len(layout.Cells) < len(input.Shots) {
		return pipeline.CompositeResult{}, fmt.Errorf("layout has %d cells for %d shots", len(layout.Cells), len(input.Shots))
	}

	theme := withDefaults(input.Theme)
	quality := input.Quality
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	s.logger.Debug("Compositing %d shots with %d workers", len(input.Shots), s.numWorkers)

	tiles, err := s.prepareTiles(ctx, input)
	if err != nil {
		return pipeline.CompositeResult{}, err
	}

	canvas := s.renderer.CreateCanvas(layout.Width, layout.Height, theme.Background)
	placed := 0
	for i, shot := range input.Shots {
		cell := layout.Cells[i]
		if tile := tiles[i]; tile != nil {
			b := tile.Bounds()
			x := cell.X + (cell.Width-b.Dx())/2 - b.Min.X
			y := cell.Y + (cell.Height-b.Dy())/2 - b.Min.Y
			canvas.DrawImage(tile, x, y)
			placed++
		} else {
			canvas.DrawRect(cell.X, cell.Y, cell.Width, cell.Height, theme.Placeholder)
		}

		if i < len(layout.Captions) {
			s.drawCaption(canvas, Caption(shot), layout.Captions[i], theme)
		}
	}

	data, err := s.renderer.EncodeImage(canvas.ToImage(), ports.FormatJPEG, quality)
	if err != nil {
		return pipeline.CompositeResult{}, fmt.Errorf("encode contact sheet: %w", err)
	}

	s.logger.Debug("Contact sheet %dx%d with %d of %d shots", layout.Width, layout.Height, placed, len(input.Shots))
	return pipeline.CompositeResult{
		Image:  data,
		Width:  layout.Width,
		Height: layout.Height,
		Placed: placed,
	}, nil
}

// Caption returns the text shown under a shot: its label, or the requested
// time when it has none.
func Caption(shot pipeline.Shot) string {
	if shot.Target.Label != "" {
		return shot.Target.Label
	}
	return fmt.Sprintf("%.3fs", shot.Target.Seconds)
}

func (s *Stage) drawCaption(canvas ports.Canvas, text string, area pipeline.Rectangle, theme pipeline.SheetTheme) {
	style := ports.TextStyle{
		FontSize: float64(area.Height) * 0.6,
		FontPath: theme.FontPath,
		Color:    theme.Caption,
		Align:    ports.AlignCenter,
	}
	canvas.DrawText(text, area.X+area.Width/2, area.Y+area.Height/2, style)
}

// indexedTile holds a scaled shot with its position in the input.
type indexedTile struct {
	index int
	img   image.Image
}

// prepareTiles decodes and scales present shots using a worker pool. The
// returned slice is indexed like input.Shots, with nil for placeholders.
func (s *Stage) prepareTiles(ctx context.Context, input pipeline.CompositeInput) ([]image.Image, error) {
	numShots := len(input.Shots)
	jobs := make(chan int, numShots)
	results := make(chan indexedTile, numShots)

	var wg sync.WaitGroup
	for w := 0; w < s.numWorkers; w++ {
		wg.Add(1)
		go s.worker(ctx, &wg, input, jobs, results)
	}

	for i, shot := range input.Shots {
		if shot.Present() {
			jobs <- i
		}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	tiles := make([]image.Image, numShots)
	for r := range results {
		tiles[r.index] = r.img
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tiles, nil
}

func (s *Stage) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	input pipeline.CompositeInput,
	jobs <-chan int,
	results chan<- indexedTile,
) {
	defer wg.Done()

	for idx := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		img, err := s.renderer.DecodeImage(input.Shots[idx].Image, ports.FormatJPEG)
		if err != nil {
			s.logger.Warn("Failed to decode shot %d: %v", input.Shots[idx].Target.ID, err)
			continue
		}
		cell := input.Layout.Cells[idx]
		results <- indexedTile{index: idx, img: s.fit(img, cell.Width, cell.Height)}
	}
}

// fit scales img to fit inside width x height, keeping the aspect ratio.
func (s *Stage) fit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return img
	}
	if (w == width && h <= height) || (h == height && w <= width) {
		return img
	}

	if w*height > h*width {
		h = max(h*width/w, 1)
		w = width
	} else {
		w = max(w*height/h, 1)
		h = height
	}
	return s.renderer.ResizeImage(img, w, h)
}

func withDefaults(theme pipeline.SheetTheme) pipeline.SheetTheme {
	d := DefaultTheme()
	if theme.Background == nil {
		theme.Background = d.Background
	}
	if theme.Placeholder == nil {
		theme.Placeholder = d.Placeholder
	}
	if theme.Caption == nil {
		theme.Caption = d.Caption
	}
	return theme
}
