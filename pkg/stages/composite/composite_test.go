package composite

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/stages/layout"
)

// recordingCanvas records draw calls in order.
type recordingCanvas struct {
	mocks.Canvas
	width, height int
	images        []image.Point
	rects         []pipeline.Rectangle
	rectColors    []color.Color
	texts         []string
}

func (c *recordingCanvas) DrawImage(img image.Image, x, y int) {
	c.images = append(c.images, image.Pt(x, y))
}

func (c *recordingCanvas) DrawRect(x, y, w, h int, col color.Color) {
	c.rects = append(c.rects, pipeline.Rectangle{X: x, Y: y, Width: w, Height: h})
	c.rectColors = append(c.rectColors, col)
}

func (c *recordingCanvas) DrawText(text string, x, y int, style ports.TextStyle) {
	c.texts = append(c.texts, text)
}

func (c *recordingCanvas) ToImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, c.width, c.height))
}

func newRenderer(canvas **recordingCanvas) *mocks.Renderer {
	r := &mocks.Renderer{}
	r.CreateCanvasFunc = func(width, height int, bg color.Color) ports.Canvas {
		*canvas = &recordingCanvas{width: width, height: height}
		return *canvas
	}
	return r
}

func shots() []pipeline.Shot {
	return []pipeline.Shot{
		{Target: pipeline.Target{ID: 0, Seconds: 1.5, Label: "Kickoff"}, Image: []byte{0xFF, 0xD8}},
		{Target: pipeline.Target{ID: 1, Seconds: 12.25}},
		{Target: pipeline.Target{ID: 2, Seconds: 40}, Image: []byte{0xFF, 0xD8}},
	}
}

func sheetLayout(count int) pipeline.LayoutResult {
	return layout.ComputeLayout(pipeline.LayoutInput{
		Count: count, Columns: 2, CellWidth: 100, CellHeight: 100, CaptionHeight: 20, Gap: 10, Padding: 10,
	})
}

func TestStage_Execute(t *testing.T) {
	var canvas *recordingCanvas
	renderer := newRenderer(&canvas)
	var quality int
	renderer.EncodeImageFunc = func(img image.Image, format ports.ImageFormat, q int) ([]byte, error) {
		quality = q
		return []byte("sheet"), nil
	}

	stage := NewStage(renderer, logger.NewNoop(), 2)
	result, err := stage.Execute(context.Background(), pipeline.CompositeInput{
		Shots:   shots(),
		Layout:  sheetLayout(3),
		Quality: 90,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(result.Image) != "sheet" || quality != 90 {
		t.Errorf("unexpected encode: %q at %d", result.Image, quality)
	}
	if result.Placed != 2 {
		t.Errorf("expected 2 placed shots, got %d", result.Placed)
	}
	if result.Width != canvas.width || result.Height != canvas.height {
		t.Errorf("result size %dx%d differs from canvas %dx%d", result.Width, result.Height, canvas.width, canvas.height)
	}

	// The mock decoder yields 100x100 images, which fill the cell exactly.
	wantImages := []image.Point{{X: 10, Y: 10}, {X: 10, Y: 140}}
	if len(canvas.images) != 2 || canvas.images[0] != wantImages[0] || canvas.images[1] != wantImages[1] {
		t.Errorf("expected images at %v, got %v", wantImages, canvas.images)
	}
	if len(canvas.rects) != 1 || canvas.rects[0] != (pipeline.Rectangle{X: 120, Y: 10, Width: 100, Height: 100}) {
		t.Errorf("expected one placeholder in cell 1, got %v", canvas.rects)
	}
	if canvas.rectColors[0] != DefaultTheme().Placeholder {
		t.Errorf("expected default placeholder color, got %v", canvas.rectColors[0])
	}

	wantTexts := []string{"Kickoff", "12.250s", "40.000s"}
	if len(canvas.texts) != 3 {
		t.Fatalf("expected 3 captions, got %v", canvas.texts)
	}
	for i, want := range wantTexts {
		if canvas.texts[i] != want {
			t.Errorf("caption %d: expected %q, got %q", i, want, canvas.texts[i])
		}
	}
}

func TestStage_Execute_FitsAspectRatio(t *testing.T) {
	var canvas *recordingCanvas
	renderer := newRenderer(&canvas)
	renderer.DecodeImageFunc = func(data []byte, format ports.ImageFormat) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 400, 200)), nil
	}
	var mu sync.Mutex
	var sizes [][2]int
	renderer.ResizeImageFunc = func(img image.Image, width, height int) image.Image {
		mu.Lock()
		sizes = append(sizes, [2]int{width, height})
		mu.Unlock()
		return image.NewRGBA(image.Rect(0, 0, width, height))
	}

	stage := NewStage(renderer, logger.NewNoop(), 1)
	_, err := stage.Execute(context.Background(), pipeline.CompositeInput{
		Shots:  shots()[:1],
		Layout: sheetLayout(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sizes) != 1 || sizes[0] != [2]int{100, 50} {
		t.Errorf("expected resize to 100x50, got %v", sizes)
	}
	// Centered vertically in the 100px cell.
	if len(canvas.images) != 1 || canvas.images[0] != (image.Point{X: 10, Y: 35}) {
		t.Errorf("unexpected position %v", canvas.images)
	}
}

func TestStage_Execute_DecodeFailureLeavesPlaceholder(t *testing.T) {
	var canvas *recordingCanvas
	renderer := newRenderer(&canvas)
	renderer.DecodeImageFunc = func(data []byte, format ports.ImageFormat) (image.Image, error) {
		return nil, errors.New("corrupt")
	}

	stage := NewStage(renderer, logger.NewNoop(), 4)
	result, err := stage.Execute(context.Background(), pipeline.CompositeInput{
		Shots:  shots(),
		Layout: sheetLayout(3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Placed != 0 || len(canvas.rects) != 3 {
		t.Errorf("expected 3 placeholders, got placed=%d rects=%d", result.Placed, len(canvas.rects))
	}
}

func TestStage_Execute_Empty(t *testing.T) {
	renderer := &mocks.Renderer{}
	stage := NewStage(renderer, logger.NewNoop(), 1)

	result, err := stage.Execute(context.Background(), pipeline.CompositeInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Image != nil || renderer.Canvases() != 0 {
		t.Error("expected no sheet for no shots")
	}
}

func TestStage_Execute_LayoutMismatch(t *testing.T) {
	stage := NewStage(&mocks.Renderer{}, logger.NewNoop(), 1)
	_, err := stage.Execute(context.Background(), pipeline.CompositeInput{
		Shots:  shots(),
		Layout: sheetLayout(2),
	})
	if err == nil {
		t.Error("expected error for a layout with too few cells")
	}
}

func TestStage_Execute_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage := NewStage(&mocks.Renderer{}, logger.NewNoop(), 2)
	_, err := stage.Execute(ctx, pipeline.CompositeInput{
		Shots:  shots(),
		Layout: sheetLayout(3),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCaption(t *testing.T) {
	if got := Caption(pipeline.Shot{Target: pipeline.Target{Seconds: 3, Label: "Goal"}}); got != "Goal" {
		t.Errorf("expected label, got %q", got)
	}
	if got := Caption(pipeline.Shot{Target: pipeline.Target{Seconds: 0.04}}); got != "0.040s" {
		t.Errorf("expected time, got %q", got)
	}
}
