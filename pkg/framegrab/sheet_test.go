package framegrab

import (
	"context"
	"testing"

	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/pipeline"
)

func TestExtractor_ContactSheet(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 50, GOP: 10})
	h := newHarness(map[string][]byte{"/in/clip.mp4": fx.Data})
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	result, err := e.ExtractFile(context.Background(), "/in/clip.mp4", pipeline.NewTargets(0.4, 1.0, 99))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sheet, err := e.ContactSheet(context.Background(), result, SheetOptions{Columns: 2, CellWidth: 128, Captions: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sheet.Placed != 2 {
		t.Errorf("expected 2 placed shots, got %d", sheet.Placed)
	}
	// 64x48 frames at 128px wide are 96px tall, plus a 14px caption strip.
	if sheet.Width != 280 || sheet.Height != 244 {
		t.Errorf("expected 280x244, got %dx%d", sheet.Width, sheet.Height)
	}
	if len(sheet.Image) == 0 {
		t.Error("expected an encoded sheet")
	}
}

func TestExtractor_ContactSheet_Defaults(t *testing.T) {
	h := newHarness(nil)
	e := NewWithAdapters(DefaultConfig(), h.adapters)

	result := pipeline.Result{Shots: make([]pipeline.Shot, 5)}
	sheet, err := e.ContactSheet(context.Background(), result, SheetOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Four 320x180 cells per row, no captions, nothing placed.
	if sheet.Width != 1320 || sheet.Height != 384 {
		t.Errorf("expected 1320x384, got %dx%d", sheet.Width, sheet.Height)
	}
	if sheet.Placed != 0 {
		t.Errorf("expected no placed shots, got %d", sheet.Placed)
	}
}

func TestExtractor_ContactSheet_Empty(t *testing.T) {
	e := NewWithAdapters(DefaultConfig(), newHarness(nil).adapters)

	sheet, err := e.ContactSheet(context.Background(), pipeline.Result{}, DefaultSheetOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sheet.Image != nil {
		t.Error("expected no sheet without shots")
	}
}
