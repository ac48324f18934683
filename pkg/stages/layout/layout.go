// Package layout implements the contact sheet layout stage.
package layout

import (
	"context"

	"github.com/user/framegrab/pkg/pipeline"
)

// Stage calculates the grid for a contact sheet.
// This is a pure function with no external dependencies.
type Stage struct{}

// NewStage creates a new layout stage.
func NewStage() *Stage {
	return &Stage{}
}

// Execute calculates the layout based on the input parameters.
func (s *Stage) Execute(ctx context.Context, input pipeline.LayoutInput) (pipeline.LayoutResult, error) {
	return ComputeLayout(input), nil
}

// ComputeLayout places Count cells row by row, left to right.
//
// Columns is clamped to [1, Count]. Each row is CellHeight+CaptionHeight
// tall; captions sit directly under their cell. Padding surrounds the grid
// and Gap separates neighbouring cells in both directions.
func ComputeLayout(input pipeline.LayoutInput) pipeline.LayoutResult {
	if input.Count <= 0 || input.CellWidth <= 0 || input.CellHeight <= 0 {
		return pipeline.LayoutResult{}
	}

	columns := input.Columns
	if columns < 1 {
		columns = 1
	}
	if columns > input.Count {
		columns = input.Count
	}
	rows := (input.Count + columns - 1) / columns

	gap := max(input.Gap, 0)
	padding := max(input.Padding, 0)
	caption := max(input.CaptionHeight, 0)
	rowHeight := input.CellHeight + caption

	result := pipeline.LayoutResult{
		Width:  padding*2 + columns*input.CellWidth + gap*(columns-1),
		Height: padding*2 + rows*rowHeight + gap*(rows-1),
		Cells:  make([]pipeline.Rectangle, input.Count),
	}
	if caption > 0 {
		result.Captions = make([]pipeline.Rectangle, input.Count)
	}

	for i := 0; i < input.Count; i++ {
		col, row := i%columns, i/columns
		x := padding + col*(input.CellWidth+gap)
		y := padding + row*(rowHeight+gap)

		result.Cells[i] = pipeline.Rectangle{X: x, Y: y, Width: input.CellWidth, Height: input.CellHeight}
		if caption > 0 {
			result.Captions[i] = pipeline.Rectangle{X: x, Y: y + input.CellHeight, Width: input.CellWidth, Height: caption}
		}
	}

	// JPEG encoders and most viewers prefer even dimensions.
	result.Width = (result.Width + 1) / 2 * 2
	result.Height = (result.Height + 1) / 2 * 2
	return result
}

// FitCell returns the cell size for frames of the given dimensions scaled to
// cellWidth, keeping the aspect ratio.
func FitCell(frameWidth, frameHeight, cellWidth int) (int, int) {
	if frameWidth <= 0 || frameHeight <= 0 || cellWidth <= 0 {
		return cellWidth, cellWidth * 9 / 16
	}
	h := frameHeight * cellWidth / frameWidth
	if h < 1 {
		h = 1
	}
	return cellWidth, h
}
