package framegrab

import (
	"context"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/stages/composite"
	"github.com/user/framegrab/pkg/stages/layout"
)

// SheetOptions configures a contact sheet.
type SheetOptions struct {
	Columns   int
	CellWidth int  // frames are scaled to this width
	Captions  bool // label or time under every cell
}

// DefaultSheetOptions returns the default contact sheet options.
func DefaultSheetOptions() SheetOptions {
	return SheetOptions{Columns: 4, CellWidth: 320, Captions: true}
}

// ContactSheet tiles the shots of result into one JPEG, in target order.
// Absent shots keep their cell as a placeholder.
func (e *Extractor) ContactSheet(ctx context.Context, result pipeline.Result, opts SheetOptions) (pipeline.CompositeResult, error) {
	d := DefaultSheetOptions()
	if opts.Columns <= 0 {
		opts.Columns = d.Columns
	}
	if opts.CellWidth <= 0 {
		opts.CellWidth = d.CellWidth
	}

	var frameWidth, frameHeight int
	if result.Track != nil {
		frameWidth, frameHeight = result.Track.Width, result.Track.Height
	}
	cellWidth, cellHeight := layout.FitCell(frameWidth, frameHeight, opts.CellWidth)

	in := pipeline.LayoutInput{
		Count:      len(result.Shots),
		Columns:    opts.Columns,
		CellWidth:  cellWidth,
		CellHeight: cellHeight,
		Gap:        8,
		Padding:    8,
	}
	if opts.Captions {
		in.CaptionHeight = max(cellHeight/8, 14)
	}
	grid, err := layout.NewStage().Execute(ctx, in)
	if err != nil {
		return pipeline.CompositeResult{}, err
	}

	theme := composite.DefaultTheme()
	theme.FontPath = e.config.FontPath

	stage := composite.NewStage(e.adapters.Renderer, e.adapters.Logger, 0)
	return stage.Execute(ctx, pipeline.CompositeInput{
		Shots:   result.Shots,
		Layout:  grid,
		Theme:   theme,
		Quality: e.config.Quality,
	})
}
