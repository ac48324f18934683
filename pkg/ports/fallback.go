package ports

import (
	"context"
	"image"
)

// FallbackExtractor grabs frames with an external whole-file tool when
// in-process decoding cannot be configured.
type FallbackExtractor interface {
	// Available reports whether the external tool can be run.
	Available() bool

	// ExtractFrames returns one image per entry of seconds, nil where no
	// frame could be produced.
	ExtractFrames(ctx context.Context, path string, seconds []float64) ([]image.Image, error)
}
