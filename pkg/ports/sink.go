package ports

import (
	"image"
)

// DebugSink receives intermediate extraction results for inspection.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveTrackJSON saves the parsed track metadata.
	SaveTrackJSON(data []byte) error

	// SavePlanJSON saves the decode plan.
	SavePlanJSON(data []byte) error

	// SaveDecodedFrame saves a matched frame before encoding.
	SaveDecodedFrame(targetID int, img image.Image) error

	// SaveReportJSON saves the per-target summary of a finished extraction.
	SaveReportJSON(data []byte) error
}
