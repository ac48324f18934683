package pipeline

import (
	"encoding/base64"
	"image"
	"image/color"
	"math"

	"github.com/user/framegrab/pkg/adapters/codecdetect"
)

// =============================================================================
// Container Types
// =============================================================================

// Sample is one compressed access unit of the video track.
// Times are expressed in track timescale ticks.
type Sample struct {
	Index           int    // Position in decode order
	DecodeTime      uint64 // Decode timestamp
	CompositionTime int64  // Presentation timestamp (decode time + composition offset)
	Duration        uint32
	Offset          int64 // Absolute byte offset in the source
	Size            uint32
	IsSync          bool // Key frame
}

// End returns the composition time at which the sample stops being displayed.
func (s Sample) End() int64 {
	return s.CompositionTime + int64(s.Duration)
}

// Track describes the video elementary stream selected for extraction.
type Track struct {
	ID          uint32
	Timescale   uint32 // Ticks per second
	Width       int
	Height      int
	Codec       codecdetect.Codec
	CodecString string // e.g. "avc1.64001f"
	SampleEntry string // Sample entry fourcc, e.g. "avc1"

	// Description is the decoder configuration record without its box header.
	// Shared read-only once the track is ready.
	Description []byte
}

// TicksToMicros converts track ticks to microseconds.
func (t Track) TicksToMicros(ticks int64) int64 {
	if t.Timescale == 0 {
		return 0
	}
	return ticks * 1_000_000 / int64(t.Timescale)
}

// SecondsToTicks converts seconds to track ticks, rounding to the nearest tick.
func (t Track) SecondsToTicks(seconds float64) int64 {
	return int64(math.Round(seconds * float64(t.Timescale)))
}

// =============================================================================
// Extraction Types
// =============================================================================

// Target is one caller-requested extraction point.
type Target struct {
	// ID is assigned at ingestion (sequence index) and keys the result.
	// Two targets with identical timestamps therefore never collide.
	ID      int
	Seconds float64
	Label   string
	Payload any // Opaque caller data, returned untouched
}

// Micros returns the target time in microseconds.
func (t Target) Micros() int64 {
	return int64(math.Round(t.Seconds * 1_000_000))
}

// NewTargets assigns sequential IDs to the given timestamps.
func NewTargets(seconds ...float64) []Target {
	targets := make([]Target, len(seconds))
	for i, s := range seconds {
		targets[i] = Target{ID: i, Seconds: s}
	}
	return targets
}

// GOPRange is a contiguous run of samples, in decode order, that must be
// decoded to produce the frame for Target. Start is always a sync sample.
type GOPRange struct {
	Start  int
	End    int
	Target Target

	// PlannedTime is the composition time (ticks) of samples[End].
	PlannedTime int64
}

// Len returns the number of samples in the range.
func (r GOPRange) Len() int {
	return r.End - r.Start + 1
}

// =============================================================================
// Stage Input/Output Types
// =============================================================================

// PlanInput is the input for the plan stage.
type PlanInput struct {
	Track   Track
	Samples []Sample // indexed by Sample.Index
	Targets []Target
}

// PlanResult is the output of the plan stage.
type PlanResult struct {
	Ranges      []GOPRange // sorted by Start, then End, then target ID
	Unplannable []Target
}

// MaterializeInput is one matched frame on its way to JPEG.
type MaterializeInput struct {
	Target      Target
	Image       image.Image
	TimestampUs int64
}

// =============================================================================
// Result Types
// =============================================================================

// ShotSource identifies which strategy produced a shot.
type ShotSource string

const (
	SourceNone     ShotSource = ""
	SourceDecoder  ShotSource = "decoder"
	SourceFallback ShotSource = "fallback"
)

// Shot is the outcome for one target. A nil Image means the target is absent,
// which callers must treat as a normal outcome.
type Shot struct {
	Target      Target
	Image       []byte // JPEG bytes
	TimestampUs int64  // Timestamp of the frame actually used
	Source      ShotSource
}

// Present reports whether an image was produced.
func (s Shot) Present() bool {
	return len(s.Image) > 0
}

// DataURI returns the image as an embeddable data URI, or "" when absent.
func (s Shot) DataURI() string {
	if !s.Present() {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(s.Image)
}

// FinishReason records which trigger finalized an extraction.
type FinishReason string

const (
	FinishComplete FinishReason = "complete" // every target satisfied
	FinishDrained  FinishReason = "drained"  // pipeline ended with targets left absent
	FinishTimeout  FinishReason = "timeout"
	FinishCanceled FinishReason = "canceled"
	FinishFailed   FinishReason = "failed"
)

// Result holds one Shot per input target, in input order.
type Result struct {
	Shots  []Shot
	Reason FinishReason
	Track  *Track
}

// Found returns the number of present shots.
func (r Result) Found() int {
	n := 0
	for _, s := range r.Shots {
		if s.Present() {
			n++
		}
	}
	return n
}

// DataURIs returns the data URI of every shot, "" for absent ones.
func (r Result) DataURIs() []string {
	uris := make([]string, len(r.Shots))
	for i, s := range r.Shots {
		uris[i] = s.DataURI()
	}
	return uris
}

// =============================================================================
// Contact Sheet Types
// =============================================================================

// Rectangle represents a rectangular area.
type Rectangle struct {
	X      int
	Y      int
	Width  int
	Height int
}

// LayoutInput describes a grid of equally sized cells.
type LayoutInput struct {
	Count         int
	Columns       int
	CellWidth     int
	CellHeight    int
	CaptionHeight int // strip below each cell, 0 for none
	Gap           int
	Padding       int
}

// LayoutResult places every cell of a contact sheet.
type LayoutResult struct {
	Width    int
	Height   int
	Cells    []Rectangle // image area, one per shot
	Captions []Rectangle // empty when CaptionHeight is 0
}

// SheetTheme holds the contact sheet colors.
type SheetTheme struct {
	Background  color.Color
	Placeholder color.Color // fill for absent shots
	Caption     color.Color
	FontPath    string
}

// CompositeInput is the input for the composite stage.
type CompositeInput struct {
	Shots   []Shot
	Layout  LayoutResult
	Theme   SheetTheme
	Quality int
}

// CompositeResult is an encoded contact sheet.
type CompositeResult struct {
	Image  []byte // JPEG bytes
	Width  int
	Height int
	Placed int // number of present shots drawn
}
