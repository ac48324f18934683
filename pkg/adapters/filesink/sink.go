// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/user/framegrab/pkg/ports"
)

// Sink saves debug output under a base directory:
//
//	track.json
//	plan.json
//	report.json
//	frames/target-0000.png
type Sink struct {
	baseDir  string
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		renderer: renderer,
	}
}

// Sub returns a sink writing to a subdirectory, for concurrent extractions.
func (s *Sink) Sub(name string) *Sink {
	return New(filepath.Join(s.baseDir, name), s.fs, s.renderer)
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveTrackJSON saves the parsed track metadata.
func (s *Sink) SaveTrackJSON(data []byte) error {
	return s.write("track.json", data)
}

// SavePlanJSON saves the decode plan.
func (s *Sink) SavePlanJSON(data []byte) error {
	return s.write("plan.json", data)
}

// SaveReportJSON saves the extraction summary.
func (s *Sink) SaveReportJSON(data []byte) error {
	return s.write("report.json", data)
}

// SaveDecodedFrame saves a decoded frame as PNG.
func (s *Sink) SaveDecodedFrame(targetID int, img image.Image) error {
	dir := filepath.Join(s.baseDir, "frames")
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode decoded frame: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("target-%04d.png", targetID))
	return s.fs.WriteFile(path, data)
}

func (s *Sink) write(name string, data []byte) error {
	if err := s.fs.MkdirAll(s.baseDir); err != nil {
		return err
	}
	return s.fs.WriteFile(filepath.Join(s.baseDir, name), data)
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
