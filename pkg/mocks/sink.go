package mocks

import (
	"image"
	"sync"

	"github.com/user/framegrab/pkg/ports"
)

// DebugSink records everything saved to it.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	TrackJSON     []byte
	PlanJSON      []byte
	ReportJSON    []byte
	DecodedFrames map[int]image.Image
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:       enabled,
		DecodedFrames: make(map[int]image.Image),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveTrackJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TrackJSON = data
	return nil
}

func (m *DebugSink) SavePlanJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlanJSON = data
	return nil
}

func (m *DebugSink) SaveDecodedFrame(targetID int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DecodedFrames[targetID] = img
	return nil
}

func (m *DebugSink) SaveReportJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReportJSON = data
	return nil
}

// Report returns the saved report.
func (m *DebugSink) Report() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ReportJSON
}

var _ ports.DebugSink = (*DebugSink)(nil)

// NullSink is a no-op implementation of ports.DebugSink.
type NullSink struct{}

func (m *NullSink) Enabled() bool { return false }
func (m *NullSink) SaveTrackJSON(data []byte) error { return nil }
func (m *NullSink) SavePlanJSON(data []byte) error { return nil }
func (m *NullSink) SaveDecodedFrame(targetID int, img image.Image) error { return nil }
func (m *NullSink) SaveReportJSON(data []byte) error { return nil }

var _ ports.DebugSink = (*NullSink)(nil)
