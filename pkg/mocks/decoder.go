package mocks

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"

	"github.com/user/framegrab/pkg/ports"
)

// ErrNeedKey is returned by FrameDecoder when a delta unit arrives right
// after configure or flush.
var ErrNeedKey = errors.New("mock decoder: key unit required")

// FrameDecoder is a mock implementation of ports.FrameDecoder. Without
// overrides it behaves like a reordering decoder: each unit produces one
// frame carrying the unit's timestamp, frames are held until more than
// Delay are buffered, and they leave in presentation order.
type FrameDecoder struct {
	ConfigureFunc func(cfg ports.DecoderConfig) error
	DecodeFunc    func(unit ports.EncodedUnit) ([]ports.DecodedFrame, error)
	FlushFunc     func() ([]ports.DecodedFrame, error)
	CloseFunc     func() error

	// Delay is the number of frames held back before output.
	Delay int

	// FailAt makes Decode fail for units with this timestamp.
	FailAt map[int64]bool

	// Block, when set, is waited on at the start of every Decode call.
	Block chan struct{}

	mu         sync.Mutex
	calls      []string
	config     ports.DecoderConfig
	buffered   []ports.DecodedFrame
	needKey    bool
	closeCount int
	active     int
	overlap    bool
}

func (m *FrameDecoder) enter(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.active++
	if m.active > 1 {
		m.overlap = true
	}
	m.mu.Unlock()
}

func (m *FrameDecoder) leave() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

func (m *FrameDecoder) Configure(cfg ports.DecoderConfig) error {
	m.enter("configure")
	defer m.leave()
	if m.ConfigureFunc != nil {
		if err := m.ConfigureFunc(cfg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.config = cfg
	m.needKey = true
	m.mu.Unlock()
	return nil
}

func (m *FrameDecoder) Decode(unit ports.EncodedUnit) ([]ports.DecodedFrame, error) {
	m.enter(fmt.Sprintf("decode:%d", unit.TimestampUs))
	defer m.leave()

	if m.Block != nil {
		<-m.Block
	}
	if m.DecodeFunc != nil {
		return m.DecodeFunc(unit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.needKey && !unit.Key {
		return nil, ErrNeedKey
	}
	m.needKey = false
	if m.FailAt[unit.TimestampUs] {
		return nil, fmt.Errorf("mock decoder: corrupt unit at %d", unit.TimestampUs)
	}

	m.buffered = append(m.buffered, ports.DecodedFrame{
		Image:       FrameImage(m.config.Width, m.config.Height, unit.TimestampUs),
		TimestampUs: unit.TimestampUs,
		DurationUs:  unit.DurationUs,
	})
	sort.Slice(m.buffered, func(i, j int) bool {
		return m.buffered[i].TimestampUs < m.buffered[j].TimestampUs
	})

	var out []ports.DecodedFrame
	for len(m.buffered) > m.Delay {
		out = append(out, m.buffered[0])
		m.buffered = m.buffered[1:]
	}
	return out, nil
}

func (m *FrameDecoder) Flush() ([]ports.DecodedFrame, error) {
	m.enter("flush")
	defer m.leave()
	if m.FlushFunc != nil {
		return m.FlushFunc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.buffered
	m.buffered = nil
	m.needKey = true
	return out, nil
}

func (m *FrameDecoder) Close() error {
	m.enter("close")
	defer m.leave()
	m.mu.Lock()
	m.closeCount++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns the recorded call log.
func (m *FrameDecoder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CloseCount returns the number of Close calls.
func (m *FrameDecoder) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// Config returns the configuration passed to Configure.
func (m *FrameDecoder) Config() ports.DecoderConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Overlapped reports whether two calls ever ran at the same time.
func (m *FrameDecoder) Overlapped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlap
}

var _ ports.FrameDecoder = (*FrameDecoder)(nil)

// FrameImage returns a uniform image whose color is derived from the
// timestamp, so frames with different timestamps encode differently.
func FrameImage(width, height int, timestampUs int64) image.Image {
	if width <= 0 || height <= 0 {
		width, height = 16, 16
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	ms := timestampUs / 1000
	c := color.RGBA{R: uint8(ms), G: uint8(ms >> 8), B: uint8(ms >> 16), A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// DecoderFactory hands out a fixed decoder or fails.
type DecoderFactory struct {
	Decoder *FrameDecoder
	Err     error

	mu     sync.Mutex
	codecs []string
}

func (f *DecoderFactory) NewFrameDecoder(codec string) (ports.FrameDecoder, error) {
	f.mu.Lock()
	f.codecs = append(f.codecs, codec)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Decoder == nil {
		return &FrameDecoder{}, nil
	}
	return f.Decoder, nil
}

// Codecs returns the codecs requested so far.
func (f *DecoderFactory) Codecs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codecs...)
}

var _ ports.DecoderFactory = (*DecoderFactory)(nil)

// FallbackExtractor is a mock implementation of ports.FallbackExtractor.
type FallbackExtractor struct {
	AvailableFunc     func() bool
	ExtractFramesFunc func(ctx context.Context, path string, seconds []float64) ([]image.Image, error)

	Paths []string
}

func (m *FallbackExtractor) Available() bool {
	if m.AvailableFunc != nil {
		return m.AvailableFunc()
	}
	return true
}

func (m *FallbackExtractor) ExtractFrames(ctx context.Context, path string, seconds []float64) ([]image.Image, error) {
	m.Paths = append(m.Paths, path)
	if m.ExtractFramesFunc != nil {
		return m.ExtractFramesFunc(ctx, path, seconds)
	}
	images := make([]image.Image, len(seconds))
	for i, s := range seconds {
		images[i] = FrameImage(16, 16, int64(s*1_000_000))
	}
	return images, nil
}

var _ ports.FallbackExtractor = (*FallbackExtractor)(nil)
