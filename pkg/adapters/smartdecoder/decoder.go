// Package smartdecoder selects a frame decoder backend for a codec.
package smartdecoder

import (
	"errors"
	"fmt"

	"github.com/user/framegrab/pkg/adapters/codecdetect"
	"github.com/user/framegrab/pkg/adapters/ffmpeg"
	"github.com/user/framegrab/pkg/adapters/ffmpegdecoder"
	"github.com/user/framegrab/pkg/ports"
)

// Codec represents the video codec type (re-exported from codecdetect).
type Codec = codecdetect.Codec

const (
	CodecH264    = codecdetect.CodecH264
	CodecHEVC    = codecdetect.CodecHEVC
	CodecAV1     = codecdetect.CodecAV1
	CodecUnknown = codecdetect.CodecUnknown
)

// Backend represents the decoding backend used.
type Backend string

const (
	// BackendFFmpeg decodes with an external ffmpeg process.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendNone means no backend can decode the codec.
	BackendNone Backend = ""
)

// Info contains information about the selected decoder.
type Info struct {
	Codec   Codec
	Backend Backend
}

// Options configures the smart decoder behavior.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string

	// MaxPending bounds units buffered by the ffmpeg backend.
	MaxPending int
}

var (
	// ErrUnsupportedCodec is returned when the codec is not supported.
	ErrUnsupportedCodec = errors.New("smartdecoder: unsupported codec")
	// ErrNoDecoderAvailable is returned when no decoder is available for the codec.
	ErrNoDecoderAvailable = errors.New("smartdecoder: no decoder available")
)

// Factory implements ports.DecoderFactory.
type Factory struct {
	opts Options
}

// New creates a decoder factory.
func New(opts Options) *Factory {
	if opts.FFmpegPath != "" {
		ffmpeg.SetPath(ffmpeg.FFmpeg, opts.FFmpegPath)
	}
	return &Factory{opts: opts}
}

// Select reports which backend would decode codec.
func (f *Factory) Select(codec string) (Info, error) {
	info := Info{Codec: Codec(codec)}
	if !ffmpegdecoder.Supports(codec) {
		return info, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	if !ffmpeg.Available(ffmpeg.FFmpeg) {
		return info, fmt.Errorf("%w: %s needs ffmpeg", ErrNoDecoderAvailable, codec)
	}
	info.Backend = BackendFFmpeg
	return info, nil
}

// NewFrameDecoder returns an unconfigured decoder for codec.
func (f *Factory) NewFrameDecoder(codec string) (ports.FrameDecoder, error) {
	if _, err := f.Select(codec); err != nil {
		return nil, err
	}
	return ffmpegdecoder.New(ffmpegdecoder.Options{MaxPending: f.opts.MaxPending}), nil
}

// Ensure Factory implements ports.DecoderFactory
var _ ports.DecoderFactory = (*Factory)(nil)
