package ports

import (
	"image"
)

// DecoderConfig carries what a decoder needs before the first unit.
type DecoderConfig struct {
	Codec       string // codec family: h264, hevc, av1
	CodecString string // e.g. avc1.64001f
	Width       int    // coded width
	Height      int    // coded height

	// Description is the codec configuration record payload (avcC, hvcC or
	// av1C without the box header). It may be nil for codecs that do not
	// require it.
	Description []byte
}

// EncodedUnit is one compressed access unit in decode order.
type EncodedUnit struct {
	Data        []byte
	Key         bool
	TimestampUs int64 // presentation time
	DurationUs  int64
}

// DecodedFrame is a decoded picture with its presentation time.
type DecodedFrame struct {
	Image       image.Image
	TimestampUs int64
	DurationUs  int64
}

// FrameDecoder is a stateful, configure-once video decoder.
//
// Decode may return zero or more frames, which are not necessarily those of
// the unit just submitted. Flush emits every frame still buffered and leaves
// the decoder ready for a new key unit. Implementations need not be safe for
// concurrent use.
type FrameDecoder interface {
	Configure(cfg DecoderConfig) error
	Decode(unit EncodedUnit) ([]DecodedFrame, error)
	Flush() ([]DecodedFrame, error)
	Close() error
}

// DecoderFactory creates decoders by codec family.
type DecoderFactory interface {
	// NewFrameDecoder returns an unconfigured decoder for codec, or an error
	// when the codec family is not supported.
	NewFrameDecoder(codec string) (FrameDecoder, error)
}
