package ffmpegdecoder

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framegrab/pkg/adapters/codecdetect"
	"github.com/user/framegrab/pkg/container"
)

var startCode = []byte{0, 0, 0, 1}

// streamHeader holds what must precede the first unit of every run.
type streamHeader struct {
	format     string // ffmpeg demuxer
	prefix     []byte // Annex B parameter sets, or AV1 config OBUs
	lengthSize int    // NAL length field size, 0 for AV1
}

// headerFor derives the stream header from a decoder configuration record.
func headerFor(codec codecdetect.Codec, description []byte) (streamHeader, error) {
	switch codec {
	case codecdetect.CodecH264:
		if len(description) < 7 {
			return streamHeader{}, fmt.Errorf("%w: short avcC", ErrBadDescription)
		}
		box, err := container.DecodeDescription("avcC", description)
		if err != nil {
			return streamHeader{}, err
		}
		avcC, ok := box.(*mp4.AvcCBox)
		if !ok {
			return streamHeader{}, fmt.Errorf("%w: avcC decoded as %T", ErrBadDescription, box)
		}
		var prefix []byte
		for _, nalu := range avcC.SPSnalus {
			prefix = appendNALU(prefix, nalu)
		}
		for _, nalu := range avcC.PPSnalus {
			prefix = appendNALU(prefix, nalu)
		}
		return streamHeader{format: "h264", prefix: prefix, lengthSize: int(description[4]&0x03) + 1}, nil

	case codecdetect.CodecHEVC:
		box, err := container.DecodeDescription("hvcC", description)
		if err != nil {
			return streamHeader{}, err
		}
		hvcC, ok := box.(*mp4.HvcCBox)
		if !ok {
			return streamHeader{}, fmt.Errorf("%w: hvcC decoded as %T", ErrBadDescription, box)
		}
		if len(description) < 23 {
			return streamHeader{}, fmt.Errorf("%w: short hvcC", ErrBadDescription)
		}
		var prefix []byte
		for _, arr := range hvcC.NaluArrays {
			for _, nalu := range arr.Nalus {
				prefix = appendNALU(prefix, nalu)
			}
		}
		return streamHeader{format: "hevc", prefix: prefix, lengthSize: int(description[21]&0x03) + 1}, nil

	case codecdetect.CodecAV1:
		// av1C is a 4 byte header followed by optional config OBUs.
		var prefix []byte
		if len(description) > 4 {
			prefix = append(prefix, description[4:]...)
		}
		return streamHeader{format: "ivf", prefix: prefix}, nil

	default:
		return streamHeader{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
}

func appendNALU(dst, nalu []byte) []byte {
	dst = append(dst, startCode...)
	return append(dst, nalu...)
}

// toAnnexB converts length-prefixed NAL units to start code prefixed ones.
func toAnnexB(data []byte, lengthSize int) ([]byte, error) {
	out := make([]byte, 0, len(data)+16)
	offset := 0

	for offset < len(data) {
		if offset+lengthSize > len(data) {
			return nil, fmt.Errorf("%w: truncated NAL length at %d", ErrBadUnit, offset)
		}
		var naluLen int
		for i := 0; i < lengthSize; i++ {
			naluLen = naluLen<<8 | int(data[offset+i])
		}
		offset += lengthSize

		if naluLen == 0 || offset+naluLen > len(data) {
			return nil, fmt.Errorf("%w: NAL of %d bytes at %d overruns unit", ErrBadUnit, naluLen, offset)
		}
		out = appendNALU(out, data[offset:offset+naluLen])
		offset += naluLen
	}

	return out, nil
}

// ivfTimebase is microseconds, matching ports.EncodedUnit.
const ivfTimebase = 1_000_000

// writeIVFHeader appends a 32 byte IVF file header.
func writeIVFHeader(dst []byte, width, height, frames int) []byte {
	hdr := make([]byte, 32)
	copy(hdr[0:4], "DKIF")
	binary.LittleEndian.PutUint16(hdr[4:6], 0)
	binary.LittleEndian.PutUint16(hdr[6:8], 32)
	copy(hdr[8:12], "AV01")
	binary.LittleEndian.PutUint16(hdr[12:14], uint16(width))
	binary.LittleEndian.PutUint16(hdr[14:16], uint16(height))
	binary.LittleEndian.PutUint32(hdr[16:20], ivfTimebase)
	binary.LittleEndian.PutUint32(hdr[20:24], 1)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(frames))
	return append(dst, hdr...)
}

// writeIVFFrame appends one IVF frame.
func writeIVFFrame(dst, data []byte, pts int64) []byte {
	hdr := make([]byte, 12)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(pts))
	dst = append(dst, hdr...)
	return append(dst, data...)
}
