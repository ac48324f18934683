// Package codecdetect maps MP4 sample entries to codec families.
package codecdetect

import (
	"github.com/Eyevinn/mp4ff/mp4"
)

// Codec represents a video codec family.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecUnknown Codec = "unknown"
)

// RequiresDescription reports whether the codec family cannot be decoded
// without its out-of-band configuration record.
func (c Codec) RequiresDescription() bool {
	switch c {
	case CodecH264, CodecHEVC:
		return true
	default:
		return false
	}
}

// DescriptionBox returns the box type carrying the configuration record.
func (c Codec) DescriptionBox() string {
	switch c {
	case CodecH264:
		return "avcC"
	case CodecHEVC:
		return "hvcC"
	case CodecAV1:
		return "av1C"
	default:
		return ""
	}
}

// FromSampleEntry returns the codec family for a sample entry fourcc.
func FromSampleEntry(fourcc string) Codec {
	switch fourcc {
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecHEVC
	case "av01":
		return CodecAV1
	default:
		return CodecUnknown
	}
}

// IsVideoTrack reports whether trak carries a video handler.
func IsVideoTrack(trak *mp4.TrakBox) bool {
	return trak != nil && trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide"
}

// DetectFromTrack returns the codec family of a video track together with its
// visual sample entry. Non-video tracks and tracks without a visual sample
// entry return CodecUnknown and nil.
func DetectFromTrack(trak *mp4.TrakBox) (Codec, *mp4.VisualSampleEntryBox) {
	if !IsVideoTrack(trak) {
		return CodecUnknown, nil
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return CodecUnknown, nil
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		entry, ok := child.(*mp4.VisualSampleEntryBox)
		if !ok {
			continue
		}
		return FromSampleEntry(entry.Type()), entry
	}

	return CodecUnknown, nil
}

// FindVideoTrack returns the first video track of moov and its codec family.
func FindVideoTrack(moov *mp4.MoovBox) (*mp4.TrakBox, Codec) {
	if moov == nil {
		return nil, CodecUnknown
	}
	for _, trak := range moov.Traks {
		if !IsVideoTrack(trak) {
			continue
		}
		codec, _ := DetectFromTrack(trak)
		return trak, codec
	}
	return nil, CodecUnknown
}
