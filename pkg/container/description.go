package container

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framegrab/pkg/adapters/codecdetect"
)

// ExtractDescription locates the decoder configuration box (avcC, hvcC or
// av1C) under the track's visual sample entry and returns its record payload
// with the box header stripped. It returns false when no such box exists.
func ExtractDescription(trak *mp4.TrakBox) ([]byte, bool) {
	_, entry := codecdetect.DetectFromTrack(trak)
	if entry == nil {
		return nil, false
	}

	for _, child := range entry.Children {
		switch child.(type) {
		case *mp4.AvcCBox, *mp4.HvcCBox, *mp4.Av1CBox:
			payload, err := recordPayload(child)
			if err != nil {
				return nil, false
			}
			return payload, true
		}
	}

	return nil, false
}

// recordPayload serializes a box and drops its header.
func recordPayload(box mp4.Box) ([]byte, error) {
	var buf bytes.Buffer
	if err := box.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode %s: %w", box.Type(), err)
	}

	data := buf.Bytes()
	hdr, err := mp4.DecodeHeader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s header: %w", box.Type(), err)
	}
	if hdr.Hdrlen > len(data) {
		return nil, fmt.Errorf("%s: header longer than box", box.Type())
	}

	payload := make([]byte, len(data)-hdr.Hdrlen)
	copy(payload, data[hdr.Hdrlen:])
	return payload, nil
}

// DecodeDescription wraps a record payload in a box header of the given type
// and decodes it with mp4ff. It is the inverse of ExtractDescription.
func DecodeDescription(boxType string, description []byte) (mp4.Box, error) {
	if len(boxType) != 4 {
		return nil, fmt.Errorf("%w: box type %q", ErrMalformed, boxType)
	}

	data := make([]byte, 8+len(description))
	binary.BigEndian.PutUint32(data[0:4], uint32(len(data)))
	copy(data[4:8], boxType)
	copy(data[8:], description)

	box, err := mp4.DecodeBox(0, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformed, boxType, err)
	}
	return box, nil
}
