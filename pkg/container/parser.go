// Package container incrementally parses ISO-BMFF (MP4) files into track
// metadata and a sample table.
//
// Bytes are delivered in chunks tagged with their absolute offset. Only moov
// and moof boxes are ever buffered; media data is skipped, and Wanted tells
// the feeder where the next useful byte is, so memory stays proportional to
// the chunk size plus the sample table.
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framegrab/pkg/adapters/codecdetect"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// maxIndexBoxSize bounds the moov/moof boxes the parser agrees to buffer.
const maxIndexBoxSize = 512 << 20

// Listener receives parse events in stream order.
type Listener interface {
	// Ready is called once, when the video track metadata is known.
	Ready(track pipeline.Track)

	// Samples is called for every batch of newly indexed samples.
	Samples(batch []pipeline.Sample)
}

type pendingMoof struct {
	moof  *mp4.MoofBox
	start int64
}

// Parser is a push parser for MP4 byte streams. It is not safe for
// concurrent use.
type Parser struct {
	listener Listener
	logger   ports.Logger

	buf       []byte
	bufStart  int64 // absolute offset of buf[0]
	skipToEnd bool  // a size-0 media box runs to the end of the file

	trak    *mp4.TrakBox
	trex    *mp4.TrexBox
	track   *pipeline.Track
	pending []pendingMoof

	nextIndex      int
	nextDecodeTime uint64
	sampleCount    int

	finished bool
}

// New creates a Parser that reports events to listener.
func New(listener Listener, logger ports.Logger) *Parser {
	return &Parser{
		listener: listener,
		logger:   logger.WithComponent("parser"),
	}
}

// Wanted returns the absolute offset of the next byte the parser needs.
// It returns math.MaxInt64 when no further bytes are useful.
func (p *Parser) Wanted() int64 {
	if p.skipToEnd || p.finished {
		return math.MaxInt64
	}
	return p.bufStart + int64(len(p.buf))
}

// Ready reports whether track metadata has been parsed.
func (p *Parser) Ready() bool {
	return p.track != nil
}

// SampleCount returns the number of samples indexed so far.
func (p *Parser) SampleCount() int {
	return p.sampleCount
}

// Append feeds the chunk located at offset. Bytes before Wanted are ignored,
// a chunk starting after Wanted is an error. When last is true the parser
// flushes and finishes.
func (p *Parser) Append(chunk []byte, offset int64, last bool) error {
	if p.finished {
		return ErrFinished
	}

	if !p.skipToEnd {
		end := p.bufStart + int64(len(p.buf))
		if offset > end {
			return fmt.Errorf("%w: got offset %d, want %d", ErrOutOfOrder, offset, end)
		}
		if overlap := end - offset; overlap > 0 {
			if overlap >= int64(len(chunk)) {
				chunk = nil
			} else {
				chunk = chunk[overlap:]
			}
		}
		p.buf = append(p.buf, chunk...)

		if err := p.process(last); err != nil {
			p.finished = true
			return err
		}
	}

	if last {
		return p.Flush()
	}
	return nil
}

// Flush finishes parsing. It is called by Append on the last chunk and may
// be called directly when the source ends without a last-tagged chunk.
func (p *Parser) Flush() error {
	if p.finished && p.track != nil {
		return nil
	}
	p.finished = true

	if !p.skipToEnd && len(p.buf) > 0 {
		if err := p.process(true); err != nil {
			return err
		}
	}

	var truncated error
	if !p.skipToEnd && len(p.buf) > 0 {
		truncated = fmt.Errorf("%w: %d trailing bytes at offset %d", ErrTruncated, len(p.buf), p.bufStart)
		p.buf = nil
	}

	if p.track == nil {
		if len(p.pending) > 0 {
			p.logger.Debug("Dropping %d fragments that arrived without metadata", len(p.pending))
		}
		if truncated != nil {
			return fmt.Errorf("%w (%v)", ErrNoMetadata, truncated)
		}
		return ErrNoMetadata
	}

	p.logger.Debug("Parse finished with %d samples", p.sampleCount)
	return truncated
}

// process frames as many complete top-level boxes as the buffer holds.
func (p *Parser) process(last bool) error {
	for len(p.buf) >= 8 {
		size := uint64(binary.BigEndian.Uint32(p.buf[0:4]))
		boxType := string(p.buf[4:8])
		hdrLen := uint64(8)

		switch size {
		case 1:
			if len(p.buf) < 16 {
				return nil
			}
			size = binary.BigEndian.Uint64(p.buf[8:16])
			hdrLen = 16
		case 0:
			if !isIndexBox(boxType) {
				p.logger.Debug("Box %s at %d extends to end of file", boxType, p.bufStart)
				p.skipToEnd = true
				p.buf = nil
				return nil
			}
			if !last {
				return nil
			}
			size = uint64(len(p.buf))
		}

		if size < hdrLen {
			return fmt.Errorf("%w: box %q at %d has size %d", ErrMalformed, boxType, p.bufStart, size)
		}

		start := p.bufStart
		if !isIndexBox(boxType) {
			if uint64(len(p.buf)) >= size {
				p.consume(int(size))
			} else {
				p.bufStart = start + int64(size)
				p.buf = p.buf[:0]
			}
			continue
		}

		if size > maxIndexBoxSize {
			return fmt.Errorf("%w: %s box at %d is %d bytes", ErrMalformed, boxType, start, size)
		}
		if uint64(len(p.buf)) < size {
			return nil
		}

		data := p.buf[:size]
		var err error
		switch boxType {
		case "moov":
			err = p.handleMoov(data, start)
		case "moof":
			err = p.handleMoof(data, start)
		}
		if err != nil {
			return err
		}
		p.consume(int(size))
	}

	// Release the backing array once a large box has been consumed.
	if cap(p.buf) > 2*len(p.buf)+64<<10 {
		p.buf = append([]byte(nil), p.buf...)
	}
	return nil
}

func (p *Parser) consume(n int) {
	p.buf = p.buf[n:]
	p.bufStart += int64(n)
}

func isIndexBox(boxType string) bool {
	return boxType == "moov" || boxType == "moof"
}

func (p *Parser) handleMoov(data []byte, start int64) error {
	if p.track != nil {
		p.logger.Warn("Ignoring extra moov box at offset %d", start)
		return nil
	}

	box, err := mp4.DecodeBox(uint64(start), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: decode moov: %v", ErrMalformed, err)
	}
	moov, ok := box.(*mp4.MoovBox)
	if !ok {
		return fmt.Errorf("%w: moov decoded as %T", ErrMalformed, box)
	}

	trak, codec := codecdetect.FindVideoTrack(moov)
	if trak == nil {
		return ErrNoVideoTrack
	}
	track := buildTrack(trak, codec)

	p.trak = trak
	p.trex = findTrex(moov, track.ID)
	p.track = &track
	p.logger.Debug("Video track %d: %s %dx%d, timescale %d", track.ID, track.CodecString, track.Width, track.Height, track.Timescale)
	p.listener.Ready(track)

	var stbl *mp4.StblBox
	if trak.Mdia.Minf != nil {
		stbl = trak.Mdia.Minf.Stbl
	}
	samples, err := buildSampleTable(stbl, p.nextIndex)
	if err != nil {
		return err
	}
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		p.nextDecodeTime = last.DecodeTime + uint64(last.Duration)
		p.nextIndex += len(samples)
		p.emit(samples)
	}

	pending := p.pending
	p.pending = nil
	for _, pm := range pending {
		p.emit(p.fragmentSamples(pm.moof, pm.start))
	}
	return nil
}

func (p *Parser) handleMoof(data []byte, start int64) error {
	box, err := mp4.DecodeBox(uint64(start), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: decode moof at %d: %v", ErrMalformed, start, err)
	}
	moof, ok := box.(*mp4.MoofBox)
	if !ok {
		return fmt.Errorf("%w: moof decoded as %T", ErrMalformed, box)
	}

	if p.track == nil {
		p.pending = append(p.pending, pendingMoof{moof: moof, start: start})
		return nil
	}

	p.emit(p.fragmentSamples(moof, start))
	return nil
}

func (p *Parser) emit(samples []pipeline.Sample) {
	if len(samples) == 0 {
		return
	}
	p.sampleCount += len(samples)
	p.listener.Samples(samples)
}

// buildTrack collects the metadata the decoder needs from a video trak.
func buildTrack(trak *mp4.TrakBox, codec codecdetect.Codec) pipeline.Track {
	track := pipeline.Track{
		Codec:     codec,
		Timescale: 1000,
	}
	if trak.Tkhd != nil {
		track.ID = trak.Tkhd.TrackID
		track.Width = int(uint32(trak.Tkhd.Width) >> 16)
		track.Height = int(uint32(trak.Tkhd.Height) >> 16)
	}
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
		track.Timescale = trak.Mdia.Mdhd.Timescale
	}

	_, entry := codecdetect.DetectFromTrack(trak)
	if entry != nil {
		track.SampleEntry = entry.Type()
		if entry.Width != 0 && entry.Height != 0 {
			track.Width = int(entry.Width)
			track.Height = int(entry.Height)
		}
	}

	if description, ok := ExtractDescription(trak); ok {
		track.Description = description
	}
	track.CodecString = codecString(track)
	return track
}

// codecString builds the RFC 6381 style identifier where the record allows it.
func codecString(track pipeline.Track) string {
	if track.SampleEntry == "" {
		return string(track.Codec)
	}
	if track.Codec == codecdetect.CodecH264 && len(track.Description) >= 4 {
		d := track.Description
		return fmt.Sprintf("%s.%02x%02x%02x", track.SampleEntry, d[1], d[2], d[3])
	}
	return track.SampleEntry
}

func findTrex(moov *mp4.MoovBox, trackID uint32) *mp4.TrexBox {
	if moov.Mvex != nil {
		for _, trex := range moov.Mvex.Trexs {
			if trex.TrackID == trackID {
				return trex
			}
		}
	}
	return &mp4.TrexBox{TrackID: trackID}
}
