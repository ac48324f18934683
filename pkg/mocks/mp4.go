package mocks

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"
)

// Parameter sets carried by generated H.264 fixtures.
var (
	FixtureSPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xd9, 0x00, 0xa0, 0x47, 0xfe, 0xc8}
	FixturePPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

// MP4Options describes a synthetic H.264 MP4 file.
type MP4Options struct {
	Samples   int    // number of video samples
	GOP       int    // a sync sample every GOP samples
	Timescale uint32 // default 1000
	SampleDur uint32 // ticks, default 40
	Width     int    // default 64
	Height    int    // default 48

	Fragmented         bool
	SamplesPerFragment int  // fragmented only, default GOP
	MoovAtEnd          bool // progressive only
	NoDescription      bool // drop the avcC box
}

// FixtureSample is where a generated sample ended up.
type FixtureSample struct {
	Offset     int64
	Size       int
	Sync       bool
	DecodeTime uint64
	Payload    []byte
}

// MP4Fixture is a generated file and its ground truth.
type MP4Fixture struct {
	Data    []byte
	Samples []FixtureSample
}

func (o *MP4Options) defaults() {
	if o.Samples <= 0 {
		o.Samples = 25
	}
	if o.GOP <= 0 {
		o.GOP = o.Samples
	}
	if o.Timescale == 0 {
		o.Timescale = 1000
	}
	if o.SampleDur == 0 {
		o.SampleDur = 40
	}
	if o.Width == 0 {
		o.Width = 64
	}
	if o.Height == 0 {
		o.Height = 48
	}
	if o.SamplesPerFragment <= 0 {
		o.SamplesPerFragment = o.GOP
	}
}

// FixturePayload returns the length-prefixed NAL unit stored for sample i.
// Sizes vary so byte offsets are not uniform.
func FixturePayload(i int, sync bool) []byte {
	nalType := byte(1)
	if sync {
		nalType = 5
	}
	nalu := make([]byte, 6+i%5)
	nalu[0] = 0x60 | nalType
	binary.BigEndian.PutUint32(nalu[1:5], uint32(i))
	out := make([]byte, 4+len(nalu))
	binary.BigEndian.PutUint32(out, uint32(len(nalu)))
	copy(out[4:], nalu)
	return out
}

// FixtureAvcC returns the avcC box used by generated files.
func FixtureAvcC() *mp4.AvcCBox {
	return &mp4.AvcCBox{
		DecConfRec: avc.DecConfRec{
			AVCProfileIndication: 66,
			ProfileCompatibility: 0xc0,
			AVCLevelIndication:   30,
			SPSnalus:             [][]byte{FixtureSPS},
			PPSnalus:             [][]byte{FixturePPS},
			NoTrailingInfo:       true,
		},
	}
}

// BuildMP4 generates an H.264 MP4 file in memory.
func BuildMP4(opts MP4Options) (*MP4Fixture, error) {
	opts.defaults()

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(opts.Timescale, "video", "und")
	trak := init.Moov.Trak

	entry := mp4.CreateVisualSampleEntryBox("avc1", uint16(opts.Width), uint16(opts.Height), FixtureAvcC())
	if opts.NoDescription {
		entry.AvcC = nil
		entry.Children = nil
	}
	trak.Mdia.Minf.Stbl.Stsd.AddChild(entry)
	trak.Tkhd.Width = mp4.Fixed32(opts.Width << 16)
	trak.Tkhd.Height = mp4.Fixed32(opts.Height << 16)

	fx := &MP4Fixture{}
	for i := 0; i < opts.Samples; i++ {
		sync := i%opts.GOP == 0
		fx.Samples = append(fx.Samples, FixtureSample{
			Sync:       sync,
			DecodeTime: uint64(i) * uint64(opts.SampleDur),
			Payload:    FixturePayload(i, sync),
		})
	}

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}

	var err error
	if opts.Fragmented {
		err = fx.writeFragmented(&buf, init, opts)
	} else {
		err = fx.writeProgressive(&buf, init, opts)
	}
	if err != nil {
		return nil, err
	}
	fx.Data = buf.Bytes()
	return fx, nil
}

func (fx *MP4Fixture) writeFragmented(buf *bytes.Buffer, init *mp4.InitSegment, opts MP4Options) error {
	if err := init.Moov.Encode(buf); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}

	trackID := init.Moov.Trak.Tkhd.TrackID
	for first, seq := 0, uint32(1); first < len(fx.Samples); first, seq = first+opts.SamplesPerFragment, seq+1 {
		last := first + opts.SamplesPerFragment
		if last > len(fx.Samples) {
			last = len(fx.Samples)
		}

		frag, err := mp4.CreateFragment(seq, trackID)
		if err != nil {
			return fmt.Errorf("create fragment: %w", err)
		}
		for _, s := range fx.Samples[first:last] {
			flags := mp4.NonSyncSampleFlags
			if s.Sync {
				flags = mp4.SyncSampleFlags
			}
			frag.AddFullSample(mp4.FullSample{
				Sample: mp4.Sample{
					Flags: flags,
					Size:  uint32(len(s.Payload)),
					Dur:   opts.SampleDur,
				},
				DecodeTime: s.DecodeTime,
				Data:       s.Payload,
			})
		}

		start := int64(buf.Len())
		if err := frag.Encode(buf); err != nil {
			return fmt.Errorf("encode fragment: %w", err)
		}
		off := start + int64(frag.Moof.Size()) + 8
		for i := first; i < last; i++ {
			fx.Samples[i].Offset = off
			fx.Samples[i].Size = len(fx.Samples[i].Payload)
			off += int64(fx.Samples[i].Size)
		}
	}
	return nil
}

func (fx *MP4Fixture) writeProgressive(buf *bytes.Buffer, init *mp4.InitSegment, opts MP4Options) error {
	stbl := init.Moov.Trak.Mdia.Minf.Stbl

	var payload []byte
	var sizes []uint32
	var syncs []uint32
	for i, s := range fx.Samples {
		payload = append(payload, s.Payload...)
		sizes = append(sizes, uint32(len(s.Payload)))
		if s.Sync {
			syncs = append(syncs, uint32(i+1))
		}
	}

	stbl.Stts.SampleCount = []uint32{uint32(len(fx.Samples))}
	stbl.Stts.SampleTimeDelta = []uint32{opts.SampleDur}
	stbl.Stsz.SampleUniformSize = 0
	stbl.Stsz.SampleNumber = uint32(len(sizes))
	stbl.Stsz.SampleSize = sizes
	if err := stbl.Stsc.AddEntry(1, uint32(len(sizes)), 1); err != nil {
		return fmt.Errorf("stsc: %w", err)
	}
	if len(syncs) < len(fx.Samples) {
		stbl.AddChild(&mp4.StssBox{SampleNumber: syncs})
	}
	stbl.Stco.ChunkOffset = []uint32{0}

	mdat := &mp4.MdatBox{Data: payload}
	ftypSize := int64(buf.Len())

	var dataStart int64
	if opts.MoovAtEnd {
		dataStart = ftypSize + 8
	} else {
		dataStart = ftypSize + int64(init.Moov.Size()) + 8
	}
	stbl.Stco.ChunkOffset = []uint32{uint32(dataStart)}

	if opts.MoovAtEnd {
		if err := mdat.Encode(buf); err != nil {
			return fmt.Errorf("encode mdat: %w", err)
		}
		if err := init.Moov.Encode(buf); err != nil {
			return fmt.Errorf("encode moov: %w", err)
		}
	} else {
		if err := init.Moov.Encode(buf); err != nil {
			return fmt.Errorf("encode moov: %w", err)
		}
		if err := mdat.Encode(buf); err != nil {
			return fmt.Errorf("encode mdat: %w", err)
		}
	}

	off := dataStart
	for i := range fx.Samples {
		fx.Samples[i].Offset = off
		fx.Samples[i].Size = len(fx.Samples[i].Payload)
		off += int64(fx.Samples[i].Size)
	}
	return nil
}

// MustBuildMP4 is BuildMP4 for tests.
func MustBuildMP4(opts MP4Options) *MP4Fixture {
	fx, err := BuildMP4(opts)
	if err != nil {
		panic(err)
	}
	return fx
}
