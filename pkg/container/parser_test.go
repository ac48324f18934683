package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/user/framegrab/pkg/adapters/codecdetect"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/pipeline"
)

type recorder struct {
	tracks  []pipeline.Track
	samples []pipeline.Sample
	order   []string
}

func (r *recorder) Ready(track pipeline.Track) {
	r.tracks = append(r.tracks, track)
	r.order = append(r.order, "ready")
}

func (r *recorder) Samples(batch []pipeline.Sample) {
	r.samples = append(r.samples, batch...)
	r.order = append(r.order, "samples")
}

// feed delivers data the way the orchestrator does: windows of chunk bytes
// starting at Wanted.
func feed(t *testing.T, p *Parser, data []byte, chunk int) error {
	t.Helper()
	size := int64(len(data))
	for {
		off := p.Wanted()
		if off >= size {
			return p.Flush()
		}
		end := off + int64(chunk)
		if end > size {
			end = size
		}
		if err := p.Append(data[off:end], off, end == size); err != nil {
			return err
		}
		if end == size {
			return nil
		}
	}
}

func parse(t *testing.T, data []byte, chunk int) (*recorder, error) {
	t.Helper()
	r := &recorder{}
	p := New(r, logger.NewNoop())
	err := feed(t, p, data, chunk)
	return r, err
}

func checkSamples(t *testing.T, fx *mocks.MP4Fixture, data []byte, got []pipeline.Sample) {
	t.Helper()
	if len(got) != len(fx.Samples) {
		t.Fatalf("expected %d samples, got %d", len(fx.Samples), len(got))
	}
	for i, s := range got {
		want := fx.Samples[i]
		if s.Index != i {
			t.Errorf("sample %d: index %d", i, s.Index)
		}
		if s.Offset != want.Offset || int(s.Size) != want.Size {
			t.Errorf("sample %d: got %d+%d, want %d+%d", i, s.Offset, s.Size, want.Offset, want.Size)
			continue
		}
		if s.IsSync != want.Sync {
			t.Errorf("sample %d: sync %v, want %v", i, s.IsSync, want.Sync)
		}
		if s.DecodeTime != want.DecodeTime || s.CompositionTime != int64(want.DecodeTime) {
			t.Errorf("sample %d: times %d/%d, want %d", i, s.DecodeTime, s.CompositionTime, want.DecodeTime)
		}
		if !bytes.Equal(data[s.Offset:s.Offset+int64(s.Size)], want.Payload) {
			t.Errorf("sample %d: byte range does not hold the payload", i)
		}
	}
}

func TestParser_Layouts(t *testing.T) {
	cases := []struct {
		name string
		opts mocks.MP4Options
	}{
		{"progressive", mocks.MP4Options{Samples: 30, GOP: 10}},
		{"moov at end", mocks.MP4Options{Samples: 30, GOP: 10, MoovAtEnd: true}},
		{"all sync", mocks.MP4Options{Samples: 12, GOP: 1}},
		{"fragmented", mocks.MP4Options{Samples: 30, GOP: 10, Fragmented: true}},
		{"fragmented small fragments", mocks.MP4Options{Samples: 30, GOP: 10, Fragmented: true, SamplesPerFragment: 3}},
	}

	for _, tc := range cases {
		fx := mocks.MustBuildMP4(tc.opts)
		for _, chunk := range []int{1, 7, 64, 1 << 20} {
			r, err := parse(t, fx.Data, chunk)
			if err != nil {
				t.Fatalf("%s/chunk %d: unexpected error: %v", tc.name, chunk, err)
			}
			if len(r.tracks) != 1 {
				t.Fatalf("%s/chunk %d: expected one ready event, got %d", tc.name, chunk, len(r.tracks))
			}
			if r.order[0] != "ready" {
				t.Errorf("%s/chunk %d: samples reported before ready", tc.name, chunk)
			}
			checkSamples(t, fx, fx.Data, r.samples)
		}
	}
}

func TestParser_Track(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 5, Width: 320, Height: 240, Timescale: 90000, SampleDur: 3000})
	r, err := parse(t, fx.Data, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	track := r.tracks[0]
	if track.Codec != codecdetect.CodecH264 || track.SampleEntry != "avc1" {
		t.Errorf("unexpected codec %s/%s", track.Codec, track.SampleEntry)
	}
	if track.CodecString != "avc1.42c01e" {
		t.Errorf("unexpected codec string %q", track.CodecString)
	}
	if track.Width != 320 || track.Height != 240 {
		t.Errorf("unexpected dimensions %dx%d", track.Width, track.Height)
	}
	if track.Timescale != 90000 {
		t.Errorf("unexpected timescale %d", track.Timescale)
	}
	if len(track.Description) == 0 {
		t.Error("expected a description")
	}
}

func TestParser_MediaIsSkipped(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 200, GOP: 25, MoovAtEnd: true})

	r := &recorder{}
	p := New(r, logger.NewNoop())

	// Deliver only the bytes the parser asks for, 16 at a time.
	var delivered int
	size := int64(len(fx.Data))
	for {
		off := p.Wanted()
		if off >= size {
			if err := p.Flush(); err != nil {
				t.Fatalf("flush: %v", err)
			}
			break
		}
		end := off + 16
		if end > size {
			end = size
		}
		delivered += int(end - off)
		if err := p.Append(fx.Data[off:end], off, end == size); err != nil {
			t.Fatalf("append: %v", err)
		}
		if end == size {
			break
		}
	}

	var payload int
	for _, s := range fx.Samples {
		payload += s.Size
	}
	if delivered > len(fx.Data)-payload+16 {
		t.Errorf("parser read %d bytes of a %d byte file with %d bytes of media", delivered, len(fx.Data), payload)
	}
	if len(r.samples) != 200 {
		t.Errorf("expected 200 samples, got %d", len(r.samples))
	}
}

func TestParser_OverlappingChunks(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 10, Fragmented: true})

	r := &recorder{}
	p := New(r, logger.NewNoop())
	half := len(fx.Data) / 2
	if err := p.Append(fx.Data[:half], 0, false); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Resend from an earlier offset; the overlap is ignored.
	if err := p.Append(fx.Data[10:], 10, true); err != nil {
		t.Fatalf("append: %v", err)
	}
	checkSamples(t, fx, fx.Data, r.samples)
}

func TestParser_Gap(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 10})
	p := New(&recorder{}, logger.NewNoop())

	if err := p.Append(fx.Data[:8], 0, false); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Framing the ftyp header already moves the wanted offset past it.
	next := p.Wanted() + 1
	if next >= int64(len(fx.Data)) {
		t.Fatalf("wanted offset %d beyond the fixture", next-1)
	}
	err := p.Append(fx.Data[next:], next, true)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder, got %v", err)
	}
}

func TestParser_NoMoov(t *testing.T) {
	data := box("ftyp", []byte("isom\x00\x00\x02\x00isom"))
	data = append(data, box("mdat", make([]byte, 100))...)

	r, err := parse(t, data, 32)
	if !errors.Is(err, ErrNoMetadata) {
		t.Errorf("expected ErrNoMetadata, got %v", err)
	}
	if len(r.tracks) != 0 {
		t.Error("unexpected ready event")
	}
}

func TestParser_Empty(t *testing.T) {
	p := New(&recorder{}, logger.NewNoop())
	if err := p.Flush(); !errors.Is(err, ErrNoMetadata) {
		t.Errorf("expected ErrNoMetadata, got %v", err)
	}
}

func TestParser_TruncatedMoov(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 10})
	// ftyp is 32 bytes; cut the moov in half.
	data := fx.Data[:32+40]

	r, err := parse(t, data, 16)
	if !errors.Is(err, ErrNoMetadata) {
		t.Errorf("expected ErrNoMetadata, got %v", err)
	}
	if len(r.samples) != 0 {
		t.Errorf("expected no samples, got %d", len(r.samples))
	}
}

func TestParser_TruncatedFragmentKeepsEarlierSamples(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 20, GOP: 5, Fragmented: true})
	// Cut just before the end of the last fragment's moof.
	data := fx.Data[:fx.Samples[15].Offset-10]

	r, err := parse(t, data, 64)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if len(r.tracks) != 1 || len(r.samples) != 15 {
		t.Errorf("expected the first 15 samples to survive, got %d", len(r.samples))
	}
}

func TestParser_MalformedBoxSize(t *testing.T) {
	data := box("ftyp", []byte("isom\x00\x00\x02\x00isom"))
	bad := make([]byte, 8)
	binary.BigEndian.PutUint32(bad, 3)
	copy(bad[4:], "moov")
	data = append(data, bad...)

	_, err := parse(t, data, 64)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestParser_TrailingSizeZeroBox(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 10})
	data := append([]byte(nil), fx.Data...)
	data = append(data, 0, 0, 0, 0, 'f', 'r', 'e', 'e', 1, 2, 3)

	r, err := parse(t, data, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.samples) != 10 {
		t.Errorf("expected 10 samples, got %d", len(r.samples))
	}
}

func TestParser_AppendAfterFinish(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 5})
	p := New(&recorder{}, logger.NewNoop())
	if err := p.Append(fx.Data, 0, true); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := p.Append([]byte{0}, int64(len(fx.Data)), true); !errors.Is(err, ErrFinished) {
		t.Errorf("expected ErrFinished, got %v", err)
	}
	if p.Wanted() != math.MaxInt64 {
		t.Errorf("finished parser should want nothing, got %d", p.Wanted())
	}
}

func box(boxType string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(out)))
	copy(out[4:8], boxType)
	copy(out[8:], payload)
	return out
}
