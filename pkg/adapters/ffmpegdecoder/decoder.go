// Package ffmpegdecoder implements ports.FrameDecoder on top of an external
// ffmpeg process. Units are buffered between flushes; each flush decodes the
// buffered run in one ffmpeg invocation that reads an elementary stream on
// stdin and writes PNG frames on stdout.
package ffmpegdecoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/framegrab/pkg/adapters/codecdetect"
	"github.com/user/framegrab/pkg/adapters/ffmpeg"
	"github.com/user/framegrab/pkg/ports"
)

var (
	// ErrNotConfigured is returned when Decode or Flush is called before Configure.
	ErrNotConfigured = errors.New("ffmpegdecoder: decoder not configured")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ffmpegdecoder: decoder closed")

	// ErrNeedKey is returned when a run does not start with a key unit.
	ErrNeedKey = errors.New("ffmpegdecoder: run must start with a key unit")

	// ErrUnsupportedCodec is returned for codecs ffmpeg is not driven for.
	ErrUnsupportedCodec = errors.New("ffmpegdecoder: unsupported codec")

	// ErrBadDescription is returned when the codec description cannot be used.
	ErrBadDescription = errors.New("ffmpegdecoder: invalid codec description")

	// ErrBadUnit is returned for units that are not valid length-prefixed NAL units.
	ErrBadUnit = errors.New("ffmpegdecoder: invalid unit")
)

// DefaultMaxPending bounds the units buffered before an implicit flush.
const DefaultMaxPending = 300

// Options configures the decoder.
type Options struct {
	// MaxPending is the number of buffered units after which the next key
	// unit triggers a decode without waiting for Flush. A GOP is never
	// split, so a single long GOP may buffer more.
	MaxPending int
}

type pendingUnit struct {
	data        []byte
	timestampUs int64
	durationUs  int64
}

// Decoder decodes H.264, HEVC and AV1 units with ffmpeg.
type Decoder struct {
	opts Options

	mu         sync.Mutex
	ffmpegPath string
	cfg        ports.DecoderConfig
	header     streamHeader
	pending    []pendingUnit
	needKey    bool
	configured bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an unconfigured decoder.
func New(opts Options) *Decoder {
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Decoder{opts: opts, ctx: ctx, cancel: cancel}
}

// Supports reports whether codec can be decoded by this adapter.
func Supports(codec string) bool {
	switch codecdetect.Codec(codec) {
	case codecdetect.CodecH264, codecdetect.CodecHEVC, codecdetect.CodecAV1:
		return true
	}
	return false
}

// Configure prepares the decoder for a track.
func (d *Decoder) Configure(cfg ports.DecoderConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	header, err := headerFor(codecdetect.Codec(cfg.Codec), cfg.Description)
	if err != nil {
		return err
	}

	path, err := ffmpeg.Find(ffmpeg.FFmpeg)
	if err != nil {
		return err
	}

	d.ffmpegPath = path
	d.cfg = cfg
	d.header = header
	d.needKey = true
	d.configured = true
	return nil
}

// Decode buffers one unit. Frames are produced by Flush, or here when a key
// unit arrives after MaxPending units have accumulated.
func (d *Decoder) Decode(unit ports.EncodedUnit) ([]ports.DecodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return nil, err
	}
	if d.needKey && !unit.Key {
		return nil, ErrNeedKey
	}

	data := unit.Data
	if d.header.lengthSize > 0 {
		var err error
		if data, err = toAnnexB(unit.Data, d.header.lengthSize); err != nil {
			return nil, err
		}
	}

	// References do not survive across ffmpeg invocations, so buffered
	// units are only decoded ahead of Flush at a GOP boundary.
	var frames []ports.DecodedFrame
	if unit.Key && len(d.pending) >= d.opts.MaxPending {
		var err error
		if frames, err = d.drain(); err != nil {
			return frames, err
		}
	}

	d.needKey = false
	d.pending = append(d.pending, pendingUnit{
		data:        data,
		timestampUs: unit.TimestampUs,
		durationUs:  unit.DurationUs,
	})
	return frames, nil
}

// Flush decodes every buffered unit and returns the frames in presentation
// order. The next unit must be a key unit.
func (d *Decoder) Flush() ([]ports.DecodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable(); err != nil {
		return nil, err
	}
	return d.drain()
}

// Close stops any running ffmpeg process and releases the decoder.
func (d *Decoder) Close() error {
	d.mu.Lock()
	d.closed = true
	d.pending = nil
	d.mu.Unlock()
	d.cancel()
	return nil
}

func (d *Decoder) usable() error {
	if d.closed {
		return ErrClosed
	}
	if !d.configured {
		return ErrNotConfigured
	}
	return nil
}

// drain runs ffmpeg over the pending units. Must be called with mu held.
func (d *Decoder) drain() ([]ports.DecodedFrame, error) {
	units := d.pending
	d.pending = nil
	d.needKey = true
	if len(units) == 0 {
		return nil, nil
	}

	images, err := d.decodeStream(d.ctx, d.stream(units))
	return assignTimestamps(images, units), err
}

// stream builds the elementary stream fed to ffmpeg.
func (d *Decoder) stream(units []pendingUnit) []byte {
	var size int
	for _, u := range units {
		size += len(u.data) + 12
	}
	out := make([]byte, 0, size+len(d.header.prefix)+32)

	if d.header.format == "ivf" {
		out = writeIVFHeader(out, d.cfg.Width, d.cfg.Height, len(units))
		for i, u := range units {
			data := u.data
			if i == 0 && len(d.header.prefix) > 0 {
				data = append(append([]byte(nil), d.header.prefix...), data...)
			}
			out = writeIVFFrame(out, data, u.timestampUs)
		}
		return out
	}

	out = append(out, d.header.prefix...)
	for _, u := range units {
		out = append(out, u.data...)
	}
	return out
}

// decodeStream runs one ffmpeg process, writing input on stdin while
// reading PNG frames from stdout.
func (d *Decoder) decodeStream(ctx context.Context, input []byte) ([]image.Image, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-f", d.header.format,
		"-i", "pipe:0",
		"-vsync", "0",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	var images []image.Image
	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		if _, err := stdin.Write(input); err != nil {
			return fmt.Errorf("write stream: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		images, err = readPNGs(stdout)
		return err
	})

	ioErr := g.Wait()
	waitErr := cmd.Wait()
	if waitErr != nil {
		return images, fmt.Errorf("ffmpeg decode failed: %w\nstderr: %s", waitErr, stderr.String())
	}
	if ioErr != nil {
		return images, ioErr
	}
	return images, nil
}

// readPNGs decodes concatenated PNG images until EOF.
func readPNGs(r io.Reader) ([]image.Image, error) {
	br := bufio.NewReader(r)
	var images []image.Image
	for {
		if _, err := br.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				return images, nil
			}
			return images, err
		}
		img, err := png.Decode(br)
		if err != nil {
			// Drain so ffmpeg does not block on a full pipe.
			io.Copy(io.Discard, br)
			return images, fmt.Errorf("decode png %d: %w", len(images), err)
		}
		images = append(images, img)
	}
}

// assignTimestamps pairs frames, which ffmpeg emits in presentation order,
// with the sorted presentation timestamps of the units. Surplus frames are
// dropped.
func assignTimestamps(images []image.Image, units []pendingUnit) []ports.DecodedFrame {
	sorted := make([]pendingUnit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].timestampUs < sorted[j].timestampUs
	})

	n := len(images)
	if n > len(sorted) {
		n = len(sorted)
	}
	// Frames that failed to decode are the leading ones.
	skip := len(sorted) - n

	frames := make([]ports.DecodedFrame, n)
	for i := 0; i < n; i++ {
		u := sorted[skip+i]
		frames[i] = ports.DecodedFrame{
			Image:       images[i],
			TimestampUs: u.timestampUs,
			DurationUs:  u.durationUs,
		}
	}
	return frames
}

var _ ports.FrameDecoder = (*Decoder)(nil)
