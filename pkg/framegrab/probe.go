package framegrab

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/user/framegrab/pkg/adapters/smartdecoder"
	"github.com/user/framegrab/pkg/container"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// ProbeResult describes the video track of a file.
type ProbeResult struct {
	Track       pipeline.Track
	Samples     int
	SyncSamples int
	Seconds     float64 // presentation span of the samples
	Decoder     string  // decoder backend, "" when the codec is unsupported
	Damaged     bool    // parsing stopped early but samples were recovered
}

type probeListener struct {
	track   *pipeline.Track
	samples []pipeline.Sample
}

func (l *probeListener) Ready(track pipeline.Track) { l.track = &track }

func (l *probeListener) Samples(batch []pipeline.Sample) { l.samples = append(l.samples, batch...) }

// Probe parses source and summarizes its video track without decoding.
func (e *Extractor) Probe(ctx context.Context, source ports.Source) (ProbeResult, error) {
	var res ProbeResult

	l := &probeListener{}
	parser := container.New(l, e.adapters.Logger)

	size := source.Size()
	chunk := e.config.ChunkSize
	if chunk <= 0 {
		chunk = DefaultConfig().ChunkSize
	}

	var parseErr error
	for parseErr == nil {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		off := parser.Wanted()
		if off >= size {
			parseErr = parser.Flush()
			break
		}
		end := off + chunk
		if end > size {
			end = size
		}
		buf := make([]byte, end-off)
		n, err := source.ReadAt(buf, off)
		if n < len(buf) {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			parseErr = fmt.Errorf("read at %d: %w", off, err)
			break
		}
		parseErr = parser.Append(buf, off, end == size)
		if end == size {
			break
		}
	}

	if l.track == nil {
		if parseErr == nil {
			parseErr = container.ErrNoMetadata
		}
		return res, fmt.Errorf("%w: %w", ErrParse, parseErr)
	}
	if parseErr != nil && len(l.samples) == 0 {
		return res, fmt.Errorf("%w: %w", ErrParse, parseErr)
	}

	res.Track = *l.track
	res.Samples = len(l.samples)
	res.Damaged = parseErr != nil

	var first, last int64
	for i, s := range l.samples {
		if s.IsSync {
			res.SyncSamples++
		}
		if i == 0 || s.CompositionTime < first {
			first = s.CompositionTime
		}
		if i == 0 || s.End() > last {
			last = s.End()
		}
	}
	if res.Track.Timescale > 0 {
		res.Seconds = float64(last-first) / float64(res.Track.Timescale)
	}

	if f, ok := e.adapters.Decoders.(*smartdecoder.Factory); ok {
		if info, err := f.Select(string(res.Track.Codec)); err == nil {
			res.Decoder = string(info.Backend)
		}
	}
	return res, nil
}
