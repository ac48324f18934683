// Package decode drives a frame decoder over planned GOP ranges and matches
// decoded frames to targets.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// ErrConfiguration is returned when the decoder cannot be configured for the
// track, including a missing mandatory codec description.
var ErrConfiguration = errors.New("decode: decoder configuration failed")

// Match pairs a target with the decoded frame that satisfies it.
type Match struct {
	Target pipeline.Target
	Frame  ports.DecodedFrame
}

// Stats summarizes one scheduler run.
type Stats struct {
	Runs     int
	Flushes  int
	Units    int
	Frames   int
	Matched  int
	Failures int
}

// Scheduler feeds ranges to a guarded decoder.
type Scheduler struct {
	guard     *Guard
	source    io.ReaderAt
	logger    ports.Logger
	tolerance time.Duration
}

// NewScheduler creates a scheduler reading sample bytes from source.
func NewScheduler(guard *Guard, source io.ReaderAt, logger ports.Logger, tolerance time.Duration) *Scheduler {
	return &Scheduler{
		guard:     guard,
		source:    source,
		logger:    logger.WithComponent("decode"),
		tolerance: tolerance,
	}
}

// Configure configures the decoder for track.
func (s *Scheduler) Configure(track pipeline.Track) error {
	if track.Codec.RequiresDescription() && len(track.Description) == 0 {
		return fmt.Errorf("%w: %s track has no %s box", ErrConfiguration, track.Codec, track.Codec.DescriptionBox())
	}

	cfg := ports.DecoderConfig{
		Codec:       string(track.Codec),
		CodecString: track.CodecString,
		Width:       track.Width,
		Height:      track.Height,
		Description: track.Description,
	}
	if err := s.guard.Configure(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfiguration, track.CodecString, err)
	}
	s.logger.Debug("Decoder configured for %s %dx%d", track.CodecString, track.Width, track.Height)
	return nil
}

// run is a maximal group of overlapping ranges decoded without interruption.
type run struct {
	start, end int
}

// outstanding tracks one target still waiting for a frame.
//
// A frame within tolerance that is about as close as the planned sample
// (limitUs) satisfies the target at once. Any other frame within tolerance
// is kept as a candidate and committed when the decoder is next drained.
type outstanding struct {
	target   pipeline.Target
	targetUs int64
	limitUs  int64
	done     bool

	best  *ports.DecodedFrame
	bestD int64
}

// mergeRuns merges overlapping ranges. ranges must be sorted by Start.
func mergeRuns(ranges []pipeline.GOPRange) []run {
	var runs []run
	for _, r := range ranges {
		if n := len(runs); n > 0 && r.Start <= runs[n-1].end {
			if r.End > runs[n-1].end {
				runs[n-1].end = r.End
			}
			continue
		}
		runs = append(runs, run{start: r.Start, end: r.End})
	}
	return runs
}

// Run decodes every range and calls emit for each satisfied target. emit is
// called from the calling goroutine. Decode failures are logged and
// recovered from; Run returns an error only when ctx is done or the decoder
// was closed underneath it.
func (s *Scheduler) Run(ctx context.Context, track pipeline.Track, samples []pipeline.Sample, ranges []pipeline.GOPRange, emit func(Match)) (stats Stats, err error) {
	targets := make([]*outstanding, 0, len(ranges))
	for _, r := range ranges {
		targetUs := r.Target.Micros()
		slack := track.TicksToMicros(int64(samples[r.End].Duration)) / 2
		targets = append(targets, &outstanding{
			target:   r.Target,
			targetUs: targetUs,
			limitUs:  abs(track.TicksToMicros(r.PlannedTime)-targetUs) + slack,
		})
	}
	remaining := len(targets)
	tolUs := s.tolerance.Microseconds()

	commit := func(o *outstanding, f ports.DecodedFrame) {
		o.done = true
		o.best = nil
		remaining--
		stats.Matched++
		emit(Match{Target: o.target, Frame: f})
	}

	match := func(frames []ports.DecodedFrame) {
		for i := range frames {
			f := frames[i]
			stats.Frames++
			for _, o := range targets {
				if o.done {
					continue
				}
				d := abs(f.TimestampUs - o.targetUs)
				switch {
				case d > tolUs:
				case d <= o.limitUs:
					commit(o, f)
				case o.best == nil || d < o.bestD:
					o.best, o.bestD = &frames[i], d
				}
			}
		}
	}

	// settle commits the best candidate of every target still waiting.
	settle := func() {
		for _, o := range targets {
			if !o.done && o.best != nil {
				commit(o, *o.best)
			}
		}
	}
	defer settle()

	flush := func() error {
		stats.Flushes++
		frames, err := s.guard.Flush()
		match(frames)
		settle()
		return err
	}

	runs := mergeRuns(ranges)
	s.logger.Debug("Scheduling %d ranges as %d runs", len(ranges), len(runs))

	prevEnd := -1
	prevFailed := false
	for i, r := range runs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if remaining == 0 {
			s.logger.Debug("All targets satisfied, skipping %d runs", len(runs)-i)
			break
		}

		if i == 0 || prevFailed || r.start != prevEnd+1 {
			if err := flush(); err != nil {
				if errors.Is(err, ErrDecoderState) {
					return stats, err
				}
				s.logger.Warn("Flush before samples %d..%d failed: %v", r.start, r.end, err)
			}
		}

		stats.Runs++
		prevEnd = r.end
		prevFailed = false

		if err := s.decodeRun(track, samples, r, &stats, match); err != nil {
			if errors.Is(err, ErrDecoderState) {
				return stats, err
			}
			stats.Failures++
			prevFailed = true
			s.logger.Warn("Decoding samples %d..%d failed: %v", r.start, r.end, err)
			if err := flush(); err != nil && errors.Is(err, ErrDecoderState) {
				return stats, err
			}
		}
	}

	if stats.Runs > 0 && !prevFailed && remaining > 0 {
		if err := flush(); err != nil {
			if errors.Is(err, ErrDecoderState) {
				return stats, err
			}
			s.logger.Warn("Final flush failed: %v", err)
		}
	}

	settle()
	s.logger.Debug("Decoded %d units in %d runs, %d frames, %d matched", stats.Units, stats.Runs, stats.Frames, stats.Matched)
	return stats, nil
}

func (s *Scheduler) decodeRun(track pipeline.Track, samples []pipeline.Sample, r run, stats *Stats, match func([]ports.DecodedFrame)) error {
	for i := r.start; i <= r.end; i++ {
		sample := samples[i]

		data := make([]byte, sample.Size)
		n, err := s.source.ReadAt(data, sample.Offset)
		if n < len(data) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read sample %d: %w", i, err)
		}

		unit := ports.EncodedUnit{
			Data:        data,
			Key:         sample.IsSync,
			TimestampUs: track.TicksToMicros(sample.CompositionTime),
			DurationUs:  track.TicksToMicros(int64(sample.Duration)),
		}

		stats.Units++
		frames, err := s.guard.Decode(unit)
		match(frames)
		if err != nil {
			return fmt.Errorf("decode sample %d: %w", i, err)
		}
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
