// Package orchestrator runs one extraction end to end: it feeds the source
// to the container parser, plans and schedules decoding, materializes matched
// frames and finalizes the result exactly once.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/framegrab/pkg/container"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/stages/decode"
)

var (
	// ErrConfiguration means in-process extraction is impossible for this
	// input, e.g. an unsupported codec or a missing codec description.
	// Callers may fall back to another strategy.
	ErrConfiguration = decode.ErrConfiguration

	// ErrParse means nothing usable could be parsed from the input.
	ErrParse = errors.New("orchestrator: unparseable input")
)

// Config contains the per-extraction settings.
type Config struct {
	ChunkSize int64         // bytes per source read
	Timeout   time.Duration // wall-clock budget for one extraction
	Tolerance time.Duration // max distance between a target and its frame
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ChunkSize: 10 << 20,
		Timeout:   30 * time.Second,
		Tolerance: 100 * time.Millisecond,
	}
}

// Orchestrator coordinates the extraction stages.
type Orchestrator struct {
	planStage        pipeline.Stage[pipeline.PlanInput, pipeline.PlanResult]
	materializeStage pipeline.Stage[pipeline.MaterializeInput, pipeline.Shot]
	decoders         ports.DecoderFactory
	sink             ports.DebugSink
	logger           ports.Logger
	config           Config
}

// New creates a new Orchestrator.
func New(
	planStage pipeline.Stage[pipeline.PlanInput, pipeline.PlanResult],
	materializeStage pipeline.Stage[pipeline.MaterializeInput, pipeline.Shot],
	decoders ports.DecoderFactory,
	sink ports.DebugSink,
	logger ports.Logger,
	config Config,
) *Orchestrator {
	defaults := DefaultConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Tolerance <= 0 {
		config.Tolerance = defaults.Tolerance
	}
	return &Orchestrator{
		planStage:        planStage,
		materializeStage: materializeStage,
		decoders:         decoders,
		sink:             sink,
		logger:           logger,
		config:           config,
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

type eventKind int

const (
	evTrack eventKind = iota
	evShot
	evPipelineDone
	evDrained
)

type event struct {
	kind  eventKind
	track pipeline.Track
	shot  pipeline.Shot
	err   error
}

// extraction is the state shared by the goroutines of one Extract call.
type extraction struct {
	o       *Orchestrator
	source  ports.Source
	targets []pipeline.Target
	logger  ports.Logger

	events chan event
	done   chan struct{} // closed by finalize

	mu        sync.Mutex
	guard     *decode.Guard
	finalized bool
}

// send delivers ev to the actor unless the extraction is finalized.
func (x *extraction) send(ev event) {
	select {
	case x.events <- ev:
	case <-x.done:
	}
}

// attach hands the decoder guard to the extraction. A guard attached after
// finalization is closed on the spot.
func (x *extraction) attach(g *decode.Guard) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.finalized {
		g.Close()
		return false
	}
	x.guard = g
	return true
}

// finalize marks the extraction finished and closes the decoder. Only the
// first call has any effect.
func (x *extraction) finalize() bool {
	x.mu.Lock()
	if x.finalized {
		x.mu.Unlock()
		return false
	}
	x.finalized = true
	g := x.guard
	close(x.done)
	x.mu.Unlock()

	if g != nil {
		if err := g.Close(); err != nil {
			x.logger.Warn("Closing decoder failed: %v", err)
		}
	}
	return true
}

// Extract returns one shot per target, in input order. The Result is always
// populated; targets that could not be produced are absent. The error is
// non-nil only for ErrConfiguration and ErrParse.
//
// Target IDs are reassigned to input positions.
func (o *Orchestrator) Extract(ctx context.Context, source ports.Source, targets []pipeline.Target) (pipeline.Result, error) {
	targets = append([]pipeline.Target(nil), targets...)
	result := pipeline.Result{Shots: make([]pipeline.Shot, len(targets))}
	for i := range targets {
		targets[i].ID = i
		result.Shots[i] = pipeline.Shot{Target: targets[i]}
	}
	if len(targets) == 0 {
		result.Reason = pipeline.FinishComplete
		return result, nil
	}

	o.logger.Info("Extracting %d frames from %d bytes", len(targets), source.Size())
	started := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	x := &extraction{
		o:       o,
		source:  source,
		targets: targets,
		logger:  o.logger,
		events:  make(chan event, len(targets)+4),
		done:    make(chan struct{}),
	}

	matches := make(chan pipeline.MaterializeInput, len(targets))
	go x.runPipeline(ctx, matches)
	go x.runMaterializer(ctx, matches)

	timer := time.NewTimer(o.config.Timeout)
	defer timer.Stop()

	pending := len(targets)
	pipelineDone, drained := false, false
	var pipelineErr error

	finish := func(reason pipeline.FinishReason) (pipeline.Result, error) {
		x.finalize()
		cancel()
		result.Reason = reason
		o.logger.Info("Extracted %d of %d frames in %s (%s)", result.Found(), len(targets), time.Since(started).Round(time.Millisecond), reason)
		x.saveReport(result)
		if reason == pipeline.FinishFailed {
			return result, pipelineErr
		}
		return result, nil
	}

	for {
		select {
		case ev := <-x.events:
			switch ev.kind {
			case evTrack:
				track := ev.track
				result.Track = &track
			case evShot:
				id := ev.shot.Target.ID
				if id < 0 || id >= len(result.Shots) || result.Shots[id].Present() {
					continue
				}
				result.Shots[id] = ev.shot
				pending--
				if pending == 0 {
					return finish(pipeline.FinishComplete)
				}
			case evPipelineDone:
				pipelineDone = true
				pipelineErr = ev.err
			case evDrained:
				drained = true
			}
			if pipelineDone && drained {
				if pipelineErr != nil {
					o.logger.Error("Extraction failed: %v", pipelineErr)
					return finish(pipeline.FinishFailed)
				}
				return finish(pipeline.FinishDrained)
			}

		case <-timer.C:
			o.logger.Warn("Extraction timed out after %s", o.config.Timeout)
			return finish(pipeline.FinishTimeout)

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return finish(pipeline.FinishTimeout)
			}
			return finish(pipeline.FinishCanceled)
		}
	}
}

// runMaterializer encodes matched frames until matches is closed. Frames
// arriving after finalization are dropped unencoded.
func (x *extraction) runMaterializer(ctx context.Context, matches <-chan pipeline.MaterializeInput) {
	for in := range matches {
		select {
		case <-x.done:
			continue
		default:
		}

		shot, err := x.o.materializeStage.Execute(ctx, in)
		if err != nil {
			x.logger.Warn("Failed to encode frame for target %d: %v", in.Target.ID, err)
			continue
		}
		x.send(event{kind: evShot, shot: shot})
	}
	x.send(event{kind: evDrained})
}

// runPipeline parses, plans and schedules. It always closes matches and
// reports completion.
func (x *extraction) runPipeline(ctx context.Context, matches chan<- pipeline.MaterializeInput) {
	defer close(matches)
	err := x.pipeline(ctx, matches)
	switch {
	case err == nil, errors.Is(err, ErrConfiguration), errors.Is(err, ErrParse):
	case errors.Is(err, context.Canceled), errors.Is(err, decode.ErrDecoderState):
		// Finalization stopped the pipeline.
		err = nil
	default:
		x.logger.Warn("Extraction pipeline stopped: %v", err)
		err = nil
	}
	x.send(event{kind: evPipelineDone, err: err})
}

// collector receives parser events on the pipeline goroutine.
type collector struct {
	x         *extraction
	scheduler *decode.Scheduler
	track     *pipeline.Track
	samples   []pipeline.Sample
	configErr error
}

func (c *collector) Ready(track pipeline.Track) {
	c.track = &track
	c.x.send(event{kind: evTrack, track: track})
	if c.x.o.sink.Enabled() {
		if data, err := json.MarshalIndent(trackReport(track), "", "  "); err == nil {
			c.x.o.sink.SaveTrackJSON(data)
		}
	}

	dec, err := c.x.o.decoders.NewFrameDecoder(string(track.Codec))
	if err != nil {
		c.configErr = fmt.Errorf("%w: %v", ErrConfiguration, err)
		return
	}
	guard := decode.NewGuard(dec)
	if !c.x.attach(guard) {
		c.configErr = context.Canceled
		return
	}

	scheduler := decode.NewScheduler(guard, c.x.source, c.x.logger, c.x.o.config.Tolerance)
	if err := scheduler.Configure(track); err != nil {
		c.configErr = err
		return
	}
	c.scheduler = scheduler
}

func (c *collector) Samples(batch []pipeline.Sample) {
	c.samples = append(c.samples, batch...)
}

func (x *extraction) pipeline(ctx context.Context, matches chan<- pipeline.MaterializeInput) error {
	c := &collector{x: x}
	parser := container.New(c, x.logger)

	parseErr := x.feed(ctx, parser, c)
	if c.configErr != nil {
		return c.configErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if parseErr != nil {
		if c.track == nil || len(c.samples) == 0 {
			return fmt.Errorf("%w: %w", ErrParse, parseErr)
		}
		x.logger.Warn("Input is damaged, continuing with %d samples: %v", len(c.samples), parseErr)
	}
	if c.track == nil {
		return fmt.Errorf("%w: %w", ErrParse, container.ErrNoMetadata)
	}

	plan, err := x.o.planStage.Execute(ctx, pipeline.PlanInput{
		Track:   *c.track,
		Samples: c.samples,
		Targets: x.targets,
	})
	if err != nil {
		return err
	}
	for _, t := range plan.Unplannable {
		x.logger.Debug("Target %d at %.3fs cannot be planned", t.ID, t.Seconds)
	}
	if x.o.sink.Enabled() {
		if data, err := json.MarshalIndent(plan.Ranges, "", "  "); err == nil {
			x.o.sink.SavePlanJSON(data)
		}
	}
	if len(plan.Ranges) == 0 {
		return nil
	}

	_, err = c.scheduler.Run(ctx, *c.track, c.samples, plan.Ranges, func(m decode.Match) {
		// matches holds one slot per target and a target matches once.
		matches <- pipeline.MaterializeInput{
			Target:      m.Target,
			Image:       m.Frame.Image,
			TimestampUs: m.Frame.TimestampUs,
		}
	})
	return err
}

// feed reads the source in bounded windows starting wherever the parser
// needs its next byte, skipping media payloads.
func (x *extraction) feed(ctx context.Context, parser *container.Parser, c *collector) error {
	size := x.source.Size()
	chunk := x.o.config.ChunkSize
	buf := make([]byte, chunk)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.configErr != nil {
			return nil
		}

		off := parser.Wanted()
		if off >= size {
			return parser.Flush()
		}

		n := chunk
		if size-off < n {
			n = size - off
		}
		read, err := x.source.ReadAt(buf[:n], off)
		if int64(read) < n {
			if err == nil {
				err = fmt.Errorf("short read at %d", off)
			}
			x.logger.Warn("Reading source at %d failed: %v", off, err)
			if ferr := parser.Flush(); ferr != nil {
				return ferr
			}
			return nil
		}

		last := off+n >= size
		if err := parser.Append(buf[:n], off, last); err != nil {
			return err
		}
		if last {
			return nil
		}
	}
}

type targetReport struct {
	ID          int     `json:"id"`
	Seconds     float64 `json:"seconds"`
	Found       bool    `json:"found"`
	TimestampUs int64   `json:"timestampUs,omitempty"`
	Bytes       int     `json:"bytes,omitempty"`
}

type extractionReport struct {
	Reason  pipeline.FinishReason `json:"reason"`
	Track   map[string]any        `json:"track,omitempty"`
	Targets []targetReport        `json:"targets"`
}

func trackReport(t pipeline.Track) map[string]any {
	return map[string]any{
		"id":        t.ID,
		"codec":     t.CodecString,
		"width":     t.Width,
		"height":    t.Height,
		"timescale": t.Timescale,
	}
}

func (x *extraction) saveReport(result pipeline.Result) {
	if !x.o.sink.Enabled() {
		return
	}
	report := extractionReport{Reason: result.Reason}
	if result.Track != nil {
		report.Track = trackReport(*result.Track)
	}
	for _, s := range result.Shots {
		report.Targets = append(report.Targets, targetReport{
			ID:          s.Target.ID,
			Seconds:     s.Target.Seconds,
			Found:       s.Present(),
			TimestampUs: s.TimestampUs,
			Bytes:       len(s.Image),
		})
	}
	if data, err := json.MarshalIndent(report, "", "  "); err == nil {
		x.o.sink.SaveReportJSON(data)
	}
}
