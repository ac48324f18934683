// Package plan implements the GOP planning stage.
//
// For every target the planner picks the sample whose composition time is
// nearest to the target and extends the range back to the preceding sync
// sample, so decoding Start..End in decode order yields the planned frame.
package plan

import (
	"context"
	"sort"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// Stage computes decode ranges for targets.
type Stage struct {
	logger    ports.Logger
	tolerance time.Duration
}

// NewStage creates a plan stage. Targets later than the last sample's end
// plus tolerance are not planned.
func NewStage(logger ports.Logger, tolerance time.Duration) *Stage {
	return &Stage{
		logger:    logger.WithComponent("plan"),
		tolerance: tolerance,
	}
}

// Execute plans a range for every target it can.
func (s *Stage) Execute(ctx context.Context, input pipeline.PlanInput) (pipeline.PlanResult, error) {
	result := pipeline.PlanResult{}

	if len(input.Samples) == 0 {
		result.Unplannable = append(result.Unplannable, input.Targets...)
		return result, nil
	}

	index := newCompositionIndex(input.Samples)
	limit := index.lastEnd + int64(s.tolerance.Seconds()*float64(input.Track.Timescale))

	for _, target := range input.Targets {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		ticks := input.Track.SecondsToTicks(target.Seconds)
		if target.Seconds < 0 || ticks > limit {
			s.logger.Debug("Target %d at %.3fs is outside the track", target.ID, target.Seconds)
			result.Unplannable = append(result.Unplannable, target)
			continue
		}

		end := index.nearest(ticks)
		start := syncBefore(input.Samples, end)
		if start < 0 {
			s.logger.Debug("Target %d at %.3fs has no preceding sync sample", target.ID, target.Seconds)
			result.Unplannable = append(result.Unplannable, target)
			continue
		}

		result.Ranges = append(result.Ranges, pipeline.GOPRange{
			Start:       start,
			End:         end,
			Target:      target,
			PlannedTime: input.Samples[end].CompositionTime,
		})
	}

	SortRanges(result.Ranges)
	s.logger.Debug("Planned %d ranges, %d targets unplannable", len(result.Ranges), len(result.Unplannable))
	return result, nil
}

// SortRanges orders ranges by Start, then End, then target ID.
func SortRanges(ranges []pipeline.GOPRange) {
	sort.SliceStable(ranges, func(i, j int) bool {
		a, b := ranges[i], ranges[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Target.ID < b.Target.ID
	})
}

func syncBefore(samples []pipeline.Sample, i int) int {
	for ; i >= 0; i-- {
		if samples[i].IsSync {
			return i
		}
	}
	return -1
}

// compositionIndex lists sample positions ordered by composition time, ties
// by decode position.
type compositionIndex struct {
	samples []pipeline.Sample
	order   []int
	lastEnd int64
}

func newCompositionIndex(samples []pipeline.Sample) *compositionIndex {
	order := make([]int, len(samples))
	var lastEnd int64
	for i, s := range samples {
		order[i] = i
		if end := s.End(); end > lastEnd {
			lastEnd = end
		}
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := samples[order[i]], samples[order[j]]
		if a.CompositionTime != b.CompositionTime {
			return a.CompositionTime < b.CompositionTime
		}
		return order[i] < order[j]
	})
	return &compositionIndex{samples: samples, order: order, lastEnd: lastEnd}
}

func (x *compositionIndex) cts(k int) int64 {
	return x.samples[x.order[k]].CompositionTime
}

// first returns the lowest order position whose composition time is >= t.
func (x *compositionIndex) first(t int64) int {
	return sort.Search(len(x.order), func(k int) bool { return x.cts(k) >= t })
}

// nearest returns the decode position of the sample nearest to t. Equal
// distances resolve to the lowest decode position.
func (x *compositionIndex) nearest(t int64) int {
	above := x.first(t)
	best, bestDist := -1, int64(0)

	if above < len(x.order) {
		best, bestDist = x.order[above], x.cts(above)-t
	}
	if above > 0 {
		// Lowest decode position among samples sharing the lower time.
		below := x.first(x.cts(above - 1))
		dist := t - x.cts(below)
		if best < 0 || dist < bestDist || (dist == bestDist && x.order[below] < best) {
			best = x.order[below]
		}
	}
	return best
}
