package plan

import (
	"context"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/pipeline"
)

// gop builds samples with a fixed duration. keys lists the sync positions,
// cts optionally overrides composition times (ticks).
func gop(n int, dur uint32, keys []int, cts map[int]int64) []pipeline.Sample {
	sync := map[int]bool{}
	for _, k := range keys {
		sync[k] = true
	}
	samples := make([]pipeline.Sample, n)
	for i := range samples {
		dt := uint64(i) * uint64(dur)
		ct := int64(dt)
		if v, ok := cts[i]; ok {
			ct = v
		}
		samples[i] = pipeline.Sample{
			Index:           i,
			DecodeTime:      dt,
			CompositionTime: ct,
			Duration:        dur,
			IsSync:          sync[i],
		}
	}
	return samples
}

var track = pipeline.Track{ID: 1, Timescale: 1000}

func execute(t *testing.T, samples []pipeline.Sample, targets []pipeline.Target) pipeline.PlanResult {
	t.Helper()
	stage := NewStage(logger.NewNoop(), 100*time.Millisecond)
	result, err := stage.Execute(context.Background(), pipeline.PlanInput{
		Track:   track,
		Samples: samples,
		Targets: targets,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestStage_Execute_RangeStartsAtSync(t *testing.T) {
	// 1 fps GOPs of 10 samples at 10 fps.
	samples := gop(30, 100, []int{0, 10, 20}, nil)
	result := execute(t, samples, pipeline.NewTargets(1.5, 0.0, 2.9))

	if len(result.Ranges) != 3 {
		t.Fatalf("expected 3 ranges, got %d", len(result.Ranges))
	}
	want := []struct{ start, end, id int }{
		{0, 0, 1},
		{10, 15, 0},
		{20, 29, 2},
	}
	for i, w := range want {
		r := result.Ranges[i]
		if r.Start != w.start || r.End != w.end || r.Target.ID != w.id {
			t.Errorf("range %d: got %d..%d target %d, want %d..%d target %d",
				i, r.Start, r.End, r.Target.ID, w.start, w.end, w.id)
		}
		if !samples[r.Start].IsSync {
			t.Errorf("range %d starts on a non-sync sample", i)
		}
		if r.PlannedTime != samples[r.End].CompositionTime {
			t.Errorf("range %d: planned time %d, want %d", i, r.PlannedTime, samples[r.End].CompositionTime)
		}
	}
}

func TestStage_Execute_NearestByCompositionTime(t *testing.T) {
	// I P B B in decode order, presented I B B P.
	samples := gop(4, 100, []int{0}, map[int]int64{0: 0, 1: 300, 2: 100, 3: 200})

	result := execute(t, samples, pipeline.NewTargets(0.21))
	if len(result.Ranges) != 1 {
		t.Fatalf("expected 1 range, got %d", len(result.Ranges))
	}
	if got := result.Ranges[0]; got.End != 3 || got.PlannedTime != 200 {
		t.Errorf("expected sample 3 at 200, got sample %d at %d", got.End, got.PlannedTime)
	}
}

func TestStage_Execute_TieBreaksOnDecodeOrder(t *testing.T) {
	samples := gop(4, 100, []int{0}, nil)

	// 0.15 is equidistant from 100 and 200.
	result := execute(t, samples, pipeline.NewTargets(0.15))
	if got := result.Ranges[0].End; got != 1 {
		t.Errorf("expected lower decode index 1, got %d", got)
	}

	// Two samples share composition time 100.
	samples = gop(4, 100, []int{0}, map[int]int64{1: 100, 2: 100, 3: 300})
	result = execute(t, samples, pipeline.NewTargets(0.1))
	if got := result.Ranges[0].End; got != 1 {
		t.Errorf("expected first of the equal samples, got %d", got)
	}
}

func TestStage_Execute_NoPrecedingSync(t *testing.T) {
	samples := gop(20, 100, []int{10}, nil)
	result := execute(t, samples, pipeline.NewTargets(0.3, 1.2))

	if len(result.Unplannable) != 1 || result.Unplannable[0].ID != 0 {
		t.Fatalf("expected target 0 unplannable, got %+v", result.Unplannable)
	}
	if len(result.Ranges) != 1 || result.Ranges[0].Start != 10 {
		t.Errorf("expected one range from sample 10, got %+v", result.Ranges)
	}
}

func TestStage_Execute_OutsideTrack(t *testing.T) {
	// Last sample ends at 1.0s.
	samples := gop(10, 100, []int{0}, nil)
	result := execute(t, samples, pipeline.NewTargets(-0.5, 1.05, 1.2, 60))

	if len(result.Ranges) != 1 || result.Ranges[0].Target.ID != 1 {
		t.Errorf("expected only the 1.05s target to be planned, got %+v", result.Ranges)
	}
	if len(result.Unplannable) != 3 {
		t.Errorf("expected 3 unplannable targets, got %d", len(result.Unplannable))
	}
}

func TestStage_Execute_NoSamples(t *testing.T) {
	result := execute(t, nil, pipeline.NewTargets(1, 2))
	if len(result.Ranges) != 0 || len(result.Unplannable) != 2 {
		t.Errorf("expected every target unplannable, got %+v", result)
	}
}

func TestStage_Execute_DuplicateTargetsKeepIdentity(t *testing.T) {
	samples := gop(10, 100, []int{0}, nil)
	result := execute(t, samples, pipeline.NewTargets(0.5, 0.5))

	if len(result.Ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(result.Ranges))
	}
	if result.Ranges[0].Target.ID != 0 || result.Ranges[1].Target.ID != 1 {
		t.Errorf("expected ranges ordered by target id, got %d, %d",
			result.Ranges[0].Target.ID, result.Ranges[1].Target.ID)
	}
}

func TestStage_Execute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage := NewStage(logger.NewNoop(), 100*time.Millisecond)
	_, err := stage.Execute(ctx, pipeline.PlanInput{
		Track:   track,
		Samples: gop(10, 100, []int{0}, nil),
		Targets: pipeline.NewTargets(0.1),
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSortRanges(t *testing.T) {
	ranges := []pipeline.GOPRange{
		{Start: 10, End: 12, Target: pipeline.Target{ID: 0}},
		{Start: 0, End: 5, Target: pipeline.Target{ID: 3}},
		{Start: 0, End: 5, Target: pipeline.Target{ID: 1}},
		{Start: 0, End: 2, Target: pipeline.Target{ID: 2}},
	}
	SortRanges(ranges)

	want := []int{2, 1, 3, 0}
	for i, id := range want {
		if ranges[i].Target.ID != id {
			t.Errorf("position %d: expected target %d, got %d", i, id, ranges[i].Target.ID)
		}
	}
}
