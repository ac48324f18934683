package summarizer

import (
	"time"

	"github.com/user/framegrab/pkg/pipeline"
)

// Summary contains everything reported about one run.
type Summary struct {
	GeneratedAt   time.Time
	Settings      Settings
	Jobs          []JobInfo
	TotalDuration time.Duration // 0 when not measured
}

// Settings contains the extraction configuration.
type Settings struct {
	Quality     int
	MaxWidth    int // 0 keeps the decoded width
	Tolerance   time.Duration
	Timeout     time.Duration
	Fallback    bool
	Concurrency int
}

// JobInfo describes one extracted file.
type JobInfo struct {
	Name   string
	Video  string
	Codec  string // "" when the container could not be parsed
	Reason pipeline.FinishReason
	Error  string
	Shots  []ShotInfo
}

// ShotInfo describes one requested timestamp.
type ShotInfo struct {
	Seconds     float64
	Label       string
	Present     bool
	TimestampUs int64
	Source      pipeline.ShotSource
	Bytes       int
}

// Found returns the number of present shots.
func (j JobInfo) Found() int {
	n := 0
	for _, s := range j.Shots {
		if s.Present {
			n++
		}
	}
	return n
}

// Bytes returns the total encoded image size.
func (j JobInfo) Bytes() int64 {
	var n int64
	for _, s := range j.Shots {
		n += int64(s.Bytes)
	}
	return n
}

// NewJobInfo summarizes one extraction result. err may be nil.
func NewJobInfo(name, video string, result pipeline.Result, err error) JobInfo {
	info := JobInfo{
		Name:   name,
		Video:  video,
		Reason: result.Reason,
		Shots:  make([]ShotInfo, len(result.Shots)),
	}
	if result.Track != nil {
		info.Codec = result.Track.CodecString
	}
	if err != nil {
		info.Error = err.Error()
	}
	for i, shot := range result.Shots {
		info.Shots[i] = ShotInfo{
			Seconds:     shot.Target.Seconds,
			Label:       shot.Target.Label,
			Present:     shot.Present(),
			TimestampUs: shot.TimestampUs,
			Source:      shot.Source,
			Bytes:       len(shot.Image),
		}
	}
	return info
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSettings sets the extraction settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithDuration sets the wall time of the run.
func (b *Builder) WithDuration(d time.Duration) *Builder {
	b.summary.TotalDuration = d
	return b
}

// AddJob appends a job.
func (b *Builder) AddJob(job JobInfo) *Builder {
	b.summary.Jobs = append(b.summary.Jobs, job)
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
