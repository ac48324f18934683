package framegrab

import (
	"errors"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/user/framegrab/pkg/pipeline"
)

// Manifest describes a batch of extractions.
//
//	concurrency: 2
//	jobs:
//	  - name: match
//	    video: clips/match.mp4
//	    targets:
//	      - at: 12.5
//	        label: Goal
//	      - at: 40
type Manifest struct {
	Concurrency int           `yaml:"concurrency"`
	Jobs        []ManifestJob `yaml:"jobs"`
}

// ManifestJob is one file of a Manifest.
type ManifestJob struct {
	Name    string           `yaml:"name"`
	Video   string           `yaml:"video"`
	Output  string           `yaml:"output"`
	Targets []ManifestTarget `yaml:"targets"`
}

// ManifestTarget is one timestamp of a ManifestJob.
type ManifestTarget struct {
	At          float64 `yaml:"at"`
	Label       string  `yaml:"label"`
	Description string  `yaml:"description"`
}

// ErrInvalidManifest is returned for manifests that cannot be run.
var ErrInvalidManifest = errors.New("framegrab: invalid manifest")

// ParseManifest parses a YAML manifest. Relative video and output paths are
// resolved against baseDir.
func ParseManifest(data []byte, baseDir string) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if len(m.Jobs) == 0 {
		return m, fmt.Errorf("%w: no jobs", ErrInvalidManifest)
	}

	seen := make(map[string]bool, len(m.Jobs))
	for i := range m.Jobs {
		j := &m.Jobs[i]
		if j.Video == "" {
			return m, fmt.Errorf("%w: job %d has no video", ErrInvalidManifest, i+1)
		}
		if !filepath.IsAbs(j.Video) {
			j.Video = filepath.Join(baseDir, j.Video)
		}
		if j.Output != "" && !filepath.IsAbs(j.Output) {
			j.Output = filepath.Join(baseDir, j.Output)
		}
		if j.Name == "" {
			j.Name = debugName(j.Video)
		}
		if seen[j.Name] {
			return m, fmt.Errorf("%w: duplicate job name %q", ErrInvalidManifest, j.Name)
		}
		seen[j.Name] = true
	}
	return m, nil
}

// ToJobs converts the manifest into batch jobs.
func (m Manifest) ToJobs() []Job {
	jobs := make([]Job, len(m.Jobs))
	for i, mj := range m.Jobs {
		targets := make([]pipeline.Target, len(mj.Targets))
		for k, t := range mj.Targets {
			targets[k] = pipeline.Target{ID: k, Seconds: t.At, Label: t.Label, Payload: t.Description}
		}
		jobs[i] = Job{Name: mj.Name, Path: mj.Video, Targets: targets}
	}
	return jobs
}
