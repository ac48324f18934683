package framegrab

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/user/framegrab/pkg/pipeline"
)

// Job is one file of a batch.
type Job struct {
	Name    string
	Path    string
	Targets []pipeline.Target
}

// JobResult is the outcome of one Job.
type JobResult struct {
	Job    Job
	Result pipeline.Result
	Err    error
}

// Batch extracts every job with at most concurrency extractions in flight.
// Jobs are independent: one failing job does not stop the others. Results
// are in job order. The returned error is non-nil only when ctx ended
// before every job ran.
func (e *Extractor) Batch(ctx context.Context, jobs []Job, concurrency int) ([]JobResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]JobResult, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		i, job := i, job
		results[i].Job = job
		if ctx.Err() != nil {
			results[i].Result = emptyResult(job.Targets)
			results[i].Err = ctx.Err()
			continue
		}
		g.Go(func() error {
			e.logger.Info("Extracting %s (%d targets)", job.Path, len(job.Targets))
			name := job.Name
			if name == "" {
				name = debugName(job.Path)
			}
			res, err := e.extractFile(ctx, job.Path, job.Targets, name)
			results[i].Result = res
			results[i].Err = err
			if err != nil {
				e.logger.Error("Job %s failed: %v", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}
