// Package batch runs many independent loop refinement jobs through a bounded pool of
// controllers and streams their reports to a sink.
package batch

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
)

// Job is one model to refine.
type Job struct {
	Index int
	Name  string
	// Tag keys the checkpoints of the job. A random tag is used when empty, which
	// disables resuming across processes.
	Tag  string
	Pose *model.Pose
}

// Report is the outcome of one job.
type Report struct {
	Job     Job
	Result  pipeline.Result
	Scores  *model.ScoreTable
	Elapsed time.Duration
}

// Retry reports whether the controller asked for the job to be rerun from scratch.
func (r Report) Retry() bool {
	return r.Result.Status == pipeline.StatusRetryRequested
}

// ControllerFactory builds the controller of a job. Controllers carry per-run hooks, so
// each job gets its own.
type ControllerFactory func(job Job) (*pipeline.Controller, error)

// SinkFunc receives the reports in completion order. It is never called concurrently.
type SinkFunc func(ctx context.Context, report Report) error

// Option configures a Runner.
type Option func(r *Runner)

// WithJobs sets how many jobs run at the same time.
func WithJobs(n int) Option {
	return func(r *Runner) {
		r.jobs = n
	}
}

// WithLogger sets the logger of the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithClock replaces time.Now when measuring jobs.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner fans jobs out to controllers.
type Runner struct {
	factory ControllerFactory
	jobs    int
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a runner building one controller per job with factory.
func NewRunner(factory ControllerFactory, opts ...Option) (*Runner, error) {
	if factory == nil {
		return nil, ErrFactoryMustBeSet
	}
	r := &Runner{
		factory: factory,
		jobs:    1,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.jobs < 1 {
		r.jobs = 1
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r.logger = r.logger.With(slog.String("component", "batch"))

	return r, nil
}

// Run refines every job and hands each report to sink. It stops on the first error,
// including a failing sink, and cancels the jobs still running.
func (r *Runner) Run(ctx context.Context, jobs []Job, sink SinkFunc) error {
	if len(jobs) == 0 {
		return ErrNoJobs
	}
	if sink == nil {
		return ErrSinkMustBeSet
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed, feedErrC := source(ctx, "feed", func(ctx context.Context, out chan<- Job) error {
		for i, job := range jobs {
			job.Index = i
			if job.Tag == "" {
				job.Tag = uuid.NewString()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- job:
			}
		}
		return nil
	})
	reports, refineErrC := oneToOne(ctx, "refine", r.jobs, feed, r.refine)
	sinkErrC := sinkStage(ctx, "sink", reports, sink)

	return waitFor(feedErrC, refineErrC, sinkErrC)
}

func (r *Runner) refine(ctx context.Context, job Job) (Report, error) {
	logger := r.logger.With(slog.String("job", job.Name), slog.String("tag", job.Tag))
	if job.Pose == nil {
		return Report{}, errors.Wrapf(pipeline.ErrPoseMustBeSet, "job %q", job.Name)
	}

	ctrl, err := r.factory(job)
	if err != nil {
		return Report{}, errors.Wrapf(err, "unable to build controller for job %q", job.Name)
	}

	start := r.now()
	scores := model.NewScoreTable()
	result, err := ctrl.Apply(ctx, job.Tag, job.Pose, scores)
	if err != nil {
		return Report{}, errors.Wrapf(err, "job %q", job.Name)
	}
	report := Report{Job: job, Result: result, Scores: scores, Elapsed: r.now().Sub(start)}
	logger.Info("job done",
		slog.String("status", result.Status.String()),
		slog.Bool("closed", result.AllRegionsClosed),
		slog.Duration("elapsed", report.Elapsed))

	return report, nil
}
