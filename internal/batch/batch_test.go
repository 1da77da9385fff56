package batch_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-looprelax/internal/batch"
	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

var errBoom = errors.New("boom")

func TestRunAllJobs(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		jobs     int
		parallel int
	}{
		"sequential": {jobs: 4, parallel: 1},
		"concurrent": {jobs: 6, parallel: 3},
		"more slots": {jobs: 2, parallel: 8},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rem := newRemodeller(stage.Outcome{Status: stage.Success, Closed: true})
			runner, err := batch.NewRunner(controllerFactory(t, stage.QuickCCD, rem), batch.WithJobs(tc.parallel))
			require.NoError(t, err)

			var got collector
			require.NoError(t, runner.Run(context.Background(), jobs(tc.jobs), got.sink))

			assert.Len(t, got.reports, tc.jobs)
			assert.EqualValues(t, tc.jobs, rem.calls.Load())
			seen := map[int]bool{}
			for _, report := range got.reports {
				seen[report.Job.Index] = true
				assert.NotEmpty(t, report.Job.Tag)
				assert.Equal(t, pipeline.StatusCompleted, report.Result.Status)
				assert.True(t, report.Result.AllRegionsClosed)
				assert.False(t, report.Retry())
				assert.NotNil(t, report.Scores)
			}
			assert.Len(t, seen, tc.jobs)
		})
	}
}

func TestRunRespectsJobLimit(t *testing.T) {
	t.Parallel()

	rem := newRemodeller(stage.Outcome{Status: stage.Success, Closed: true})
	rem.release = make(chan struct{})
	runner, err := batch.NewRunner(controllerFactory(t, stage.QuickCCD, rem), batch.WithJobs(2))
	require.NoError(t, err)

	done := make(chan error, 1)
	var got collector
	go func() {
		done <- runner.Run(context.Background(), jobs(5), got.sink)
	}()

	assert.Eventually(t, func() bool { return rem.inFlight.Load() == 2 }, time.Second, time.Millisecond)
	close(rem.release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 2, rem.peak.Load())
	assert.Len(t, got.names(), 5)
}

func TestRunKeepsGivenTags(t *testing.T) {
	t.Parallel()

	rem := newRemodeller(stage.Outcome{Status: stage.Success, Closed: true})
	runner, err := batch.NewRunner(controllerFactory(t, stage.QuickCCD, rem))
	require.NoError(t, err)

	in := jobs(2)
	in[0].Tag = "first"
	in[1].Tag = "second"
	var got collector
	require.NoError(t, runner.Run(context.Background(), in, got.sink))

	tags := []string{got.reports[0].Job.Tag, got.reports[1].Job.Tag}
	assert.ElementsMatch(t, []string{"first", "second"}, tags)
}

func TestRunRetryIsReported(t *testing.T) {
	t.Parallel()

	rem := newRemodeller(stage.Outcome{Status: stage.Failure})
	runner, err := batch.NewRunner(controllerFactory(t, stage.PerturbKIC, rem))
	require.NoError(t, err)

	var got collector
	require.NoError(t, runner.Run(context.Background(), jobs(1), got.sink))
	require.Len(t, got.reports, 1)
	assert.True(t, got.reports[0].Retry())
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		factory func(t *testing.T) batch.ControllerFactory
		sink    batch.SinkFunc
		jobs    []batch.Job
		wantErr error
	}{
		"no job": {
			factory: func(t *testing.T) batch.ControllerFactory {
				t.Helper()
				return controllerFactory(t, stage.QuickCCD, newRemodeller(stage.Outcome{Closed: true}))
			},
			wantErr: batch.ErrNoJobs,
		},
		"no sink": {
			factory: func(t *testing.T) batch.ControllerFactory {
				t.Helper()
				return controllerFactory(t, stage.QuickCCD, newRemodeller(stage.Outcome{Closed: true}))
			},
			jobs:    jobs(1),
			wantErr: batch.ErrSinkMustBeSet,
		},
		"factory fails": {
			factory: func(*testing.T) batch.ControllerFactory {
				return func(batch.Job) (*pipeline.Controller, error) { return nil, errBoom }
			},
			sink:    func(context.Context, batch.Report) error { return nil },
			jobs:    jobs(3),
			wantErr: errBoom,
		},
		"strategy fails": {
			factory: func(t *testing.T) batch.ControllerFactory {
				t.Helper()
				rem := newRemodeller(stage.Outcome{})
				rem.err = errBoom
				return controllerFactory(t, stage.QuickCCD, rem)
			},
			sink:    func(context.Context, batch.Report) error { return nil },
			jobs:    jobs(3),
			wantErr: errBoom,
		},
		"sink fails": {
			factory: func(t *testing.T) batch.ControllerFactory {
				t.Helper()
				return controllerFactory(t, stage.QuickCCD, newRemodeller(stage.Outcome{Closed: true}))
			},
			sink:    func(context.Context, batch.Report) error { return errBoom },
			jobs:    jobs(3),
			wantErr: errBoom,
		},
		"missing model": {
			factory: func(t *testing.T) batch.ControllerFactory {
				t.Helper()
				return controllerFactory(t, stage.QuickCCD, newRemodeller(stage.Outcome{Closed: true}))
			},
			sink:    func(context.Context, batch.Report) error { return nil },
			jobs:    []batch.Job{{Name: "empty"}},
			wantErr: pipeline.ErrPoseMustBeSet,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner, err := batch.NewRunner(tc.factory(t), batch.WithJobs(2))
			require.NoError(t, err)

			err = runner.Run(context.Background(), tc.jobs, tc.sink)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestNewRunnerNeedsFactory(t *testing.T) {
	t.Parallel()

	_, err := batch.NewRunner(nil)
	assert.ErrorIs(t, err, batch.ErrFactoryMustBeSet)
}

func TestRunCancel(t *testing.T) {
	t.Parallel()

	rem := newRemodeller(stage.Outcome{Status: stage.Success, Closed: true})
	rem.release = make(chan struct{})
	runner, err := batch.NewRunner(controllerFactory(t, stage.QuickCCD, rem), batch.WithJobs(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx, jobs(4), func(context.Context, batch.Report) error { return nil })
	}()

	assert.Eventually(t, func() bool { return rem.inFlight.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
