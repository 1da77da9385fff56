package batch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/go-looprelax/internal/batch"
	"github.com/askiada/go-looprelax/internal/fixture"
	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// remodeller counts the remodel runs in flight and blocks each one until release is closed.
type remodeller struct {
	outcome  stage.Outcome
	err      error
	release  chan struct{}
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func newRemodeller(outcome stage.Outcome) *remodeller {
	release := make(chan struct{})
	close(release)

	return &remodeller{outcome: outcome, release: release}
}

func (r *remodeller) factory(stage.Params) (stage.Executor, error) {
	return stage.ExecutorFunc(func(ctx context.Context, _ *model.Pose) (stage.Outcome, error) {
		r.calls.Add(1)
		n := r.inFlight.Add(1)
		defer r.inFlight.Add(-1)
		for {
			peak := r.peak.Load()
			if n <= peak || r.peak.CompareAndSwap(peak, n) {
				break
			}
		}

		select {
		case <-ctx.Done():
			return stage.Outcome{}, ctx.Err()
		case <-r.release:
		}

		return r.outcome, r.err
	}), nil
}

func controllerFactory(t *testing.T, name string, rem *remodeller) batch.ControllerFactory {
	t.Helper()

	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stage.Remodel, name, rem.factory))

	return func(batch.Job) (*pipeline.Controller, error) {
		cfg := pipeline.DefaultConfig()
		cfg.Remodel = name

		return pipeline.New(
			pipeline.WithConfig(cfg),
			pipeline.WithRegistry(reg),
			pipeline.WithRegions(region.Set{{Start: 4, Stop: 8}}),
			pipeline.WithFragments(model.FragmentLibrary{Name: "frag3", Length: 3, Count: 10}),
		)
	}
}

func jobs(n int) []batch.Job {
	out := make([]batch.Job, 0, n)
	for i := range n {
		out = append(out, batch.Job{Name: string(rune('a' + i)), Pose: fixture.Helix(12)})
	}

	return out
}

// collector is a sink keeping every report.
type collector struct {
	mu      sync.Mutex
	reports []batch.Report
}

func (c *collector) sink(_ context.Context, report batch.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reports = append(c.reports, report)

	return nil
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.reports))
	for _, report := range c.reports {
		out = append(out, report.Job.Name)
	}

	return out
}
