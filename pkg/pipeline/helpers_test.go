package pipeline_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
	"github.com/askiada/go-looprelax/pkg/pipeline/topology"
)

// fakeStrategy is a stage strategy recording how it was called.
type fakeStrategy struct {
	mu         sync.Mutex
	outcomes   []stage.Outcome
	err        error
	onApply    func(pose *model.Pose)
	calls      int
	params     []stage.Params
	topologies []*topology.Topology
	variants   []bool
}

func closingStrategy() *fakeStrategy {
	return &fakeStrategy{outcomes: []stage.Outcome{{Status: stage.Success, Closed: true}}}
}

func openStrategy() *fakeStrategy {
	return &fakeStrategy{outcomes: []stage.Outcome{{Status: stage.Success, Closed: false}}}
}

func (f *fakeStrategy) factory(params stage.Params) (stage.Executor, error) {
	f.mu.Lock()
	f.params = append(f.params, params)
	f.mu.Unlock()

	return stage.ExecutorFunc(func(_ context.Context, pose *model.Pose) (stage.Outcome, error) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.topologies = append(f.topologies, pose.Topology.Clone())
		anyVariant := false
		for _, res := range pose.Residues {
			anyVariant = anyVariant || res.CutpointVariant
		}
		f.variants = append(f.variants, anyVariant)

		outcome := stage.Outcome{Status: stage.Success, Closed: true}
		if len(f.outcomes) > 0 {
			outcome = f.outcomes[min(f.calls, len(f.outcomes)-1)]
		}
		f.calls++
		if f.err != nil {
			return outcome, f.err
		}
		if f.onApply != nil {
			f.onApply(pose)
		}

		return outcome, nil
	}), nil
}

func (f *fakeStrategy) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type entry struct {
	family stage.Family
	name   string
	fake   *fakeStrategy
}

func newRegistry(t *testing.T, entries ...entry) *stage.Registry {
	t.Helper()

	reg := stage.NewRegistry()
	for _, e := range entries {
		require.NoError(t, reg.Register(e.family, e.name, e.fake.factory))
	}

	return reg
}

// flatObjective scores every model 0.
func flatObjective() *score.Function {
	return score.New("flat", nil)
}

// shiftUnit moves every atom of unit i.
func shiftUnit(i int, by r3.Vec) func(pose *model.Pose) {
	return func(pose *model.Pose) {
		res := pose.Residue(i)
		for a := range res.Atoms {
			res.Atoms[a].XYZ = r3.Add(res.Atoms[a].XYZ, by)
		}
	}
}

type fakePacker struct {
	mu    sync.Mutex
	masks [][]bool
}

func (p *fakePacker) Pack(_ context.Context, _ *model.Pose, repack []bool, _ *score.Function) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.masks = append(p.masks, append([]bool(nil), repack...))

	return nil
}

type fakeIdealizer struct {
	calls int
}

func (i *fakeIdealizer) Idealize(context.Context, *model.Pose, region.Set) error {
	i.calls++
	return nil
}

type fakeDumper struct {
	names []string
}

func (d *fakeDumper) Dump(_, name string, _ *model.Pose) error {
	d.names = append(d.names, name)
	return nil
}

func emptyDetector() region.Detector[*model.Pose] {
	return region.DetectorFunc[*model.Pose](func(*model.Pose, int) (region.Set, error) {
		return region.Set{}, nil
	})
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func sameResidues(t *testing.T, want, got *model.Pose) {
	t.Helper()

	assert.Empty(t, cmp.Diff(want.Residues, got.Residues))
}

func sameTopology(t *testing.T, want, got *topology.Topology) {
	t.Helper()

	assert.True(t, want.Equal(got), "topology changed: want %v got %v", want.Edges(), got.Edges())
}

var fragments = []model.FragmentLibrary{{Name: "frag9", Length: 9, Count: 200}, {Name: "frag3", Length: 3, Count: 200}}
