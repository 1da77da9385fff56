package sampling_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/internal/fixture"
	"github.com/askiada/go-looprelax/internal/sampling"
	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

func TestChainbreakPicker(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		pose      func() *model.Pose
		minLength int
		want      region.Set
	}{
		"continuous chain": {
			pose:      func() *model.Pose { return fixture.Helix(12) },
			minLength: 3,
		},
		"one break": {
			pose: func() *model.Pose {
				pose := fixture.Helix(12)
				shiftUnits(pose, 7, 12, r3.Vec{X: 10})
				return pose
			},
			minLength: 3,
			want:      region.Set{{Start: 5, Stop: 7, Cut: 6}},
		},
		"close breaks merge": {
			pose: func() *model.Pose {
				pose := fixture.Helix(16)
				shiftUnits(pose, 7, 16, r3.Vec{X: 10})
				shiftUnits(pose, 9, 16, r3.Vec{Y: 10})
				return pose
			},
			minLength: 4,
			want:      region.Set{{Start: 5, Stop: 10, Cut: 6}},
		},
		"padding stops at the chain ends": {
			pose: func() *model.Pose {
				pose := fixture.Helix(4)
				shiftUnits(pose, 2, 4, r3.Vec{X: 10})
				return pose
			},
			minLength: 10,
			want:      region.Set{{Start: 1, Stop: 4, Cut: 1}},
		},
		"virtual units are ignored": {
			pose:      func() *model.Pose { return fixture.Helix(6, fixture.WithTrailingVirtual(1)) },
			minLength: 3,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := sampling.ChainbreakPicker{}.Detect(tc.pose(), tc.minLength)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClosureClosesBrokenLoop(t *testing.T) {
	t.Parallel()

	for _, name := range []string{stage.QuickCCD, stage.QuickCCDMoves, stage.PerturbCCD, stage.PerturbKIC, stage.SDKIC, stage.OldLoopRelax} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pose := brokenLoop(t, 12, loop)
			before := pose.Clone()
			require.Greater(t, gapAt(t, pose, 6), sampling.IdealCADistance+sampling.DefaultGapTolerance)

			exec, err := sampling.NewRegistry().Build(params(stage.Remodel, name, loop, 7))
			require.NoError(t, err)
			outcome, err := exec.Apply(context.Background(), pose)
			require.NoError(t, err)

			assert.Equal(t, stage.Success, outcome.Status)
			assert.True(t, outcome.Closed)
			assert.True(t, sampling.Closed(pose, loop, sampling.DefaultGapTolerance))
			unchangedOutside(t, before, pose, loop)
		})
	}
}

func TestPerturbKICFailsWhenRegionCannotSpan(t *testing.T) {
	t.Parallel()

	regions := region.Set{{Start: 4, Stop: 5, Cut: 4}}
	pose := brokenLoop(t, 12, regions)
	shiftUnits(pose, 6, 12, r3.Vec{X: 60})
	before := pose.Clone()

	tcs := map[string]struct {
		name       string
		wantStatus stage.Status
	}{
		"perturb_kic": {name: stage.PerturbKIC, wantStatus: stage.Failure},
		"quick_ccd":   {name: stage.QuickCCD, wantStatus: stage.Success},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			trial := before.Clone()
			exec, err := sampling.NewClosure(params(stage.Remodel, tc.name, regions, 1))
			require.NoError(t, err)
			outcome, err := exec.Apply(context.Background(), trial)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, outcome.Status)
			assert.False(t, outcome.Closed)
		})
	}
}

func TestClosureIsSeeded(t *testing.T) {
	t.Parallel()

	run := func(seed int64) *model.Pose {
		pose := brokenLoop(t, 12, loop)
		exec, err := sampling.NewClosure(params(stage.Remodel, stage.QuickCCD, loop, seed))
		require.NoError(t, err)
		_, err = exec.Apply(context.Background(), pose)
		require.NoError(t, err)
		return pose
	}

	first, second := run(3), run(3)
	for i := 1; i <= first.Len(); i++ {
		assert.Equal(t, caOf(t, first, i), caOf(t, second, i), "unit %d", i)
	}
}

func TestFactoriesCheckParams(t *testing.T) {
	t.Parallel()

	noObjective := params(stage.Remodel, stage.QuickCCD, loop, 1)
	noObjective.Objective = nil

	tcs := map[string]struct {
		factory stage.Factory
		params  stage.Params
		wantErr error
	}{
		"closure without objective": {factory: sampling.NewClosure, params: noObjective, wantErr: sampling.ErrNoObjective},
		"closure unknown mode":      {
			factory: sampling.NewClosure,
			params:  params(stage.Remodel, stage.OldLoopRelax, loop, 1),
			wantErr: stage.ErrUnknownStrategy,
		},
		"relaxer unknown mode": {
			factory: sampling.NewRelaxer,
			params:  params(stage.Relax, stage.QuickCCD, loop, 1),
			wantErr: stage.ErrUnknownStrategy,
		},
		"refiner without regions": {
			factory: sampling.NewRefiner,
			params:  params(stage.Refine, stage.RefineCCD, nil, 1),
			wantErr: sampling.ErrNoRegions,
		},
		"protocol refiner without regions": {
			factory: sampling.NewProtocolRefiner,
			params:  params(stage.Refine, stage.RefineKICRefactor, nil, 1),
			wantErr: sampling.ErrNoRegions,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := tc.factory(tc.params)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRelaxerNeverWorsensScore(t *testing.T) {
	t.Parallel()

	for _, name := range stage.Names(stage.Relax) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pose := fixture.Helix(12)
			shiftUnits(pose, 6, 6, r3.Vec{X: 1.5, Z: 0.5})
			before := pose.Clone()
			p := params(stage.Relax, name, loop, 1)
			start := p.Objective.Score(pose)

			exec, err := sampling.NewRelaxer(p)
			require.NoError(t, err)
			outcome, err := exec.Apply(context.Background(), pose)
			require.NoError(t, err)

			assert.Equal(t, stage.Success, outcome.Status)
			assert.LessOrEqual(t, pose.TotalScore, start)
			if name == stage.MiniRelax {
				unchangedOutside(t, before, pose, loop)
			}
		})
	}
}

func TestRefinersKeepLowestScore(t *testing.T) {
	t.Parallel()

	for _, name := range stage.Names(stage.Refine) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pose := brokenLoop(t, 12, loop)
			m := measure.NewDefaultMeasure()
			p := params(stage.Refine, name, loop, 5)
			p.Refine = stage.RefineCycles{Fast: true, RepackPeriod: 4}
			p.Measure = m
			p.Native = fixture.Helix(12)
			start := p.Objective.Score(pose)

			exec, err := sampling.NewRegistry().Build(p)
			require.NoError(t, err)
			outcome, err := exec.Apply(context.Background(), pose)
			require.NoError(t, err)

			assert.Equal(t, stage.Success, outcome.Status)
			assert.True(t, outcome.Closed)
			assert.LessOrEqual(t, pose.TotalScore, start)
			perturb := m.GetMetric("refine_" + sampling.TaskPerturb)
			require.NotNil(t, perturb)
			assert.Equal(t, int64(3*12*2), perturb.Trials())
			if name == stage.RefineKICRefactor {
				repack := m.GetMetric("refine_" + sampling.TaskRepack)
				require.NotNil(t, repack)
				assert.Equal(t, int64(3*12*2/4), repack.Trials())
			}
		})
	}
}

func TestRefinerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec, err := sampling.NewRefiner(params(stage.Refine, stage.RefineCCD, loop, 1))
	require.NoError(t, err)
	_, err = exec.Apply(ctx, brokenLoop(t, 12, loop))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacker(t *testing.T) {
	t.Parallel()

	pose := fixture.Helix(6, fixture.WithoutSideChains())
	err := sampling.Packer{}.Pack(context.Background(), pose, []bool{false, true, false, false, true, false}, score.NewFullAtom())
	require.NoError(t, err)

	for i := 1; i <= pose.Len(); i++ {
		want := i == 2 || i == 5
		assert.Equal(t, want, pose.HasSideChain(i), "unit %d", i)
	}
	cb, ok := pose.Residue(2).Atom(sampling.PseudoSideChain)
	require.True(t, ok)
	assert.InDelta(t, 1.53, r3.Norm(r3.Sub(cb, caOf(t, pose, 2))), 1e-9)

	err = sampling.Packer{}.Pack(context.Background(), pose, []bool{true}, nil)
	assert.Error(t, err)
}

func TestIdealizerRestoresSpacing(t *testing.T) {
	t.Parallel()

	pose := fixture.Helix(12)
	shiftUnits(pose, 6, 6, r3.Vec{X: 2})
	before := pose.Clone()

	err := sampling.Idealizer{}.Idealize(context.Background(), pose, loop)
	require.NoError(t, err)

	for i := loop[0].Start - 1; i <= loop[0].Stop; i++ {
		assert.InDelta(t, sampling.IdealCADistance, gapAt(t, pose, i), 0.1, "bond %d-%d", i, i+1)
	}
	unchangedOutside(t, before, pose, loop)
}

func TestRegisterDefaults(t *testing.T) {
	t.Parallel()

	reg := stage.NewRegistry()
	require.NoError(t, sampling.RegisterDefaults(reg))
	for _, family := range stage.Families {
		for _, name := range stage.Names(family) {
			assert.NoError(t, reg.Validate(family, name), "%s %s", family, name)
		}
	}

	err := sampling.RegisterDefaults(reg)
	assert.ErrorIs(t, err, stage.ErrAlreadyRegistered)
}
