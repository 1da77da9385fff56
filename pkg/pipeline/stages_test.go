package pipeline_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/internal/fixture"
	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

func TestStatisticsAgainstReference(t *testing.T) {
	t.Parallel()

	cfg := pipeline.DefaultConfig()
	cfg.ComputeRMSD = true
	cfg.SuperimposeNative = true
	ctrl, err := pipeline.New(
		pipeline.WithConfig(cfg),
		pipeline.WithRegions(loop),
		pipeline.WithNative(fixture.Helix(12, fixture.WithShift(r3.Vec{X: 3, Z: -2}))),
	)
	require.NoError(t, err)

	scores := model.NewScoreTable()
	res, err := ctrl.Apply(context.Background(), "stats", fixture.Helix(12), scores)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cen_irms", "cen_rms", "cen_looprms", "cen_loopcarms",
		"irms", "rms", "looprms", "loop_heavy_rms", "loopcarms", "corerms", "corelen",
		"final_looprelax_score",
	}, scores.Keys())
	for _, name := range []string{"cen_irms", "cen_rms", "irms", "rms", "looprms", "loop_heavy_rms", "loopcarms", "corerms"} {
		value, ok := scores.Get(name)
		require.True(t, ok, name)
		assert.InDelta(t, 0, value, 1e-6, name)
	}
	corelen, _ := scores.Get("corelen")
	assert.InDelta(t, 7, corelen, 1e-9)
	assert.Equal(t, 7, res.CoreLength)
}

func TestRefineStatistics(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		remodel     *fakeStrategy
		linear      bool
		wantRefined bool
		wantPresent []string
		wantAbsent  []string
	}{
		"closed regions": {
			wantRefined: true,
			wantPresent: []string{"bref_irms", "final_chainbreak"},
			wantAbsent:  []string{"brlx_irms"},
		},
		"closed regions with linear chainbreak": {
			linear:      true,
			wantRefined: true,
			wantPresent: []string{"bref_irms", "final_chainbreak"},
		},
		"open regions": {
			remodel:     openStrategy(),
			wantPresent: []string{"cen_irms", "brlx_irms"},
			wantAbsent:  []string{"bref_irms", "final_chainbreak"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			refine := closingStrategy()
			cfg := pipeline.DefaultConfig()
			cfg.ComputeRMSD = true
			cfg.Refine = stage.RefineCCD
			cfg.KicUseLinearChainbreak = tc.linear
			entries := []entry{{stage.Refine, stage.RefineCCD, refine}}
			if tc.remodel != nil {
				cfg.Remodel = stage.QuickCCD
				entries = append(entries, entry{stage.Remodel, stage.QuickCCD, tc.remodel})
			}
			ctrl, err := pipeline.New(
				pipeline.WithConfig(cfg),
				pipeline.WithRegistry(newRegistry(t, entries...)),
				pipeline.WithRegions(loop),
				pipeline.WithFragments(fragments...),
			)
			require.NoError(t, err)

			scores := model.NewScoreTable()
			_, err = ctrl.Apply(context.Background(), "refine", fixture.Helix(12), scores)
			require.NoError(t, err)

			if tc.wantRefined {
				assert.Equal(t, 1, refine.Calls())
			} else {
				assert.Zero(t, refine.Calls())
			}
			for _, name := range tc.wantPresent {
				assert.True(t, scores.Has(name), name)
			}
			for _, name := range tc.wantAbsent {
				assert.False(t, scores.Has(name), name)
			}
		})
	}
}

func TestRepackMask(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		pose     *model.Pose
		remodel  bool
		regions  region.Set
		wantMask []bool
	}{
		"centroid input repacks everything": {
			pose:     fixture.Helix(6, fixture.WithRepresentation(model.Centroid)),
			regions:  region.Set{{Start: 2, Stop: 3}},
			wantMask: []bool{true, true, true, true, true, true},
		},
		"remodelled regions are padded": {
			pose:     fixture.Helix(12),
			remodel:  true,
			regions:  region.Set{{Start: 5, Stop: 6}},
			wantMask: []bool{false, true, true, true, true, true, true, true, true, false, false, false},
		},
		"missing density": {
			pose:     fixture.Helix(6, fixture.WithMissingDensity(3)),
			regions:  region.Set{{Start: 2, Stop: 4}},
			wantMask: []bool{false, false, true, false, false, false},
		},
		"nothing to repack": {
			pose:    fixture.Helix(6),
			regions: region.Set{{Start: 2, Stop: 4}},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			packer := &fakePacker{}
			cfg := pipeline.DefaultConfig()
			cfg.FullatomOutput = true
			if tc.remodel {
				cfg.Remodel = stage.QuickCCD
			}
			ctrl, err := pipeline.New(
				pipeline.WithConfig(cfg),
				pipeline.WithRegistry(newRegistry(t, entry{stage.Remodel, stage.QuickCCD, closingStrategy()})),
				pipeline.WithRegions(tc.regions),
				pipeline.WithFragments(fragments...),
				pipeline.WithPacker(packer),
			)
			require.NoError(t, err)

			pose := tc.pose
			_, err = ctrl.Apply(context.Background(), "repack", pose, model.NewScoreTable())
			require.NoError(t, err)

			assert.Equal(t, model.FullAtom, pose.Representation)
			if tc.wantMask == nil {
				assert.Empty(t, packer.masks)
				return
			}
			require.Len(t, packer.masks, 1)
			assert.Equal(t, tc.wantMask, packer.masks[0])
			if tc.remodel {
				assert.True(t, pose.HasSideChain(12), "side chains outside the regions come from the input")
				assert.False(t, pose.HasSideChain(5), "side chains of remodelled units are left to the packer")
			}
		})
	}
}

func TestRigidSegmentRestraints(t *testing.T) {
	t.Parallel()

	native := fixture.Helix(12, fixture.WithShift(r3.Vec{X: 5}))
	tcs := map[string]struct {
		toNative   bool
		wantTarget func(pose *model.Pose) r3.Vec
	}{
		"restrained to itself": {
			wantTarget: func(pose *model.Pose) r3.Vec {
				xyz, _ := pose.Residue(1).Atom(model.AtomN)
				return xyz
			},
		},
		"restrained to the reference model": {
			toNative: true,
			wantTarget: func(*model.Pose) r3.Vec {
				xyz, _ := native.Residue(1).Atom(model.AtomN)
				return xyz
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := pipeline.DefaultConfig()
			cfg.FullatomOutput = true
			cfg.ConstrainRigidSegments = 2
			cfg.ConstrainToNative = tc.toNative
			ctrl, err := pipeline.New(pipeline.WithConfig(cfg), pipeline.WithRegions(loop), pipeline.WithNative(native))
			require.NoError(t, err)

			pose := fixture.Helix(12)
			_, err = ctrl.Apply(context.Background(), "rigid", pose, model.NewScoreTable())
			require.NoError(t, err)

			coords := pose.Constraints.Coordinate
			require.Len(t, coords, 7*len(model.BackboneAtoms))
			for _, c := range coords {
				assert.False(t, loop.Contains(c.Unit), "unit %d is flexible", c.Unit)
				assert.InDelta(t, 0.5, c.Stdev, 1e-9)
			}
			assert.Equal(t, tc.wantTarget(pose), coords[0].Target)
		})
	}
}

func TestRestraintsAttachment(t *testing.T) {
	t.Parallel()

	restraints := model.Constraints{AtomPair: []model.AtomPairConstraint{{
		UnitA: 2, AtomA: model.AtomCA, UnitB: 10, AtomB: model.AtomCA, Distance: 12, Stdev: 1,
	}}}
	tcs := map[string]struct {
		attach bool
		want   int
	}{
		"attached":     {attach: true, want: 1},
		"weights only": {attach: false, want: 0},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := pipeline.DefaultConfig()
			cfg.AttachRestraints = tc.attach
			cfg.FullatomOutput = true
			ctrl, err := pipeline.New(pipeline.WithConfig(cfg), pipeline.WithRestraints(restraints))
			require.NoError(t, err)

			pose := fixture.Helix(12)
			_, err = ctrl.Apply(context.Background(), "restraints", pose, model.NewScoreTable())
			require.NoError(t, err)
			assert.Len(t, pose.Constraints.AtomPair, tc.want)
		})
	}
}

func TestIdealizeNeedsClosure(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		remodel   *fakeStrategy
		wantCalls int
	}{
		"closed": {remodel: closingStrategy(), wantCalls: 1},
		"open":   {remodel: openStrategy(), wantCalls: 0},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			idealizer := &fakeIdealizer{}
			cfg := pipeline.DefaultConfig()
			cfg.Remodel = stage.QuickCCD
			cfg.IdealizeAfterClosure = true
			ctrl, err := pipeline.New(
				pipeline.WithConfig(cfg),
				pipeline.WithRegistry(newRegistry(t, entry{stage.Remodel, stage.QuickCCD, tc.remodel})),
				pipeline.WithRegions(loop),
				pipeline.WithFragments(fragments...),
				pipeline.WithIdealizer(idealizer),
			)
			require.NoError(t, err)

			_, err = ctrl.Apply(context.Background(), "idealize", fixture.Helix(12), model.NewScoreTable())
			require.NoError(t, err)
			assert.Equal(t, tc.wantCalls, idealizer.calls)
		})
	}
}

func TestIntermediateAndFinalCleanRelax(t *testing.T) {
	t.Parallel()

	intermediate, relax, clean := closingStrategy(), closingStrategy(), closingStrategy()
	m := measure.NewDefaultMeasure()
	cfg := pipeline.DefaultConfig()
	cfg.Intermediate = stage.SeqRelax
	cfg.Relax = stage.ClassicRelax
	cfg.FinalCleanFastRelax = true
	ctrl, err := pipeline.New(
		pipeline.WithConfig(cfg),
		pipeline.WithHooks(measure.PipelineMeasure(m)),
		pipeline.WithRegistry(newRegistry(t,
			entry{stage.Intermediate, stage.SeqRelax, intermediate},
			entry{stage.Relax, stage.ClassicRelax, relax},
			entry{stage.Relax, stage.FastRelax, clean},
		)),
		pipeline.WithRegions(loop),
	)
	require.NoError(t, err)

	res, err := ctrl.Apply(context.Background(), "consolidate", fixture.Helix(12), model.NewScoreTable())
	require.NoError(t, err)

	assert.Equal(t, []string{"prepare", "constraints", "fullatom", "intermediate", "relax", "final_clean", "final_stats"}, res.Stages)
	require.NotNil(t, m.GetMetric("final_clean"))
	assert.Equal(t, int64(1), m.GetMetric("final_clean").Runs())
	assert.Equal(t, 1, intermediate.Calls())
	assert.Equal(t, 1, relax.Calls())
	assert.Equal(t, 1, clean.Calls())

	recs, err := ctrl.Checkpoints().List("consolidate")
	require.NoError(t, err)
	labels := make([]string, 0, len(recs))
	for _, rec := range recs {
		labels = append(labels, rec.Label)
	}
	assert.ElementsMatch(t, []string{
		checkpoint.LabelInitial, checkpoint.LabelIntermediate, checkpoint.LabelRelax, checkpoint.LabelFinalRelax,
	}, labels)
}

func TestRelaxDoesNotRecoverIntermediateSnapshot(t *testing.T) {
	t.Parallel()

	checkpoints := checkpoint.New(checkpoint.NewFileBackend(t.TempDir()))
	build := func(intermediate, relax *fakeStrategy) *pipeline.Controller {
		cfg := pipeline.DefaultConfig()
		cfg.Intermediate = stage.SeqRelax
		cfg.Relax = stage.ClassicRelax
		ctrl, err := pipeline.New(
			pipeline.WithConfig(cfg),
			pipeline.WithRegistry(newRegistry(t,
				entry{stage.Intermediate, stage.SeqRelax, intermediate},
				entry{stage.Relax, stage.ClassicRelax, relax},
			)),
			pipeline.WithRegions(loop),
			pipeline.WithCheckpointer(checkpoints),
		)
		require.NoError(t, err)

		return ctrl
	}

	boom := errors.New("boom")
	intermediate, relax := closingStrategy(), closingStrategy()
	relax.err = boom
	_, err := build(intermediate, relax).Apply(context.Background(), "split", fixture.Helix(12), model.NewScoreTable())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, intermediate.Calls())

	intermediate, relax = closingStrategy(), closingStrategy()
	_, err = build(intermediate, relax).Apply(context.Background(), "split", fixture.Helix(12), model.NewScoreTable())
	require.NoError(t, err)
	assert.Zero(t, intermediate.Calls())
	assert.Equal(t, 1, relax.Calls())
}

func TestFinalCleanSkippedWhenRegionsOpen(t *testing.T) {
	t.Parallel()

	clean := closingStrategy()
	cfg := pipeline.DefaultConfig()
	cfg.Remodel = stage.QuickCCD
	cfg.Relax = stage.ClassicRelax
	cfg.FinalCleanFastRelax = true
	ctrl, err := pipeline.New(
		pipeline.WithConfig(cfg),
		pipeline.WithRegistry(newRegistry(t,
			entry{stage.Remodel, stage.QuickCCD, openStrategy()},
			entry{stage.Relax, stage.ClassicRelax, closingStrategy()},
			entry{stage.Relax, stage.FastRelax, clean},
		)),
		pipeline.WithRegions(loop),
		pipeline.WithFragments(fragments...),
	)
	require.NoError(t, err)

	res, err := ctrl.Apply(context.Background(), "open", fixture.Helix(12), model.NewScoreTable())
	require.NoError(t, err)
	assert.False(t, res.AllRegionsClosed)
	assert.NotContains(t, res.Stages, "final_clean")
	assert.Zero(t, clean.Calls())
}

func TestFinalScoreUsesFullatomObjective(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		family stage.Family
		name   string
		setup  func(cfg *pipeline.Config)
	}{
		"refine only": {
			family: stage.Refine,
			name:   stage.RefineCCD,
			setup:  func(cfg *pipeline.Config) { cfg.Refine = stage.RefineCCD },
		},
		"relax only": {
			family: stage.Relax,
			name:   stage.FastRelax,
			setup:  func(cfg *pipeline.Config) { cfg.Relax = stage.FastRelax },
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			centroid := score.New("bonds", map[score.Term]float64{score.Bond: 1000})
			pose := fixture.Helix(12)
			shiftUnit(10, r3.Vec{X: 5, Y: 5})(pose)
			require.Greater(t, centroid.Clone().Score(pose.Clone()), 1.0)

			cfg := pipeline.DefaultConfig()
			cfg.FullatomOutput = false
			tc.setup(&cfg)
			ctrl, err := pipeline.New(
				pipeline.WithConfig(cfg),
				pipeline.WithRegistry(newRegistry(t, entry{tc.family, tc.name, closingStrategy()})),
				pipeline.WithRegions(loop),
				pipeline.WithObjectives(centroid, flatObjective()),
			)
			require.NoError(t, err)

			scores := model.NewScoreTable()
			_, err = ctrl.Apply(context.Background(), name, pose, scores)
			require.NoError(t, err)

			got, ok := scores.Get("final_looprelax_score")
			require.True(t, ok)
			assert.InDelta(t, 0, got, 1e-9)
			assert.Equal(t, model.FullAtom, pose.Representation)
		})
	}
}

func TestGrowthIsReproducible(t *testing.T) {
	t.Parallel()

	grown := func(tag string) region.Set {
		remodel := closingStrategy()
		cfg := pipeline.DefaultConfig()
		cfg.Remodel = stage.QuickCCD
		cfg.GrowBy = 3
		ctrl, err := pipeline.New(
			pipeline.WithConfig(cfg),
			pipeline.WithRegistry(newRegistry(t, entry{stage.Remodel, stage.QuickCCD, remodel})),
			pipeline.WithRegions(region.Set{{Start: 10, Stop: 12}}),
			pipeline.WithFragments(fragments...),
			pipeline.WithSeed(42),
		)
		require.NoError(t, err)

		_, err = ctrl.Apply(context.Background(), tag, fixture.Helix(24), model.NewScoreTable())
		require.NoError(t, err)
		require.Len(t, remodel.params, 1)

		return remodel.params[0].Regions
	}

	first := grown("job-1")
	assert.Equal(t, first, grown("job-1"))
	require.Len(t, first, 1)
	assert.LessOrEqual(t, first[0].Start, 10)
	assert.GreaterOrEqual(t, first[0].Start, 7)
	assert.GreaterOrEqual(t, first[0].Stop, 12)
	assert.LessOrEqual(t, first[0].Stop, 15)
}

func TestDebugDumps(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		debug     bool
		wantDumps []string
	}{
		"debug": {
			debug:     true,
			wantDumps: []string{"before_fullatom", "before_repack", "before_final_rescore"},
		},
		"quiet": {},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dumper := &fakeDumper{}
			cfg := pipeline.DefaultConfig()
			cfg.FullatomOutput = true
			cfg.Debug = tc.debug
			ctrl, err := pipeline.New(pipeline.WithConfig(cfg), pipeline.WithDumper(dumper))
			require.NoError(t, err)

			_, err = ctrl.Apply(context.Background(), "dump", fixture.Helix(6), model.NewScoreTable())
			require.NoError(t, err)
			assert.Equal(t, tc.wantDumps, dumper.names)
		})
	}
}
