package sampling_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/internal/fixture"
	"github.com/askiada/go-looprelax/internal/sampling"
	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

func TestPipelineWithReferenceStrategies(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		regions region.Set
	}{
		"explicit regions": {regions: loop},
		"detected regions": {},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := pipeline.DefaultConfig()
			cfg.Remodel = stage.QuickCCD
			cfg.Refine = stage.RefineKICRefactor
			cfg.Relax = stage.FastRelax
			cfg.FullatomOutput = true
			cfg.ComputeRMSD = true
			cfg.IdealizeAfterClosure = true
			cfg.RefineCycles = stage.RefineCycles{Fast: true, RepackPeriod: 5}

			opts := []pipeline.Option{
				pipeline.WithConfig(cfg),
				pipeline.WithRegistry(sampling.NewRegistry()),
				pipeline.WithDetector(sampling.ChainbreakPicker{}),
				pipeline.WithNative(fixture.Helix(12)),
				pipeline.WithFragments(fragments...),
				pipeline.WithPacker(sampling.Packer{}),
				pipeline.WithIdealizer(sampling.Idealizer{}),
				pipeline.WithSeed(11),
			}
			if tc.regions != nil {
				opts = append(opts, pipeline.WithRegions(tc.regions))
			}
			ctrl, err := pipeline.New(opts...)
			require.NoError(t, err)

			pose := fixture.Helix(12)
			shiftUnits(pose, 7, 8, r3.Vec{X: 6, Y: -3})
			scores := model.NewScoreTable()
			res, err := ctrl.Apply(context.Background(), "reference", pose, scores)
			require.NoError(t, err)

			assert.Equal(t, pipeline.StatusCompleted, res.Status)
			assert.True(t, res.AllRegionsClosed)
			assert.Equal(t, 1, res.RegionCount)
			assert.Equal(t, []string{
				"prepare", "constraints", "remodel", "midpoint_stats", "fullatom", "refine", "idealize", "relax", "final_stats",
			}, res.Stages)
			for _, metric := range []string{"cen_irms", "bref_irms", "brlx_irms", "final_chainbreak", "irms", "rms", "final_looprelax_score"} {
				assert.True(t, scores.Has(metric), metric)
			}
			assert.Equal(t, model.FullAtom, pose.Representation)
		})
	}
}
