package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-looprelax/internal/config"
	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "looprelax.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestDefaultsMatchController(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultConfig(), cfg.Pipeline())
	assert.Equal(t, 1, cfg.Run.Jobs)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
stages:
  remodel: perturb_kic
  refine: refine_kic_refactor
  relax: fastrelax
remodel:
  tries: 5
  closure_criterion: score
  filter: 12.5
refine:
  fast: true
  repack_period: 7
relax:
  with_topology: true
  overlap_chainbreak: 0.5
run:
  jobs: 4
`)
	cfg, err := config.NewLoader().LoadFromFile(path)
	require.NoError(t, err)

	p := cfg.Pipeline()
	assert.Equal(t, stage.PerturbKIC, p.Remodel)
	assert.Equal(t, stage.Off, p.Intermediate)
	assert.Equal(t, stage.RefineKICRefactor, p.Refine)
	assert.Equal(t, stage.FastRelax, p.Relax)
	assert.Equal(t, 5, p.NRebuildTries)
	assert.Equal(t, pipeline.ClosureByScore, p.ClosureCriterion)
	assert.InDelta(t, 12.5, p.RebuildFilter, 1e-9)
	assert.Equal(t, stage.RefineCycles{Fast: true, RepackPeriod: 7}, p.RefineCycles)
	assert.True(t, p.RelaxWithTopology)
	assert.Equal(t, pipeline.ChainbreakWeights{Chainbreak: 1, LinearChainbreak: 1, OverlapChainbreak: 0.5}, p.RelaxChainbreakWeights)
	assert.True(t, p.CopySidechains, "unset keys keep their default")
	assert.Equal(t, 4, cfg.Run.Jobs)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("LOOPRELAX_STAGES_RELAX", "minirelax")
	t.Setenv("LOOPRELAX_RUN_JOBS", "3")

	path := writeConfig(t, "stages:\n  relax: fastrelax\n")
	cfg, err := config.NewLoader().LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, stage.MiniRelax, cfg.Stages.Relax)
	assert.Equal(t, 3, cfg.Run.Jobs)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		content string
		missing bool
		wantErr error
	}{
		"missing file":       {missing: true},
		"malformed yaml":     {content: "stages: [remodel"},
		"unknown strategy":   {content: "stages:\n  remodel: ccd\n", wantErr: config.ErrInvalid},
		"relax as a refiner": {content: "stages:\n  refine: fastrelax\n", wantErr: config.ErrInvalid},
		"bad criterion":      {content: "remodel:\n  closure_criterion: vibes\n", wantErr: config.ErrInvalid},
		"bad log format":     {content: "log:\n  format: xml\n", wantErr: config.ErrInvalid},
		"bad log level":      {content: "log:\n  level: loud\n", wantErr: config.ErrInvalid},
		"no jobs":            {content: "run:\n  jobs: 0\n", wantErr: config.ErrInvalid},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "absent.yaml")
			if !tc.missing {
				path = writeConfig(t, tc.content)
			}
			_, err := config.NewLoader().LoadFromFile(path)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}
