package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOOPRELAX"

var ErrInvalid = errors.New("invalid configuration")

// Loader reads a Config from an optional file and the environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader seeded with the defaults.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	return &Loader{v: v}
}

// Load reads the defaults and the environment only.
func (l *Loader) Load() (*Config, error) {
	return l.decode()
}

// LoadFromFile reads path, then applies the environment on top.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	err := l.v.ReadInConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config file %s", path)
	}

	return l.decode()
}

// Viper exposes the underlying instance so that command flags can be bound to keys.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

func (l *Loader) decode() (*Config, error) {
	cfg := DefaultConfig()
	err := l.v.Unmarshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode configuration")
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values the controller cannot check itself.
func (c *Config) Validate() error {
	selectors := []struct {
		family stage.Family
		name   string
	}{
		{stage.Remodel, c.Stages.Remodel},
		{stage.Intermediate, c.Stages.Intermediate},
		{stage.Refine, c.Stages.Refine},
		{stage.Relax, c.Stages.Relax},
	}
	for _, s := range selectors {
		if s.name != stage.Off && !stage.Known(s.family, s.name) {
			return errors.Wrapf(ErrInvalid, "stages.%s: %q is not one of %v", s.family, s.name, stage.Names(s.family))
		}
	}

	switch pipeline.ClosureCriterion(c.Remodel.ClosureCriterion) {
	case pipeline.ClosureByStrategy, pipeline.ClosureByScore:
	default:
		return errors.Wrapf(ErrInvalid, "remodel.closure_criterion: %q", c.Remodel.ClosureCriterion)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Wrapf(ErrInvalid, "log.format: %q is not text or json", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Wrapf(ErrInvalid, "log.level: %q", c.Log.Level)
	}
	if c.Run.Jobs < 1 {
		return errors.Wrapf(ErrInvalid, "run.jobs must be at least 1, got %d", c.Run.Jobs)
	}

	return nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"stages.remodel":                      cfg.Stages.Remodel,
		"stages.intermediate":                 cfg.Stages.Intermediate,
		"stages.refine":                       cfg.Stages.Refine,
		"stages.relax":                        cfg.Stages.Relax,
		"remodel.tries":                       cfg.Remodel.Tries,
		"remodel.filter":                      cfg.Remodel.Filter,
		"remodel.closure_criterion":           cfg.Remodel.ClosureCriterion,
		"remodel.build_initial":               cfg.Remodel.BuildInitial,
		"remodel.grow_by":                     cfg.Remodel.GrowBy,
		"remodel.min_region_length":           cfg.Remodel.MinRegionLength,
		"remodel.extended_regions":            cfg.Remodel.ExtendedRegions,
		"remodel.remove_extended":             cfg.Remodel.RemoveExtended,
		"remodel.detect":                      cfg.Remodel.Detect,
		"restraints.attach":                   cfg.Restraints.Attach,
		"restraints.weight":                   cfg.Restraints.Weight,
		"restraints.constrain_rigid_segments": cfg.Restraints.ConstrainRigidSegments,
		"restraints.to_native":                cfg.Restraints.ToNative,
		"restraints.coordinate_stdev":         cfg.Restraints.CoordinateStdev,
		"fullatom.output":                     cfg.Fullatom.Output,
		"fullatom.copy_sidechains":            cfg.Fullatom.CopySidechains,
		"fullatom.repack_padding":             cfg.Fullatom.RepackPadding,
		"fullatom.missing_density_distance":   cfg.Fullatom.MissingDensityDistance,
		"refine.outer_cycles":                 cfg.Refine.OuterCycles,
		"refine.max_inner_cycles":             cfg.Refine.MaxInnerCycles,
		"refine.fast":                         cfg.Refine.Fast,
		"refine.repack_period":                cfg.Refine.RepackPeriod,
		"refine.use_linear_chainbreak":        cfg.Refine.UseLinearChainbreak,
		"refine.idealize_after_closure":       cfg.Refine.IdealizeAfterClosure,
		"relax.with_topology":                 cfg.Relax.WithTopology,
		"relax.chainbreak":                    cfg.Relax.Chainbreak,
		"relax.linear_chainbreak":             cfg.Relax.LinearChainbreak,
		"relax.overlap_chainbreak":            cfg.Relax.OverlapChainbreak,
		"relax.final_clean_fastrelax":         cfg.Relax.FinalCleanFastRelax,
		"stats.compute_rmsd":                  cfg.Stats.ComputeRMSD,
		"stats.superimpose_native":            cfg.Stats.SuperimposeNative,
		"checkpoints.dir":                     cfg.Checkpoints.Dir,
		"checkpoints.database":                cfg.Checkpoints.Database,
		"log.level":                           cfg.Log.Level,
		"log.format":                          cfg.Log.Format,
		"run.jobs":                            cfg.Run.Jobs,
		"run.seed":                            cfg.Run.Seed,
		"run.debug":                           cfg.Run.Debug,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
