// Package config loads the run configuration of the looprelax command.
//
// Configuration is loaded with Viper from an optional YAML file, then overridden by
// environment variables with the LOOPRELAX_ prefix (nested keys use underscores, for example
// LOOPRELAX_STAGES_REMODEL). Anything left unset keeps the value of [DefaultConfig].
package config

import (
	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// Config is the root of the configuration tree.
type Config struct {
	Stages      StagesConfig      `mapstructure:"stages"`
	Remodel     RemodelConfig     `mapstructure:"remodel"`
	Restraints  RestraintsConfig  `mapstructure:"restraints"`
	Fullatom    FullatomConfig    `mapstructure:"fullatom"`
	Refine      RefineConfig      `mapstructure:"refine"`
	Relax       RelaxConfig       `mapstructure:"relax"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Checkpoints CheckpointsConfig `mapstructure:"checkpoints"`
	Log         LogConfig         `mapstructure:"log"`
	Run         RunConfig         `mapstructure:"run"`
}

// StagesConfig selects the strategy of each stage, "no" disables it.
type StagesConfig struct {
	Remodel      string `mapstructure:"remodel"`
	Intermediate string `mapstructure:"intermediate"`
	Refine       string `mapstructure:"refine"`
	Relax        string `mapstructure:"relax"`
}

// RemodelConfig tunes the centroid stages.
type RemodelConfig struct {
	Tries            int     `mapstructure:"tries"`
	Filter           float64 `mapstructure:"filter"`
	ClosureCriterion string  `mapstructure:"closure_criterion"`
	BuildInitial     bool    `mapstructure:"build_initial"`
	GrowBy           int     `mapstructure:"grow_by"`
	MinRegionLength  int     `mapstructure:"min_region_length"`
	ExtendedRegions  bool    `mapstructure:"extended_regions"`
	RemoveExtended   bool    `mapstructure:"remove_extended"`
	// Detect finds regions around chain breaks when no region file is given.
	Detect bool `mapstructure:"detect"`
}

// RestraintsConfig controls the auxiliary restraints.
type RestraintsConfig struct {
	Attach                 bool    `mapstructure:"attach"`
	Weight                 float64 `mapstructure:"weight"`
	ConstrainRigidSegments float64 `mapstructure:"constrain_rigid_segments"`
	ToNative               bool    `mapstructure:"to_native"`
	CoordinateStdev        float64 `mapstructure:"coordinate_stdev"`
}

// FullatomConfig controls the switch to full atom resolution.
type FullatomConfig struct {
	Output                 bool    `mapstructure:"output"`
	CopySidechains         bool    `mapstructure:"copy_sidechains"`
	RepackPadding          int     `mapstructure:"repack_padding"`
	MissingDensityDistance float64 `mapstructure:"missing_density_distance"`
}

// RefineConfig tunes the refine stage.
type RefineConfig struct {
	OuterCycles          int  `mapstructure:"outer_cycles"`
	MaxInnerCycles       int  `mapstructure:"max_inner_cycles"`
	Fast                 bool `mapstructure:"fast"`
	RepackPeriod         int  `mapstructure:"repack_period"`
	UseLinearChainbreak  bool `mapstructure:"use_linear_chainbreak"`
	IdealizeAfterClosure bool `mapstructure:"idealize_after_closure"`
}

// RelaxConfig tunes the relax stage.
type RelaxConfig struct {
	WithTopology        bool    `mapstructure:"with_topology"`
	Chainbreak          float64 `mapstructure:"chainbreak"`
	LinearChainbreak    float64 `mapstructure:"linear_chainbreak"`
	OverlapChainbreak   float64 `mapstructure:"overlap_chainbreak"`
	FinalCleanFastRelax bool    `mapstructure:"final_clean_fastrelax"`
}

// StatsConfig controls the comparison metrics.
type StatsConfig struct {
	ComputeRMSD       bool `mapstructure:"compute_rmsd"`
	SuperimposeNative bool `mapstructure:"superimpose_native"`
}

// CheckpointsConfig selects where checkpoints are kept. A database path wins over a
// directory; with neither, checkpoints live in memory for the process lifetime.
type CheckpointsConfig struct {
	Dir      string `mapstructure:"dir"`
	Database string `mapstructure:"database"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RunConfig controls the job driver.
type RunConfig struct {
	Jobs  int   `mapstructure:"jobs"`
	Seed  int64 `mapstructure:"seed"`
	Debug bool  `mapstructure:"debug"`
}

// DefaultConfig mirrors the controller defaults.
func DefaultConfig() *Config {
	p := pipeline.DefaultConfig()

	return &Config{
		Stages: StagesConfig{
			Remodel:      p.Remodel,
			Intermediate: p.Intermediate,
			Refine:       p.Refine,
			Relax:        p.Relax,
		},
		Remodel: RemodelConfig{
			Tries:            p.NRebuildTries,
			Filter:           p.RebuildFilter,
			ClosureCriterion: string(p.ClosureCriterion),
			MinRegionLength:  p.MinRegionLength,
			RemoveExtended:   p.RemoveExtendedRegions,
		},
		Restraints: RestraintsConfig{
			Attach:          p.AttachRestraints,
			Weight:          p.ConstraintWeight,
			CoordinateStdev: p.CoordinateStdev,
		},
		Fullatom: FullatomConfig{
			Output:                 p.FullatomOutput,
			CopySidechains:         p.CopySidechains,
			RepackPadding:          p.RepackPadding,
			MissingDensityDistance: p.MissingDensityDistance,
		},
		Refine: RefineConfig{
			RepackPeriod:        p.RefineCycles.RepackPeriod,
			UseLinearChainbreak: p.KicUseLinearChainbreak,
		},
		Relax: RelaxConfig{
			Chainbreak:        p.RelaxChainbreakWeights.Chainbreak,
			LinearChainbreak:  p.RelaxChainbreakWeights.LinearChainbreak,
			OverlapChainbreak: p.RelaxChainbreakWeights.OverlapChainbreak,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Run: RunConfig{
			Jobs: 1,
		},
	}
}

// Pipeline converts the tree into the controller configuration.
func (c *Config) Pipeline() pipeline.Config {
	p := pipeline.DefaultConfig()
	p.Remodel = c.Stages.Remodel
	p.Intermediate = c.Stages.Intermediate
	p.Refine = c.Stages.Refine
	p.Relax = c.Stages.Relax

	p.NRebuildTries = c.Remodel.Tries
	p.RebuildFilter = c.Remodel.Filter
	p.ClosureCriterion = pipeline.ClosureCriterion(c.Remodel.ClosureCriterion)
	p.BuildInitial = c.Remodel.BuildInitial
	p.GrowBy = c.Remodel.GrowBy
	p.MinRegionLength = c.Remodel.MinRegionLength
	p.ExtendedRegions = c.Remodel.ExtendedRegions
	p.RemoveExtendedRegions = c.Remodel.RemoveExtended

	p.AttachRestraints = c.Restraints.Attach
	p.ConstraintWeight = c.Restraints.Weight
	p.ConstrainRigidSegments = c.Restraints.ConstrainRigidSegments
	p.ConstrainToNative = c.Restraints.ToNative
	p.CoordinateStdev = c.Restraints.CoordinateStdev

	p.FullatomOutput = c.Fullatom.Output
	p.CopySidechains = c.Fullatom.CopySidechains
	p.RepackPadding = c.Fullatom.RepackPadding
	p.MissingDensityDistance = c.Fullatom.MissingDensityDistance

	p.RefineCycles = stage.RefineCycles{
		OuterCycles:    c.Refine.OuterCycles,
		MaxInnerCycles: c.Refine.MaxInnerCycles,
		Fast:           c.Refine.Fast,
		RepackPeriod:   c.Refine.RepackPeriod,
	}
	p.KicUseLinearChainbreak = c.Refine.UseLinearChainbreak
	p.IdealizeAfterClosure = c.Refine.IdealizeAfterClosure

	p.RelaxWithTopology = c.Relax.WithTopology
	p.RelaxChainbreakWeights = pipeline.ChainbreakWeights{
		Chainbreak:        c.Relax.Chainbreak,
		LinearChainbreak:  c.Relax.LinearChainbreak,
		OverlapChainbreak: c.Relax.OverlapChainbreak,
	}
	p.FinalCleanFastRelax = c.Relax.FinalCleanFastRelax

	p.ComputeRMSD = c.Stats.ComputeRMSD
	p.SuperimposeNative = c.Stats.SuperimposeNative
	p.Debug = c.Run.Debug

	return p
}
