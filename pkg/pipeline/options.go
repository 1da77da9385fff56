package pipeline

import (
	"log/slog"
	"time"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// ClosureCriterion selects how the remodel loop decides that the regions are closed.
type ClosureCriterion string

const (
	// ClosureByStrategy trusts the closure state reported by the remodel strategy.
	ClosureByStrategy ClosureCriterion = "strategy"
	// ClosureByScore accepts an attempt once the centroid score is at most RebuildFilter.
	ClosureByScore ClosureCriterion = "score"
)

// ChainbreakWeights are the weights given to the chainbreak terms while relaxing with the
// region topology.
type ChainbreakWeights struct {
	Chainbreak        float64
	LinearChainbreak  float64
	OverlapChainbreak float64
}

// Config is the configuration surface of a run. It is read-only during Apply.
type Config struct {
	Remodel      string
	Intermediate string
	Refine       string
	Relax        string

	NRebuildTries    int
	RebuildFilter    float64
	ClosureCriterion ClosureCriterion

	ComputeRMSD       bool
	SuperimposeNative bool
	CopySidechains    bool
	FullatomOutput    bool

	// AttachRestraints adds the configured restraints to the model. When false only the
	// restraint weights are enabled, for models that already carry their restraints.
	AttachRestraints       bool
	ConstraintWeight       float64
	ConstrainRigidSegments float64
	// ConstrainToNative makes the rigid segment restraints target the reference model
	// instead of the model itself.
	ConstrainToNative bool
	CoordinateStdev   float64

	BuildInitial          bool
	GrowBy                int
	MinRegionLength       int
	ExtendedRegions       bool
	RemoveExtendedRegions bool

	RepackPadding          int
	MissingDensityDistance float64

	RelaxWithTopology      bool
	RelaxChainbreakWeights ChainbreakWeights
	FinalCleanFastRelax    bool
	IdealizeAfterClosure   bool
	KicUseLinearChainbreak bool

	RefineCycles stage.RefineCycles

	Debug bool
}

// DefaultConfig returns a configuration with every stage disabled.
func DefaultConfig() Config {
	return Config{
		Remodel:                stage.Off,
		Intermediate:           stage.Off,
		Refine:                 stage.Off,
		Relax:                  stage.Off,
		NRebuildTries:          3,
		RebuildFilter:          999,
		ClosureCriterion:       ClosureByStrategy,
		CopySidechains:         true,
		AttachRestraints:       true,
		ConstraintWeight:       1,
		CoordinateStdev:        0.5,
		MinRegionLength:        region.DefaultMinLength,
		RepackPadding:          3,
		MissingDensityDistance: 20,
		RelaxChainbreakWeights: ChainbreakWeights{Chainbreak: 1, LinearChainbreak: 1},
		RefineCycles:           stage.RefineCycles{RepackPeriod: 20},
	}
}

// Option configures a Controller.
type Option func(c *Controller)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithStages sets the four stage selectors.
func WithStages(remodel, intermediate, refine, relax string) Option {
	return func(c *Controller) {
		c.cfg.Remodel = remodel
		c.cfg.Intermediate = intermediate
		c.cfg.Refine = refine
		c.cfg.Relax = relax
	}
}

// WithRegistry sets the strategy registry.
func WithRegistry(registry *stage.Registry) Option {
	return func(c *Controller) {
		c.registry = registry
	}
}

// WithCheckpointer sets the checkpoint store. Runs keep their checkpoints in memory otherwise.
func WithCheckpointer(checkpointer *checkpoint.Checkpointer) Option {
	return func(c *Controller) {
		c.checkpoints = checkpointer
	}
}

// WithLogger sets the logger. A nil logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithHooks adds observers of the stages, such as measure.PipelineMeasure.
func WithHooks(hooks ...model.PipelineOption) Option {
	return func(c *Controller) {
		c.hooks = append(c.hooks, hooks...)
	}
}

// WithMeasure collects the acceptance rates reported by the strategies.
func WithMeasure(m measure.Measure) Option {
	return func(c *Controller) {
		c.measure = m
	}
}

// WithSeed sets the seed of the random source. Each tag derives its own stream from it.
func WithSeed(seed int64) Option {
	return func(c *Controller) {
		c.seed = seed
	}
}

// WithClock sets the time source of the stage timings.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithNative sets the reference model used by the comparison statistics.
func WithNative(native *model.Pose) Option {
	return func(c *Controller) {
		c.native = native
	}
}

// WithFragments sets the fragment libraries handed to the remodel strategies.
func WithFragments(libs ...model.FragmentLibrary) Option {
	return func(c *Controller) {
		c.fragments = append(c.fragments, libs...)
	}
}

// WithObjectives sets the centroid and fullatom objective functions.
func WithObjectives(centroid, fullatom *score.Function) Option {
	return func(c *Controller) {
		c.centroid = centroid
		c.fullatom = fullatom
	}
}

// WithRegions sets the explicit regions. Without them regions are detected.
func WithRegions(regions region.Set) Option {
	return func(c *Controller) {
		c.regions = regions.Clone()
	}
}

// WithDetector sets the region detector used when no explicit region is set.
func WithDetector(detector region.Detector[*model.Pose]) Option {
	return func(c *Controller) {
		c.detector = detector
	}
}

// WithPacker sets the side chain packer of the fullatom transition.
func WithPacker(packer Packer) Option {
	return func(c *Controller) {
		c.packer = packer
	}
}

// WithIdealizer sets the idealizer run after closure.
func WithIdealizer(idealizer Idealizer) Option {
	return func(c *Controller) {
		c.idealizer = idealizer
	}
}

// WithRestraints sets the restraints applied during constraint setup.
func WithRestraints(restraints model.Constraints) Option {
	return func(c *Controller) {
		c.restraints = restraints.Clone()
	}
}

// WithDumper receives model snapshots around stages when Config.Debug is set.
func WithDumper(dumper Dumper) Option {
	return func(c *Controller) {
		c.dumper = dumper
	}
}
