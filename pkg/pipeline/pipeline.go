package pipeline

import (
	"context"
	"hash/fnv"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// Status tells the caller what to do with the unit of work once Apply returns.
type Status int

const (
	// StatusCompleted means every enabled stage ran.
	StatusCompleted Status = iota
	// StatusRetryRequested means the run stopped after remodelling and should be retried
	// from scratch.
	StatusRetryRequested
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusRetryRequested:
		return "retry_requested"
	default:
		return "unknown"
	}
}

// Result summarises one Apply call. Metrics go to the score table.
type Result struct {
	Status           Status
	AllRegionsClosed bool
	RemodelAttempts  int
	RegionCount      int
	CoreLength       int
	// Stages lists the executed stages in order.
	Stages []string
}

// Controller drives a model through the refinement stages.
type Controller struct {
	cfg         Config
	registry    *stage.Registry
	checkpoints *checkpoint.Checkpointer
	logger      *slog.Logger
	hooks       []model.PipelineOption
	measure     measure.Measure
	seed        int64
	now         func() time.Time

	native     *model.Pose
	fragments  []model.FragmentLibrary
	centroid   *score.Function
	fullatom   *score.Function
	regions    region.Set
	detector   region.Detector[*model.Pose]
	restraints model.Constraints

	packer    Packer
	idealizer Idealizer
	dumper    Dumper
}

// New creates a controller. Every stage selector is checked against the registry so that
// a misspelt strategy fails here rather than halfway through a run.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg: DefaultConfig(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.logger = c.logger.With(slog.String("component", "looprelax"))
	if c.registry == nil {
		c.registry = stage.NewRegistry()
	}
	if c.checkpoints == nil {
		c.checkpoints = checkpoint.New(checkpoint.NewMemoryBackend(), checkpoint.WithLogger(c.logger))
	}
	if c.centroid == nil {
		c.centroid = score.NewCentroid()
	}
	if c.fullatom == nil {
		c.fullatom = score.NewFullAtom()
	}

	err := c.validate()
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Controller) validate() error {
	selectors := []struct {
		family stage.Family
		name   string
	}{
		{stage.Remodel, c.cfg.Remodel},
		{stage.Intermediate, c.cfg.Intermediate},
		{stage.Refine, c.cfg.Refine},
		{stage.Relax, c.cfg.Relax},
	}
	for _, sel := range selectors {
		err := c.registry.Validate(sel.family, sel.name)
		if err != nil {
			return err
		}
	}
	if c.cfg.BuildInitial {
		err := c.registry.Validate(stage.Remodel, stage.QuickCCD)
		if err != nil {
			return errors.Wrap(err, "initial build")
		}
	}
	if c.cfg.FinalCleanFastRelax && c.cfg.Relax != stage.Off {
		err := c.registry.Validate(stage.Relax, stage.FastRelax)
		if err != nil {
			return errors.Wrap(err, "final clean relax")
		}
	}

	switch {
	case c.cfg.ClosureCriterion != ClosureByStrategy && c.cfg.ClosureCriterion != ClosureByScore:
		return errors.Wrapf(ErrInvalidConfig, "closure criterion %q", c.cfg.ClosureCriterion)
	case c.cfg.NRebuildTries < 1:
		return errors.Wrapf(ErrInvalidConfig, "rebuild tries must be positive, got %d", c.cfg.NRebuildTries)
	case c.cfg.GrowBy < 0:
		return errors.Wrapf(ErrInvalidConfig, "grow by must not be negative, got %d", c.cfg.GrowBy)
	case c.cfg.RepackPadding < 0:
		return errors.Wrapf(ErrInvalidConfig, "repack padding must not be negative, got %d", c.cfg.RepackPadding)
	case c.cfg.CoordinateStdev <= 0:
		return errors.Wrapf(ErrInvalidConfig, "coordinate stdev must be positive, got %g", c.cfg.CoordinateStdev)
	case c.cfg.IdealizeAfterClosure && c.idealizer == nil:
		return errors.Wrap(ErrCollaboratorRequired, "idealize after closure needs an idealizer")
	}

	return nil
}

// Config returns a copy of the configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Checkpoints returns the checkpoint store.
func (c *Controller) Checkpoints() *checkpoint.Checkpointer {
	return c.checkpoints
}

// Apply runs every enabled stage on pose, in place, and records the metrics in scores.
// tag keys the checkpoints of the run: calling Apply again with the same tag resumes from
// the last completed stage.
func (c *Controller) Apply(ctx context.Context, tag string, pose *model.Pose, scores *model.ScoreTable) (Result, error) {
	switch {
	case pose == nil:
		return Result{}, ErrPoseMustBeSet
	case scores == nil:
		return Result{}, ErrScoresMustBeSet
	case tag == "":
		return Result{}, ErrTagMustBeSet
	}

	for _, hook := range c.hooks {
		err := hook.New()
		if err != nil {
			return Result{}, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	r := c.newRun(ctx, tag, pose, scores)
	r.logger.Info("starting run", slog.Int("units", pose.Len()))

	err := r.execute()
	if err != nil {
		return r.result(), err
	}

	for _, hook := range c.hooks {
		err := hook.Finish()
		if err != nil {
			return r.result(), errors.Wrap(err, "unable to finish pipeline option")
		}
	}
	r.logger.Info("run finished",
		slog.String("status", r.status.String()),
		slog.Bool("closed", r.state.AllRegionsClosed),
		slog.Int("regions", len(r.regions)))

	return r.result(), nil
}

// runRand derives the random stream of a tag, so that concurrent runs sharing a seed do
// not sample the same moves.
func runRand(seed int64, tag string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))

	return rand.New(rand.NewSource(seed ^ int64(h.Sum64()))) //nolint:gosec // sampling, not security
}
