package sampling

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

var (
	ErrNoObjective = errors.New("strategy needs an objective")
	ErrNoRegions   = errors.New("strategy needs at least one region")
)

// closureMode describes how one remodel strategy samples a region.
type closureMode struct {
	// cycles is the number of candidates tried per region; the lowest scoring one is kept.
	cycles int
	// rebuild starts every candidate from a fresh bridge between the anchors instead of the
	// current coordinates.
	rebuild bool
	// jitter is the width of the random displacement before closure, in Angstrom.
	jitter float64
	// moves adds a smoothing pass after closure.
	moves bool
	// strict reports failure when a region cannot be spanned.
	strict bool
}

var closureModes = map[string]closureMode{
	stage.QuickCCD:      {cycles: 4, rebuild: true, jitter: 0.6},
	stage.QuickCCDMoves: {cycles: 4, rebuild: true, jitter: 0.6, moves: true},
	stage.PerturbCCD:    {cycles: 6, jitter: 1.0},
	stage.PerturbKIC:    {cycles: 6, jitter: 1.0, strict: true},
	stage.SDKIC:         {cycles: 3, jitter: 0.4, moves: true},
}

// Closure rebuilds each region so that its chain breaks close.
type Closure struct {
	name      string
	mode      closureMode
	regions   region.Set
	objective *score.Function
	rng       *rand.Rand
	logger    *slog.Logger
	tolerance float64
}

// NewClosure is the factory of every closure based remodel strategy.
func NewClosure(params stage.Params) (stage.Executor, error) {
	mode, ok := closureModes[params.Name]
	if !ok {
		return nil, errors.Wrapf(stage.ErrUnknownStrategy, "no closure mode for %q", params.Name)
	}
	if params.Objective == nil {
		return nil, ErrNoObjective
	}
	if params.Aggressive {
		mode.cycles *= 2
		mode.rebuild = true
	}
	mode.jitter *= fragmentScale(params.Fragments)

	return &Closure{
		name:      params.Name,
		mode:      mode,
		regions:   params.Regions.Clone(),
		objective: params.Objective,
		rng:       runRand(params),
		logger:    componentLogger(params.Logger, params.Name),
		tolerance: DefaultGapTolerance,
	}, nil
}

// Apply samples every region in turn and reports whether all of them closed.
func (c *Closure) Apply(ctx context.Context, pose *model.Pose) (stage.Outcome, error) {
	for _, r := range c.regions {
		err := ctx.Err()
		if err != nil {
			return stage.Outcome{}, errors.Wrap(err, "remodel interrupted")
		}
		if c.mode.strict && !spannable(pose, r, c.tolerance) {
			c.logger.Debug("region cannot be spanned", slog.String("region", r.String()))
			return stage.Outcome{Status: stage.Failure}, nil
		}
		c.sample(pose, r)
	}

	closed := Closed(pose, c.regions, c.tolerance)
	status := stage.Success
	if c.mode.strict && !closed {
		status = stage.Failure
	}
	c.logger.Debug("remodel done", slog.Bool("closed", closed), slog.Float64("score", pose.TotalScore))

	return stage.Outcome{Status: status, Closed: closed}, nil
}

func (c *Closure) sample(pose *model.Pose, r region.Region) {
	best := pose.Clone()
	bestScore := math.Inf(1)
	for cycle := range c.mode.cycles {
		trial := pose.Clone()
		if c.mode.rebuild {
			bridge(trial, r, c.rng)
		}
		jitter(trial, r, c.mode.jitter, c.rng)
		project(trial, r, projectionRounds)
		if c.mode.moves {
			for i := r.Start; i <= r.Stop; i++ {
				smooth(trial, i, 0.25)
			}
			project(trial, r, projectionRounds)
		}
		s := c.objective.Score(trial)
		if s < bestScore {
			best, bestScore = trial, s
		}
		c.logger.Debug("remodel candidate",
			slog.String("region", r.String()),
			slog.Int("cycle", cycle+1),
			slog.Float64("score", s),
		)
	}
	pose.CopyFrom(best)
	c.objective.Score(pose)
}

// Legacy remodels every region with a fixed number of closure cycles and smoothing passes and
// never reports failure.
type Legacy struct {
	closure *Closure
	passes  int
}

const legacyPasses = 3

// NewLegacy is the factory of the legacy remodel strategy.
func NewLegacy(params stage.Params) (stage.Executor, error) {
	if params.Objective == nil {
		return nil, ErrNoObjective
	}
	mode := closureModes[stage.QuickCCD]
	mode.moves = true
	mode.jitter *= fragmentScale(params.Fragments)

	return &Legacy{
		closure: &Closure{
			name:      params.Name,
			mode:      mode,
			regions:   params.Regions.Clone(),
			objective: params.Objective,
			rng:       runRand(params),
			logger:    componentLogger(params.Logger, params.Name),
			tolerance: DefaultGapTolerance,
		},
		passes: legacyPasses,
	}, nil
}

func (l *Legacy) Apply(ctx context.Context, pose *model.Pose) (stage.Outcome, error) {
	var outcome stage.Outcome
	for pass := range l.passes {
		var err error
		outcome, err = l.closure.Apply(ctx, pose)
		if err != nil {
			return outcome, err
		}
		l.closure.logger.Debug("legacy pass", slog.Int("pass", pass+1), slog.Bool("closed", outcome.Closed))
		if outcome.Closed {
			break
		}
	}
	outcome.Status = stage.Success

	return outcome, nil
}

// fragmentScale narrows the sampling when more fragment libraries are available.
func fragmentScale(libs []model.FragmentLibrary) float64 {
	return 1 / math.Sqrt(float64(1+len(libs)))
}

func runRand(params stage.Params) *rand.Rand {
	if params.Rand != nil {
		return params.Rand
	}

	return rand.New(rand.NewSource(1)) //nolint:gosec // sampling, not security
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return logger.With(slog.String("component", "sampling"), slog.String("strategy", name))
}

var (
	_ stage.Executor = (*Closure)(nil)
	_ stage.Executor = (*Legacy)(nil)
)
