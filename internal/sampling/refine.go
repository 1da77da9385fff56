package sampling

import (
	"context"
	"log/slog"
	"math/rand"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/protocol"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// Task names of the refine protocols.
const (
	TaskPerturb       = "perturb"
	TaskClose         = "close"
	TaskRepack        = "repack"
	TaskRotamerTrials = "rotamer_trials"
	TaskMinimize      = "minimize"
)

const (
	ccdPerturbSigma = 0.3
	kicPerturbSigma = 0.6
	minimizeStep    = 0.2
	progressEvery   = 50
	acceptancePre   = "refine_"
)

// Refiner runs a Monte Carlo protocol over the regions and reports closure at the end.
type Refiner struct {
	protocol *protocol.Protocol
	regions  region.Set
	rng      *rand.Rand
	logger   *slog.Logger
	scores   *protocol.ScoreVsRMSD
}

// NewRefiner is the factory of refine_ccd and refine_kic. Both sample every region; the ccd
// flavour perturbs gently and closes after each move, the kic flavour perturbs wider.
func NewRefiner(params stage.Params) (stage.Executor, error) {
	if params.Objective == nil {
		return nil, ErrNoObjective
	}
	regions := params.Regions.Clone()
	if len(regions) == 0 {
		return nil, errors.Wrap(ErrNoRegions, params.Name)
	}

	sigma := ccdPerturbSigma
	if params.Name == stage.RefineKIC {
		sigma = kicPerturbSigma
	}
	cfg := protocol.DefaultConfig(maxRegionLen(regions), params.Refine)
	tasks := []protocol.Task{
		perturbTask(regions, sigma),
		closeTask(regions),
	}

	return newRefiner(params, regions, cfg, tasks), nil
}

// NewProtocolRefiner is the factory of refine_kic_refactor. It refines the first region with a
// mover made of a perturbation, a periodic repack, rotamer trials and a local minimisation.
func NewProtocolRefiner(params stage.Params) (stage.Executor, error) {
	if params.Objective == nil {
		return nil, ErrNoObjective
	}
	if len(params.Regions) == 0 {
		return nil, errors.Wrap(ErrNoRegions, params.Name)
	}
	first := region.Set{params.Regions[0]}

	period := params.Refine.RepackPeriod
	if period <= 0 {
		period = protocol.DefaultRepackPeriod
	}
	cfg := protocol.DefaultConfig(first[0].Len(), params.Refine)
	tasks := []protocol.Task{
		perturbTask(first, kicPerturbSigma),
		closeTask(first),
		protocol.Periodic(repackTask(first), period),
		rotamerTrialsTask(first),
		minimizeTask(first, params.Objective),
	}

	return newRefiner(params, first, cfg, tasks), nil
}

func newRefiner(params stage.Params, regions region.Set, cfg protocol.Config, tasks []protocol.Task) *Refiner {
	logger := componentLogger(params.Logger, params.Name)
	loggers := []protocol.Logger{protocol.NewProgressLogger(logger, progressEvery)}
	var scores *protocol.ScoreVsRMSD
	if params.Native != nil {
		scores = protocol.NewScoreVsRMSD(params.Native, regions)
		loggers = append(loggers, scores)
	}
	if params.Measure != nil {
		loggers = append(loggers, protocol.NewAcceptanceRates(params.Measure, acceptancePre))
	}

	return &Refiner{
		protocol: protocol.New(params.Objective, cfg,
			protocol.WithTasks(tasks...),
			protocol.WithLoggers(loggers...),
			protocol.WithLogger(logger),
		),
		regions: regions,
		rng:     runRand(params),
		logger:  logger,
		scores:  scores,
	}
}

func (r *Refiner) Apply(ctx context.Context, pose *model.Pose) (stage.Outcome, error) {
	summary, err := r.protocol.Apply(ctx, pose, r.rng)
	if err != nil {
		return stage.Outcome{}, err
	}
	closed := Closed(pose, r.regions, DefaultGapTolerance)
	attrs := []any{
		slog.Int("steps", summary.Steps),
		slog.Float64("acceptance", summary.AcceptanceRate()),
		slog.Float64("lowest", summary.LowestScore),
		slog.Bool("closed", closed),
	}
	if r.scores != nil {
		attrs = append(attrs, slog.Int("samples", len(r.scores.Points())))
	}
	r.logger.Debug("refine done", attrs...)

	return stage.Outcome{Status: stage.Success, Closed: closed}, nil
}

func maxRegionLen(regions region.Set) int {
	longest := 0
	for _, r := range regions {
		longest = max(longest, r.Len())
	}

	return longest
}

// pickUnit returns a random movable unit of the regions, 0 when there is none.
func pickUnit(pose *model.Pose, regions region.Set, rng *rand.Rand) int {
	units := regions.Units()
	if len(units) == 0 {
		return 0
	}
	for range len(units) {
		i := units[rng.Intn(len(units))]
		if movable(pose, i) {
			return i
		}
	}

	return 0
}

func perturbTask(regions region.Set, sigma float64) protocol.Task {
	return protocol.NewTask(TaskPerturb, func(_ context.Context, pose *model.Pose, rng *rand.Rand) error {
		if i := pickUnit(pose, regions, rng); i != 0 {
			translate(pose, i, gaussian(rng, sigma))
		}
		return nil
	})
}

func closeTask(regions region.Set) protocol.Task {
	return protocol.NewTask(TaskClose, func(_ context.Context, pose *model.Pose, _ *rand.Rand) error {
		for _, r := range regions {
			project(pose, r, projectionRounds)
		}
		return nil
	})
}

func repackTask(regions region.Set) protocol.Task {
	return protocol.NewTask(TaskRepack, func(_ context.Context, pose *model.Pose, _ *rand.Rand) error {
		for _, i := range regions.Units() {
			if movable(pose, i) {
				placeSideChain(pose, i)
			}
		}
		return nil
	})
}

func rotamerTrialsTask(regions region.Set) protocol.Task {
	return protocol.NewTask(TaskRotamerTrials, func(_ context.Context, pose *model.Pose, rng *rand.Rand) error {
		i := pickUnit(pose, regions, rng)
		if i == 0 || !pose.HasSideChain(i) {
			return nil
		}
		side := pose.Residue(i).SideChain()
		for idx := range side {
			side[idx].XYZ = r3.Add(ca(pose, i), r3.Scale(sideChainOffset, perpendicular(outward(pose, i), rng)))
		}
		pose.Residue(i).SetSideChain(side)
		return nil
	})
}

func minimizeTask(regions region.Set, objective *score.Function) protocol.Task {
	return protocol.NewTask(TaskMinimize, func(ctx context.Context, pose *model.Pose, _ *rand.Rand) error {
		err := ctx.Err()
		if err != nil {
			return errors.Wrap(err, "minimisation interrupted")
		}
		current := objective.Score(pose)
		for _, i := range regions.Units() {
			if !movable(pose, i) {
				continue
			}
			saved := slices.Clone(pose.Residue(i).Atoms)
			if !smooth(pose, i, minimizeStep) {
				continue
			}
			trial := objective.Score(pose)
			if trial > current {
				pose.Residue(i).Atoms = saved
				continue
			}
			current = trial
		}
		return nil
	})
}

var _ stage.Executor = (*Refiner)(nil)
