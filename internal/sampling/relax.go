package sampling

import (
	"context"
	"log/slog"
	"slices"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

type relaxMode struct {
	cycles int
	step   float64
	// regionsOnly restricts the moves to the flexible regions.
	regionsOnly bool
	// sequential relaxes one region at a time, each with the full cycle count.
	sequential bool
}

var relaxModes = map[string]relaxMode{
	stage.ClassicRelax: {cycles: 8, step: 0.2},
	stage.FastRelax:    {cycles: 5, step: 0.35},
	stage.SeqRelax:     {cycles: 5, step: 0.2, sequential: true},
	stage.MiniRelax:    {cycles: 3, step: 0.2, regionsOnly: true},
}

// Relaxer smooths the model unit by unit and keeps a move only when the objective does not get
// worse.
type Relaxer struct {
	mode      relaxMode
	regions   region.Set
	objective *score.Function
	logger    *slog.Logger
}

// NewRelaxer is the factory of the relax and intermediate strategies.
func NewRelaxer(params stage.Params) (stage.Executor, error) {
	mode, ok := relaxModes[params.Name]
	if !ok {
		return nil, errors.Wrapf(stage.ErrUnknownStrategy, "no relax mode for %q", params.Name)
	}
	if params.Objective == nil {
		return nil, ErrNoObjective
	}

	return &Relaxer{
		mode:      mode,
		regions:   params.Regions.Clone(),
		objective: params.Objective,
		logger:    componentLogger(params.Logger, params.Name),
	}, nil
}

func (r *Relaxer) Apply(ctx context.Context, pose *model.Pose) (stage.Outcome, error) {
	for _, units := range r.batches(pose) {
		for cycle := range r.mode.cycles {
			err := ctx.Err()
			if err != nil {
				return stage.Outcome{}, errors.Wrap(err, "relax interrupted")
			}
			accepted := r.cycle(pose, units)
			r.logger.Debug("relax cycle", slog.Int("cycle", cycle+1), slog.Int("accepted", accepted))
			if accepted == 0 {
				break
			}
		}
	}
	r.objective.Score(pose)

	return stage.Outcome{Status: stage.Success, Closed: Closed(pose, r.regions, DefaultGapTolerance)}, nil
}

// batches groups the units moved together.
func (r *Relaxer) batches(pose *model.Pose) [][]int {
	if r.mode.sequential && len(r.regions) > 0 {
		out := make([][]int, 0, len(r.regions))
		for _, reg := range r.regions {
			out = append(out, region.Set{reg}.Units())
		}
		return out
	}
	if r.mode.regionsOnly {
		return [][]int{r.regions.Units()}
	}
	units := make([]int, 0, pose.Len())
	for i := 1; i <= pose.Len(); i++ {
		units = append(units, i)
	}

	return [][]int{units}
}

func (r *Relaxer) cycle(pose *model.Pose, units []int) int {
	current := r.objective.Score(pose)
	accepted := 0
	for _, i := range units {
		if !movable(pose, i) {
			continue
		}
		saved := slices.Clone(pose.Residue(i).Atoms)
		if !smooth(pose, i, r.mode.step) {
			continue
		}
		trial := r.objective.Score(pose)
		if trial <= current {
			current = trial
			accepted++
			continue
		}
		pose.Residue(i).Atoms = saved
	}

	return accepted
}

var _ stage.Executor = (*Relaxer)(nil)
