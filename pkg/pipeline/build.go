package pipeline

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// initialBuild closes every region once, aggressively, before anything else moves.
func (r *run) initialBuild(info *model.StageInfo) error {
	info.Strategy = stage.QuickCCD
	_, ok := r.checkpoints.Recover(r.pose, r.tag, checkpoint.LabelInitialBuild, false, true)
	if ok {
		info.Recovered = true
		return nil
	}
	if len(r.fragments) == 0 {
		return errors.Wrap(ErrFragmentsRequired, "initial build")
	}

	params := r.params(stage.Remodel, stage.QuickCCD, r.centroid)
	params.Aggressive = true
	_, err := r.apply(params)
	if err != nil {
		return err
	}
	r.pose.RemoveCutpointVariants()
	if !r.pose.RootIsVirtual() {
		r.pose.Center()
	}
	r.centroid.Score(r.pose)

	err = r.checkpoints.Checkpoint(r.pose, r.tag, checkpoint.LabelInitialBuild, true)
	if err != nil {
		return errors.Wrap(err, "unable to checkpoint initial build")
	}
	r.debug(checkpoint.LabelInitialBuild, r.centroid)

	return nil
}

func (r *run) grow(*model.StageInfo) error {
	before := r.regions.Size()
	r.regions = r.regions.Grow(r.pose.Len(), r.cfg.GrowBy, r.rng)
	r.logger.Debug("regions grown", slog.Int("before", before), slog.Int("after", r.regions.Size()))

	return nil
}

// setupConstraints attaches the configured restraints and weights them in the centroid
// objective.
func (r *run) setupConstraints(*model.StageInfo) error {
	if r.cfg.AttachRestraints && !r.restraints.Empty() {
		r.pose.Constraints = r.pose.Constraints.Merge(r.restraints)
		r.logger.Debug("restraints attached", slog.Int("count", r.restraints.Len()))
	}
	if r.pose.Constraints.Empty() {
		return nil
	}
	setConstraintWeights(r.centroid, r.cfg.ConstraintWeight)

	return nil
}

func setConstraintWeights(objective *score.Function, weight float64) {
	for _, term := range score.ConstraintTerms {
		objective.SetWeight(term, weight)
	}
}
