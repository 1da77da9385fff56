package pipeline

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
	"github.com/askiada/go-looprelax/pkg/pipeline/topology"
)

// remodelLoop runs the remodel strategy until the regions are closed or the attempts are
// exhausted. The best effort is kept either way.
func (r *run) remodelLoop(info *model.StageInfo) error {
	info.Strategy = r.remodel
	r.state.AllRegionsClosed = false

	rec, ok := r.checkpoints.Recover(r.pose, r.tag, checkpoint.LabelRemodel, false, true)
	if ok {
		info.Recovered = true
		r.remodelRan = true
		r.state.AllRegionsClosed = rec.Closed
		r.debug(checkpoint.LabelRemodel, r.centroid)

		return nil
	}

	req := stage.RequirementsOf(stage.Remodel, r.remodel)
	if req.NeedsFragments && len(r.fragments) == 0 {
		return errors.Wrapf(ErrFragmentsRequired, "remodel strategy %s", r.remodel)
	}
	criterion := r.cfg.ClosureCriterion
	if req.Legacy {
		criterion = ClosureByScore
	}

	r.dump("before_rebuild")
	r.remodelRan = true
	for attempt := 1; attempt <= r.cfg.NRebuildTries; attempt++ {
		r.state.RetryCount = attempt
		outcome, err := r.remodelAttempt(req)
		if err != nil {
			return err
		}
		if req.AbortOnFirstFailure && attempt == 1 && outcome.Status != stage.Success {
			r.logger.Warn("initial closure failed, retry requested", slog.String("strategy", r.remodel))
			r.status = StatusRetryRequested

			return nil
		}

		current := r.centroid.Score(r.pose)
		closed := outcome.Closed
		if criterion == ClosureByScore {
			closed = current <= r.cfg.RebuildFilter
		}
		if r.measure != nil {
			r.measure.AddMetric("remodel_closure").AddTrial(closed)
		}
		r.logger.Debug("remodel attempt",
			slog.Int("attempt", attempt),
			slog.Float64("score", current),
			slog.Bool("closed", closed),
			slog.String("criterion", string(criterion)))
		if closed {
			r.state.AllRegionsClosed = true
			break
		}
	}

	r.dump("after_rebuild")
	err := r.checkpoints.Checkpoint(r.pose, r.tag, checkpoint.LabelRemodel, true,
		checkpoint.WithClosed(r.state.AllRegionsClosed))
	if err != nil {
		return errors.Wrap(err, "unable to checkpoint remodel")
	}
	r.debug(checkpoint.LabelRemodel, r.centroid)

	return nil
}

// remodelAttempt runs one attempt. Strategies asking for terminal cuts get their own
// topology, and the prior one is put back whatever happens.
func (r *run) remodelAttempt(req stage.Requirements) (stage.Outcome, error) {
	params := r.params(stage.Remodel, r.remodel, r.centroid)
	if !req.TerminalCuts {
		return r.apply(params)
	}

	topo, err := topology.Build(r.pose.Len(), r.regions, true)
	if err != nil {
		return stage.Outcome{}, errors.Wrap(err, "unable to build remodel topology")
	}
	prior := r.pose.SetTopology(topo)
	defer r.pose.SetTopology(prior)

	return r.apply(params)
}
