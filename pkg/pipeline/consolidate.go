package pipeline

import (
	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
	"github.com/askiada/go-looprelax/pkg/pipeline/topology"
)

// installTopology replaces the topology of the model with the one derived from the regions.
// The returned function removes the cutpoint variants and puts the prior topology back.
func (r *run) installTopology(terminalCuts bool) (func(), error) {
	topo, err := topology.Build(r.pose.Len(), r.regions, terminalCuts)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build region topology")
	}
	prior := r.pose.SetTopology(topo)
	r.logger.Debug("region topology installed")

	return func() {
		r.pose.RemoveCutpointVariants()
		r.pose.SetTopology(prior)
	}, nil
}

func (r *run) setChainbreakWeights(w ChainbreakWeights) {
	r.fullatom.SetWeight(score.Chainbreak, w.Chainbreak)
	r.fullatom.SetWeight(score.LinearChainbreak, w.LinearChainbreak)
	r.fullatom.SetWeight(score.OverlapChainbreak, w.OverlapChainbreak)
}

// intermediate consolidates the closed model before refinement.
func (r *run) intermediate(info *model.StageInfo) error {
	info.Strategy = r.cfg.Intermediate
	if !r.state.AllRegionsClosed {
		r.stageStats(prefixBeforeRelax, true)
		return nil
	}

	if r.cfg.RelaxWithTopology {
		restore, err := r.installTopology(false)
		if err != nil {
			return err
		}
		defer restore()
		defer r.fullatom.ZeroWeights(score.ChainbreakTerms...)
		r.pose.AddCutpointVariants()
		r.setChainbreakWeights(r.cfg.RelaxChainbreakWeights)
	}

	r.stageStats(prefixBeforeRelax, true)
	return r.runRecoverable(info, checkpoint.LabelIntermediate, func() error {
		_, err := r.apply(r.params(stage.Intermediate, r.cfg.Intermediate, r.fullatom))
		return err
	})
}

// runRecoverable recovers the stage from its checkpoint, or runs fn and checkpoints the result.
func (r *run) runRecoverable(info *model.StageInfo, label string, fn func() error) error {
	_, ok := r.checkpoints.Recover(r.pose, r.tag, label, true, true)
	if ok {
		info.Recovered = true
	} else {
		r.dump("before_" + label)
		err := fn()
		if err != nil {
			return err
		}
		r.dump("after_" + label)
		err = r.checkpoints.Checkpoint(r.pose, r.tag, label, true)
		if err != nil {
			return errors.Wrapf(err, "unable to checkpoint %s", label)
		}
	}
	r.debug(label, r.fullatom)

	return nil
}

func (r *run) idealize(*model.StageInfo) error {
	r.dump("before_idealize")
	err := r.idealizer.Idealize(r.ctx, r.pose, r.regions.Clone())
	if err != nil {
		return errors.Wrap(err, "unable to idealize")
	}
	r.dump("after_idealize")

	return nil
}

// relax relaxes the closed model under the region topology.
func (r *run) relax(info *model.StageInfo) error {
	info.Strategy = r.cfg.Relax
	if !r.state.AllRegionsClosed {
		r.stageStats(prefixBeforeRelax, false)
		return nil
	}

	return r.relaxWithTopology(info)
}

func (r *run) finalCleanEnabled() bool {
	return r.cfg.FinalCleanFastRelax && r.cfg.Relax != stage.Off && r.state.AllRegionsClosed
}

// finalClean runs a fast relax without restraints on the relaxed model.
func (r *run) finalClean(info *model.StageInfo) error {
	info.Strategy = stage.FastRelax
	r.fullatom.ZeroWeights(score.ConstraintTerms...)

	return r.runRecoverable(info, checkpoint.LabelFinalRelax, func() error {
		_, err := r.apply(r.params(stage.Relax, stage.FastRelax, r.fullatom))
		return err
	})
}

func (r *run) relaxWithTopology(info *model.StageInfo) error {
	restore, err := r.installTopology(false)
	if err != nil {
		return err
	}
	defer restore()
	defer r.fullatom.ZeroWeights(score.ChainbreakTerms...)

	if r.cfg.RelaxWithTopology {
		r.pose.AddCutpointVariants()
		r.setChainbreakWeights(r.cfg.RelaxChainbreakWeights)
	}

	r.stageStats(prefixBeforeRelax, false)

	return r.runRecoverable(info, checkpoint.LabelRelax, func() error {
		_, err := r.apply(r.params(stage.Relax, r.cfg.Relax, r.fullatom))
		return err
	})
}
