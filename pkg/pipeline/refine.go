package pipeline

import (
	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// refine samples the closed regions at full atom resolution under the region topology.
func (r *run) refine(info *model.StageInfo) error {
	info.Strategy = r.cfg.Refine
	if !r.state.AllRegionsClosed {
		r.stageStats(prefixBeforeRelax, false)
		return nil
	}

	r.stageStats(prefixBeforeRefine, false)
	req := stage.RequirementsOf(stage.Refine, r.cfg.Refine)
	restore, err := r.installTopology(req.TerminalCuts)
	if err != nil {
		return err
	}
	defer restore()

	err = r.runRecoverable(info, checkpoint.LabelRefine, func() error {
		_, err := r.apply(r.params(stage.Refine, r.cfg.Refine, r.fullatom))
		return err
	})
	if err != nil {
		return err
	}

	// The chainbreak has to be read while the region topology is still installed.
	r.fullatom.Score(r.pose)
	term := score.Chainbreak
	if r.cfg.KicUseLinearChainbreak {
		term = score.LinearChainbreak
	}
	r.scores.Set("final_chainbreak", r.pose.Energies[string(term)])

	return nil
}
