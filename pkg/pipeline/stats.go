package pipeline

import (
	"log/slog"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/rmsd"
)

// Metric prefixes of the statistics recorded around the fullatom stages.
const (
	prefixCentroid     = "cen_"
	prefixBeforeRelax  = "brlx_"
	prefixBeforeRefine = "bref_"
)

// record sets a metric, or logs why it could not be computed.
func (r *run) record(name string, value float64, err error) {
	if err != nil {
		r.logger.Warn("metric not recorded", slog.String("metric", name), slog.String("error", err.Error()))
		return
	}
	r.scores.Set(name, value)
}

// midpointStats compares the centroid model with the input and the reference model.
func (r *run) midpointStats(*model.StageInfo) error {
	value, err := rmsd.CA(r.start, r.pose)
	r.record(prefixCentroid+"irms", value, err)
	if r.native == nil {
		return nil
	}

	value, err = rmsd.CA(r.native, r.pose)
	r.record(prefixCentroid+"rms", value, err)
	value, err = rmsd.Loop(r.native, r.pose, r.regions, rmsd.Backbone)
	r.record(prefixCentroid+"looprms", value, err)
	value, err = rmsd.Loop(r.native, r.pose, r.regions, rmsd.CAOnly)
	r.record(prefixCentroid+"loopcarms", value, err)

	return nil
}

// stageStats records the comparison metrics taken before a fullatom stage under prefix.
func (r *run) stageStats(prefix string, loopCA bool) {
	if !r.cfg.ComputeRMSD {
		return
	}
	value, err := rmsd.CA(r.start, r.pose)
	r.record(prefix+"irms", value, err)
	if r.native == nil {
		return
	}
	if r.cfg.SuperimposeNative {
		r.superimposeNative()
	}

	value, err = rmsd.CA(r.native, r.pose)
	r.record(prefix+"rms", value, err)
	value, err = r.coreRMSD()
	r.record(prefix+"corerms", value, err)
	value, err = rmsd.Loop(r.native, r.pose, r.regions, rmsd.Backbone)
	r.record(prefix+"looprms", value, err)
	if loopCA {
		value, err = rmsd.Loop(r.native, r.pose, r.regions, rmsd.CAOnly)
		r.record(prefix+"loopcarms", value, err)
	}
}

func (r *run) coreRMSD() (float64, error) {
	value, n, err := rmsd.Core(r.native, r.pose, r.regions)
	if err != nil {
		return 0, err
	}
	r.state.CoreLength = n

	return value, nil
}

// finalStats records the final comparison metrics and the final score.
func (r *run) finalStats(*model.StageInfo) error {
	if r.cfg.ComputeRMSD {
		value, err := rmsd.CA(r.start, r.pose)
		r.record("irms", value, err)
		if r.native != nil {
			r.finalComparison()
		}
	}

	r.dump("before_final_rescore")
	objective := r.centroid
	if r.fullatomEnabled() {
		objective = r.fullatom
	}
	r.scores.Set("final_looprelax_score", objective.Score(r.pose))

	return nil
}

func (r *run) finalComparison() {
	if r.cfg.SuperimposeNative {
		r.superimposeNative()
	}
	value, err := rmsd.CA(r.native, r.pose)
	r.record("rms", value, err)
	value, err = rmsd.Loop(r.native, r.pose, r.regions, rmsd.Backbone)
	r.record("looprms", value, err)
	value, err = rmsd.Loop(r.native, r.pose, r.regions, rmsd.Heavy)
	r.record("loop_heavy_rms", value, err)
	value, err = rmsd.Loop(r.native, r.pose, r.regions, rmsd.CAOnly)
	r.record("loopcarms", value, err)
	value, err = r.coreRMSD()
	r.record("corerms", value, err)
	if err == nil {
		r.scores.Set("corelen", float64(r.state.CoreLength))
	}
}
