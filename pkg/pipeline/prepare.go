package pipeline

import (
	"log/slog"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/rmsd"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

const (
	// extendedOrigin and extendedSpread place the atoms of removed regions far from the model.
	extendedOrigin = 900.0
	extendedSpread = 100.0
)

// prepare resolves the regions and brings the model into the representation of the
// first stage.
func (r *run) prepare(*model.StageInfo) error {
	if r.native != nil && r.native.TrimmedLen() != r.pose.TrimmedLen() {
		return errors.Wrapf(ErrLengthMismatch, "model has %d units, reference model has %d",
			r.pose.TrimmedLen(), r.native.TrimmedLen())
	}

	registry := region.NewRegistry(r.Controller.regions,
		region.WithDetector(r.detector),
		region.WithMinLength[*model.Pose](r.cfg.MinRegionLength),
	)
	regions, err := registry.Resolve(r.pose)
	if err != nil {
		return errors.Wrap(err, "unable to resolve regions")
	}
	if len(regions) == 0 {
		if r.remodel != stage.Off {
			r.logger.Warn("no region to remodel, remodel disabled for this run",
				slog.String("remodel", r.remodel), slog.Bool("detected", registry.AutoDetected()))
		}
		r.remodel = stage.Off
	}
	if r.cfg.ExtendedRegions {
		regions.SetExtended(true)
	}
	r.regions = regions
	r.logger.Info("regions resolved",
		slog.Int("count", len(regions)),
		slog.Int("units", regions.Size()),
		slog.Bool("detected", registry.AutoDetected()))

	if r.native != nil && r.cfg.SuperimposeNative {
		r.superimposeNative()
	}

	if r.cfg.BuildInitial || r.remodel != stage.Off {
		r.pose.ToCentroid()
	}

	if r.checkpointed() {
		err := r.checkpoints.Checkpoint(r.pose, r.tag, checkpoint.LabelInitial, true)
		if err != nil {
			return errors.Wrap(err, "unable to save initial checkpoint")
		}
	}

	r.regions = r.regions.AutoChooseCutpoints(r.pose.Len())
	if r.cfg.RemoveExtendedRegions {
		r.removeExtendedRegions()
	}

	return nil
}

// checkpointed reports whether at least one stage saving checkpoints runs.
func (r *run) checkpointed() bool {
	return r.cfg.BuildInitial ||
		r.remodel != stage.Off ||
		r.cfg.Intermediate != stage.Off ||
		r.cfg.Refine != stage.Off ||
		r.cfg.Relax != stage.Off
}

// rigidUnits returns the protein units outside every region that carry an alpha carbon in
// both the model and the reference model.
func (r *run) rigidUnits() []int {
	n := min(r.pose.Len(), r.native.Len())
	var units []int
	for _, i := range r.regions.Invert(n).Units() {
		a, b := r.pose.Residue(i), r.native.Residue(i)
		if !a.Protein || !b.Protein {
			continue
		}
		if _, ok := a.CA(); !ok {
			continue
		}
		if _, ok := b.CA(); !ok {
			continue
		}
		units = append(units, i)
	}

	return units
}

// superimposeNative moves the reference model onto the rigid part of the model, so that
// region deviations are measured in the frame of the model.
func (r *run) superimposeNative() {
	units := r.rigidUnits()
	if len(units) == 0 {
		r.logger.Debug("no rigid unit to superimpose the reference model on")
		return
	}
	err := rmsd.SuperimposeOnto(r.native, r.pose, units)
	if err != nil {
		r.logger.Warn("unable to superimpose the reference model", slog.String("error", err.Error()))
	}
}

// removeExtendedRegions throws the atoms of extended regions that are never skipped far
// away from the model, so that the remodel stage rebuilds them from scratch. The first unit
// of a region is kept as an anchor unless the region starts the chain.
func (r *run) removeExtendedRegions() {
	for _, reg := range r.regions {
		if !reg.Extended || reg.SkipRate != 0 {
			continue
		}
		first := reg.Start + 1
		if reg.Start == 1 {
			first = reg.Start
		}
		for i := first; i <= reg.Stop; i++ {
			res := r.pose.Residue(i)
			for a := range res.Atoms {
				res.Atoms[a].XYZ = r3.Vec{
					X: extendedOrigin + r.rng.Float64()*extendedSpread,
					Y: extendedOrigin + r.rng.Float64()*extendedSpread,
					Z: extendedOrigin + r.rng.Float64()*extendedSpread,
				}
			}
		}
		r.logger.Debug("extended region removed", slog.String("region", reg.String()))
	}
}
