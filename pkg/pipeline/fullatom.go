package pipeline

import (
	"log/slog"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

func (r *run) fullatomEnabled() bool {
	return r.cfg.FullatomOutput || r.cfg.Refine != stage.Off || r.cfg.Relax != stage.Off
}

// fullatomTransition switches the model to full atom, keeps the input side chains where
// nothing moved and repacks the rest.
func (r *run) fullatomTransition(*model.StageInfo) error {
	r.pose.RemoveCutpointVariants()
	if r.remodel == stage.Off && !r.cfg.BuildInitial && r.fullatomInput {
		r.pose.CopyFrom(r.start)
	}
	r.dump("before_fullatom")
	r.pose.ToFullAtom()

	repack := make([]bool, r.pose.Len())
	needAny := !r.fullatomInput
	for idx := range repack {
		repack[idx] = !r.fullatomInput
	}
	if r.fullatomInput && r.cfg.CopySidechains {
		needAny = r.copySideChains(repack)
	}

	if r.cfg.AttachRestraints && !r.restraints.Empty() && r.pose.Constraints.Empty() {
		r.pose.Constraints = r.restraints.Clone()
	}
	if !r.pose.Constraints.Empty() {
		setConstraintWeights(r.fullatom, r.cfg.ConstraintWeight)
	}
	if r.cfg.ConstrainRigidSegments > 0 {
		r.constrainRigidSegments()
	}

	r.dump("before_repack")
	if !needAny {
		r.logger.Debug("no repacking required")
		r.fullatom.Score(r.pose)
		return nil
	}
	if r.packer == nil {
		r.logger.Warn("side chains need packing but no packer is set")
		r.fullatom.Score(r.pose)
		return nil
	}

	err := r.packer.Pack(r.ctx, r.pose, repack, r.fullatom)
	if err != nil {
		return errors.Wrap(err, "unable to pack side chains")
	}
	r.fullatom.Score(r.pose)
	r.dump("after_repack")

	return nil
}

// copySideChains flags in repack the units that moved or lack density in the input model,
// copies the input side chains onto every other protein unit and reports whether any unit
// is flagged.
func (r *run) copySideChains(repack []bool) bool {
	needAny := false
	for i := 1; i <= r.pose.Len(); i++ {
		if r.remodelRan && r.regions.ContainsPadded(i, r.cfg.RepackPadding) {
			r.logger.Debug("repacking region unit", slog.Int("unit", i))
			repack[i-1] = true
		}
		if i <= r.start.Len() {
			src := r.start.Residue(i)
			if _, ok := src.CA(); ok && src.Protein && src.MissingDensity(r.cfg.MissingDensityDistance) {
				r.logger.Debug("missing density", slog.Int("unit", i))
				repack[i-1] = true
			}
		}

		if repack[i-1] {
			needAny = true
			continue
		}
		if i > r.start.Len() || !r.pose.Residue(i).Protein {
			continue
		}
		copySideChain(r.pose.Residue(i), r.start.Residue(i))
	}

	return needAny
}

// copySideChain moves the side chain of src onto dst, following the alpha carbon.
func copySideChain(dst, src *model.Residue) {
	from, okFrom := src.CA()
	to, okTo := dst.CA()
	shift := r3.Vec{}
	if okFrom && okTo {
		shift = r3.Sub(to, from)
	}
	side := src.SideChain()
	for idx := range side {
		side[idx].XYZ = r3.Add(side[idx].XYZ, shift)
	}
	dst.SetSideChain(side)
}

// constrainRigidSegments restrains the backbone of every unit outside the regions to its
// current position, or to the reference model when configured.
func (r *run) constrainRigidSegments() {
	target := r.pose
	if r.cfg.ConstrainToNative && r.native != nil {
		target = r.native
	}

	added := 0
	for _, i := range r.regions.Invert(r.pose.Len()).Units() {
		if i > target.Len() || !r.pose.Residue(i).Protein {
			continue
		}
		for _, name := range model.BackboneAtoms {
			xyz, ok := target.Residue(i).Atom(name)
			if !ok {
				continue
			}
			r.pose.Constraints.Coordinate = append(r.pose.Constraints.Coordinate, model.CoordinateConstraint{
				Unit:   i,
				Atom:   name,
				Target: xyz,
				Stdev:  r.cfg.CoordinateStdev,
			})
			added++
		}
	}
	r.fullatom.SetWeight(score.CoordinateConstraint, r.cfg.ConstrainRigidSegments)
	r.logger.Debug("rigid segments restrained", slog.Int("restraints", added))
}
