package sampling

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
)

// PseudoSideChain names the single atom the packer places for each rebuilt side chain.
const PseudoSideChain = "CB"

// Packer rebuilds flagged side chains as one pseudo atom pointing away from the backbone.
type Packer struct{}

// Pack rebuilds the side chains of every protein unit flagged in repack, 0-based, then scores
// the model.
func (Packer) Pack(ctx context.Context, pose *model.Pose, repack []bool, objective *score.Function) error {
	if len(repack) != pose.Len() {
		return errors.Errorf("repack mask has %d entries for %d units", len(repack), pose.Len())
	}
	err := ctx.Err()
	if err != nil {
		return errors.Wrap(err, "packing interrupted")
	}
	for idx, flagged := range repack {
		i := idx + 1
		if flagged && movable(pose, i) {
			placeSideChain(pose, i)
		}
	}
	if objective != nil {
		objective.Score(pose)
	}

	return nil
}

func placeSideChain(pose *model.Pose, i int) {
	xyz := r3.Add(ca(pose, i), r3.Scale(sideChainOffset, outward(pose, i)))
	name := PseudoSideChain
	if pose.Representation == model.Centroid {
		name = model.AtomCentroid
	}
	pose.Residue(i).SetSideChain([]model.Atom{{Name: name, XYZ: xyz}})
}

// Idealizer restores the ideal alpha carbon spacing inside every region.
type Idealizer struct {
	Rounds int
}

func (z Idealizer) Idealize(ctx context.Context, pose *model.Pose, regions region.Set) error {
	rounds := z.Rounds
	if rounds <= 0 {
		rounds = projectionRounds
	}
	for _, r := range regions {
		err := ctx.Err()
		if err != nil {
			return errors.Wrap(err, "idealize interrupted")
		}
		project(pose, r, rounds)
	}

	return nil
}
