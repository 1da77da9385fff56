package sampling

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
)

const (
	// IdealCADistance is the spacing of consecutive alpha carbons.
	IdealCADistance = 3.8
	// DefaultGapTolerance is how far past the ideal spacing a cut may stay and still count
	// as closed.
	DefaultGapTolerance = 0.4
	sideChainOffset     = 1.53
	projectionRounds    = 50
)

// movable reports whether unit i of pose carries an alpha carbon that strategies may move.
func movable(pose *model.Pose, i int) bool {
	if i < 1 || i > pose.Len() {
		return false
	}
	res := pose.Residue(i)
	if res.Virtual || !res.Protein {
		return false
	}
	_, ok := res.CA()

	return ok
}

func ca(pose *model.Pose, i int) r3.Vec {
	xyz, _ := pose.Residue(i).CA()
	return xyz
}

// translate moves every atom of unit i by delta.
func translate(pose *model.Pose, i int, delta r3.Vec) {
	res := pose.Residue(i)
	for idx := range res.Atoms {
		res.Atoms[idx].XYZ = r3.Add(res.Atoms[idx].XYZ, delta)
	}
}

// moveTo moves unit i so that its alpha carbon sits at xyz.
func moveTo(pose *model.Pose, i int, xyz r3.Vec) {
	translate(pose, i, r3.Sub(xyz, ca(pose, i)))
}

func gaussian(rng *rand.Rand, sigma float64) r3.Vec {
	return r3.Vec{X: rng.NormFloat64() * sigma, Y: rng.NormFloat64() * sigma, Z: rng.NormFloat64() * sigma}
}

// perpendicular returns a random unit vector orthogonal to axis.
func perpendicular(axis r3.Vec, rng *rand.Rand) r3.Vec {
	if r3.Norm(axis) == 0 {
		return r3.Vec{X: 1}
	}
	axis = r3.Unit(axis)
	for range 8 {
		v := gaussian(rng, 1)
		v = r3.Sub(v, r3.Scale(r3.Dot(v, axis), axis))
		if r3.Norm(v) > 1e-6 {
			return r3.Unit(v)
		}
	}

	return r3.Unit(r3.Cross(axis, r3.Vec{Z: 1}))
}

// cutsOf returns the chain breaks of the region: the topology cutpoints that fall inside it,
// or the region cut when the model has no topology.
func cutsOf(pose *model.Pose, r region.Region) []int {
	var cuts []int
	if pose.Topology != nil {
		for _, c := range pose.Topology.Cutpoints() {
			if c >= r.Start-1 && c <= r.Stop {
				cuts = append(cuts, c)
			}
		}
		return cuts
	}
	if r.Cut > 0 && r.Cut < pose.Len() {
		cuts = append(cuts, r.Cut)
	}

	return cuts
}

// gap returns the alpha carbon distance across the cut after unit c.
func gap(pose *model.Pose, c int) (float64, bool) {
	if !movable(pose, c) || !movable(pose, c+1) {
		return 0, false
	}

	return r3.Norm(r3.Sub(ca(pose, c), ca(pose, c+1))), true
}

// Closed reports whether every cut inside the regions is within tolerance of the ideal spacing.
func Closed(pose *model.Pose, regions region.Set, tolerance float64) bool {
	for _, r := range regions {
		for _, c := range cutsOf(pose, r) {
			d, ok := gap(pose, c)
			if ok && d > IdealCADistance+tolerance {
				return false
			}
		}
	}

	return true
}

// anchors returns the fixed units flanking the region, 0 when the region touches a chain end.
func anchors(pose *model.Pose, r region.Region) (int, int) {
	before, after := r.Start-1, r.Stop+1
	if !movable(pose, before) {
		before = 0
	}
	if !movable(pose, after) {
		after = 0
	}

	return before, after
}

// spannable reports whether the region has enough units to bridge its anchors.
func spannable(pose *model.Pose, r region.Region, tolerance float64) bool {
	before, after := anchors(pose, r)
	if before == 0 || after == 0 {
		return true
	}
	reach := float64(r.Len()+1) * (IdealCADistance + tolerance)

	return r3.Norm(r3.Sub(ca(pose, after), ca(pose, before))) <= reach
}

// bridge places the region units on a bent path between its anchors whose segments have the
// ideal spacing, bulging along a random direction.
func bridge(pose *model.Pose, r region.Region, rng *rand.Rand) {
	before, after := anchors(pose, r)
	if before == 0 || after == 0 {
		extend(pose, r, before, after)
		return
	}

	from, to := ca(pose, before), ca(pose, after)
	axis := r3.Sub(to, from)
	span := r3.Norm(axis)
	length := float64(r.Len()+1) * IdealCADistance
	height := 0.0
	if length > span {
		height = math.Sqrt(length*length-span*span) / 2
	}
	apex := r3.Add(r3.Scale(0.5, r3.Add(from, to)), r3.Scale(height, perpendicular(axis, rng)))

	for k := 1; k <= r.Len(); k++ {
		t := float64(k) / float64(r.Len()+1)
		var xyz r3.Vec
		if t <= 0.5 {
			xyz = r3.Add(from, r3.Scale(2*t, r3.Sub(apex, from)))
		} else {
			xyz = r3.Add(apex, r3.Scale(2*t-1, r3.Sub(to, apex)))
		}
		moveTo(pose, r.Start+k-1, xyz)
	}
}

// extend lays a terminal region out as a straight chain leaving its only anchor.
func extend(pose *model.Pose, r region.Region, before, after int) {
	switch {
	case before != 0:
		dir := direction(pose, before, before-1)
		for i := r.Start; i <= r.Stop; i++ {
			moveTo(pose, i, r3.Add(ca(pose, i-1), r3.Scale(IdealCADistance, dir)))
		}
	case after != 0:
		dir := direction(pose, after, after+1)
		for i := r.Stop; i >= r.Start; i-- {
			moveTo(pose, i, r3.Add(ca(pose, i+1), r3.Scale(IdealCADistance, dir)))
		}
	}
}

// direction returns the unit vector pointing from inner to anchor, away from the chain.
func direction(pose *model.Pose, anchor, inner int) r3.Vec {
	if !movable(pose, inner) {
		return r3.Vec{X: 1}
	}
	v := r3.Sub(ca(pose, anchor), ca(pose, inner))
	if r3.Norm(v) == 0 {
		return r3.Vec{X: 1}
	}

	return r3.Unit(v)
}

// jitter moves every unit of the region by a gaussian displacement of width sigma.
func jitter(pose *model.Pose, r region.Region, sigma float64, rng *rand.Rand) {
	for i := r.Start; i <= r.Stop; i++ {
		if movable(pose, i) {
			translate(pose, i, gaussian(rng, sigma))
		}
	}
}

// project pulls every bond of the region, anchors included, towards the ideal spacing.
// Anchors never move. This closes every cut the region can reach.
func project(pose *model.Pose, r region.Region, rounds int) {
	lo, hi := max(r.Start-1, 1), min(r.Stop+1, pose.Len())
	fixed := func(i int) bool {
		return !r.Contains(i)
	}
	for range rounds {
		for i := lo; i < hi; i++ {
			if !movable(pose, i) || !movable(pose, i+1) || (fixed(i) && fixed(i+1)) {
				continue
			}
			a, b := ca(pose, i), ca(pose, i+1)
			bond := r3.Sub(b, a)
			d := r3.Norm(bond)
			if d == 0 {
				continue
			}
			fix := r3.Scale((d-IdealCADistance)/d, bond)
			switch {
			case fixed(i):
				translate(pose, i+1, r3.Scale(-1, fix))
			case fixed(i + 1):
				translate(pose, i, fix)
			default:
				translate(pose, i, r3.Scale(0.5, fix))
				translate(pose, i+1, r3.Scale(-0.5, fix))
			}
		}
	}
}

// smooth moves unit i a fraction of the way towards the midpoint of its bonded neighbours.
// Neighbours across a chain break are ignored, and units without two neighbours stay put.
func smooth(pose *model.Pose, i int, step float64) bool {
	var neighbours []r3.Vec
	if movable(pose, i-1) && !isCut(pose, i-1) {
		neighbours = append(neighbours, ca(pose, i-1))
	}
	if movable(pose, i+1) && !isCut(pose, i) {
		neighbours = append(neighbours, ca(pose, i+1))
	}
	if len(neighbours) < 2 {
		return false
	}
	mid := r3.Scale(0.5, r3.Add(neighbours[0], neighbours[1]))
	translate(pose, i, r3.Scale(step, r3.Sub(mid, ca(pose, i))))

	return true
}

func isCut(pose *model.Pose, i int) bool {
	return pose.Topology != nil && pose.Topology.IsCutpoint(i)
}

// outward returns the direction pointing away from the bonded neighbours of unit i.
func outward(pose *model.Pose, i int) r3.Vec {
	var sum r3.Vec
	n := 0
	for _, j := range []int{i - 1, i + 1} {
		if movable(pose, j) {
			sum = r3.Add(sum, ca(pose, j))
			n++
		}
	}
	if n == 0 {
		return r3.Vec{X: 1}
	}
	v := r3.Sub(ca(pose, i), r3.Scale(1/float64(n), sum))
	if r3.Norm(v) < 1e-9 {
		return r3.Vec{X: 1}
	}

	return r3.Unit(v)
}
