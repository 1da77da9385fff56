// Package score evaluates weighted objective functions over a structural model.
package score

import (
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
)

// Term names one energy component.
type Term string

const (
	Bond                 Term = "bond"
	Clash                Term = "clash"
	Chainbreak           Term = "chainbreak"
	LinearChainbreak     Term = "linear_chainbreak"
	OverlapChainbreak    Term = "overlap_chainbreak"
	CoordinateConstraint Term = "coordinate_constraint"
	AtomPairConstraint   Term = "atom_pair_constraint"
	AngleConstraint      Term = "angle_constraint"
	DihedralConstraint   Term = "dihedral_constraint"
	ConstantConstraint   Term = "constant_constraint"
	BigBinConstraint     Term = "big_bin_constraint"
)

// ChainbreakTerms are the penalties that only make sense with a region topology.
var ChainbreakTerms = []Term{Chainbreak, LinearChainbreak, OverlapChainbreak}

// ConstraintTerms are the auxiliary restraint penalties.
var ConstraintTerms = []Term{
	AtomPairConstraint, ConstantConstraint, CoordinateConstraint,
	AngleConstraint, DihedralConstraint, BigBinConstraint,
}

const (
	idealCADistance = 3.8
	idealPeptide    = 1.33
	clashDistance   = 3.0
)

type evaluator func(p *model.Pose, cuts []int) float64

// evaluators holds the terms computed from coordinates. Angle, dihedral, constant and
// big bin restraints have no representation on the model and always evaluate to zero.
var evaluators = map[Term]evaluator{
	Bond:                 bondEnergy,
	Clash:                clashEnergy,
	Chainbreak:           chainbreakEnergy,
	LinearChainbreak:     linearChainbreakEnergy,
	OverlapChainbreak:    overlapChainbreakEnergy,
	CoordinateConstraint: coordinateConstraintEnergy,
	AtomPairConstraint:   atomPairConstraintEnergy,
}

var evaluated = slices.Sorted(maps.Keys(evaluators))

// Function is a weighted sum of terms.
type Function struct {
	name    string
	weights map[Term]float64
}

// New creates a function with the given weights.
func New(name string, weights map[Term]float64) *Function {
	f := &Function{name: name, weights: make(map[Term]float64, len(weights))}
	maps.Copy(f.weights, weights)

	return f
}

// NewCentroid returns the default low resolution function.
func NewCentroid() *Function {
	return New("centroid", map[Term]float64{
		Bond:  1,
		Clash: 0.5,
	})
}

// NewFullAtom returns the default full atom function.
func NewFullAtom() *Function {
	return New("fullatom", map[Term]float64{
		Bond:  1,
		Clash: 1,
	})
}

// Name returns the function name.
func (f *Function) Name() string {
	return f.name
}

// Weight returns the weight of a term.
func (f *Function) Weight(t Term) float64 {
	return f.weights[t]
}

// SetWeight sets the weight of a term.
func (f *Function) SetWeight(t Term, w float64) {
	f.weights[t] = w
}

// ZeroWeights sets the weight of every given term to zero.
func (f *Function) ZeroWeights(terms ...Term) {
	for _, t := range terms {
		f.weights[t] = 0
	}
}

// Terms returns the weighted terms in name order.
func (f *Function) Terms() []Term {
	terms := make([]Term, 0, len(f.weights))
	for t, w := range f.weights {
		if w != 0 {
			terms = append(terms, t)
		}
	}
	slices.Sort(terms)

	return terms
}

// Clone returns an independent copy.
func (f *Function) Clone() *Function {
	return New(f.name, f.weights)
}

// Score evaluates every term, caches the raw values in the model energies and returns
// the weighted total, which is also cached.
func (f *Function) Score(p *model.Pose) float64 {
	var cuts []int
	if p.Topology != nil {
		cuts = p.Topology.Cutpoints()
	}

	energies := make(map[string]float64, len(evaluators))
	total := 0.0
	for _, term := range evaluated {
		value := evaluators[term](p, cuts)
		energies[string(term)] = value
		total += f.weights[term] * value
	}
	p.Energies = energies
	p.TotalScore = total

	return total
}

func caDistance(p *model.Pose, i, j int) (float64, bool) {
	a, okA := p.Residue(i).CA()
	b, okB := p.Residue(j).CA()
	if !okA || !okB {
		return 0, false
	}

	return r3.Norm(r3.Sub(a, b)), true
}

func bondEnergy(p *model.Pose, cuts []int) float64 {
	total := 0.0
	for i := 1; i < p.Len(); i++ {
		if slices.Contains(cuts, i) || p.Residue(i).Virtual || p.Residue(i+1).Virtual {
			continue
		}
		if d, ok := caDistance(p, i, i+1); ok {
			total += (d - idealCADistance) * (d - idealCADistance)
		}
	}

	return total
}

func clashEnergy(p *model.Pose, _ []int) float64 {
	total := 0.0
	for i := 1; i <= p.Len(); i++ {
		for j := i + 3; j <= p.Len(); j++ {
			d, ok := caDistance(p, i, j)
			if ok && d < clashDistance {
				total += (clashDistance - d) * (clashDistance - d)
			}
		}
	}

	return total
}

func chainbreakEnergy(p *model.Pose, cuts []int) float64 {
	total := 0.0
	for _, c := range cuts {
		if d, ok := caDistance(p, c, c+1); ok {
			total += (d - idealCADistance) * (d - idealCADistance)
		}
	}

	return total
}

func linearChainbreakEnergy(p *model.Pose, cuts []int) float64 {
	total := 0.0
	for _, c := range cuts {
		if d, ok := caDistance(p, c, c+1); ok {
			total += math.Abs(d - idealCADistance)
		}
	}

	return total
}

func overlapChainbreakEnergy(p *model.Pose, cuts []int) float64 {
	total := 0.0
	for _, c := range cuts {
		carbon, okC := p.Residue(c).Atom(model.AtomC)
		nitrogen, okN := p.Residue(c + 1).Atom(model.AtomN)
		if !okC || !okN {
			continue
		}
		d := r3.Norm(r3.Sub(carbon, nitrogen))
		total += (d - idealPeptide) * (d - idealPeptide)
	}

	return total
}

func coordinateConstraintEnergy(p *model.Pose, _ []int) float64 {
	total := 0.0
	for _, c := range p.Constraints.Coordinate {
		if c.Unit < 1 || c.Unit > p.Len() {
			continue
		}
		xyz, ok := p.Residue(c.Unit).Atom(c.Atom)
		if !ok {
			continue
		}
		dev := r3.Norm(r3.Sub(xyz, c.Target)) / stdev(c.Stdev)
		total += dev * dev
	}

	return total
}

func atomPairConstraintEnergy(p *model.Pose, _ []int) float64 {
	total := 0.0
	for _, c := range p.Constraints.AtomPair {
		if c.UnitA < 1 || c.UnitA > p.Len() || c.UnitB < 1 || c.UnitB > p.Len() {
			continue
		}
		a, okA := p.Residue(c.UnitA).Atom(c.AtomA)
		b, okB := p.Residue(c.UnitB).Atom(c.AtomB)
		if !okA || !okB {
			continue
		}
		dev := (r3.Norm(r3.Sub(a, b)) - c.Distance) / stdev(c.Stdev)
		total += dev * dev
	}

	return total
}

func stdev(s float64) float64 {
	if s <= 0 {
		return 1
	}

	return s
}
