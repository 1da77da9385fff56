package model

import (
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/topology"
)

// Representation is the resolution at which a model is described.
type Representation string

const (
	// Centroid keeps the backbone and one pseudo atom per side chain.
	Centroid Representation = "centroid"
	// FullAtom keeps every atom.
	FullAtom Representation = "fullatom"
)

const (
	AtomN        = "N"
	AtomCA       = "CA"
	AtomC        = "C"
	AtomO        = "O"
	AtomCentroid = "CEN"
)

// BackboneAtoms lists the atoms kept in every representation.
var BackboneAtoms = []string{AtomN, AtomCA, AtomC, AtomO}

var ErrNoUnits = errors.New("model has no units")

// Atom is a named position.
type Atom struct {
	Name string
	XYZ  r3.Vec
}

// Residue is one unit of the model.
type Residue struct {
	Name            string
	Protein         bool
	Virtual         bool
	CutpointVariant bool
	Atoms           []Atom
}

// Atom returns the position of the named atom.
func (r *Residue) Atom(name string) (r3.Vec, bool) {
	for _, a := range r.Atoms {
		if a.Name == name {
			return a.XYZ, true
		}
	}

	return r3.Vec{}, false
}

// SetAtom moves the named atom, adding it when missing.
func (r *Residue) SetAtom(name string, xyz r3.Vec) {
	for idx := range r.Atoms {
		if r.Atoms[idx].Name == name {
			r.Atoms[idx].XYZ = xyz
			return
		}
	}
	r.Atoms = append(r.Atoms, Atom{Name: name, XYZ: xyz})
}

// CA returns the alpha carbon position.
func (r *Residue) CA() (r3.Vec, bool) {
	return r.Atom(AtomCA)
}

// SideChain returns every non backbone atom.
func (r *Residue) SideChain() []Atom {
	var atoms []Atom
	for _, a := range r.Atoms {
		if !slices.Contains(BackboneAtoms, a.Name) {
			atoms = append(atoms, a)
		}
	}

	return atoms
}

// SetSideChain replaces every non backbone atom.
func (r *Residue) SetSideChain(atoms []Atom) {
	kept := r.Atoms[:0:0]
	for _, a := range r.Atoms {
		if slices.Contains(BackboneAtoms, a.Name) {
			kept = append(kept, a)
		}
	}
	r.Atoms = append(kept, atoms...)
}

// MissingDensity reports whether an atom sits further than maxDist from the alpha carbon,
// which is how unresolved side chains show up in input models.
func (r *Residue) MissingDensity(maxDist float64) bool {
	ca, ok := r.CA()
	if !ok {
		return false
	}
	for _, a := range r.Atoms {
		if r3.Norm(r3.Sub(a.XYZ, ca)) > maxDist {
			return true
		}
	}

	return false
}

func (r Residue) clone() Residue {
	r.Atoms = slices.Clone(r.Atoms)
	return r
}

// Pose is the structural model threaded through the pipeline.
type Pose struct {
	Residues       []Residue
	Topology       *topology.Topology
	Representation Representation
	Constraints    Constraints
	Energies       map[string]float64
	TotalScore     float64
}

// NewPose creates a model over the residues with a single chain topology.
func NewPose(residues []Residue, rep Representation) (*Pose, error) {
	if len(residues) == 0 {
		return nil, ErrNoUnits
	}
	topo, err := topology.Simple(len(residues))
	if err != nil {
		return nil, errors.Wrap(err, "unable to build topology")
	}

	return &Pose{
		Residues:       residues,
		Topology:       topo,
		Representation: rep,
		Energies:       map[string]float64{},
	}, nil
}

// Len returns the number of units.
func (p *Pose) Len() int {
	return len(p.Residues)
}

// TrimmedLen returns the number of units without the trailing virtual ones.
func (p *Pose) TrimmedLen() int {
	n := len(p.Residues)
	for n > 0 && p.Residues[n-1].Virtual {
		n--
	}

	return n
}

// Residue returns unit i, 1-based.
func (p *Pose) Residue(i int) *Residue {
	return &p.Residues[i-1]
}

// IsFullAtom reports whether every atom is described.
func (p *Pose) IsFullAtom() bool {
	return p.Representation == FullAtom
}

// RootIsVirtual reports whether the topology is rooted on a virtual unit.
func (p *Pose) RootIsVirtual() bool {
	if p.Topology == nil {
		return false
	}

	return p.Residue(p.Topology.Root()).Virtual
}

// Clone returns a deep copy.
func (p *Pose) Clone() *Pose {
	out := &Pose{
		Residues:       make([]Residue, len(p.Residues)),
		Topology:       p.Topology.Clone(),
		Representation: p.Representation,
		Constraints:    p.Constraints.Clone(),
		Energies:       make(map[string]float64, len(p.Energies)),
		TotalScore:     p.TotalScore,
	}
	for idx, r := range p.Residues {
		out.Residues[idx] = r.clone()
	}
	for k, v := range p.Energies {
		out.Energies[k] = v
	}

	return out
}

// CopyFrom overwrites the model in place with a copy of src.
func (p *Pose) CopyFrom(src *Pose) {
	*p = *src.Clone()
}

// CAs returns the alpha carbon positions of the units, 1-based.
func (p *Pose) CAs(units []int) ([]r3.Vec, error) {
	out := make([]r3.Vec, 0, len(units))
	for _, i := range units {
		if i < 1 || i > p.Len() {
			return nil, errors.Errorf("unit %d outside 1..%d", i, p.Len())
		}
		ca, ok := p.Residue(i).CA()
		if !ok {
			return nil, errors.Errorf("unit %d has no %s atom", i, AtomCA)
		}
		out = append(out, ca)
	}

	return out, nil
}

// Transform applies fn to every atom.
func (p *Pose) Transform(fn func(r3.Vec) r3.Vec) {
	for idx := range p.Residues {
		for a := range p.Residues[idx].Atoms {
			p.Residues[idx].Atoms[a].XYZ = fn(p.Residues[idx].Atoms[a].XYZ)
		}
	}
}

// Center translates the model so that the alpha carbons are centred on the origin.
func (p *Pose) Center() {
	var (
		sum   r3.Vec
		count float64
	)
	for idx := range p.Residues {
		if ca, ok := p.Residues[idx].CA(); ok {
			sum = r3.Add(sum, ca)
			count++
		}
	}
	if count == 0 {
		return
	}
	center := r3.Scale(1/count, sum)
	p.Transform(func(v r3.Vec) r3.Vec {
		return r3.Sub(v, center)
	})
}

// ToCentroid keeps the backbone and collapses every side chain into one pseudo atom.
func (p *Pose) ToCentroid() {
	if p.Representation == Centroid {
		return
	}
	for idx := range p.Residues {
		res := &p.Residues[idx]
		if res.Virtual {
			continue
		}
		side := res.SideChain()
		ca, ok := res.CA()
		if !ok {
			continue
		}
		center := ca
		if len(side) > 0 {
			var sum r3.Vec
			for _, a := range side {
				sum = r3.Add(sum, a.XYZ)
			}
			center = r3.Scale(1/float64(len(side)), sum)
		}
		res.SetSideChain([]Atom{{Name: AtomCentroid, XYZ: center}})
	}
	p.Representation = Centroid
}

// ToFullAtom switches the representation. Side chains collapsed by ToCentroid are dropped
// and have to be rebuilt by packing.
func (p *Pose) ToFullAtom() {
	if p.Representation == FullAtom {
		return
	}
	for idx := range p.Residues {
		res := &p.Residues[idx]
		side := res.SideChain()
		if len(side) == 1 && side[0].Name == AtomCentroid {
			res.SetSideChain(nil)
		}
	}
	p.Representation = FullAtom
}

// HasSideChain reports whether unit i carries real side chain atoms.
func (p *Pose) HasSideChain(i int) bool {
	for _, a := range p.Residue(i).SideChain() {
		if a.Name != AtomCentroid {
			return true
		}
	}

	return false
}

// AddCutpointVariants flags the units on both sides of every cut.
func (p *Pose) AddCutpointVariants() {
	if p.Topology == nil {
		return
	}
	for _, c := range p.Topology.Cutpoints() {
		p.Residues[c-1].CutpointVariant = true
		p.Residues[c].CutpointVariant = true
	}
}

// RemoveCutpointVariants clears every cutpoint flag.
func (p *Pose) RemoveCutpointVariants() {
	for idx := range p.Residues {
		p.Residues[idx].CutpointVariant = false
	}
}

// SetTopology replaces the topology and returns the previous one.
func (p *Pose) SetTopology(t *topology.Topology) *topology.Topology {
	prior := p.Topology
	p.Topology = t

	return prior
}
