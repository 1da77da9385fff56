package model

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// CoordinateConstraint restrains one atom to a fixed position.
type CoordinateConstraint struct {
	Unit   int
	Atom   string
	Target r3.Vec
	Stdev  float64
}

// AtomPairConstraint restrains the distance between two atoms.
type AtomPairConstraint struct {
	UnitA    int
	AtomA    string
	UnitB    int
	AtomB    string
	Distance float64
	Stdev    float64
}

// Constraints are the restraints attached to a model.
type Constraints struct {
	Coordinate []CoordinateConstraint
	AtomPair   []AtomPairConstraint
}

// Empty reports whether there is no restraint.
func (c Constraints) Empty() bool {
	return len(c.Coordinate) == 0 && len(c.AtomPair) == 0
}

// Len returns the number of restraints.
func (c Constraints) Len() int {
	return len(c.Coordinate) + len(c.AtomPair)
}

// Clone returns a deep copy.
func (c Constraints) Clone() Constraints {
	return Constraints{
		Coordinate: slices.Clone(c.Coordinate),
		AtomPair:   slices.Clone(c.AtomPair),
	}
}

// Merge returns the union of both sets.
func (c Constraints) Merge(other Constraints) Constraints {
	out := c.Clone()
	out.Coordinate = append(out.Coordinate, other.Coordinate...)
	out.AtomPair = append(out.AtomPair, other.AtomPair...)

	return out
}

// FragmentLibrary is a named set of fragments of one length used by remodel strategies.
type FragmentLibrary struct {
	Name   string `json:"name" yaml:"name"`
	Length int    `json:"length" yaml:"length"`
	Count  int    `json:"count" yaml:"count"`
}
