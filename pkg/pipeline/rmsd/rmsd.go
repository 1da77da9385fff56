// Package rmsd compares structural models with optimal superposition.
package rmsd

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
)

var (
	ErrSizeMismatch = errors.New("point sets differ in size")
	ErrNoPoints     = errors.New("no points to compare")
	ErrSVD          = errors.New("singular value decomposition failed")
)

// Atoms selects which atoms of a region take part in a comparison.
type Atoms int

const (
	CAOnly Atoms = iota
	Backbone
	Heavy
)

// Transform is a rotation followed by a translation.
type Transform struct {
	rotation    *mat.Dense
	translation r3.Vec
}

// Apply moves v.
func (t Transform) Apply(v r3.Vec) r3.Vec {
	in := mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
	var out mat.VecDense
	out.MulVec(t.rotation, in)

	return r3.Add(r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}, t.translation)
}

// Kabsch returns the transform that best superimposes mobile onto target.
func Kabsch(mobile, target []r3.Vec) (Transform, error) {
	if len(mobile) != len(target) {
		return Transform{}, errors.Wrapf(ErrSizeMismatch, "%d vs %d", len(mobile), len(target))
	}
	if len(mobile) == 0 {
		return Transform{}, ErrNoPoints
	}

	mobileCenter := centroid(mobile)
	targetCenter := centroid(target)

	cov := mat.NewDense(3, 3, nil)
	for idx := range mobile {
		p := r3.Sub(mobile[idx], mobileCenter)
		q := r3.Sub(target[idx], targetCenter)
		pv := []float64{p.X, p.Y, p.Z}
		qv := []float64{q.X, q.Y, q.Z}
		for r := range 3 {
			for c := range 3 {
				cov.Set(r, c, cov.At(r, c)+pv[r]*qv[c])
			}
		}
	}

	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return Transform{}, ErrSVD
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	correction := mat.NewDiagDense(3, []float64{1, 1, d})

	var vd, rot mat.Dense
	vd.Mul(&v, correction)
	rot.Mul(&vd, u.T())

	tr := Transform{rotation: &rot}
	tr.translation = r3.Sub(targetCenter, tr.Apply(mobileCenter))

	return tr, nil
}

// Superimposed returns the root mean square deviation after optimal superposition.
func Superimposed(mobile, target []r3.Vec) (float64, error) {
	tr, err := Kabsch(mobile, target)
	if err != nil {
		return 0, err
	}
	moved := make([]r3.Vec, len(mobile))
	for idx, p := range mobile {
		moved[idx] = tr.Apply(p)
	}

	return Plain(moved, target)
}

// Plain returns the root mean square deviation without moving the points.
func Plain(a, b []r3.Vec) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(ErrSizeMismatch, "%d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, ErrNoPoints
	}
	sum := 0.0
	for idx := range a {
		d := r3.Sub(a[idx], b[idx])
		sum += r3.Dot(d, d)
	}

	return math.Sqrt(sum / float64(len(a))), nil
}

// CA returns the superimposed alpha carbon deviation between two models over their
// common protein units.
func CA(reference, pose *model.Pose) (float64, error) {
	units := commonProteinUnits(reference, pose, nil)
	ref, err := reference.CAs(units)
	if err != nil {
		return 0, err
	}
	cur, err := pose.CAs(units)
	if err != nil {
		return 0, err
	}

	return Superimposed(cur, ref)
}

// Core returns the superimposed alpha carbon deviation over units outside every region,
// and the number of units compared.
func Core(reference, pose *model.Pose, regions region.Set) (float64, int, error) {
	units := commonProteinUnits(reference, pose, func(i int) bool {
		return !regions.Contains(i)
	})
	if len(units) == 0 {
		return 0, 0, nil
	}
	ref, err := reference.CAs(units)
	if err != nil {
		return 0, 0, err
	}
	cur, err := pose.CAs(units)
	if err != nil {
		return 0, 0, err
	}
	value, err := Superimposed(cur, ref)

	return value, len(units), err
}

// Loop returns the deviation over region atoms in the current frame. The reference is
// expected to be superimposed on the rigid part of the model already.
func Loop(reference, pose *model.Pose, regions region.Set, atoms Atoms) (float64, error) {
	var a, b []r3.Vec
	for _, i := range regions.Units() {
		if i > reference.Len() || i > pose.Len() {
			continue
		}
		refRes := reference.Residue(i)
		curRes := pose.Residue(i)
		for _, atom := range refRes.Atoms {
			if !selected(atom.Name, atoms) {
				continue
			}
			cur, ok := curRes.Atom(atom.Name)
			if !ok {
				continue
			}
			a = append(a, atom.XYZ)
			b = append(b, cur)
		}
	}
	if len(a) == 0 {
		return 0, nil
	}

	return Plain(a, b)
}

// SuperimposeOnto moves mobile so that the alpha carbons of the given units best match target.
func SuperimposeOnto(mobile, target *model.Pose, units []int) error {
	m, err := mobile.CAs(units)
	if err != nil {
		return err
	}
	t, err := target.CAs(units)
	if err != nil {
		return err
	}
	tr, err := Kabsch(m, t)
	if err != nil {
		return err
	}
	mobile.Transform(tr.Apply)

	return nil
}

func selected(name string, atoms Atoms) bool {
	switch atoms {
	case CAOnly:
		return name == model.AtomCA
	case Backbone:
		return name == model.AtomN || name == model.AtomCA || name == model.AtomC || name == model.AtomO
	default:
		return name != model.AtomCentroid && (len(name) == 0 || name[0] != 'H')
	}
}

func commonProteinUnits(a, b *model.Pose, keep func(int) bool) []int {
	n := min(a.TrimmedLen(), b.TrimmedLen())
	units := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		ra, rb := a.Residue(i), b.Residue(i)
		if ra.Virtual || rb.Virtual || !ra.Protein || !rb.Protein {
			continue
		}
		if keep != nil && !keep(i) {
			continue
		}
		if _, ok := ra.CA(); !ok {
			continue
		}
		if _, ok := rb.CA(); !ok {
			continue
		}
		units = append(units, i)
	}

	return units
}

func centroid(points []r3.Vec) r3.Vec {
	var sum r3.Vec
	for _, p := range points {
		sum = r3.Add(sum, p)
	}

	return r3.Scale(1/float64(len(points)), sum)
}
