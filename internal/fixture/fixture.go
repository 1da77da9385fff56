// Package fixture builds synthetic models for tests and demos.
package fixture

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
)

const (
	helixRadius = 2.3
	helixRise   = 1.5
	helixTurn   = 100 * math.Pi / 180
)

// Option tweaks a synthetic model.
type Option func(*config)

type config struct {
	rep           model.Representation
	trailingVirt  int
	shift         r3.Vec
	noSideChain   bool
	missingSideAt []int
}

// WithRepresentation sets the representation of the model.
func WithRepresentation(rep model.Representation) Option {
	return func(c *config) {
		c.rep = rep
	}
}

// WithTrailingVirtual appends virtual units at the end of the chain.
func WithTrailingVirtual(n int) Option {
	return func(c *config) {
		c.trailingVirt = n
	}
}

// WithShift translates every atom.
func WithShift(v r3.Vec) Option {
	return func(c *config) {
		c.shift = v
	}
}

// WithoutSideChains builds backbone only units.
func WithoutSideChains() Option {
	return func(c *config) {
		c.noSideChain = true
	}
}

// WithMissingDensity places the side chain of the given units far from their backbone.
func WithMissingDensity(units ...int) Option {
	return func(c *config) {
		c.missingSideAt = units
	}
}

// HelixCA returns the alpha carbon of unit i of the ideal helix.
func HelixCA(i int) r3.Vec {
	angle := float64(i) * helixTurn

	return r3.Vec{X: helixRadius * math.Cos(angle), Y: helixRadius * math.Sin(angle), Z: helixRise * float64(i)}
}

// Helix builds an ideal helical chain of n units with adjacent alpha carbons about 3.8 apart.
func Helix(n int, opts ...Option) *model.Pose {
	cfg := &config{rep: model.FullAtom}
	for _, opt := range opts {
		opt(cfg)
	}

	residues := make([]model.Residue, 0, n+cfg.trailingVirt)
	for i := 1; i <= n; i++ {
		ca := HelixCA(i)
		radial := r3.Unit(r3.Vec{X: ca.X, Y: ca.Y})
		res := model.Residue{
			Name:    "ALA",
			Protein: true,
			Atoms: []model.Atom{
				{Name: model.AtomN, XYZ: r3.Add(ca, r3.Vec{Z: -0.9})},
				{Name: model.AtomCA, XYZ: ca},
				{Name: model.AtomC, XYZ: r3.Add(ca, r3.Vec{Z: 0.9})},
				{Name: model.AtomO, XYZ: r3.Add(ca, r3.Add(r3.Vec{Z: 0.9}, r3.Scale(-1.2, radial)))},
			},
		}
		if !cfg.noSideChain {
			side := r3.Add(ca, r3.Scale(1.5, radial))
			for _, m := range cfg.missingSideAt {
				if m == i {
					side = r3.Add(ca, r3.Scale(30, radial))
				}
			}
			name := "CB"
			if cfg.rep == model.Centroid {
				name = model.AtomCentroid
			}
			res.Atoms = append(res.Atoms, model.Atom{Name: name, XYZ: side})
		}
		residues = append(residues, res)
	}
	for range cfg.trailingVirt {
		residues = append(residues, model.Residue{
			Name:    "VRT",
			Virtual: true,
			Atoms:   []model.Atom{{Name: "ORIG", XYZ: r3.Vec{}}},
		})
	}

	pose, err := model.NewPose(residues, cfg.rep)
	if err != nil {
		panic(err)
	}
	if cfg.shift != (r3.Vec{}) {
		pose.Transform(func(v r3.Vec) r3.Vec {
			return r3.Add(v, cfg.shift)
		})
	}

	return pose
}
