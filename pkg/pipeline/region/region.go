// Package region describes the flexible spans of a structural model that the
// pipeline remodels, refines and relaxes.
package region

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/pkg/errors"
)

// ErrOutOfRange is returned when a region does not fit the model it is resolved against.
var ErrOutOfRange = errors.New("region out of range")

// Region is one contiguous flexible span, 1-based and inclusive.
// Cut is the unit after which the chain is broken, 0 when not chosen yet.
type Region struct {
	Start    int     `json:"start" yaml:"start"`
	Stop     int     `json:"stop" yaml:"stop"`
	Cut      int     `json:"cut" yaml:"cut"`
	Extended bool    `json:"extended" yaml:"extended"`
	SkipRate float64 `json:"skip_rate" yaml:"skip_rate"`
}

// Len returns the number of units in the region.
func (r Region) Len() int {
	return r.Stop - r.Start + 1
}

// Contains reports whether unit i belongs to the region.
func (r Region) Contains(i int) bool {
	return i >= r.Start && i <= r.Stop
}

// IsTerminal reports whether the region touches the first or last unit of a model of n units.
func (r Region) IsTerminal(n int) bool {
	return r.Start == 1 || r.Stop == n
}

// Midpoint returns the default cut of the region.
func (r Region) Midpoint() int {
	return r.Start + (r.Stop-r.Start)/2
}

// ValidCut reports whether the explicit cut can break the chain of a model of n units.
func (r Region) ValidCut(n int) bool {
	return r.Cut >= r.Start-1 && r.Cut <= r.Stop && r.Cut >= 1 && r.Cut < n
}

func (r Region) String() string {
	return fmt.Sprintf("%d-%d(cut %d)", r.Start, r.Stop, r.Cut)
}

// Set is an ordered collection of regions.
type Set []Region

// Len returns the number of regions.
func (s Set) Len() int {
	return len(s)
}

// Size returns the total number of units covered by the regions.
func (s Set) Size() int {
	total := 0
	for _, r := range s {
		total += r.Len()
	}

	return total
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}

	return slices.Clone(s)
}

// Contains reports whether unit i belongs to any region.
func (s Set) Contains(i int) bool {
	for _, r := range s {
		if r.Contains(i) {
			return true
		}
	}

	return false
}

// ContainsPadded reports whether unit i lies within pad units of any region.
func (s Set) ContainsPadded(i, pad int) bool {
	for _, r := range s {
		if i >= r.Start-pad && i <= r.Stop+pad {
			return true
		}
	}

	return false
}

// Units returns the sorted units covered by the regions.
func (s Set) Units() []int {
	units := make([]int, 0, s.Size())
	for _, r := range s {
		for i := r.Start; i <= r.Stop; i++ {
			units = append(units, i)
		}
	}
	slices.Sort(units)

	return slices.Compact(units)
}

// Invert returns the rigid spans of a model of n units, that is every span not covered by a region.
func (s Set) Invert(n int) Set {
	sorted := s.sorted()
	rigid := Set{}
	next := 1
	for _, r := range sorted {
		if r.Start > next {
			rigid = append(rigid, Region{Start: next, Stop: r.Start - 1})
		}
		if r.Stop+1 > next {
			next = r.Stop + 1
		}
	}
	if next <= n {
		rigid = append(rigid, Region{Start: next, Stop: n})
	}

	return rigid
}

// Verify checks every region against a model of n units.
func (s Set) Verify(n int) error {
	for idx, r := range s {
		if r.Start < 1 || r.Stop > n || r.Start > r.Stop {
			return errors.Wrapf(ErrOutOfRange, "region %d (%s) does not fit a model of %d units", idx+1, r, n)
		}
		if r.Cut != 0 && (r.Cut < r.Start-1 || r.Cut > r.Stop) {
			return errors.Wrapf(ErrOutOfRange, "region %d (%s) has a cut outside its span", idx+1, r)
		}
	}

	return nil
}

// SetExtended marks every region as extended.
func (s Set) SetExtended(extended bool) {
	for idx := range s {
		s[idx].Extended = extended
	}
}

// AutoChooseCutpoints returns a copy of the set where every region without a usable cut
// gets the cut at its midpoint. Terminal regions keep a zero cut.
func (s Set) AutoChooseCutpoints(n int) Set {
	out := s.Clone()
	for idx, r := range out {
		if r.IsTerminal(n) {
			if !r.ValidCut(n) {
				out[idx].Cut = 0
			}
			continue
		}
		if !r.ValidCut(n) {
			out[idx].Cut = r.Midpoint()
		}
	}

	return out
}

// Grow returns a copy of the set where every region is extended on both sides by a random
// amount up to maxBy units. Regions never grow past the model ends or into their neighbours.
func (s Set) Grow(n, maxBy int, rng *rand.Rand) Set {
	out := s.sorted()
	if maxBy <= 0 {
		return out
	}
	for idx := range out {
		lower := 1
		if idx > 0 {
			lower = out[idx-1].Stop + 1
		}
		upper := n
		if idx < len(out)-1 {
			upper = out[idx+1].Start - 1
		}

		left := rng.Intn(maxBy + 1)
		right := rng.Intn(maxBy + 1)
		out[idx].Start = max(lower, out[idx].Start-left)
		out[idx].Stop = min(upper, out[idx].Stop+right)
		if out[idx].Cut != 0 && !out[idx].ValidCut(n) {
			out[idx].Cut = 0
		}
	}

	return out
}

func (s Set) sorted() Set {
	out := s.Clone()
	slices.SortStableFunc(out, func(a, b Region) int {
		return a.Start - b.Start
	})

	return out
}
